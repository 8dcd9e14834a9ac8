package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dossier/internal/api"
	"dossier/internal/config"
	"dossier/internal/logging"
	"dossier/internal/profile"
	"dossier/internal/services"
)

const (
	// maxRequestBytes leaves room for a base64 reference photo.
	maxRequestBytes = 16 << 20
	requestIDHeader = "X-Request-ID"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Builds wait on enrichment and asset deadlines back to back.
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	cfg := s.daemon.cfg
	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/search", authMiddleware(token, s.handleSearch))
	mux.HandleFunc("POST /api/candidates", authMiddleware(token, s.handleCandidates))
	mux.HandleFunc("GET /api/profiles", authMiddleware(token, s.handleProfiles))
	mux.HandleFunc("GET /api/profiles/{key...}", authMiddleware(token, s.handleProfile))
	if s.daemon.answers != nil {
		mux.HandleFunc("GET /api/answer/{key...}", authMiddleware(token, s.handleStoredAnswer))
		mux.HandleFunc("POST /api/answer/{key...}", authMiddleware(token, s.handleAnswer))
		mux.HandleFunc("POST /api/followup/{key...}", authMiddleware(token, s.handleFollowUp))
		mux.HandleFunc("POST /api/chat/{key...}", authMiddleware(token, s.handleChat))
	}
	if cfg.AssetStorage.Backend == config.BackendFilesystem && cfg.Paths.AssetDir != "" {
		mux.Handle("GET /assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(cfg.Paths.AssetDir))))
	}
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.log().Info("api server disabled; paths.api_bind is empty")
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.daemon.store.Count(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "degraded"})
		return
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Profiles: count})
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body api.SearchRequest
	if !s.decode(w, r, &body) {
		return
	}
	ctx := requestContext(r)
	req, err := body.PipelineRequest(ctx, s.daemon.loader)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp, err := s.daemon.service.Search(ctx, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromOutcome(resp))
}

func (s *apiServer) handleCandidates(w http.ResponseWriter, r *http.Request) {
	var body api.CandidatesRequest
	if !s.decode(w, r, &body) {
		return
	}
	ctx := requestContext(r)
	reference, err := body.Reference(ctx, s.daemon.loader)
	if err != nil {
		s.writeError(w, err)
		return
	}
	list, err := s.daemon.service.Candidates(ctx, body.ProfileQuery(), reference)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromCandidates(list))
}

func (s *apiServer) handleProfiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.daemon.store.List(r.Context(), 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSummaries(list))
}

func (s *apiServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.PathValue("key"))
	if key == "" {
		s.writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "profile not found"})
		return
	}
	p, ok := s.daemon.service.Profile(requestContext(r), profile.CacheKey(key))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "profile not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, api.ProfileResponse{Profile: p, Cached: true, Partial: p.Partial()})
}

func (s *apiServer) handleStoredAnswer(w http.ResponseWriter, r *http.Request) {
	res, err := s.daemon.answers.Stored(requestContext(r), r.PathValue("key"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromAnswer(res))
}

func (s *apiServer) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var body api.AnswerRequest
	if !s.decodeOptional(w, r, &body) {
		return
	}
	res, err := s.daemon.answers.Generate(requestContext(r), r.PathValue("key"), body.Regenerate)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromAnswer(res))
}

func (s *apiServer) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	var body api.FollowUpRequest
	if !s.decode(w, r, &body) {
		return
	}
	res, err := s.daemon.answers.FollowUp(requestContext(r), r.PathValue("key"), body.Question)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromFollowUp(res))
}

func (s *apiServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var body api.ChatRequest
	if !s.decode(w, r, &body) {
		return
	}
	res, err := s.daemon.answers.Chat(requestContext(r), r.PathValue("key"), body.ChatID, body.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// decodeOptional is decode for endpoints whose body may be empty.
func (s *apiServer) decodeOptional(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body: " + err.Error(), Kind: "invalid_query"})
		return false
	}
	return true
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body: " + err.Error(), Kind: "invalid_query"})
		return false
	}
	return true
}

// requestContext carries the caller's request ID, or a fresh one, into the
// pipeline so every log line of the build shares it.
func requestContext(r *http.Request) context.Context {
	id := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if id == "" {
		id = uuid.NewString()
	}
	return services.WithRequestID(r.Context(), id)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	status, body := api.FromError(err)
	if status >= http.StatusInternalServerError {
		s.log().Warn("api request failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_request_failed"),
		)
	}
	s.writeJSON(w, status, body)
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
