package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dossier/internal/api"
	"dossier/internal/config"
	"dossier/internal/profile"
	"dossier/internal/store"
	"dossier/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\nasset_dir = %q\napi_bind = %q\n\n[llm]\napi_key = %q\n\n[news]\nenabled = false\n\n[page_meta]\nenabled = false\n",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Paths.AssetDir,
		cfg.Paths.APIBind,
		cfg.LLM.APIKey,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func seedProfile(t *testing.T, cfg *config.Config, p *profile.Profile) {
	t.Helper()
	profiles, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer profiles.Close()
	if err := profiles.Put(context.Background(), p); err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestCacheListShowRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	seedProfile(t, env.cfg, &profile.Profile{
		ID:    "p-ada",
		Key:   "ada lovelace",
		Query: profile.Query{Text: "Ada Lovelace"},
		Basic: profile.BasicInfo{Name: "Ada Lovelace"},
	})

	out, _, err := runCLI(t, []string{"cache", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	var listing api.ProfileListResponse
	if err := json.Unmarshal([]byte(out), &listing); err != nil {
		t.Fatalf("decode list output %q: %v", out, err)
	}
	if len(listing.Profiles) != 1 || listing.Profiles[0].Key != "ada lovelace" {
		t.Fatalf("unexpected listing %+v", listing)
	}

	out, _, err = runCLI(t, []string{"cache", "show", "Ada", "Lovelace"}, env.configPath)
	if err != nil {
		t.Fatalf("cache show by query: %v", err)
	}
	requireContains(t, out, `"id": "p-ada"`)

	if _, _, err := runCLI(t, []string{"cache", "show", "nobody"}, env.configPath); err == nil {
		t.Fatal("expected unknown profile to fail")
	}

	out, _, err = runCLI(t, []string{"cache", "remove", "p-ada"}, env.configPath)
	if err != nil {
		t.Fatalf("cache remove by id: %v", err)
	}
	requireContains(t, out, "ada lovelace")

	out, _, err = runCLI(t, []string{"cache", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("cache list: %v", err)
	}
	requireContains(t, out, `"profiles": []`)
}

func TestCachePruneRemovesExpiredProfiles(t *testing.T) {
	env := setupCLITestEnv(t)
	seedProfile(t, env.cfg, &profile.Profile{ID: "p1", Key: "grace hopper", Basic: profile.BasicInfo{Name: "Grace Hopper"}})
	time.Sleep(20 * time.Millisecond)

	out, _, err := runCLI(t, []string{"cache", "prune", "--older-than", "5ms"}, env.configPath)
	if err != nil {
		t.Fatalf("cache prune: %v", err)
	}
	var resp api.PruneResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode prune output %q: %v", out, err)
	}
	if resp.Profiles != 1 {
		t.Fatalf("expected one pruned profile, got %+v", resp)
	}

	out, _, err = runCLI(t, []string{"cache", "stats"}, env.configPath)
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, out, `"profiles": 0`)
}

func TestSearchRejectsBlankQuery(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"search", "   "}, env.configPath)
	if err == nil {
		t.Fatal("expected blank query to fail")
	}
}

func TestSearchRejectsMissingReference(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(t.TempDir(), "missing.jpg")
	_, _, err := runCLI(t, []string{"search", "Ada Lovelace", "--reference", missing}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "read reference photo") {
		t.Fatalf("expected reference read failure, got %v", err)
	}
}

func TestMissingLLMKeyFailsConfigLoad(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	content := fmt.Sprintf("[paths]\ndata_dir = %q\n", env.cfg.Paths.DataDir)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := runCLI(t, []string{"cache", "list"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "llm.api_key") {
		t.Fatalf("expected llm.api_key error, got %v", err)
	}
}

func TestLogsShowsTrailingLines(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	logPath := filepath.Join(env.cfg.Paths.LogDir, "dossier.log")
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "second\nthird\n" {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestAnswerReturnsStoredBiography(t *testing.T) {
	env := setupCLITestEnv(t)
	seedProfile(t, env.cfg, &profile.Profile{
		ID:    "p-ada",
		Key:   "ada lovelace",
		Query: profile.Query{Text: "Ada Lovelace"},
		Basic: profile.BasicInfo{Name: "Ada Lovelace"},
	})
	profiles, err := store.Open(env.cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if err := profiles.PutAnswer(context.Background(), &profile.Answer{
		Key:     "ada lovelace",
		Text:    "Ada Lovelace wrote the first published program.",
		Related: []string{"What did she publish?"},
	}); err != nil {
		t.Fatalf("PutAnswer: %v", err)
	}
	_ = profiles.Close()

	out, _, err := runCLI(t, []string{"answer", "Ada", "Lovelace"}, env.configPath)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	var resp api.AnswerResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode answer output %q: %v", out, err)
	}
	if !resp.Cached || resp.ProfileID != "p-ada" || resp.Answer != "Ada Lovelace wrote the first published program." {
		t.Fatalf("unexpected answer %+v", resp)
	}
	if len(resp.RelatedQuestions) != 1 {
		t.Fatalf("expected stored related questions, got %v", resp.RelatedQuestions)
	}
}

func TestAnswerCommandsRejectUnknownProfiles(t *testing.T) {
	env := setupCLITestEnv(t)
	cases := [][]string{
		{"answer", "nobody"},
		{"ask", "nobody", "--question", "Where does she work?"},
		{"chat", "nobody", "--message", "hello"},
	}
	for _, args := range cases {
		_, _, err := runCLI(t, args, env.configPath)
		if err == nil || !strings.Contains(err.Error(), "no stored profile matches") {
			t.Fatalf("%s: expected unknown profile failure, got %v", args[0], err)
		}
	}
}

func TestAskRequiresQuestion(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"ask", "ada lovelace"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "--question is required") {
		t.Fatalf("expected missing question failure, got %v", err)
	}
}
