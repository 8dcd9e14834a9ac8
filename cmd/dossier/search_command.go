package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dossier/internal/api"
	"dossier/internal/assets"
	"dossier/internal/config"
	"dossier/internal/pipeline"
	"dossier/internal/profile"
)

type queryFlags struct {
	location  string
	company   string
	age       string
	reference string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.location, "location", "", "Location hint")
	cmd.Flags().StringVar(&f.company, "company", "", "Company hint")
	cmd.Flags().StringVar(&f.age, "age", "", "Age hint")
	cmd.Flags().StringVar(&f.reference, "reference", "", "Reference photo of the person (file path or http(s) URL)")
}

func (f *queryFlags) query(args []string) profile.Query {
	return profile.Query{
		Text:     strings.Join(args, " "),
		Location: f.location,
		Company:  f.company,
		Age:      f.age,
	}
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var flags queryFlags
	var candidateID string
	var refresh bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Build or fetch the profile for a person",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(cfg *config.Config, svc *pipeline.Service) error {
				reference, err := loadReference(cmd.Context(), cfg, flags.reference)
				if err != nil {
					return err
				}
				q := flags.query(args)
				q.CandidateID = strings.TrimSpace(candidateID)
				resp, err := svc.Search(cmd.Context(), pipeline.Request{
					Query:     q,
					Reference: reference,
					Refresh:   refresh,
				})
				if err != nil {
					return err
				}
				out := api.FromOutcome(resp)
				if ctx.wantJSON(cmd) {
					return writeJSON(cmd, out)
				}
				renderProfile(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&candidateID, "candidate-id", "", "Build the profile for this candidate instead of the top-ranked one")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Rebuild even when a stored profile exists")
	return cmd
}

func newCandidatesCommand(ctx *commandContext) *cobra.Command {
	var flags queryFlags

	cmd := &cobra.Command{
		Use:   "candidates <query>",
		Short: "List the people a query could refer to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(cfg *config.Config, svc *pipeline.Service) error {
				reference, err := loadReference(cmd.Context(), cfg, flags.reference)
				if err != nil {
					return err
				}
				list, err := svc.Candidates(cmd.Context(), flags.query(args), reference)
				if err != nil {
					return err
				}
				out := api.FromCandidates(list)
				if ctx.wantJSON(cmd) {
					return writeJSON(cmd, out)
				}
				renderCandidates(cmd.OutOrStdout(), out.Candidates)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// loadReference reads a reference photo from disk, or downloads it when value
// is a URL.
func loadReference(ctx context.Context, cfg *config.Config, value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		fetcher := assets.NewFetcher(cfg.AssetFetchTimeout(),
			assets.WithRetry(cfg.Pipeline.AssetAttempts, cfg.AssetBackoff()),
		)
		data, err := fetcher.Load(ctx, value)
		if err != nil {
			return nil, fmt.Errorf("download reference photo: %w", err)
		}
		return data, nil
	}
	path, err := config.ExpandPath(value)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference photo: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("reference photo %s is empty", path)
	}
	return data, nil
}
