package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dossier/internal/api"
	"dossier/internal/assets"
	"dossier/internal/config"
	"dossier/internal/profile"
	"dossier/internal/query"
	"dossier/internal/store"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage stored profiles",
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheShowCommand(ctx))
	cacheCmd.AddCommand(newCacheRemoveCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))

	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored profiles, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, profiles *store.Store) error {
				list, err := profiles.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if ctx.wantJSON(cmd) {
					return writeJSON(cmd, api.FromSummaries(list))
				}
				printProfileSummaries(cmd.OutOrStdout(), list)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of profiles to list (0 lists all)")
	return cmd
}

func printProfileSummaries(out io.Writer, list []store.Summary) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No stored profiles")
		return
	}
	rows := make([][]string, 0, len(list))
	for _, s := range list {
		rows = append(rows, []string{
			s.Key.String(),
			s.Name,
			yesNo(s.Partial),
			formatStamp(s.UpdatedAt),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Key", "Name", "Partial", "Updated"}, rows, nil))
}

func newCacheShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <key|id|query>",
		Short: "Show a stored profile",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, profiles *store.Store) error {
				p, err := findProfile(cmd.Context(), profiles, strings.Join(args, " "))
				if err != nil {
					return err
				}
				resp := api.ProfileResponse{Profile: p, Cached: true, Partial: p.Partial()}
				if ctx.wantJSON(cmd) {
					return writeJSON(cmd, resp)
				}
				renderProfile(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}
}

func newCacheRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <key|id|query>",
		Aliases: []string{"rm"},
		Short:   "Remove a stored profile",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, profiles *store.Store) error {
				p, err := findProfile(cmd.Context(), profiles, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if _, err := profiles.Delete(cmd.Context(), p.Key); err != nil {
					return err
				}
				if ctx.wantJSON(cmd) {
					return writeJSON(cmd, map[string]string{"removed": p.Key.String()})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", p.Key)
				return nil
			})
		},
	}
}

// findProfile resolves arg as a cache key, a profile ID, or a query whose
// normalized key is stored, in that order.
func findProfile(ctx context.Context, profiles *store.Store, arg string) (*profile.Profile, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil, errors.New("profile key is required")
	}
	p, err := profiles.Get(ctx, profile.CacheKey(arg))
	if err != nil || p != nil {
		return p, err
	}
	p, err = profiles.GetByID(ctx, arg)
	if err != nil || p != nil {
		return p, err
	}
	if key, normErr := query.Normalize(profile.Query{Text: arg}); normErr == nil {
		p, err = profiles.Get(ctx, key)
		if err != nil || p != nil {
			return p, err
		}
	}
	return nil, fmt.Errorf("no stored profile matches %q", arg)
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove expired profiles and unreferenced assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, profiles *store.Store) error {
				window := olderThan
				if !cmd.Flags().Changed("older-than") {
					window = cfg.Retention()
				}
				req := api.PruneRequest{Store: profiles, OlderThan: window}
				if cfg.AssetStorage.Backend == config.BackendFilesystem {
					req.AssetDir = cfg.Paths.AssetDir
				}
				result, err := api.PruneProfiles(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.wantJSON(cmd) {
					return writeJSON(cmd, result.Response())
				}
				out := cmd.OutOrStdout()
				if result.Profiles == 0 && len(result.Orphaned.Removed) == 0 {
					fmt.Fprintln(out, "Nothing to prune")
					return nil
				}
				fmt.Fprintf(out, "Removed %d profiles and %d unreferenced assets\n", result.Profiles, len(result.Orphaned.Removed))
				for _, failure := range append(result.Temp.Errors, result.Orphaned.Errors...) {
					fmt.Fprintf(out, "  warn: %s: %v\n", failure.Path, failure.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Remove profiles not updated within this window (default: pipeline.retention_hours; 0 keeps all profiles)")
	return cmd
}

type cacheStats struct {
	Profiles   int    `json:"profiles"`
	Database   string `json:"database"`
	AssetCount int    `json:"assetCount"`
	AssetBytes int64  `json:"assetBytes"`
	AssetDir   string `json:"assetDir,omitempty"`
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show profile and asset usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, profiles *store.Store) error {
				count, err := profiles.Count(cmd.Context())
				if err != nil {
					return err
				}
				stats := cacheStats{Profiles: count, Database: profiles.Path()}
				if cfg.AssetStorage.Backend == config.BackendFilesystem {
					stats.AssetDir = cfg.Paths.AssetDir
					stats.AssetCount, stats.AssetBytes, err = assets.Usage(cfg.Paths.AssetDir)
					if err != nil {
						return err
					}
				}
				if ctx.wantJSON(cmd) {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Profiles: %d\n", stats.Profiles)
				fmt.Fprintf(out, "Database: %s\n", stats.Database)
				if stats.AssetDir != "" {
					fmt.Fprintf(out, "Assets:   %d files, %s (%s)\n", stats.AssetCount, humanBytes(stats.AssetBytes), stats.AssetDir)
				}
				return nil
			})
		},
	}
}
