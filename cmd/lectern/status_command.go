package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"lectern/internal/config"
	"lectern/internal/ingest"
	"lectern/internal/preflight"
	"lectern/internal/ragstore"
	"lectern/internal/timeindex"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var checkEndpoints bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show dependency, workspace, and index status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var lines []string
			lines = append(lines, renderSectionHeader("Configuration", colorize)...)
			if ctx.configExists {
				lines = append(lines, renderStatusLine("Config file", statusOK, ctx.configPath, colorize))
			} else {
				lines = append(lines, renderStatusLine("Config file", statusInfo, "defaults (no file at "+ctx.configPath+")", colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
			lines = append(lines, dependencyLines(preflight.CheckSystemDeps(cmd.Context(), cfg), colorize)...)

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Workspace", colorize)...)
			lines = append(lines, preflightLines(preflight.RunAll(cmd.Context(), cfg), colorize)...)

			if checkEndpoints {
				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Endpoints", colorize)...)
				lines = append(lines, preflightLines([]preflight.Result{
					preflight.CheckEndpoint(cmd.Context(), "Transcription API", cfg.Transcription.BaseURL, cfg.Transcription.APIKey),
					preflight.CheckEndpoint(cmd.Context(), "Embedding API", cfg.Embedding.BaseURL, cfg.Embedding.APIKey),
				}, colorize)...)
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Index", colorize)...)
			lines = append(lines, indexLines(cmd.Context(), cfg, colorize)...)

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkEndpoints, "check-endpoints", false, "Also verify the API endpoints accept the configured keys")
	return cmd
}

func indexLines(ctx context.Context, cfg *config.Config, colorize bool) []string {
	var lines []string

	store := timeindex.New(cfg.TimeIndexPath())
	if rows, err := store.ReadAll(); err != nil {
		lines = append(lines, renderStatusLine("Time index", statusWarn, err.Error(), colorize))
	} else {
		lines = append(lines, renderStatusLine("Time index", statusOK,
			fmt.Sprintf("%d rows in %s", len(rows), store.Path()), colorize))
	}

	gen, err := ingest.Current(cfg.Paths.RAGDir)
	if err != nil {
		return append(lines, renderStatusLine("Search index", statusWarn, "not built (run 'lectern index')", colorize))
	}
	db, err := ragstore.Open(ctx, gen.StorePath())
	if err != nil {
		return append(lines, renderStatusLine("Search index", statusError, err.Error(), colorize))
	}
	defer db.Close()
	meta, err := db.Meta(ctx)
	if err != nil {
		return append(lines, renderStatusLine("Search index", statusError, err.Error(), colorize))
	}

	count, err := db.Count(ctx)
	if err != nil {
		return append(lines, renderStatusLine("Search index", statusError, err.Error(), colorize))
	}

	kind := statusOK
	detail := fmt.Sprintf("%d records, built %s", count, humanize.Time(meta.CreatedAt))
	if count != meta.RecordCount {
		kind = statusWarn
		detail += fmt.Sprintf("; build stamp expects %d records (re-run 'lectern index')", meta.RecordCount)
	}
	if meta.Model != cfg.Embedding.Model {
		kind = statusWarn
		detail += fmt.Sprintf("; model %s differs from configured %s", meta.Model, cfg.Embedding.Model)
	}
	lines = append(lines, renderStatusLine("Search index", kind, detail, colorize))
	lines = append(lines, renderStatusLine("Build", statusInfo, fmt.Sprintf("%s (dimension %d)", meta.BuildID, meta.Dimension), colorize))
	return lines
}
