package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/config"
	"lectern/internal/pipeline"
	"lectern/internal/preflight"
	"lectern/internal/services"
	"lectern/internal/timecode"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Transcribe media, capture frames, and rebuild the search index",
		Long: "Runs every stage for the given files, or for every supported file in the input directory when none are given.\n" +
			"Only one job may run per output directory at a time.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := checkPreflight(cmd, cfg); err != nil {
				return err
			}
			runner, err := ctx.newRunner(cmd, true, true)
			if err != nil {
				return err
			}
			report, err := runner.Ingest(cmd.Context(), args)
			printReport(cmd.OutOrStdout(), report)
			return err
		},
	}
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe [files...]",
		Short: "Transcribe media into the time index and markdown transcripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := ctx.newRunner(cmd, true, false)
			if err != nil {
				return err
			}
			report, err := runner.Transcribe(cmd.Context(), args)
			printReport(cmd.OutOrStdout(), report)
			return err
		},
	}
}

func newFramesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "frames",
		Short: "Capture start and end frames for every time index row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := ctx.newRunner(cmd, false, false)
			if err != nil {
				return err
			}
			report, err := runner.Frames(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Captured %d frames\n", report.Frames)
			return nil
		},
	}
}

func newIndexCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild the search index from the time index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := ctx.newRunner(cmd, false, true)
			if err != nil {
				return err
			}
			report, err := runner.Index(cmd.Context())
			printReport(cmd.OutOrStdout(), report)
			return err
		},
	}
}

func checkPreflight(cmd *cobra.Command, cfg *config.Config) error {
	failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg))
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return services.Wrap(services.ErrConfiguration, "cli", "preflight", strings.Join(parts, "; "), nil)
}

func printReport(out io.Writer, report pipeline.Report) {
	if len(report.Assets) > 0 {
		rows := make([][]string, 0, len(report.Assets))
		for _, a := range report.Assets {
			status := "ok"
			if a.Err != nil {
				status = services.Kind(a.Err)
			}
			rows = append(rows, []string{
				a.MediaID,
				status,
				strconv.Itoa(a.Rows),
				a.Language,
				timecode.FormatSeconds(a.Duration),
				clipSummary(a),
			})
		}
		fmt.Fprintln(out, renderTable([]column{
			leftCol("Media"), leftCol("Status"), rightCol("Rows"),
			leftCol("Language"), rightCol("Duration"), rightCol("Clips"),
		}, rows))
	}
	if report.Frames > 0 {
		fmt.Fprintf(out, "Frames captured: %d\n", report.Frames)
	}
	if report.Index != nil {
		fmt.Fprintf(out, "Index %s: %d records, dimension %d, model %s\n",
			report.Index.BuildID, report.Index.Records, report.Index.Dimension, report.Index.Model)
	}
}

func clipSummary(a pipeline.AssetReport) string {
	if a.Clips == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", a.Clips-a.FailedClips, a.Clips)
}
