package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/retrieval"
	"lectern/internal/services"
)

const searchTextWidth = 60

type searcher interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Result, error)
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var topK int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Search transcripts by meaning",
		Long:  "Searches the live index. Without a query, starts an interactive prompt; type exit or quit to leave.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			k := topK
			if !cmd.Flags().Changed("top-k") {
				k = cfg.Retrieval.TopK
			}
			engine, err := ctx.newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			query := strings.TrimSpace(strings.Join(args, " "))
			if query != "" {
				return runSearch(cmd, engine, query, k, asJSON)
			}
			return interactiveSearch(cmd, engine, k, asJSON)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", retrieval.DefaultTopK, "Number of results to return")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func runSearch(cmd *cobra.Command, engine searcher, query string, k int, asJSON bool) error {
	results, err := engine.Search(cmd.Context(), query, k)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		if results == nil {
			results = []retrieval.Result{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "No matching segments")
		return nil
	}
	fmt.Fprintln(out, renderResults(results))
	return nil
}

func interactiveSearch(cmd *cobra.Command, engine searcher, k int, asJSON bool) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "query> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		err := runSearch(cmd, engine, line, k, asJSON)
		switch {
		case err == nil:
		case errors.Is(err, services.ErrInvalidInput),
			errors.Is(err, services.ErrCapabilityUnavailable),
			errors.Is(err, services.ErrStoreNotReady):
			fmt.Fprintf(cmd.ErrOrStderr(), "search failed: %v\n", err)
		default:
			return err
		}
	}
}

func renderResults(results []retrieval.Result) string {
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			fmt.Sprintf("%.3f", r.Score),
			r.MediaID,
			r.StartTime + "-" + r.EndTime,
			r.Speaker,
			r.Text,
			frameLabel(r),
		})
	}
	return renderTable([]column{
		rightCol("#"), rightCol("Score"), leftCol("Media"), leftCol("Time"),
		leftCol("Speaker"), {title: "Text", maxWidth: searchTextWidth}, leftCol("Frames"),
	}, rows)
}

func frameLabel(r retrieval.Result) string {
	var names []string
	for _, p := range []string{r.StartImage, r.EndImage} {
		if p != "" {
			names = append(names, filepath.Base(p))
		}
	}
	return strings.Join(names, "\n")
}

var _ searcher = (*retrieval.Engine)(nil)
