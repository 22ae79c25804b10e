package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/spf13/cobra"

	"github.com/zooragi/openEQUELLA/internal/freetext"
)

type searchOptions struct {
	limit  int
	field  string
	format string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search the index against the latest visible snapshot.

Examples:
  freetext search alpha --field title
  freetext search "introduction chemistry" --limit 5 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.field, "field", "f", "", "Restrict the match to one field")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer setupLogging(cfg)()

	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	result, err := freetext.Search(ctx, engine,
		func(ctx context.Context, snap *freetext.Snapshot) (*bleve.SearchResult, error) {
			q := bleve.NewMatchQuery(query)
			if opts.field != "" {
				q.SetField(opts.field)
			}
			req := bleve.NewSearchRequest(q)
			req.Size = opts.limit
			return snap.Search(ctx, req)
		})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "%d matches (%s)\n", result.Total, result.Took)
	for i, hit := range result.Hits {
		fmt.Fprintf(out, "%2d. %s (score %.4f)\n", i+1, hit.ID, hit.Score)
	}
	return nil
}
