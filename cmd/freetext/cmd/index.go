package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zooragi/openEQUELLA/internal/freetext"
)

// documentFile is the YAML input format for the index command: a list of
// documents with an id and arbitrary string fields.
type documentFile struct {
	Documents []struct {
		ID     string            `yaml:"id"`
		Fields map[string]string `yaml:"fields"`
	} `yaml:"documents"`
}

type indexOptions struct {
	deletes []string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [file.yaml]",
		Short: "Apply a mutation batch to the index",
		Long: `Apply one batch of document adds, updates and deletes.

The input file lists documents as:

  documents:
    - id: item-1
      fields:
        title: Introduction to Chemistry
        body: ...

Deletes can be combined with or used instead of a file:

  freetext index docs.yaml --delete item-9 --delete item-10`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			return runIndex(cmd.Context(), cmd, file, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.deletes, "delete", nil, "Document id to delete (repeatable)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, file string, opts indexOptions) error {
	if file == "" && len(opts.deletes) == 0 {
		return fmt.Errorf("nothing to do: provide a document file or --delete")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer setupLogging(cfg)()

	var docs documentFile
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read documents %s: %w", file, err)
		}
		if err := yaml.Unmarshal(data, &docs); err != nil {
			return fmt.Errorf("parse documents %s: %w", file, err)
		}
	}

	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	gen, err := engine.Modify(ctx, func(ctx context.Context, batch *freetext.MutationBatch) error {
		for _, doc := range docs.Documents {
			if doc.ID == "" {
				return fmt.Errorf("document without id")
			}
			fields := make(map[string]interface{}, len(doc.Fields))
			for k, v := range doc.Fields {
				fields[k] = v
			}
			if err := batch.Index(doc.ID, fields); err != nil {
				return err
			}
		}
		for _, id := range opts.deletes {
			batch.Delete(id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d document(s), deleted %d, generation %d\n",
		len(docs.Documents), len(opts.deletes), gen)
	return nil
}
