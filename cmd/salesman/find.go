package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	salesman "github.com/cloudxsgmbh/salesman-go"
)

type findFlags struct {
	with     []string
	sel      string
	where    string
	sort     string
	limit    int
	skip     int
	includes []string
	soqlOnly bool
}

func newFindCmd() *cobra.Command {
	var f findFlags
	cmd := &cobra.Command{
		Use:   "find <schema.yaml>",
		Short: "Run a find against the model of a schema file",
		Long: `Run a find against the model of a schema file and print the records as JSON.

Related schemas used by --include are registered with --with.

Examples:
  salesman find lead.yaml --select "id contact.*" --where '{"contact":{"lastName":{"$like":"D%"}}}'
  salesman find lead.yaml --with attachment.yaml --include attachments
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.query()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout()
			defer cancel()

			sm, err := connect(ctx, salesman.Options{})
			if err != nil {
				return err
			}
			model, err := registerSchemas(sm, args[0], f.with)
			if err != nil {
				return err
			}

			var v any
			if f.soqlOnly {
				v, err = model.RemoteQuery(ctx, q)
			} else {
				v, err = model.Find(ctx, q)
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
	cmd.Flags().StringSliceVar(&f.with, "with", nil, "Additional schema files to register")
	cmd.Flags().StringVarP(&f.sel, "select", "s", "", "Fields to select")
	cmd.Flags().StringVarP(&f.where, "where", "w", "", "Where clause as JSON")
	cmd.Flags().StringVar(&f.sort, "sort", "", `Sort fields, "-" prefix for descending`)
	cmd.Flags().IntVarP(&f.limit, "limit", "l", 0, "Maximum number of records")
	cmd.Flags().IntVar(&f.skip, "skip", 0, "Number of records to skip")
	cmd.Flags().StringSliceVarP(&f.includes, "include", "i", nil, "Relationship fields to include")
	cmd.Flags().BoolVar(&f.soqlOnly, "plan", false, "Print the translated remote query instead of running it")
	return cmd
}

func (f findFlags) query() (*salesman.Query, error) {
	q := &salesman.Query{Limit: f.limit, Skip: f.skip}
	if f.sel != "" {
		q.Select = f.sel
	}
	if f.sort != "" {
		q.Sort = f.sort
	}
	if len(f.includes) > 0 {
		q.Includes = f.includes
	}
	if f.where != "" {
		if err := json.Unmarshal([]byte(f.where), &q.Where); err != nil {
			return nil, fmt.Errorf("invalid --where: %w", err)
		}
	}
	return q, nil
}

// registerSchemas registers every schema file and returns the model of main.
func registerSchemas(sm *salesman.Salesman, main string, with []string) (*salesman.Model, error) {
	for _, path := range with {
		doc, s, err := salesman.LoadSchemaFile(path)
		if err != nil {
			return nil, err
		}
		if _, err := sm.Model(doc.Name, s); err != nil {
			return nil, err
		}
	}
	doc, s, err := salesman.LoadSchemaFile(main)
	if err != nil {
		return nil, err
	}
	return sm.Model(doc.Name, s)
}
