package main

import (
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	salesman "github.com/cloudxsgmbh/salesman-go"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <file.yaml>",
		Short: "Normalize a schema file and print its field mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, s, err := salesman.LoadSchemaFile(args[0])
			if err != nil {
				return err
			}
			printSchema(cmd, doc, s)
			return nil
		},
	}
}

func printSchema(cmd *cobra.Command, doc *salesman.SchemaFile, s *salesman.Schema) {
	out := cmd.OutOrStdout()
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	magenta := color.New(color.FgMagenta)

	bold.Fprintf(out, "%s → %s\n", doc.Name, s.ObjectName())
	attrs := s.Attributes()
	paths := make([]string, 0, len(attrs))
	for path := range attrs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		def := attrs[path]
		if def.IsRelationship() {
			kind := "one"
			if def.Collection {
				kind = "many"
			}
			magenta.Fprintf(out, "  %-30s ref %s (%s)\n", path, def.Ref, kind)
			continue
		}
		cyan.Fprintf(out, "  %-30s %s\n", path, def.Column)
	}
}
