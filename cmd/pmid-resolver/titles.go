package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/pmid-resolver/pkg/query"
	"github.com/Sternrassler/pmid-resolver/pkg/title"
)

func newTitlesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "titles",
		Short: "List the titles of a document with their search queries (no network)",
		Args:  cobra.NoArgs,
		RunE:  runTitles,
	}
	addInputFlags(cmd.Flags())
	cmd.Flags().Bool("urls", false, "Print the full request URL instead of the search term")
	return cmd
}

func runTitles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Input.Path == "" {
		return errNoInput
	}
	setupLogging(cmd, cfg)

	qc := cfg.Query()
	qc.APIKey = "" // never print the API key
	builder, err := query.NewBuilder(qc)
	if err != nil {
		return err
	}

	titles, err := title.NewFileSource(cfg.Input.Path, title.Format(cfg.Input.Format)).Titles(cmd.Context())
	if err != nil {
		return err
	}

	showURLs, _ := cmd.Flags().GetBool("urls")
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTITLE\tQUERY")
	for i, raw := range titles {
		normalized := title.Normalize(raw)
		q := builder.Term(normalized)
		if showURLs {
			if q, err = builder.Build(normalized); err != nil {
				q = "error: " + err.Error()
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, raw, q)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d titles\n", len(titles))
	return nil
}
