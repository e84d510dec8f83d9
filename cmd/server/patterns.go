package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/candlelens/candlelens/internal/taxonomy"
)

var flagPatternsJSON bool

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the loaded candlestick pattern taxonomy",
	Args:  cobra.NoArgs,
	RunE:  runPatterns,
}

func init() {
	patternsCmd.Flags().BoolVar(&flagPatternsJSON, "json", false, "Print JSON instead of a table")
	rootCmd.AddCommand(patternsCmd)
}

func runPatterns(cmd *cobra.Command, _ []string) error {
	patterns, err := taxonomy.Load(cfg.TaxonomyPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flagPatternsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(patterns)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tDIRECTION")
	for _, p := range patterns {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Category, p.Direction)
	}
	return tw.Flush()
}
