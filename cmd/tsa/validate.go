package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smukkama/tsa/internal/definition"
	"github.com/smukkama/tsa/internal/evalerr"
)

var validateFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse a definition file and list its errors without touching the store",
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "definition file (YAML or JSON)")
	_ = validateCmd.MarkFlagRequired("file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	file, err := definition.LoadFile(validateFile)
	if err != nil {
		return err
	}
	file.DefaultMaxGap(cfg.Analysis.MaxGap)

	collections, err := file.Build()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	total := 0
	for _, c := range collections {
		report := c.Report()
		total += report.Count()
		fmt.Fprintf(out, "%s: %d conditions, %d errors\n", c.Title, len(c.Conditions()), report.Count())
		printReport(cmd, report)
	}

	if total > 0 {
		return fmt.Errorf("%d errors found", total)
	}
	return nil
}

func printReport(cmd *cobra.Command, report evalerr.CollectionReport) {
	out := cmd.OutOrStdout()
	printRecords := func(indent string, records []evalerr.Record) {
		for _, r := range records {
			if r.Count > 1 {
				fmt.Fprintf(out, "%s%s error: %s (%d times)\n", indent, r.Kind, r.Message, r.Count)
				continue
			}
			fmt.Fprintf(out, "%s%s error: %s\n", indent, r.Kind, r.Message)
		}
	}

	printRecords("  ", report.Errors)
	for _, c := range report.Conditions {
		if c.Count() == 0 {
			continue
		}
		fmt.Fprintf(out, "  %s#%s\n", c.Site, c.MasterAlias)
		printRecords("    ", c.Errors)
		for _, b := range c.Blocks {
			if len(b.Errors) == 0 {
				continue
			}
			fmt.Fprintf(out, "    %s: %s\n", b.Alias, b.Raw)
			printRecords("      ", b.Errors)
		}
	}
}
