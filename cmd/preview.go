package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
)

var (
	prvFile      string
	prvFull      bool
	prvRows      int
	prvDescribe  bool
	prvMarkdown  bool
	prvDelimiter string
	prvDecimal   string
	prvThousands string
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Load a dataset and show its first rows or a column summary",
	Example: `  vizloom preview --file scores.csv
  vizloom preview --file scores.csv --full
  vizloom preview --file data.tsv --describe
  vizloom preview --file eu.csv --delimiter ';' --decimal comma --thousands .`,
	RunE: func(cmd *cobra.Command, args []string) error {
		defer func() {
			cmd.Flags().Visit(func(fl *pflag.Flag) { _ = fl.Value.Set(fl.DefValue); fl.Changed = false })
		}()
		if prvFile == "" {
			return fmt.Errorf("--file is required")
		}
		opt, err := loadOptions(prvDelimiter, prvDecimal, prvThousands)
		if err != nil {
			return err
		}
		ds, err := dataset.LoadFile(prvFile, opt)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Loaded %s: %d rows, %d columns\n", ds.Name(), ds.Len(), ds.Width())

		if prvDescribe {
			sum := ds.Describe(prvRows)
			if prvMarkdown {
				fmt.Fprintln(out, sum.Markdown())
				return nil
			}
			printFrame(out, sum.Table(), 0)
			return nil
		}
		rows := prvRows
		if !cmd.Flags().Changed("rows") {
			rows = currentConfig().PreviewRows
		}
		if prvFull {
			rows = 0
		}
		printFrame(out, ds, rows)
		fmt.Fprintln(out, ds.SchemaLine())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	f := previewCmd.Flags()
	f.StringVarP(&prvFile, "file", "f", "", "path to a CSV/TSV dataset")
	f.BoolVar(&prvFull, "full", false, "show every row")
	f.IntVar(&prvRows, "rows", 5, "rows to show (default from config preview_rows)")
	f.BoolVar(&prvDescribe, "describe", false, "show per-column statistics instead of rows")
	f.BoolVar(&prvMarkdown, "markdown", false, "with --describe, print the summary as Markdown")
	f.StringVar(&prvDelimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab'")
	f.StringVar(&prvDecimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	f.StringVar(&prvThousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
}
