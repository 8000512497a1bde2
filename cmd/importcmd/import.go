// Package importcmd implements the import command
package importcmd

import (
	"fmt"
	"io"
	"os"

	"jjcook/budgetdb/cmd/root"
	"jjcook/budgetdb/internal/importer"
	"jjcook/budgetdb/internal/logging"

	"github.com/spf13/cobra"
)

var (
	dryRun     bool
	printRows  bool
	outputPath string
)

// Cmd represents the import command
var Cmd = &cobra.Command{
	Use:   "import <file|s3://bucket/key>...",
	Short: "Import records from flat files",
	Long: `Import reads one or more pipe-delimited flat files, local or in S3,
stages every row, resolves import key collisions and relations between rows,
and saves the result. With --dry-run nothing is written to the database.`,
	Args: cobra.MinimumNArgs(1),
	RunE: importFunc,
}

func init() {
	Cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Parse and resolve only; do not save")
	Cmd.Flags().BoolVar(&printRows, "print", false, "Print the staged rows as CSV")
	Cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the printed rows to a file instead of stdout")
}

func importFunc(cmd *cobra.Command, args []string) error {
	c, err := root.GetContainer()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var records *importer.Records
	if dryRun {
		records = c.NewDryRunImporter()
	} else {
		records = c.NewImporter()
	}

	loaded := 0
	for _, location := range args {
		n, err := records.Load(ctx, location)
		if err != nil {
			return fmt.Errorf("import %s: %w", location, err)
		}
		loaded += n
	}

	if printRows {
		if err := printTo(cmd.OutOrStdout(), records); err != nil {
			return err
		}
	}

	saved := 0
	if !dryRun {
		if saved, err = records.Save(ctx); err != nil {
			return err
		}
	}

	root.Log.Info("Import finished",
		logging.F(logging.FieldBatchID, records.BatchID()),
		logging.F(logging.FieldCount, loaded),
		logging.F("saved", saved),
		logging.F("collisions", len(records.Warnings())))
	fmt.Fprintf(cmd.OutOrStdout(), "%d rows read, %d saved, %d import keys renamed\n",
		loaded, saved, len(records.Warnings()))
	return nil
}

func printTo(stdout io.Writer, records *importer.Records) error {
	if outputPath == "" {
		return records.Print(stdout)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	if err := records.Print(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
