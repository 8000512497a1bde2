// Package stats implements the stats command
package stats

import (
	"fmt"
	"text/tabwriter"

	"jjcook/budgetdb/cmd/root"
	"jjcook/budgetdb/internal/models"

	"github.com/spf13/cobra"
)

// Cmd represents the stats command
var Cmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts per entity kind",
	Long:  `Stats prints how many accounts, budgets, transactions, statements, allotments and rules are stored.`,
	Args:  cobra.NoArgs,
	RunE:  statsFunc,
}

func statsFunc(cmd *cobra.Command, args []string) error {
	c, err := root.GetContainer()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	s := c.GetStore()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tCOUNT")
	for _, kind := range models.Kinds() {
		n, err := s.Count(ctx, kind)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", kind, n)
	}
	n, err := s.CountRules(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Rule\t%d\n", n)
	return w.Flush()
}
