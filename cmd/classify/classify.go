// Package classify implements the classify command
package classify

import (
	"fmt"

	"jjcook/budgetdb/cmd/root"

	"github.com/spf13/cobra"
)

// Cmd represents the classify command
var Cmd = &cobra.Command{
	Use:   "classify",
	Short: "Apply every rule to the stored transactions",
	Long: `Classify loads the rule list from first to last and applies each rule as
one bulk update of the matching transactions. It refuses to run when the list
is corrupt and stops at the first rule that fails.`,
	Args: cobra.NoArgs,
	RunE: classifyFunc,
}

func classifyFunc(cmd *cobra.Command, args []string) error {
	c, err := root.GetContainer()
	if err != nil {
		return err
	}
	sum, err := c.GetClassifier().Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("classification stopped after %d of %d rules: %w", sum.Applied, sum.Rules, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d rules applied, %d transaction updates\n", sum.Applied, sum.Rows)
	return nil
}
