// Package rules implements the rules command and its subcommands
package rules

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"jjcook/budgetdb/cmd/root"
	"jjcook/budgetdb/internal/container"
	"jjcook/budgetdb/internal/logging"
	"jjcook/budgetdb/internal/metrics"
	"jjcook/budgetdb/internal/models"

	"github.com/spf13/cobra"
)

var (
	when  []string
	set   []string
	after int64
	first bool
	raw   bool
)

// Cmd represents the rules command
var Cmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage the ordered classification rules",
	Long: `Rules are applied to transactions in order, first to last; a later rule
overrides what an earlier one assigned. Each rule matches transactions on all
of its conditions and assigns every one of its actions.`,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in application order",
	Long: `List rules in application order. With --raw, list every stored rule by id
with its links, without walking the chain; this still works when the chain
is corrupt.`,
	Args: cobra.NoArgs,
	RunE: listFunc,
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a rule",
	Long: `Add a rule at the end of the list, at the front with --first, or after
the rule given with --after. Conditions read "<field> <operator> <value>",
actions "<field>=<value>".`,
	Example: `  budgetdb rules add --when "amount = 125.00" --set display=Rent
  budgetdb rules add --when "description LIKE %COFFEE%" --set budget_id=3 --first`,
	Args: cobra.NoArgs,
	RunE: addFunc,
}

var moveCmd = &cobra.Command{
	Use:   "move <id>",
	Short: "Move a rule after another one, or to the front",
	Args:  cobra.ExactArgs(1),
	RunE:  moveFunc,
}

var removeCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a rule",
	Args:    cobra.ExactArgs(1),
	RunE:    removeFunc,
}

var loadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Append the rules of a YAML file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  loadFunc,
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the rules as YAML to a file or stdout",
	Args:  cobra.MaximumNArgs(1),
	RunE:  exportFunc,
}

func init() {
	listCmd.Flags().BoolVar(&raw, "raw", false, "List stored rules by id with their links")
	addCmd.Flags().StringArrayVarP(&when, "when", "w", nil, "Condition, repeatable")
	addCmd.Flags().StringArrayVarP(&set, "set", "s", nil, "Action, repeatable")
	for _, c := range []*cobra.Command{addCmd, moveCmd} {
		c.Flags().Int64VarP(&after, "after", "a", 0, "Place after the rule with this id")
		c.Flags().BoolVar(&first, "first", false, "Place at the front")
		c.MarkFlagsMutuallyExclusive("after", "first")
	}
	moveCmd.MarkFlagsOneRequired("after", "first")

	Cmd.AddCommand(listCmd, addCmd, moveCmd, removeCmd, loadCmd, exportCmd)
}

func listFunc(cmd *cobra.Command, args []string) error {
	c, err := root.GetContainer()
	if err != nil {
		return err
	}
	if raw {
		return listRaw(cmd, c)
	}
	rules, err := c.GetClassifier().Load(cmd.Context())
	if err != nil {
		return err
	}
	for i, r := range rules {
		fmt.Fprintf(cmd.OutOrStdout(), "%3d. [%d] %s\n", i+1, r.ID, r)
	}
	return nil
}

func listRaw(cmd *cobra.Command, c *container.Container) error {
	rules, err := c.GetStore().ListRules(cmd.Context())
	if err != nil {
		return err
	}
	for _, r := range rules {
		fmt.Fprintf(cmd.OutOrStdout(), "[%d] prev=%s next=%s %s\n", r.ID, link(r.PrevID), link(r.NextID), r)
	}
	return nil
}

func link(id sql.NullInt64) string {
	if !id.Valid {
		return "-"
	}
	return strconv.FormatInt(id.Int64, 10)
}

func addFunc(cmd *cobra.Command, args []string) error {
	c, err := root.GetContainer()
	if err != nil {
		return err
	}
	rule, err := buildRule(when, set)
	if err != nil {
		return err
	}

	start := time.Now()
	ctx := cmd.Context()
	switch {
	case first:
		err = c.GetRuleList().LinkAndSave(ctx, rule)
	case after != 0:
		rule.PrevID = models.NullID(after)
		err = c.GetRuleList().LinkAndSave(ctx, rule)
	default:
		err = c.GetRuleList().Append(ctx, rule)
	}
	observe(ctx, c, metrics.OpRuleLink, start, err)
	if err != nil {
		return err
	}

	root.Log.Info("Rule added", logging.F(logging.FieldRuleID, rule.ID))
	fmt.Fprintf(cmd.OutOrStdout(), "added rule %d: %s\n", rule.ID, rule)
	return nil
}

func moveFunc(cmd *cobra.Command, args []string) error {
	c, err := root.GetContainer()
	if err != nil {
		return err
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	prev := after
	if first {
		prev = 0
	}

	ctx := cmd.Context()
	start := time.Now()
	rule, err := c.GetRuleList().Move(ctx, id, prev)
	observe(ctx, c, metrics.OpRuleLink, start, err)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "moved rule %d\n", rule.ID)
	return nil
}

func removeFunc(cmd *cobra.Command, args []string) error {
	c, err := root.GetContainer()
	if err != nil {
		return err
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rule, err := c.GetStore().FindRule(ctx, id)
	if err != nil {
		return err
	}

	start := time.Now()
	err = c.GetRuleList().Destroy(ctx, rule)
	observe(ctx, c, metrics.OpRuleDestroy, start, err)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed rule %d\n", id)
	return nil
}

func loadFunc(cmd *cobra.Command, args []string) error {
	c, err := root.GetContainer()
	if err != nil {
		return err
	}
	file := c.GetConfig().Rules.File
	if len(args) == 1 {
		file = args[0]
	}
	n, err := c.GetRuleFiles().Import(cmd.Context(), file)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d rules\n", n)
	return nil
}

func exportFunc(cmd *cobra.Command, args []string) error {
	c, err := root.GetContainer()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		_, err = c.GetRuleFiles().Export(cmd.Context(), cmd.OutOrStdout())
		return err
	}
	n, err := c.GetRuleFiles().ExportFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d rules to %s\n", n, args[0])
	return nil
}

// buildRule parses the --when and --set values.
func buildRule(conditions, actions []string) (*models.Rule, error) {
	rule := &models.Rule{}
	for _, s := range conditions {
		cond, err := models.ParseCondition(s)
		if err != nil {
			return nil, err
		}
		rule.Conditions = append(rule.Conditions, cond)
	}
	for _, s := range actions {
		action, err := models.ParseAction(s)
		if err != nil {
			return nil, err
		}
		rule.Actions = append(rule.Actions, action)
	}
	return rule, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid rule id %q", s)
	}
	return id, nil
}

func observe(ctx context.Context, c *container.Container, op string, start time.Time, err error) {
	c.GetMetrics().Observe(ctx, op, err == nil, time.Since(start))
}
