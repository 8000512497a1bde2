// Package classifier applies the stored rule chain to transactions. Rules run
// head to tail, each as one bulk UPDATE, so a later rule may overwrite what
// an earlier one assigned.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"jjcook/budgetdb/internal/budgeterror"
	"jjcook/budgetdb/internal/logging"
	"jjcook/budgetdb/internal/metrics"
	"jjcook/budgetdb/internal/models"
	"jjcook/budgetdb/internal/rulelist"
	"jjcook/budgetdb/internal/store"
)

// Classifier loads and applies rules.
type Classifier struct {
	store   StoreInterface
	metrics metrics.Recorder
	logger  logging.Logger
}

// Summary describes one classification run.
type Summary struct {
	Rules   int   // rules in the chain
	Applied int   // rules whose update ran
	Rows    int64 // transaction rows rewritten, summed over rules
}

// New creates a Classifier. A nil recorder discards metrics.
func New(s StoreInterface, recorder metrics.Recorder, logger logging.Logger) *Classifier {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Classifier{store: s, metrics: recorder, logger: logger}
}

// Load returns the rule chain from head to tail. It fails with a
// StructuralError when a rule lacks conditions or actions, when the chain
// loops or breaks, or when some rules cannot be reached from the head.
func (c *Classifier) Load(ctx context.Context) ([]*models.Rule, error) {
	total, err := c.store.CountRules(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	cur, err := c.store.FindHead(ctx)
	if errors.Is(err, budgeterror.ErrNotFound) {
		return nil, &budgeterror.StructuralError{Reason: fmt.Sprintf("%d rules stored but none is the head", total)}
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, total)
	rules := make([]*models.Rule, 0, total)
	for {
		if seen[cur.ID] {
			return nil, &budgeterror.StructuralError{RuleID: cur.ID, Reason: "chain loops back to this rule"}
		}
		seen[cur.ID] = true
		if len(cur.Conditions) == 0 {
			return nil, &budgeterror.StructuralError{RuleID: cur.ID, Reason: "rule has no conditions"}
		}
		if len(cur.Actions) == 0 {
			return nil, &budgeterror.StructuralError{RuleID: cur.ID, Reason: "rule has no actions"}
		}
		rules = append(rules, cur)

		if !cur.NextID.Valid {
			break
		}
		next, err := c.store.FindRule(ctx, cur.NextID.Int64)
		if errors.Is(err, budgeterror.ErrNotFound) {
			return nil, &budgeterror.StructuralError{RuleID: cur.ID, Reason: fmt.Sprintf("successor %d does not exist", cur.NextID.Int64)}
		}
		if err != nil {
			return nil, err
		}
		if !next.PrevID.Valid || next.PrevID.Int64 != cur.ID {
			return nil, &budgeterror.StructuralError{RuleID: next.ID, Reason: fmt.Sprintf("predecessor does not point back to rule %d", cur.ID)}
		}
		cur = next
	}

	if len(rules) != total {
		return nil, &budgeterror.StructuralError{Reason: fmt.Sprintf("%d of %d rules are not reachable from the head", total-len(rules), total)}
	}
	c.logger.Debug("Loaded rule chain", logging.F(logging.FieldCount, len(rules)))
	return rules, nil
}

// Apply sets every action column on the transactions matching all of the
// rule's conditions, in a single UPDATE, and returns the rows affected.
func (c *Classifier) Apply(ctx context.Context, rule *models.Rule) (int64, error) {
	if err := rulelist.Validate(rule); err != nil {
		return 0, err
	}

	where := make([]store.Predicate, len(rule.Conditions))
	for i, cond := range rule.Conditions {
		v, err := columnValue(cond.Key, cond.Op, cond.Value)
		if err != nil {
			return 0, err
		}
		where[i] = store.Predicate{Column: cond.Key, Op: cond.Op, Value: v}
	}
	set := make([]store.Assignment, len(rule.Actions))
	for i, act := range rule.Actions {
		v, err := columnValue(act.Key, "", act.Value)
		if err != nil {
			return 0, err
		}
		set[i] = store.Assignment{Column: act.Key, Value: v}
	}

	rows, err := c.store.UpdateWhere(ctx, models.KindTransaction, set, where)
	if err != nil {
		return 0, fmt.Errorf("apply rule %d: %w", rule.ID, err)
	}
	c.logger.Debug("Applied rule",
		logging.F(logging.FieldRuleID, rule.ID),
		logging.F(logging.FieldRows, rows))
	return rows, nil
}

// ApplyAll applies rules in order. It refuses to start while the stored
// chain has more or fewer than one head or tail. Each rule commits on its
// own; the first failure stops the run and earlier rules stay applied.
func (c *Classifier) ApplyAll(ctx context.Context, rules []*models.Rule) (Summary, error) {
	sum := Summary{Rules: len(rules)}
	if err := rulelist.CheckChain(ctx, c.store); err != nil {
		return sum, err
	}
	for _, r := range rules {
		rows, err := c.Apply(ctx, r)
		if err != nil {
			return sum, err
		}
		sum.Applied++
		sum.Rows += rows
	}
	return sum, nil
}

// Run loads the chain and applies it.
func (c *Classifier) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum, err := c.run(ctx)
	c.metrics.Observe(ctx, metrics.OpClassify, err == nil, time.Since(start))
	c.metrics.AddClassified(sum.Rows)
	if err != nil {
		c.logger.WithError(err).Error("Classification stopped",
			logging.F(logging.FieldCount, sum.Applied))
		return sum, err
	}
	c.logger.Info("Classification complete",
		logging.F(logging.FieldCount, sum.Applied),
		logging.F(logging.FieldRows, sum.Rows),
		logging.F(logging.FieldDuration, time.Since(start).Milliseconds()))
	return sum, nil
}

func (c *Classifier) run(ctx context.Context) (Summary, error) {
	rules, err := c.Load(ctx)
	if err != nil {
		return Summary{}, err
	}
	return c.ApplyAll(ctx, rules)
}

// columnValue binds relation columns as integers, with an empty value
// meaning NULL. Amounts are bound as canonical money unless matched with
// LIKE. Every other column is stored as text.
func columnValue(column, op, raw string) (interface{}, error) {
	if models.IsMoneyColumn(models.KindTransaction, column) && !strings.HasSuffix(strings.ToUpper(op), "LIKE") {
		m, err := models.ParseMoney(raw)
		if err != nil {
			return nil, &budgeterror.ValidationError{Subject: column, Reason: fmt.Sprintf("'%s' is not an amount", raw)}
		}
		return m, nil
	}
	if !strings.HasSuffix(column, models.RelationSuffix) {
		return raw, nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &budgeterror.ValidationError{Subject: column, Reason: fmt.Sprintf("'%s' is not a row id", raw)}
	}
	return id, nil
}
