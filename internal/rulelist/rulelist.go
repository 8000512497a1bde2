// Package rulelist keeps classification rules in a single persisted chain.
//
// Every rule stores the id of its predecessor and successor. After each
// committed operation exactly one rule has no predecessor (the head) and
// exactly one has no successor (the tail), unless no rules exist. Each
// mutating operation runs in one store transaction, so a failure part way
// through a relink leaves the chain as it was.
package rulelist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jjcook/budgetdb/internal/budgeterror"
	"jjcook/budgetdb/internal/logging"
	"jjcook/budgetdb/internal/models"
)

// List implements link, unlink and the operations built on them.
type List struct {
	store  RuleStoreInterface
	logger logging.Logger
}

// New creates a List backed by store.
func New(store RuleStoreInterface, logger logging.Logger) *List {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &List{store: store, logger: logger}
}

// Unlink detaches rule from its neighbours, bridging its predecessor to its
// successor. Rules that are not in storage are left alone. The rule's own
// stored links are not cleared.
func (l *List) Unlink(ctx context.Context, rule *models.Rule) error {
	if !rule.Persisted() {
		return nil
	}
	return l.store.WithinTx(ctx, func(ctx context.Context) error {
		current, err := l.store.FindRuleLinks(ctx, rule.ID)
		if errors.Is(err, budgeterror.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if current.PrevID.Valid {
			prev, err := l.store.FindRuleLinks(ctx, current.PrevID.Int64)
			if err != nil {
				return err
			}
			if err := l.store.SaveRuleLinks(ctx, prev.ID, prev.PrevID, current.NextID); err != nil {
				return err
			}
		}
		if current.NextID.Valid {
			next, err := l.store.FindRuleLinks(ctx, current.NextID.Int64)
			if err != nil {
				return err
			}
			if err := l.store.SaveRuleLinks(ctx, next.ID, current.PrevID, next.NextID); err != nil {
				return err
			}
		}
		l.logger.Debug("Unlinked rule",
			logging.F(logging.FieldRuleID, rule.ID),
			logging.F(logging.FieldPrevID, nullString(current.PrevID)),
			logging.F(logging.FieldNextID, nullString(current.NextID)))
		return nil
	})
}

// link places a stored rule after rule.PrevID, or at the head when PrevID is
// NULL, and writes the resolved links back onto rule.
func (l *List) link(ctx context.Context, rule *models.Rule) error {
	requested := rule.PrevID
	return l.store.WithinTx(ctx, func(ctx context.Context) error {
		// Self-reference marks the rule as neither head nor tail while its
		// neighbours are rewritten.
		self := models.NullID(rule.ID)
		if err := l.store.SaveRuleLinks(ctx, rule.ID, self, self); err != nil {
			return err
		}

		total, err := l.store.CountRules(ctx)
		if err != nil {
			return err
		}

		switch {
		case total == 1:
			rule.PrevID = models.NullID(0)
			rule.NextID = models.NullID(0)

		case !requested.Valid:
			head, err := l.store.FindHead(ctx)
			if err != nil {
				return fmt.Errorf("find head: %w", err)
			}
			if err := l.store.SaveRuleLinks(ctx, head.ID, self, head.NextID); err != nil {
				return err
			}
			rule.PrevID = models.NullID(0)
			rule.NextID = models.NullID(head.ID)

		default:
			prev, err := l.store.FindRuleLinks(ctx, requested.Int64)
			if err != nil {
				return err
			}
			oldNext := prev.NextID
			if err := l.store.SaveRuleLinks(ctx, prev.ID, prev.PrevID, self); err != nil {
				return err
			}
			if oldNext.Valid {
				next, err := l.store.FindRuleLinks(ctx, oldNext.Int64)
				if err != nil {
					return err
				}
				if err := l.store.SaveRuleLinks(ctx, next.ID, self, next.NextID); err != nil {
					return err
				}
			}
			rule.PrevID = models.NullID(prev.ID)
			rule.NextID = oldNext
		}

		if err := l.store.SaveRuleLinks(ctx, rule.ID, rule.PrevID, rule.NextID); err != nil {
			return err
		}
		l.logger.Debug("Linked rule",
			logging.F(logging.FieldRuleID, rule.ID),
			logging.F(logging.FieldPrevID, nullString(rule.PrevID)),
			logging.F(logging.FieldNextID, nullString(rule.NextID)))
		return nil
	})
}

// LinkAndSave validates rule and stores it at the position named by
// rule.PrevID. A stored rule whose predecessor has not changed is saved in
// place; anything else is unlinked, saved and linked again.
func (l *List) LinkAndSave(ctx context.Context, rule *models.Rule) error {
	normalize(rule)
	if rule.Persisted() && rule.PrevID.Valid && rule.PrevID.Int64 == rule.ID {
		return &budgeterror.ValidationError{Subject: ruleSubject(rule), Reason: "a rule cannot follow itself"}
	}
	if err := l.CheckConstraints(ctx, rule); err != nil {
		return err
	}

	saved := snapshot(rule)
	err := l.store.WithinTx(ctx, func(ctx context.Context) error {
		if !rule.Persisted() {
			requested := rule.PrevID
			rule.PrevID, rule.NextID = models.NullID(0), models.NullID(0)
			if err := l.store.CreateRule(ctx, rule); err != nil {
				return err
			}
			rule.PrevID = requested
			return l.link(ctx, rule)
		}

		current, err := l.store.FindRuleLinks(ctx, rule.ID)
		if err != nil {
			return err
		}
		if sameID(current.PrevID, rule.PrevID) {
			rule.NextID = current.NextID
			l.logger.Debug("Saving rule in place", logging.F(logging.FieldRuleID, rule.ID))
			return l.store.UpdateRule(ctx, rule)
		}

		if err := l.Unlink(ctx, rule); err != nil {
			return err
		}
		if err := l.store.ReplaceRuleChildren(ctx, rule); err != nil {
			return err
		}
		return l.link(ctx, rule)
	})
	if err != nil {
		saved.restore(rule)
	}
	return err
}

// ruleState is what a failed LinkAndSave restores on the caller's rule.
type ruleState struct {
	id         int64
	prev, next sql.NullInt64
	conditions []models.Condition
	actions    []models.Action
}

func snapshot(rule *models.Rule) ruleState {
	return ruleState{
		id:         rule.ID,
		prev:       rule.PrevID,
		next:       rule.NextID,
		conditions: append([]models.Condition(nil), rule.Conditions...),
		actions:    append([]models.Action(nil), rule.Actions...),
	}
}

func (st ruleState) restore(rule *models.Rule) {
	rule.ID = st.id
	rule.PrevID, rule.NextID = st.prev, st.next
	copy(rule.Conditions, st.conditions)
	copy(rule.Actions, st.actions)
}

// Append stores rule after the current tail.
func (l *List) Append(ctx context.Context, rule *models.Rule) error {
	tail, err := l.store.FindTail(ctx)
	switch {
	case errors.Is(err, budgeterror.ErrNotFound):
		rule.PrevID = models.NullID(0)
	case err != nil:
		return err
	case tail.ID == rule.ID:
		rule.PrevID = tail.PrevID
	default:
		rule.PrevID = models.NullID(tail.ID)
	}
	return l.LinkAndSave(ctx, rule)
}

// Move repositions the stored rule id after prevID, or at the head when
// prevID is zero.
func (l *List) Move(ctx context.Context, id, prevID int64) (*models.Rule, error) {
	rule, err := l.store.FindRule(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.PrevID = models.NullID(prevID)
	if err := l.LinkAndSave(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Destroy unlinks rule and deletes it with its conditions and actions.
func (l *List) Destroy(ctx context.Context, rule *models.Rule) error {
	if !rule.Persisted() {
		return nil
	}
	err := l.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := l.Unlink(ctx, rule); err != nil {
			return err
		}
		return l.store.DeleteRule(ctx, rule.ID)
	})
	if err != nil {
		return err
	}
	l.logger.Info("Rule destroyed", logging.F(logging.FieldRuleID, rule.ID))
	rule.ID = 0
	rule.PrevID, rule.NextID = models.NullID(0), models.NullID(0)
	return nil
}

// CheckConstraints rejects a rule without conditions or actions, or one that
// names a column or operator rules may not use, and reports a chain whose
// head or tail is not unique.
func (l *List) CheckConstraints(ctx context.Context, rule *models.Rule) error {
	if err := Validate(rule); err != nil {
		return err
	}
	return CheckChain(ctx, l.store)
}

// ChainCounter counts the rows CheckChain inspects.
type ChainCounter interface {
	CountRules(ctx context.Context) (int, error)
	CountRulesWithNullPrev(ctx context.Context) (int, error)
	CountRulesWithNullNext(ctx context.Context) (int, error)
}

// CheckChain reports a stored chain whose head or tail is not unique.
func CheckChain(ctx context.Context, store ChainCounter) error {
	total, err := store.CountRules(ctx)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}
	heads, err := store.CountRulesWithNullPrev(ctx)
	if err != nil {
		return err
	}
	if heads != 1 {
		return &budgeterror.StructuralError{Reason: fmt.Sprintf("%d rules have no predecessor, want 1", heads)}
	}
	tails, err := store.CountRulesWithNullNext(ctx)
	if err != nil {
		return err
	}
	if tails != 1 {
		return &budgeterror.StructuralError{Reason: fmt.Sprintf("%d rules have no successor, want 1", tails)}
	}
	return nil
}
