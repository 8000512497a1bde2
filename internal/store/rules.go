package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jjcook/budgetdb/internal/budgeterror"
	"jjcook/budgetdb/internal/models"
)

const ruleEntity = "Rule"

// CreateRule inserts rule with its current links and its conditions and
// actions, setting every generated ID.
func (s *Store) CreateRule(ctx context.Context, rule *models.Rule) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		var id int64
		err := s.queryRow(ctx, "INSERT INTO rules (prev_id, next_id) VALUES (?, ?) RETURNING id",
			rule.PrevID, rule.NextID).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
		rule.ID = id
		return s.insertChildren(ctx, rule)
	})
}

// UpdateRule writes the links, conditions and actions of a stored rule.
func (s *Store) UpdateRule(ctx context.Context, rule *models.Rule) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.SaveRuleLinks(ctx, rule.ID, rule.PrevID, rule.NextID); err != nil {
			return err
		}
		return s.ReplaceRuleChildren(ctx, rule)
	})
}

// SaveRuleLinks writes only the prev_id/next_id pair of rule id.
func (s *Store) SaveRuleLinks(ctx context.Context, id int64, prev, next sql.NullInt64) error {
	res, err := s.exec(ctx, "UPDATE rules SET prev_id = ?, next_id = ? WHERE id = ?", prev, next, id)
	if err != nil {
		return fmt.Errorf("save links of rule %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &budgeterror.NotFoundError{Entity: ruleEntity, ID: id}
	}
	return nil
}

// ReplaceRuleChildren swaps the stored conditions and actions of rule for
// the ones it currently holds.
func (s *Store) ReplaceRuleChildren(ctx context.Context, rule *models.Rule) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.deleteChildren(ctx, rule.ID); err != nil {
			return err
		}
		return s.insertChildren(ctx, rule)
	})
}

// FindRule loads rule id together with its conditions and actions.
func (s *Store) FindRule(ctx context.Context, id int64) (*models.Rule, error) {
	return s.findRuleWhere(ctx, "id = ?", id)
}

// FindRuleLinks loads rule id without its conditions and actions.
func (s *Store) FindRuleLinks(ctx context.Context, id int64) (*models.Rule, error) {
	r := &models.Rule{}
	err := s.queryRow(ctx, "SELECT id, prev_id, next_id FROM rules WHERE id = ?", id).Scan(&r.ID, &r.PrevID, &r.NextID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &budgeterror.NotFoundError{Entity: ruleEntity, ID: id, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("find rule %d: %w", id, err)
	}
	return r, nil
}

// FindHead returns the rule without a predecessor.
func (s *Store) FindHead(ctx context.Context) (*models.Rule, error) {
	return s.findRuleWhere(ctx, "prev_id IS NULL")
}

// FindTail returns the rule without a successor.
func (s *Store) FindTail(ctx context.Context) (*models.Rule, error) {
	return s.findRuleWhere(ctx, "next_id IS NULL")
}

// ListRules returns every stored rule in id order, without following links.
func (s *Store) ListRules(ctx context.Context) ([]*models.Rule, error) {
	rows, err := s.query(ctx, "SELECT id, prev_id, next_id FROM rules ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	var out []*models.Rule
	for rows.Next() {
		r := &models.Rule{}
		if err := rows.Scan(&r.ID, &r.PrevID, &r.NextID); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, r := range out {
		if err := s.loadChildren(ctx, r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CountRules returns the number of stored rules.
func (s *Store) CountRules(ctx context.Context) (int, error) {
	return s.countRules(ctx, "")
}

// CountRulesWithNullPrev returns the number of rules claiming the head position.
func (s *Store) CountRulesWithNullPrev(ctx context.Context) (int, error) {
	return s.countRules(ctx, " WHERE prev_id IS NULL")
}

// CountRulesWithNullNext returns the number of rules claiming the tail position.
func (s *Store) CountRulesWithNullNext(ctx context.Context) (int, error) {
	return s.countRules(ctx, " WHERE next_id IS NULL")
}

// DeleteRule removes rule id with its conditions and actions. It does not
// touch the neighbours.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.deleteChildren(ctx, id); err != nil {
			return err
		}
		res, err := s.exec(ctx, "DELETE FROM rules WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete rule %d: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return &budgeterror.NotFoundError{Entity: ruleEntity, ID: id}
		}
		return nil
	})
}

func (s *Store) countRules(ctx context.Context, where string) (int, error) {
	var n int
	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM rules"+where).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rules: %w", err)
	}
	return n, nil
}

func (s *Store) findRuleWhere(ctx context.Context, where string, args ...interface{}) (*models.Rule, error) {
	r := &models.Rule{}
	err := s.queryRow(ctx, "SELECT id, prev_id, next_id FROM rules WHERE "+where+" ORDER BY id LIMIT 1", args...).
		Scan(&r.ID, &r.PrevID, &r.NextID)
	if errors.Is(err, sql.ErrNoRows) {
		var id int64
		if len(args) == 1 {
			id, _ = args[0].(int64)
		}
		return nil, &budgeterror.NotFoundError{Entity: ruleEntity, ID: id, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("find rule: %w", err)
	}
	if err := s.loadChildren(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) loadChildren(ctx context.Context, r *models.Rule) error {
	rows, err := s.query(ctx, "SELECT id, rule_id, key, op, value FROM conditions WHERE rule_id = ? ORDER BY id", r.ID)
	if err != nil {
		return fmt.Errorf("load conditions of rule %d: %w", r.ID, err)
	}
	r.Conditions = nil
	for rows.Next() {
		var c models.Condition
		if err := rows.Scan(&c.ID, &c.RuleID, &c.Key, &c.Op, &c.Value); err != nil {
			rows.Close()
			return err
		}
		r.Conditions = append(r.Conditions, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = s.query(ctx, "SELECT id, rule_id, key, value FROM actions WHERE rule_id = ? ORDER BY id", r.ID)
	if err != nil {
		return fmt.Errorf("load actions of rule %d: %w", r.ID, err)
	}
	defer rows.Close()
	r.Actions = nil
	for rows.Next() {
		var a models.Action
		if err := rows.Scan(&a.ID, &a.RuleID, &a.Key, &a.Value); err != nil {
			return err
		}
		r.Actions = append(r.Actions, a)
	}
	return rows.Err()
}

func (s *Store) insertChildren(ctx context.Context, rule *models.Rule) error {
	for i := range rule.Conditions {
		c := &rule.Conditions[i]
		err := s.queryRow(ctx, "INSERT INTO conditions (rule_id, key, op, value) VALUES (?, ?, ?, ?) RETURNING id",
			rule.ID, c.Key, c.Op, c.Value).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("insert condition of rule %d: %w", rule.ID, err)
		}
		c.RuleID = rule.ID
	}
	for i := range rule.Actions {
		a := &rule.Actions[i]
		err := s.queryRow(ctx, "INSERT INTO actions (rule_id, key, value) VALUES (?, ?, ?) RETURNING id",
			rule.ID, a.Key, a.Value).Scan(&a.ID)
		if err != nil {
			return fmt.Errorf("insert action of rule %d: %w", rule.ID, err)
		}
		a.RuleID = rule.ID
	}
	return nil
}

func (s *Store) deleteChildren(ctx context.Context, ruleID int64) error {
	if _, err := s.exec(ctx, "DELETE FROM conditions WHERE rule_id = ?", ruleID); err != nil {
		return fmt.Errorf("delete conditions of rule %d: %w", ruleID, err)
	}
	if _, err := s.exec(ctx, "DELETE FROM actions WHERE rule_id = ?", ruleID); err != nil {
		return fmt.Errorf("delete actions of rule %d: %w", ruleID, err)
	}
	return nil
}
