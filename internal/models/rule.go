package models

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode"
)

// Rule is one classification unit. Rules are kept in a single chain through
// PrevID/NextID; the head has no predecessor and the tail no successor.
type Rule struct {
	ID         int64
	PrevID     sql.NullInt64
	NextID     sql.NullInt64
	Conditions []Condition
	Actions    []Action
}

// Condition is a (key, operator, value) match against a transaction column.
type Condition struct {
	ID     int64
	RuleID int64
	Key    string
	Op     string
	Value  string
}

// Action assigns Value to the transaction column Key.
type Action struct {
	ID     int64
	RuleID int64
	Key    string
	Value  string
}

// Operators is the fixed set of comparison operators a Condition may use.
var Operators = []string{"=", "!=", "<>", "<", "<=", ">", ">=", "LIKE", "NOT LIKE"}

// RuleColumns lists the transaction columns rules may match on or assign.
var RuleColumns = []string{"date", "description", "amount", "display", "account_id", "budget_id", "statement_id"}

// NullID wraps id as a nullable reference; zero means no reference.
func NullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// NormalizeOperator returns the canonical spelling of op, or false when op is
// not one of Operators.
func NormalizeOperator(op string) (string, bool) {
	canonical := strings.ToUpper(strings.Join(strings.Fields(op), " "))
	if canonical == "==" {
		canonical = "="
	}
	for _, allowed := range Operators {
		if canonical == allowed {
			return canonical, true
		}
	}
	return "", false
}

// IsRuleColumn reports whether column may appear in a condition or action.
func IsRuleColumn(column string) bool {
	for _, c := range RuleColumns {
		if c == column {
			return true
		}
	}
	return false
}

// Persisted reports whether r has been stored.
func (r *Rule) Persisted() bool { return r.ID != 0 }

// String renders r as "when <conditions> set <actions>".
func (r *Rule) String() string {
	conds := make([]string, len(r.Conditions))
	for i, c := range r.Conditions {
		conds[i] = fmt.Sprintf("%s %s '%s'", c.Key, c.Op, c.Value)
	}
	acts := make([]string, len(r.Actions))
	for i, a := range r.Actions {
		acts[i] = fmt.Sprintf("%s = '%s'", a.Key, a.Value)
	}
	return fmt.Sprintf("when %s set %s", strings.Join(conds, " and "), strings.Join(acts, ", "))
}

// ParseCondition parses "key op value", e.g. "amount = 125.00" or
// "description LIKE %COFFEE%". Everything after the operator is the value,
// inner spacing included.
func ParseCondition(s string) (Condition, error) {
	key, rest := cutField(strings.TrimSpace(s))
	opText, rest := cutField(rest)
	if strings.EqualFold(opText, "NOT") {
		if next, after := cutField(rest); strings.EqualFold(next, "LIKE") {
			opText, rest = opText+" "+next, after
		}
	}
	if key == "" || opText == "" || rest == "" {
		return Condition{}, fmt.Errorf("condition %q: want \"<field> <operator> <value>\"", s)
	}
	op, ok := NormalizeOperator(opText)
	if !ok {
		return Condition{}, fmt.Errorf("condition %q: unsupported operator", s)
	}
	return Condition{Key: key, Op: op, Value: rest}, nil
}

// cutField splits off the first whitespace-delimited field of s.
func cutField(s string) (field, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}

// ParseAction parses "key=value".
func ParseAction(s string) (Action, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return Action{}, fmt.Errorf("action %q: want \"<field>=<value>\"", s)
	}
	return Action{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)}, nil
}
