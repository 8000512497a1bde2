package rulelist

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"jjcook/budgetdb/internal/budgeterror"
	"jjcook/budgetdb/internal/models"
)

// Validate checks a single rule: at least one condition and one action, only
// rule columns, only known operators.
func Validate(rule *models.Rule) error {
	subject := ruleSubject(rule)
	if len(rule.Conditions) == 0 {
		return &budgeterror.ValidationError{Subject: subject, Reason: "rule has no conditions"}
	}
	if len(rule.Actions) == 0 {
		return &budgeterror.ValidationError{Subject: subject, Reason: "rule has no actions"}
	}
	for _, c := range rule.Conditions {
		if !models.IsRuleColumn(c.Key) {
			return &budgeterror.ValidationError{Subject: subject, Reason: fmt.Sprintf("condition on unknown column %q", c.Key)}
		}
		if _, ok := models.NormalizeOperator(c.Op); !ok {
			return &budgeterror.ValidationError{Subject: subject, Reason: fmt.Sprintf("unsupported operator %q", c.Op)}
		}
	}
	for _, a := range rule.Actions {
		if !models.IsRuleColumn(a.Key) {
			return &budgeterror.ValidationError{Subject: subject, Reason: fmt.Sprintf("action on unknown column %q", a.Key)}
		}
	}
	return nil
}

// normalize trims keys and rewrites operators into their canonical spelling.
func normalize(rule *models.Rule) {
	for i := range rule.Conditions {
		c := &rule.Conditions[i]
		c.Key = strings.TrimSpace(c.Key)
		if op, ok := models.NormalizeOperator(c.Op); ok {
			c.Op = op
		}
	}
	for i := range rule.Actions {
		rule.Actions[i].Key = strings.TrimSpace(rule.Actions[i].Key)
	}
}

func ruleSubject(rule *models.Rule) string {
	if rule.Persisted() {
		return "rule " + strconv.FormatInt(rule.ID, 10)
	}
	return "new rule"
}

func sameID(a, b sql.NullInt64) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Int64 == b.Int64
}

func nullString(id sql.NullInt64) string {
	if !id.Valid {
		return "null"
	}
	return strconv.FormatInt(id.Int64, 10)
}
