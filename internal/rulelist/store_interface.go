package rulelist

import (
	"context"
	"database/sql"

	"jjcook/budgetdb/internal/models"
)

// RuleStoreInterface is the slice of the persistence layer the rule chain
// needs. *store.Store satisfies it.
type RuleStoreInterface interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateRule(ctx context.Context, rule *models.Rule) error
	UpdateRule(ctx context.Context, rule *models.Rule) error
	ReplaceRuleChildren(ctx context.Context, rule *models.Rule) error
	SaveRuleLinks(ctx context.Context, id int64, prev, next sql.NullInt64) error
	DeleteRule(ctx context.Context, id int64) error

	FindRule(ctx context.Context, id int64) (*models.Rule, error)
	FindRuleLinks(ctx context.Context, id int64) (*models.Rule, error)
	FindHead(ctx context.Context) (*models.Rule, error)
	FindTail(ctx context.Context) (*models.Rule, error)

	ChainCounter
}
