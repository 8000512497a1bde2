package classifier

import (
	"context"

	"jjcook/budgetdb/internal/models"
	"jjcook/budgetdb/internal/store"
)

// StoreInterface is what the classifier reads rules from and issues bulk
// transaction updates against. *store.Store satisfies it.
type StoreInterface interface {
	CountRules(ctx context.Context) (int, error)
	CountRulesWithNullPrev(ctx context.Context) (int, error)
	CountRulesWithNullNext(ctx context.Context) (int, error)
	FindHead(ctx context.Context) (*models.Rule, error)
	FindRule(ctx context.Context, id int64) (*models.Rule, error)
	UpdateWhere(ctx context.Context, kind models.Kind, set []store.Assignment, where []store.Predicate) (int64, error)
}
