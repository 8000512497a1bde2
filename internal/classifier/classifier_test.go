package classifier

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"jjcook/budgetdb/internal/budgeterror"
	"jjcook/budgetdb/internal/logging"
	"jjcook/budgetdb/internal/metrics"
	"jjcook/budgetdb/internal/models"
	"jjcook/budgetdb/internal/rulelist"
	"jjcook/budgetdb/internal/store"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *store.Store
	rules  *rulelist.List
	logger *logging.MockLogger
	reg    *metrics.Registry
	c      *Classifier
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "classify.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	logger := logging.NewMockLogger()
	reg := metrics.NewRegistry()
	return &fixture{
		store:  s,
		rules:  rulelist.New(s, logger),
		logger: logger,
		reg:    reg,
		c:      New(s, reg, logger),
	}
}

func (f *fixture) addTransaction(t *testing.T, description, amount string) *models.Transaction {
	t.Helper()
	m, err := models.ParseMoney(amount)
	require.NoError(t, err)
	tx := &models.Transaction{Description: description, Amount: m, Display: "unset"}
	require.NoError(t, f.store.Insert(context.Background(), tx))
	return tx
}

func (f *fixture) display(t *testing.T, id int64) string {
	t.Helper()
	rec, err := f.store.FindByID(context.Background(), models.KindTransaction, id)
	require.NoError(t, err)
	return rec.(*models.Transaction).Display
}

func rule(cond models.Condition, actions ...models.Action) *models.Rule {
	return &models.Rule{Conditions: []models.Condition{cond}, Actions: actions}
}

func TestApply_AmountEqualsSetsDisplay(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	hit1 := f.addTransaction(t, "GROCER", "125.00")
	hit2 := f.addTransaction(t, "FUEL", "125")
	miss := f.addTransaction(t, "COFFEE", "12.50")

	r := rule(models.Condition{Key: "amount", Op: "=", Value: "125.00"}, models.Action{Key: "display", Value: "foo"})
	rows, err := f.c.Apply(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)

	assert.Equal(t, "foo", f.display(t, hit1.ID))
	assert.Equal(t, "foo", f.display(t, hit2.ID))
	assert.Equal(t, "unset", f.display(t, miss.ID))
}

func TestApply_AmountOrderingIsNumeric(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	small := f.addTransaction(t, "COFFEE", "25.00")
	big := f.addTransaction(t, "RENT", "1000.00")
	mid := f.addTransaction(t, "GROCER", "300")

	rows, err := f.c.Apply(ctx, rule(models.Condition{Key: "amount", Op: ">", Value: "100.00"}, models.Action{Key: "display", Value: "large"}))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
	assert.Equal(t, "unset", f.display(t, small.ID))
	assert.Equal(t, "large", f.display(t, big.ID))
	assert.Equal(t, "large", f.display(t, mid.ID))

	rows, err = f.c.Apply(ctx, rule(models.Condition{Key: "amount", Op: "<", Value: "300"}, models.Action{Key: "display", Value: "small"}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.Equal(t, "small", f.display(t, small.ID))

	_, err = f.c.Apply(ctx, rule(models.Condition{Key: "amount", Op: ">", Value: "lots"}, models.Action{Key: "display", Value: "x"}))
	var ve *budgeterror.ValidationError
	assert.True(t, errors.As(err, &ve), "got %v", err)
}

func TestApply_ConjunctionAndMultipleActions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	acct := &models.Account{Name: "Checking"}
	require.NoError(t, f.store.Insert(ctx, acct))

	both := f.addTransaction(t, "COFFEE SHOP 42", "4.50")
	onlyLike := f.addTransaction(t, "COFFEE BEANS", "30.00")
	f.addTransaction(t, "TEA", "4.50")

	r := &models.Rule{
		Conditions: []models.Condition{
			{Key: "description", Op: "like", Value: "COFFEE%"},
			{Key: "amount", Op: "=", Value: "4.50"},
		},
		Actions: []models.Action{
			{Key: "display", Value: "Coffee"},
			{Key: "account_id", Value: strconv.FormatInt(acct.ID, 10)},
		},
	}
	rows, err := f.c.Apply(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rec, err := f.store.FindByID(ctx, models.KindTransaction, both.ID)
	require.NoError(t, err)
	tx := rec.(*models.Transaction)
	assert.Equal(t, "Coffee", tx.Display)
	assert.Equal(t, models.NullID(acct.ID), tx.AccountID)
	assert.Equal(t, "unset", f.display(t, onlyLike.ID))
}

func TestApply_RejectsInvalidRule(t *testing.T) {
	f := setup(t)
	_, err := f.c.Apply(context.Background(), &models.Rule{
		Conditions: []models.Condition{{Key: "amount", Op: "=", Value: "1"}},
	})
	var ve *budgeterror.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = f.c.Apply(context.Background(), rule(
		models.Condition{Key: "amount", Op: "=", Value: "1"},
		models.Action{Key: "budget_id", Value: "groceries"}))
	assert.True(t, errors.As(err, &ve))
}

func TestLoad_OrderAndPriority(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tx := f.addTransaction(t, "GROCER", "125.00")

	first := rule(models.Condition{Key: "amount", Op: "=", Value: "125.00"}, models.Action{Key: "display", Value: "first"})
	second := rule(models.Condition{Key: "description", Op: "=", Value: "GROCER"}, models.Action{Key: "display", Value: "second"})
	require.NoError(t, f.rules.Append(ctx, first))
	require.NoError(t, f.rules.Append(ctx, second))

	rules, err := f.c.Load(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, first.ID, rules[0].ID)
	assert.Equal(t, second.ID, rules[1].ID)

	sum, err := f.c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Rules: 2, Applied: 2, Rows: 2}, sum)
	assert.Equal(t, "second", f.display(t, tx.ID))
	assert.True(t, f.logger.HasEntry("INFO", "Classification complete"))

	expected := `
# HELP budgetdb_transactions_classified_total Transaction rows rewritten by rules.
# TYPE budgetdb_transactions_classified_total counter
budgetdb_transactions_classified_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(f.reg.Gatherer(), strings.NewReader(expected), "budgetdb_transactions_classified_total"))
}

func TestLoad_Empty(t *testing.T) {
	f := setup(t)
	rules, err := f.c.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rules)

	sum, err := f.c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
}

func TestLoad_StructuralErrors(t *testing.T) {
	valid := func() *models.Rule {
		return rule(models.Condition{Key: "amount", Op: "=", Value: "1"}, models.Action{Key: "display", Value: "x"})
	}

	tests := []struct {
		name    string
		corrupt func(t *testing.T, f *fixture, a, b *models.Rule)
	}{
		{
			name: "rule without actions",
			corrupt: func(t *testing.T, f *fixture, a, b *models.Rule) {
				b.Actions = nil
				require.NoError(t, f.store.ReplaceRuleChildren(context.Background(), b))
			},
		},
		{
			name: "rule without conditions",
			corrupt: func(t *testing.T, f *fixture, a, b *models.Rule) {
				a.Conditions = nil
				require.NoError(t, f.store.ReplaceRuleChildren(context.Background(), a))
			},
		},
		{
			name: "cycle",
			corrupt: func(t *testing.T, f *fixture, a, b *models.Rule) {
				require.NoError(t, f.store.SaveRuleLinks(context.Background(), b.ID, models.NullID(a.ID), models.NullID(b.ID)))
			},
		},
		{
			name: "unreachable rule",
			corrupt: func(t *testing.T, f *fixture, a, b *models.Rule) {
				c := valid()
				c.PrevID = models.NullID(b.ID)
				require.NoError(t, f.store.CreateRule(context.Background(), c))
			},
		},
		{
			name: "dangling successor",
			corrupt: func(t *testing.T, f *fixture, a, b *models.Rule) {
				require.NoError(t, f.store.SaveRuleLinks(context.Background(), b.ID, models.NullID(a.ID), models.NullID(404)))
			},
		},
		{
			name: "no head",
			corrupt: func(t *testing.T, f *fixture, a, b *models.Rule) {
				require.NoError(t, f.store.SaveRuleLinks(context.Background(), a.ID, models.NullID(b.ID), models.NullID(b.ID)))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			ctx := context.Background()
			tx := f.addTransaction(t, "X", "1")

			a, b := valid(), valid()
			require.NoError(t, f.rules.Append(ctx, a))
			require.NoError(t, f.rules.Append(ctx, b))
			tt.corrupt(t, f, a, b)

			_, err := f.c.Load(ctx)
			var se *budgeterror.StructuralError
			require.True(t, errors.As(err, &se), "got %v", err)

			_, err = f.c.Run(ctx)
			assert.Error(t, err)
			assert.Equal(t, "unset", f.display(t, tx.ID), "nothing applied from a corrupt chain")
		})
	}
}

func TestApplyAll_StopsAtFirstFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tx := f.addTransaction(t, "GROCER", "125.00")

	ok := rule(models.Condition{Key: "amount", Op: "=", Value: "125.00"}, models.Action{Key: "display", Value: "first"})
	bad := rule(models.Condition{Key: "amount", Op: "=", Value: "125.00"}, models.Action{Key: "import_key", Value: "x"})
	never := rule(models.Condition{Key: "amount", Op: "=", Value: "125.00"}, models.Action{Key: "display", Value: "third"})

	sum, err := f.c.ApplyAll(ctx, []*models.Rule{ok, bad, never})
	require.Error(t, err)
	assert.Equal(t, Summary{Rules: 3, Applied: 1, Rows: 1}, sum)
	assert.Equal(t, "first", f.display(t, tx.ID))
}

func TestApplyAll_RefusesCorruptChain(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tx := f.addTransaction(t, "GROCER", "125.00")

	a := rule(models.Condition{Key: "amount", Op: "=", Value: "125.00"}, models.Action{Key: "display", Value: "a"})
	b := rule(models.Condition{Key: "amount", Op: "=", Value: "125.00"}, models.Action{Key: "display", Value: "b"})
	require.NoError(t, f.rules.Append(ctx, a))
	require.NoError(t, f.rules.Append(ctx, b))

	// A second head.
	require.NoError(t, f.store.SaveRuleLinks(ctx, b.ID, models.NullID(0), models.NullID(0)))

	sum, err := f.c.ApplyAll(ctx, []*models.Rule{a, b})
	var se *budgeterror.StructuralError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Contains(t, se.Error(), "2 rules have no predecessor")
	assert.Equal(t, 0, sum.Applied)
	assert.Equal(t, "unset", f.display(t, tx.ID))
}
