package importer

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"jjcook/budgetdb/internal/budgeterror"
	"jjcook/budgetdb/internal/logging"
	"jjcook/budgetdb/internal/metrics"
	"jjcook/budgetdb/internal/models"
	"jjcook/budgetdb/internal/source"
	"jjcook/budgetdb/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wellFormed = `#accounts|id|name|tracked
Account|chk|Checking|yes
#budgets|id|name|carryover
Budget|food|Groceries|0
#statements|id|date|balance|account_id
Statement|st1|2013-01-31|1000.00|chk
#transactions|id|date|description|amount|account_id|budget_id|statement_id
Transaction|t1|2013-01-02|GROCER|125.00|chk|food|st1
`

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{Path: filepath.Join(t.TempDir(), "import.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRecords(s StoreInterface, logger logging.Logger) *Records {
	return New(s, nil, DefaultOptions(), metrics.Nop{}, logger)
}

func load(t *testing.T, r *Records, input string) (int, error) {
	t.Helper()
	return r.LoadReader(context.Background(), strings.NewReader(input), "test.txt")
}

func TestLoad_EndToEnd(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	r := newRecords(s, logging.NewMockLogger())

	n, err := load(t, r, wellFormed)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, r.Len())

	acct, ok := r.Get("chk")
	require.True(t, ok)
	stmt, ok := r.Get("st1")
	require.True(t, ok)

	linked, ok := stmt.Relation("account")
	require.True(t, ok)
	assert.Same(t, acct, linked, "statement resolves to the staged account itself")

	tx, _ := r.Get("t1")
	viaStatement, ok := tx.Relation("statement")
	require.True(t, ok)
	assert.Same(t, stmt, viaStatement)

	saved, err := r.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, saved)

	rec, err := s.FindByImportKey(ctx, models.KindStatement, "st1")
	require.NoError(t, err)
	storedStmt := rec.(*models.Statement)
	assert.Equal(t, models.NullID(acct.Record().Ident().ID), storedStmt.AccountID)
	assert.Equal(t, "1000.00", storedStmt.Balance.String())

	rec, err = s.FindByImportKey(ctx, models.KindTransaction, "t1")
	require.NoError(t, err)
	storedTx := rec.(*models.Transaction)
	assert.Equal(t, "125.00", storedTx.Amount.String())
	assert.Equal(t, "2013-01-02", storedTx.Date.String())
	assert.Equal(t, models.NullID(storedStmt.ID), storedTx.StatementID)
	assert.True(t, storedTx.BudgetID.Valid)

	// Saving again stores nothing new.
	saved, err = r.Save(ctx)
	require.NoError(t, err)
	assert.Zero(t, saved)
}

func TestLoad_ViaOpener(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import.txt")
	require.NoError(t, os.WriteFile(path, []byte(wellFormed), 0600))

	r := New(nil, source.NewOpener(source.S3Config{}, nil), DefaultOptions(), nil, nil)
	n, err := r.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NotEmpty(t, r.BatchID())

	_, err = r.Load(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestAddRecord_IdenticalRowsAreFatal(t *testing.T) {
	r := newRecords(nil, nil)
	_, err := load(t, r, "#a|id|name\nAccount|chk|Checking\nAccount|chk|Checking\n")

	var dup *budgeterror.DuplicateError
	require.True(t, errors.As(err, &dup), "got %v", err)
	assert.Equal(t, "chk", dup.ImportKey)
	assert.Equal(t, 3, dup.Line)
}

func TestAddRecord_CollisionRenames(t *testing.T) {
	logger := logging.NewMockLogger()
	r := newRecords(nil, logger)

	n, err := load(t, r, "#a|id|name\nAccount|chk|Checking\nAccount|chk|Savings\nAccount|chk|Cash\n")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	first, ok := r.Get("chk")
	require.True(t, ok)
	assert.Equal(t, "Checking", first.Raw["name"])
	assert.False(t, first.Synthetic)

	second, ok := r.Get("chk-dup-1")
	require.True(t, ok)
	assert.Equal(t, "Savings", second.Raw["name"])
	assert.True(t, second.Synthetic)

	third, ok := r.Get("chk-dup-2")
	require.True(t, ok)
	assert.Equal(t, "Cash", third.Raw["name"])

	warnings := r.Warnings()
	require.Len(t, warnings, 2)
	assert.Equal(t, "chk-dup-1", warnings[0].RenamedTo)
	assert.Equal(t, 3, warnings[0].Line)

	warns := logger.GetEntriesByLevel("WARN")
	require.Len(t, warns, 2)
	v, ok := warns[0].FieldValue(logging.FieldRenamedTo)
	require.True(t, ok)
	assert.Equal(t, "chk-dup-1", v)
}

func TestAddRecord_ExplicitKeyMovesOffSyntheticSlot(t *testing.T) {
	input := "#a|name\nAccount|Checking\n#a|id|name\nAccount|1|Savings\n"

	r := newRecords(nil, nil)
	_, err := load(t, r, input)
	require.NoError(t, err)

	kept, ok := r.Get("1")
	require.True(t, ok)
	assert.True(t, kept.Synthetic)
	assert.Equal(t, 2, kept.Line)

	moved, ok := r.Get("1-dup-1")
	require.True(t, ok)
	assert.True(t, moved.Synthetic)
	assert.Equal(t, "Savings", moved.Raw["name"])
	assert.Equal(t, 4, moved.Line)
	require.Len(t, r.Warnings(), 1)

	// Without the import column in the comparison identical rows are fatal.
	opts := DefaultOptions()
	opts.CompareImportKey = false
	r = New(nil, nil, opts, nil, nil)
	_, err = load(t, r, "#a|name\nAccount|Checking\n#a|id|name\nAccount|1|Checking\n")
	var dup *budgeterror.DuplicateError
	assert.True(t, errors.As(err, &dup), "got %v", err)
}

func TestAddRecord_SyntheticNewcomerMovesExplicitOccupant(t *testing.T) {
	input := "#a|id|name\nAccount|1|Savings\n#a|name\nAccount|Checking\n"

	r := newRecords(nil, nil)
	_, err := load(t, r, input)
	require.NoError(t, err)

	slot, ok := r.Get("1")
	require.True(t, ok)
	assert.True(t, slot.Synthetic)
	assert.Equal(t, "Checking", slot.Raw["name"])

	moved, ok := r.Get("1-dup-1")
	require.True(t, ok)
	assert.True(t, moved.Synthetic)
	assert.Equal(t, "Savings", moved.Raw["name"])

	// Entities keep input order after the move.
	entities := r.Entities()
	require.Len(t, entities, 2)
	assert.Same(t, moved, entities[0])
}

func TestAddRecord_SyntheticKeysCount(t *testing.T) {
	r := newRecords(nil, nil)
	_, err := load(t, r, "#a|name\nAccount|A\nAccount|B\n#b|name\nBudget|C\n")
	require.NoError(t, err)

	for key, name := range map[string]string{"1": "A", "2": "B", "3": "C"} {
		st, ok := r.Get(key)
		require.True(t, ok, key)
		assert.Equal(t, name, st.Raw["name"])
		assert.True(t, st.Synthetic)
	}
}

func TestRelationships_MissingForeignKey(t *testing.T) {
	s := openStore(t)
	r := newRecords(s, nil)

	_, err := load(t, r, "#a|id|name\nAccount|chk|Checking\n#s|id|date|account_id\nStatement|st1|2013-01-31|chq\n")
	var mfk *budgeterror.MissingForeignKeyError
	require.True(t, errors.As(err, &mfk), "got %v", err)
	assert.Equal(t, "st1", mfk.Owner)
	assert.Equal(t, "account", mfk.Relation)
	assert.Equal(t, "chq", mfk.ForeignKey)
	assert.Contains(t, mfk.Reason, `did you mean "chk"`)

	n, err := s.Count(context.Background(), models.KindStatement)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing saved")
}

func TestRelationships_KindMismatch(t *testing.T) {
	r := newRecords(nil, nil)
	_, err := load(t, r, "#b|id|name\nBudget|chk|Food\n#s|id|account_id\nStatement|st1|chk\n")

	var mfk *budgeterror.MissingForeignKeyError
	require.True(t, errors.As(err, &mfk))
	assert.Contains(t, mfk.Reason, "is a Budget, not a Account")
}

func TestRelationships_PersistedFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	prior := &models.Account{Name: "Checking"}
	prior.ImportKey = sql.NullString{String: "chk", Valid: true}
	require.NoError(t, s.Insert(ctx, prior))

	r := newRecords(s, nil)
	_, err := load(t, r, "#s|id|date|account_id\nStatement|st2|2013-02-28|chk\n")
	require.NoError(t, err)

	st, _ := r.Get("st2")
	id, ok := st.RelationID("account")
	require.True(t, ok)
	assert.Equal(t, prior.ID, id)

	_, err = r.Save(ctx)
	require.NoError(t, err)
	rec, err := s.FindByImportKey(ctx, models.KindStatement, "st2")
	require.NoError(t, err)
	assert.Equal(t, models.NullID(prior.ID), rec.(*models.Statement).AccountID)

	var buf bytes.Buffer
	require.NoError(t, r.Print(&buf))
	assert.Contains(t, buf.String(), "st2,Statement,account_id,-> #")
}

func TestRelationships_ForwardReference(t *testing.T) {
	r := newRecords(nil, nil)
	_, err := load(t, r, "#s|id|account_id\nStatement|st1|chk\n#a|id|name\nAccount|chk|Checking\n")
	require.NoError(t, err)

	st, _ := r.Get("st1")
	acct, _ := r.Get("chk")
	linked, ok := st.Relation("account")
	require.True(t, ok)
	assert.Same(t, acct, linked)
}

func TestLoad_FormatErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		line    int
		message string
	}{
		{"unknown entity type", "#a|id|name\nAcount|chk|Checking\n", 2, `did you mean "Account"`},
		{"field count", "#a|id|name\nAccount|chk\n", 2, "expected 2 fields"},
		{"unknown column", "#a|id|nmae\nAccount|chk|Checking\n", 2, `did you mean "name"`},
		{"relation the kind lacks", "#a|id|budget_id\nAccount|chk|food\n", 2, `no column "budget_id"`},
		{"data before schema", "Account|chk|Checking\n", 1, "before any schema line"},
		{"repeated column", "#a|id|name|name\n", 1, "repeated column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, newRecords(nil, nil), tt.input)
			var fe *budgeterror.FormatError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tt.line, fe.Line)
			assert.Equal(t, "test.txt", fe.FilePath)
			assert.Contains(t, fe.Msg, tt.message)
		})
	}
}

func TestLoad_LineEndingsAndBlankLines(t *testing.T) {
	r := newRecords(nil, nil)
	n, err := load(t, r, "#a|id|name\r\n\r\nAccount|chk|Checking\r\n   \nAccount|sav|Savings")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	st, _ := r.Get("chk")
	assert.Equal(t, "Checking", st.Raw["name"])
	assert.Equal(t, 3, st.Line)
}

func TestLoad_CustomDelimiter(t *testing.T) {
	r := New(nil, nil, Options{Marker: "@", Delimiter: ";", CompareImportKey: true}, nil, nil)
	n, err := load(t, r, "@a;id;name\nAccount;chk;Checking\n")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSave_SyntheticKeysNotStored(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	r := newRecords(s, nil)

	_, err := load(t, r, "#a|name\nAccount|Cash\n")
	require.NoError(t, err)
	_, err = r.Save(ctx)
	require.NoError(t, err)

	st, _ := r.Get("1")
	rec := st.Record()
	require.NotNil(t, rec)
	assert.False(t, rec.Ident().ImportKey.Valid)

	_, err = s.FindByImportKey(ctx, models.KindAccount, "1")
	assert.True(t, errors.Is(err, budgeterror.ErrNotFound))
}

func TestSave_ParseError(t *testing.T) {
	s := openStore(t)
	r := newRecords(s, nil)

	_, err := load(t, r, "#t|id|amount\nTransaction|t1|lots\n")
	require.NoError(t, err)

	_, err = r.Save(context.Background())
	var pe *budgeterror.ParseError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "amount", pe.Field)
	assert.Equal(t, "lots", pe.Value)
}

func TestSave_DryRunRefuses(t *testing.T) {
	r := newRecords(nil, nil)
	_, err := load(t, r, wellFormed)
	require.NoError(t, err)

	_, err = r.Save(context.Background())
	assert.Error(t, err)
}

func TestSave_DryRunResolvesStoredRelations(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	prior := &models.Account{Name: "Checking"}
	prior.ImportKey = sql.NullString{String: "chk", Valid: true}
	require.NoError(t, s.Insert(ctx, prior))

	r := NewDryRun(s, nil, DefaultOptions(), metrics.Nop{}, nil)
	_, err := load(t, r, "#s|id|date|account_id\nStatement|st9|2013-02-28|chk\n")
	require.NoError(t, err)

	st, _ := r.Get("st9")
	id, ok := st.RelationID("account")
	require.True(t, ok)
	assert.Equal(t, prior.ID, id)

	_, err = r.Save(ctx)
	assert.Error(t, err)
	n, err := s.Count(ctx, models.KindStatement)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPrint(t *testing.T) {
	r := newRecords(nil, nil)
	_, err := load(t, r, wellFormed)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Print(&buf))
	out := buf.String()

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "key,kind,column,value", lines[0])
	assert.Equal(t, "chk,Account,import,chk", lines[1])
	assert.Contains(t, out, "chk,Account,name,Checking\n")
	assert.Contains(t, out, "st1,Statement,account_id,-> chk\n")
	assert.Contains(t, out, "t1,Transaction,budget_id,-> food\n")

	var empty bytes.Buffer
	require.NoError(t, newRecords(nil, nil).Print(&empty))
	assert.Equal(t, "key,kind,column,value\n", empty.String())
}
