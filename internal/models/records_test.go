package models

import (
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssign_TypeConversion(t *testing.T) {
	tx := &Transaction{}
	require.NoError(t, Assign(tx, "amount", "125"))
	require.NoError(t, Assign(tx, "date", "2013/02/01"))
	require.NoError(t, Assign(tx, "description", "COFFEE SHOP"))

	assert.Equal(t, "125.00", tx.Amount.String())
	assert.Equal(t, "2013-02-01", tx.Date.String())
	assert.Equal(t, "COFFEE SHOP", tx.Description)

	a := &Allotment{}
	require.NoError(t, Assign(a, "automatic", "yes"))
	require.NoError(t, Assign(a, "periods", "12"))
	assert.Equal(t, sql.NullBool{Bool: true, Valid: true}, a.Automatic)
	assert.Equal(t, sql.NullInt64{Int64: 12, Valid: true}, a.Periods)
}

func TestAssign_Errors(t *testing.T) {
	assert.Error(t, Assign(&Budget{}, "carryover", "lots"))
	assert.Error(t, Assign(&Account{}, "tracked", "maybe"))
	assert.Error(t, Assign(&Allotment{}, "periods", "twelve"))
	assert.Error(t, Assign(&Statement{}, "date", "yesterday"))
	assert.Error(t, Assign(&Account{}, "balance", "1"))
}

func TestAssign_EmptyIsNull(t *testing.T) {
	s := &Statement{}
	require.NoError(t, Assign(s, "balance", ""))
	require.NoError(t, Assign(s, "date", ""))
	assert.False(t, s.Balance.Valid)
	assert.False(t, s.Date.Valid)
}

func TestLink(t *testing.T) {
	s := &Statement{}
	require.NoError(t, Link(s, "account", 42))
	assert.Equal(t, sql.NullInt64{Int64: 42, Valid: true}, s.AccountID)

	assert.Error(t, Link(s, "budget", 1))
	assert.Error(t, Link(&Account{}, "name", 1))
}

func TestColumnsValuesScanDest(t *testing.T) {
	b := &Budget{Name: "Groceries", Carryover: NewMoney(decimal.RequireFromString("10.5"))}
	b.ImportKey = sql.NullString{String: "b1", Valid: true}

	assert.Equal(t, []string{"import_key", "name", "carryover"}, Columns(b))
	values := Values(b)
	require.Len(t, values, 3)
	assert.Equal(t, "Groceries", values[1])

	v, err := values[2].(Money).Value()
	require.NoError(t, err)
	assert.Equal(t, "10.50", v)

	dest := ScanDest(b)
	assert.Len(t, dest, 4)
	assert.Same(t, &b.ID, dest[0])
}

func TestNew(t *testing.T) {
	for _, k := range Kinds() {
		rec := New(k)
		require.NotNil(t, rec)
		assert.Equal(t, k, rec.Kind())
	}
	assert.Nil(t, New(KindUnknown))
}
