package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	r.Observe(ctx, OpImportLoad, true, 10*time.Millisecond)
	r.Observe(ctx, OpImportLoad, false, time.Millisecond)
	r.Observe(ctx, "", true, time.Millisecond)
	r.AddImported("Account", 2)
	r.AddImported("Account", 0)
	r.AddCollisions(1)
	r.AddClassified(5)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues(OpImportLoad, statusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues(OpImportLoad, statusError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.imported.WithLabelValues("Account")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.collisions))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.classified))
}

func TestRegistry_WriteTextfile(t *testing.T) {
	r := NewRegistry()
	r.AddClassified(3)

	path := filepath.Join(t.TempDir(), "budgetdb.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "budgetdb_transactions_classified_total 3")

	assert.NoError(t, r.WriteTextfile(""))
}

func TestNop(t *testing.T) {
	var rec Recorder = Nop{}
	rec.Observe(context.Background(), OpClassify, true, time.Second)
	rec.AddClassified(1)
}
