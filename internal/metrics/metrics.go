// Package metrics records import and classification outcomes as prometheus
// counters. Each Registry owns its own prometheus registry so commands and
// tests never share global state; a textfile export makes the numbers
// available to node_exporter after a one-shot CLI run.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation names passed to Observe.
const (
	OpImportLoad  = "import_load"
	OpImportSave  = "import_save"
	OpClassify    = "classify"
	OpRuleLink    = "rule_link"
	OpRuleDestroy = "rule_destroy"
)

const (
	statusSuccess = "success"
	statusError   = "error"
	namespace     = "budgetdb"
)

// Recorder is implemented by Registry and Nop.
type Recorder interface {
	// Observe records an operation outcome and its duration.
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
	AddImported(kind string, n int)
	AddCollisions(n int)
	AddClassified(rows int64)
}

// Registry is the prometheus-backed Recorder.
type Registry struct {
	reg        *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	imported   *prometheus.CounterVec
	collisions prometheus.Counter
	classified prometheus.Counter
}

// NewRegistry creates a Registry with every collector registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Operations run, by operation and status.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation wall time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		imported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_imported_total",
			Help:      "Records persisted by the importer, by entity kind.",
		}, []string{"kind"}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_key_collisions_total",
			Help:      "Import key collisions resolved by renaming.",
		}),
		classified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_classified_total",
			Help:      "Transaction rows rewritten by rules.",
		}),
	}
	r.reg.MustRegister(r.operations, r.durations, r.imported, r.collisions, r.classified)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func (r *Registry) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := statusError
	if success {
		status = statusSuccess
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

func (r *Registry) AddImported(kind string, n int) {
	if n > 0 {
		r.imported.WithLabelValues(kind).Add(float64(n))
	}
}

func (r *Registry) AddCollisions(n int) {
	if n > 0 {
		r.collisions.Add(float64(n))
	}
}

func (r *Registry) AddClassified(rows int64) {
	if rows > 0 {
		r.classified.Add(float64(rows))
	}
}

// WriteTextfile writes the current values in the text exposition format. An
// empty path is a no-op.
func (r *Registry) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Observe(context.Context, string, bool, time.Duration) {}
func (Nop) AddImported(string, int) {}
func (Nop) AddCollisions(int) {}
func (Nop) AddClassified(int64) {}
