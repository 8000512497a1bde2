// Package importer loads the pipe-delimited flat file into staged entities,
// resolves import key collisions and deferred relations, and saves the
// result.
//
// A schema line starts with the marker and names the columns of every data
// line that follows until the next schema line:
//
//	#transactions|id|date|amount|account_id
//	Transaction|t1|2013-01-02|125.00|chk
//
// The first field of a schema line is a label and is dropped; a column named
// "id" holds the row's import key. Columns ending in "_id" reference another
// row by import key and are resolved after the whole input is read.
package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"jjcook/budgetdb/internal/budgeterror"
	"jjcook/budgetdb/internal/logging"
	"jjcook/budgetdb/internal/metrics"
	"jjcook/budgetdb/internal/models"

	"github.com/google/uuid"
)

// Options controls parsing and duplicate detection.
type Options struct {
	Marker    string
	Delimiter string
	// CompareImportKey includes the import column when deciding whether two
	// rows sharing a key are identical. With it set, a row with an explicit
	// key never duplicates a row whose key was generated.
	CompareImportKey bool
}

// DefaultOptions returns "#" as marker, "|" as delimiter and compares the
// import column.
func DefaultOptions() Options {
	return Options{Marker: "#", Delimiter: "|", CompareImportKey: true}
}

// Records is the staging table of one import run.
type Records struct {
	store   StoreInterface
	lookup  LookupInterface
	opener  OpenerInterface
	opts    Options
	logger  logging.Logger
	metrics metrics.Recorder
	batchID string

	seq      int
	order    []*Staged
	byKey    map[string]*Staged
	pending  []deferredLink
	warnings []*budgeterror.CollisionWarning
}

// deferredLink is a relation column waiting for resolution. It points at the
// owning row rather than its key so a collision rename does not orphan it.
type deferredLink struct {
	owner    *Staged
	relation string
	foreign  string
	line     int
}

// New creates an empty staging table. store may be nil to only parse and
// print; relations then resolve against staged rows only.
func New(store StoreInterface, opener OpenerInterface, opts Options, recorder metrics.Recorder, logger logging.Logger) *Records {
	r := emptyRecords(opener, opts, recorder, logger)
	r.store = store
	if store != nil {
		r.lookup = store
	}
	return r
}

// NewDryRun creates a staging table that resolves relations against lookup
// and the staged rows but refuses to save.
func NewDryRun(lookup LookupInterface, opener OpenerInterface, opts Options, recorder metrics.Recorder, logger logging.Logger) *Records {
	r := emptyRecords(opener, opts, recorder, logger)
	r.lookup = lookup
	return r
}

func emptyRecords(opener OpenerInterface, opts Options, recorder metrics.Recorder, logger logging.Logger) *Records {
	defaults := DefaultOptions()
	if opts.Marker == "" {
		opts.Marker = defaults.Marker
	}
	if opts.Delimiter == "" {
		opts.Delimiter = defaults.Delimiter
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	batchID := uuid.NewString()
	return &Records{
		opener:  opener,
		opts:    opts,
		logger:  logger.WithField(logging.FieldBatchID, batchID),
		metrics: recorder,
		batchID: batchID,
		byKey:   make(map[string]*Staged),
	}
}

// BatchID identifies this import run in logs.
func (r *Records) BatchID() string {
	return r.batchID
}

// Load reads location, stages every row and resolves relations. It returns
// the number of rows staged from location.
func (r *Records) Load(ctx context.Context, location string) (int, error) {
	if r.opener == nil {
		return 0, fmt.Errorf("no opener configured for %s", location)
	}
	rc, err := r.opener.Open(ctx, location)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return r.LoadReader(ctx, rc, location)
}

// LoadReader is Load for an already open input; name labels errors and logs.
func (r *Records) LoadReader(ctx context.Context, in io.Reader, name string) (int, error) {
	start := time.Now()
	n, err := r.load(ctx, in, name)
	r.metrics.Observe(ctx, metrics.OpImportLoad, err == nil, time.Since(start))
	if err != nil {
		r.logger.WithError(err).Error("Import failed", logging.F(logging.FieldFile, name))
		return n, err
	}
	r.logger.Info("Import staged",
		logging.F(logging.FieldFile, name),
		logging.F(logging.FieldCount, n),
		logging.F(logging.FieldDuration, time.Since(start).Milliseconds()))
	return n, nil
}

func (r *Records) load(ctx context.Context, in io.Reader, name string) (int, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", name, err)
	}
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	data = bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))

	warningsBefore := len(r.warnings)
	var columns []string
	count := 0
	for i, line := range strings.Split(string(data), "\n") {
		lineNo := i + 1
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, r.opts.Marker) {
			columns, err = r.parseSchema(line, name, lineNo)
			if err != nil {
				return count, err
			}
			continue
		}
		if err := r.parseRow(line, columns, name, lineNo); err != nil {
			return count, err
		}
		count++
	}
	r.metrics.AddCollisions(len(r.warnings) - warningsBefore)

	if err := r.establishRelationships(ctx); err != nil {
		return count, err
	}
	return count, nil
}

func (r *Records) parseSchema(line, name string, lineNo int) ([]string, error) {
	fields := strings.Split(strings.TrimPrefix(line, r.opts.Marker), r.opts.Delimiter)
	columns := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields[1:] {
		col := strings.TrimSpace(f)
		if col == models.IDColumn {
			col = models.ImportColumn
		}
		if col == "" || seen[col] {
			return nil, &budgeterror.FormatError{FilePath: name, Line: lineNo,
				Msg: fmt.Sprintf("empty or repeated column %q in schema line", col), Snippet: line}
		}
		seen[col] = true
		columns = append(columns, col)
	}
	r.logger.Debug("Schema line", logging.F(logging.FieldLine, lineNo), logging.F(logging.FieldCount, len(columns)))
	return columns, nil
}

func (r *Records) parseRow(line string, columns []string, name string, lineNo int) error {
	formatErr := func(msg string) error {
		return &budgeterror.FormatError{FilePath: name, Line: lineNo, Msg: msg, Snippet: line}
	}
	if columns == nil {
		return formatErr("data line before any schema line")
	}

	fields := strings.Split(line, r.opts.Delimiter)
	kind, ok := models.ParseKind(fields[0])
	if !ok {
		return formatErr(fmt.Sprintf("unknown entity type %q%s", fields[0], didYouMean(fields[0], kindNames())))
	}
	if got := len(fields) - 1; got != len(columns) {
		return formatErr(fmt.Sprintf("expected %d fields after the entity type, got %d", len(columns), got))
	}
	for _, col := range columns {
		if !kind.Accepts(col) {
			return formatErr(fmt.Sprintf("%s has no column %q%s", kind, col, didYouMean(col, kind.Columns())))
		}
	}

	st := &Staged{Kind: kind, Line: lineNo, Raw: make(map[string]string, len(columns))}
	for i, col := range columns {
		st.Raw[col] = fields[i+1]
	}
	if err := r.addRecord(st); err != nil {
		return err
	}

	for _, col := range columns {
		rel, ok := models.RelationName(col)
		if !ok {
			continue
		}
		foreign := strings.TrimSpace(st.Raw[col])
		if foreign == "" {
			continue
		}
		r.pending = append(r.pending, deferredLink{owner: st, relation: rel, foreign: foreign, line: lineNo})
	}
	return nil
}

// nextSyntheticKey returns the next unused sequence number as a key.
func (r *Records) nextSyntheticKey() string {
	r.seq++
	return strconv.Itoa(r.seq)
}

// Get returns the staged row holding key.
func (r *Records) Get(key string) (*Staged, bool) {
	st, ok := r.byKey[key]
	return st, ok
}

// Entities returns the staged rows in input order.
func (r *Records) Entities() []*Staged {
	out := make([]*Staged, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of staged rows.
func (r *Records) Len() int {
	return len(r.order)
}

// Warnings returns the collisions resolved so far.
func (r *Records) Warnings() []*budgeterror.CollisionWarning {
	out := make([]*budgeterror.CollisionWarning, len(r.warnings))
	copy(out, r.warnings)
	return out
}
