package importer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jjcook/budgetdb/internal/budgeterror"
	"jjcook/budgetdb/internal/logging"
	"jjcook/budgetdb/internal/metrics"
	"jjcook/budgetdb/internal/models"
)

// Save persists every staged row not yet saved and returns how many it
// stored. Rows referenced through a relation are stored before the rows
// referencing them. Each row is its own insert; a failure leaves earlier
// rows stored. Only explicit import keys are written, since generated keys
// mean nothing outside this run.
func (r *Records) Save(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, fmt.Errorf("import batch %s has no store to save into", r.batchID)
	}
	if len(r.pending) > 0 {
		return 0, fmt.Errorf("import batch %s has %d unresolved relations", r.batchID, len(r.pending))
	}

	start := time.Now()
	perKind := make(map[models.Kind]int)
	visiting := make(map[*Staged]bool)

	var persist func(st *Staged) error
	persist = func(st *Staged) error {
		if st.record != nil {
			return nil
		}
		if visiting[st] {
			return &budgeterror.ValidationError{Subject: st.Key, Reason: "relations form a cycle"}
		}
		visiting[st] = true
		defer delete(visiting, st)

		for _, rel := range sortedKeys(st.staged) {
			if err := persist(st.staged[rel]); err != nil {
				return err
			}
		}

		rec, err := r.build(st)
		if err != nil {
			return err
		}
		if err := r.store.Insert(ctx, rec); err != nil {
			return fmt.Errorf("save %s '%s' from line %d: %w", st.Kind, st.Key, st.Line, err)
		}
		st.record = rec
		perKind[st.Kind]++
		return nil
	}

	var err error
	for _, st := range r.order {
		if err = persist(st); err != nil {
			break
		}
	}

	saved := 0
	for kind, n := range perKind {
		saved += n
		r.metrics.AddImported(kind.String(), n)
	}
	r.metrics.Observe(ctx, metrics.OpImportSave, err == nil, time.Since(start))
	if err != nil {
		r.logger.WithError(err).Error("Save stopped", logging.F(logging.FieldCount, saved))
		return saved, err
	}
	r.logger.Info("Import saved",
		logging.F(logging.FieldCount, saved),
		logging.F(logging.FieldDuration, time.Since(start).Milliseconds()))
	return saved, nil
}

// build converts st into a typed record with its relations set.
func (r *Records) build(st *Staged) (models.Record, error) {
	rec := models.New(st.Kind)
	for _, col := range st.Kind.Attributes() {
		raw, ok := st.Raw[col]
		if !ok {
			continue
		}
		if err := models.Assign(rec, col, raw); err != nil {
			return nil, &budgeterror.ParseError{Kind: st.Kind.String(), Field: col, Value: raw, Err: err}
		}
	}
	if !st.Synthetic {
		rec.Ident().ImportKey = sql.NullString{String: st.Key, Valid: true}
	}
	for rel, target := range st.staged {
		if err := models.Link(rec, rel, target.record.Ident().ID); err != nil {
			return nil, err
		}
	}
	for rel, id := range st.persisted {
		if err := models.Link(rec, rel, id); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
