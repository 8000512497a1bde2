package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"jjcook/budgetdb/internal/budgeterror"
	"jjcook/budgetdb/internal/models"
)

// Predicate is one "column op value" term of a bulk update filter.
type Predicate struct {
	Column string
	Op     string
	Value  interface{}
}

// Assignment is one "column = value" term of a bulk update.
type Assignment struct {
	Column string
	Value  interface{}
}

// New returns a blank record of kind.
func (s *Store) New(kind models.Kind) models.Record {
	return models.New(kind)
}

// Insert stores rec and sets its ID.
func (s *Store) Insert(ctx context.Context, rec models.Record) error {
	cols := models.Columns(rec)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		rec.Kind().Table(), strings.Join(cols, ", "), placeholders)

	var id int64
	if err := s.queryRow(ctx, q, models.Values(rec)...).Scan(&id); err != nil {
		return fmt.Errorf("insert %s: %w", rec.Kind(), err)
	}
	rec.Ident().ID = id
	return nil
}

// Update writes every column of an already stored rec.
func (s *Store) Update(ctx context.Context, rec models.Record) error {
	id := rec.Ident().ID
	if id == 0 {
		return &budgeterror.ValidationError{Subject: rec.Kind().String(), Reason: "record has not been stored"}
	}
	cols := models.Columns(rec)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", rec.Kind().Table(), strings.Join(sets, ", "))
	args := append(models.Values(rec), id)

	res, err := s.exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", rec.Kind(), id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &budgeterror.NotFoundError{Entity: rec.Kind().String(), ID: id}
	}
	return nil
}

// FindByID loads the record of kind with the given id.
func (s *Store) FindByID(ctx context.Context, kind models.Kind, id int64) (models.Record, error) {
	rec, err := s.FindByField(ctx, kind, "id", id)
	if errors.Is(err, budgeterror.ErrNotFound) {
		return nil, &budgeterror.NotFoundError{Entity: kind.String(), ID: id, Err: sql.ErrNoRows}
	}
	return rec, err
}

// FindByImportKey loads the record of kind stored under key.
func (s *Store) FindByImportKey(ctx context.Context, kind models.Kind, key string) (models.Record, error) {
	return s.FindByField(ctx, kind, models.ImportKeyColumn, key)
}

// FindByField returns the first record of kind whose field equals value.
func (s *Store) FindByField(ctx context.Context, kind models.Kind, field string, value interface{}) (models.Record, error) {
	if err := checkField(kind, field); err != nil {
		return nil, err
	}
	rec := models.New(kind)
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY id LIMIT 1", selectList(rec), kind.Table(), field)
	err := s.queryRow(ctx, q, value).Scan(models.ScanDest(rec)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &budgeterror.NotFoundError{Entity: kind.String() + " by " + field, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", kind, field, err)
	}
	return rec, nil
}

// FindAllByField returns every record of kind whose field equals value, in id order.
func (s *Store) FindAllByField(ctx context.Context, kind models.Kind, field string, value interface{}) ([]models.Record, error) {
	if err := checkField(kind, field); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY id", selectList(models.New(kind)), kind.Table(), field)
	rows, err := s.query(ctx, q, value)
	if err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", kind, field, err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		rec := models.New(kind)
		if err := rows.Scan(models.ScanDest(rec)...); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of stored records of kind.
func (s *Store) Count(ctx context.Context, kind models.Kind) (int, error) {
	if kind.Table() == "" {
		return 0, &budgeterror.ValidationError{Subject: kind.String(), Reason: "unknown entity kind"}
	}
	var n int
	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM "+kind.Table()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// UpdateWhere assigns set to every record of kind matching all of where, as
// a single statement, and returns the number of rows changed.
func (s *Store) UpdateWhere(ctx context.Context, kind models.Kind, set []Assignment, where []Predicate) (int64, error) {
	if len(set) == 0 || len(where) == 0 {
		return 0, &budgeterror.ValidationError{Subject: kind.String(), Reason: "bulk update needs assignments and predicates"}
	}
	args := make([]interface{}, 0, len(set)+len(where))

	sets := make([]string, len(set))
	for i, a := range set {
		if err := checkField(kind, a.Column); err != nil {
			return 0, err
		}
		sets[i] = a.Column + " = ?"
		args = append(args, a.Value)
	}

	terms := make([]string, len(where))
	for i, p := range where {
		if err := checkField(kind, p.Column); err != nil {
			return 0, err
		}
		op, ok := models.NormalizeOperator(p.Op)
		if !ok {
			return 0, &budgeterror.ValidationError{Subject: kind.String(), Reason: fmt.Sprintf("unsupported operator %q", p.Op)}
		}
		terms[i] = predicateSQL(kind, p.Column, op)
		args = append(args, p.Value)
	}

	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s", kind.Table(), strings.Join(sets, ", "), strings.Join(terms, " AND "))
	res, err := s.exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk update %s: %w", kind, err)
	}
	return res.RowsAffected()
}

// predicateSQL renders one filter term. Money is stored as text, so ordering
// and equality on a money column compare numerically; LIKE still sees the
// stored two-decimal text.
func predicateSQL(kind models.Kind, column, op string) string {
	if models.IsMoneyColumn(kind, column) && !strings.HasSuffix(op, "LIKE") {
		return fmt.Sprintf("CAST(%s AS NUMERIC) %s CAST(? AS NUMERIC)", column, op)
	}
	return fmt.Sprintf("%s %s ?", column, op)
}

func selectList(rec models.Record) string {
	return "id, " + strings.Join(models.Columns(rec), ", ")
}

// checkField keeps caller-supplied column names out of SQL unless the kind
// actually stores them.
func checkField(kind models.Kind, field string) error {
	rec := models.New(kind)
	if rec == nil {
		return &budgeterror.ValidationError{Subject: kind.String(), Reason: "unknown entity kind"}
	}
	if field == "id" {
		return nil
	}
	for _, c := range models.Columns(rec) {
		if c == field {
			return nil
		}
	}
	return &budgeterror.ValidationError{Subject: kind.String(), Reason: fmt.Sprintf("unknown column %q", field)}
}
