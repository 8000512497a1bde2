// Package budgeterror defines the error kinds surfaced by the importer, the
// rule list and the classifier. Callers match them with errors.As.
package budgeterror

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by NotFoundError so callers can use errors.Is.
var ErrNotFound = errors.New("not found")

// FormatError reports input that does not follow the flat import format:
// a field-count mismatch, an unknown entity type or an unknown column.
type FormatError struct {
	FilePath string
	Line     int
	Msg      string
	Snippet  string // Optional: the offending line
}

func (e *FormatError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("incompatible format in '%s' line %d: %s. Content: '%s'",
			e.FilePath, e.Line, e.Msg, e.Snippet)
	}
	return fmt.Sprintf("incompatible format in '%s' line %d: %s", e.FilePath, e.Line, e.Msg)
}

// DuplicateError reports two staged rows sharing an import key with
// identical content. It aborts the import.
type DuplicateError struct {
	ImportKey string
	Kind      string
	Line      int
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s record for import key '%s' at line %d", e.Kind, e.ImportKey, e.Line)
}

// CollisionWarning reports two staged rows sharing an import key with
// differing content. The importer resolves it by renaming and keeps going.
type CollisionWarning struct {
	ImportKey string
	RenamedTo string
	Line      int
}

func (e *CollisionWarning) Error() string {
	return fmt.Sprintf("import key '%s' collides at line %d; record renamed to '%s'",
		e.ImportKey, e.Line, e.RenamedTo)
}

// MissingForeignKeyError reports a deferred relationship that resolves
// neither against persisted entities nor against the staging table.
type MissingForeignKeyError struct {
	Owner      string
	Relation   string
	ForeignKey string
	Reason     string // Optional
}

func (e *MissingForeignKeyError) Error() string {
	msg := fmt.Sprintf("record '%s' references missing %s '%s'", e.Owner, e.Relation, e.ForeignKey)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// StructuralError reports a rule chain that violates its invariants.
type StructuralError struct {
	Reason string
	RuleID int64 // zero when the problem concerns the whole chain
}

func (e *StructuralError) Error() string {
	if e.RuleID != 0 {
		return fmt.Sprintf("rule chain is corrupt at rule %d: %s", e.RuleID, e.Reason)
	}
	return fmt.Sprintf("rule chain is corrupt: %s", e.Reason)
}

// ValidationError represents a validation failure of a single record.
type ValidationError struct {
	Subject string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Subject, e.Reason)
}

// NotFoundError reports a referenced row that does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
	Err    error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// Is lets errors.Is(err, ErrNotFound) succeed even when Err wraps sql.ErrNoRows.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ParseError represents a failure converting a staged text value into its
// typed column value.
type ParseError struct {
	Kind  string
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: failed to parse %s='%s': %v", e.Kind, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
