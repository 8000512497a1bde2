package importer

import (
	"sort"

	"jjcook/budgetdb/internal/models"
)

// Staged is one parsed row awaiting persistence.
type Staged struct {
	Kind models.Kind
	// Key is the row's import key: the explicit import column or a
	// synthetic sequence number, possibly renamed after a collision.
	Key string
	// Synthetic is true when Key was generated rather than read.
	Synthetic bool
	// Line is the 1-based input line the row came from.
	Line int
	// Raw holds every declared column's text exactly as read.
	Raw map[string]string

	staged    map[string]*Staged
	persisted map[string]int64
	record    models.Record
}

// Relation returns the staged entity a relation resolved to.
func (s *Staged) Relation(name string) (*Staged, bool) {
	target, ok := s.staged[name]
	return target, ok
}

// RelationID returns the stored id a relation resolved to.
func (s *Staged) RelationID(name string) (int64, bool) {
	id, ok := s.persisted[name]
	return id, ok
}

// Record returns the persisted record once Save has stored s.
func (s *Staged) Record() models.Record {
	return s.record
}

// sameContent reports whether two rows are identical before type
// conversion. The import column takes part only when withKey is set.
func sameContent(a, b *Staged, withKey bool) bool {
	if a.Kind != b.Kind {
		return false
	}
	filtered := func(m map[string]string) map[string]string {
		out := make(map[string]string, len(m))
		for k, v := range m {
			if k == models.ImportColumn && !withKey {
				continue
			}
			out[k] = v
		}
		return out
	}
	x, y := filtered(a.Raw), filtered(b.Raw)
	if len(x) != len(y) {
		return false
	}
	for k, v := range x {
		if w, ok := y[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
