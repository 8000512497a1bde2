package importer

import (
	"fmt"
	"strings"

	"jjcook/budgetdb/internal/budgeterror"
	"jjcook/budgetdb/internal/logging"
	"jjcook/budgetdb/internal/models"
)

// addRecord assigns st its import key and stages it.
//
// A row without an explicit key gets the next synthetic key. When the key is
// already taken, identical content is a fatal duplicate. Differing content
// is a collision: the row that does not already hold a synthetic key moves
// to "<key>-dup-<n>". That is the newcomer unless the newcomer is synthetic
// and the occupant is not. Moved rows count as synthetic from then on.
func (r *Records) addRecord(st *Staged) error {
	if key := strings.TrimSpace(st.Raw[models.ImportColumn]); key != "" {
		st.Key = key
	} else {
		st.Key = r.nextSyntheticKey()
		st.Synthetic = true
	}

	existing, taken := r.byKey[st.Key]
	if !taken {
		r.stage(st)
		return nil
	}

	if sameContent(existing, st, r.opts.CompareImportKey) {
		return &budgeterror.DuplicateError{ImportKey: st.Key, Kind: st.Kind.String(), Line: st.Line}
	}

	original := st.Key
	renamed := r.collisionKey(original)
	moved := st
	if st.Synthetic && !existing.Synthetic {
		moved = existing
		delete(r.byKey, original)
		existing.Key = renamed
		existing.Synthetic = true
		r.byKey[renamed] = existing
		r.order = append(r.order, st)
		r.byKey[original] = st
	} else {
		st.Key = renamed
		st.Synthetic = true
		r.stage(st)
	}

	w := &budgeterror.CollisionWarning{ImportKey: original, RenamedTo: renamed, Line: st.Line}
	r.warnings = append(r.warnings, w)
	r.logger.Warn(w.Error(),
		logging.F(logging.FieldImportKey, original),
		logging.F(logging.FieldRenamedTo, renamed),
		logging.F(logging.FieldKind, moved.Kind.String()),
		logging.F(logging.FieldLine, st.Line))
	return nil
}

func (r *Records) stage(st *Staged) {
	r.order = append(r.order, st)
	r.byKey[st.Key] = st
}

// collisionKey returns "<key>-dup-<n>" for the smallest free n.
func (r *Records) collisionKey(key string) string {
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-dup-%d", key, n)
		if _, taken := r.byKey[candidate]; !taken {
			return candidate
		}
	}
}
