package importer

import (
	"context"
	"errors"
	"fmt"

	"jjcook/budgetdb/internal/budgeterror"
	"jjcook/budgetdb/internal/logging"
	"jjcook/budgetdb/internal/models"
)

// establishRelationships resolves every pending relation, first against
// stored rows by import key and then against the staging table. The first
// unresolvable reference fails the whole batch.
func (r *Records) establishRelationships(ctx context.Context) error {
	pending := r.pending
	r.pending = nil

	for _, link := range pending {
		owner := link.owner
		target, ok := owner.Kind.RelationKind(link.relation)
		if !ok {
			return &budgeterror.MissingForeignKeyError{Owner: owner.Key, Relation: link.relation, ForeignKey: link.foreign,
				Reason: fmt.Sprintf("%s has no relation %q", owner.Kind, link.relation)}
		}

		id, found, err := r.findPersisted(ctx, target, link.foreign)
		if err != nil {
			return err
		}
		if found {
			setPersisted(owner, link.relation, id)
			r.logger.Debug("Relation resolved from storage",
				logging.F(logging.FieldImportKey, owner.Key),
				logging.F(logging.FieldRelation, link.relation))
			continue
		}

		if staged, ok := r.byKey[link.foreign]; ok && staged.Kind == target {
			setStaged(owner, link.relation, staged)
			continue
		}

		return r.missing(link, target)
	}
	return nil
}

func (r *Records) findPersisted(ctx context.Context, kind models.Kind, key string) (int64, bool, error) {
	if r.lookup == nil {
		return 0, false, nil
	}
	rec, err := r.lookup.FindByImportKey(ctx, kind, key)
	if errors.Is(err, budgeterror.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rec.Ident().ID, true, nil
}

func (r *Records) missing(link deferredLink, target models.Kind) error {
	e := &budgeterror.MissingForeignKeyError{Owner: link.owner.Key, Relation: link.relation, ForeignKey: link.foreign}
	if staged, ok := r.byKey[link.foreign]; ok {
		e.Reason = fmt.Sprintf("staged row '%s' is a %s, not a %s", link.foreign, staged.Kind, target)
		return e
	}
	var candidates []string
	for _, st := range r.order {
		if st.Kind == target {
			candidates = append(candidates, st.Key)
		}
	}
	if hint := didYouMean(link.foreign, candidates); hint != "" {
		e.Reason = "not stored or staged" + hint
	}
	return e
}

func setPersisted(owner *Staged, relation string, id int64) {
	if owner.persisted == nil {
		owner.persisted = make(map[string]int64)
	}
	delete(owner.staged, relation)
	owner.persisted[relation] = id
}

func setStaged(owner *Staged, relation string, target *Staged) {
	if owner.staged == nil {
		owner.staged = make(map[string]*Staged)
	}
	delete(owner.persisted, relation)
	owner.staged[relation] = target
}
