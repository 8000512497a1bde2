package importer

import (
	"context"
	"io"

	"jjcook/budgetdb/internal/models"
)

// LookupInterface finds stored records by import key.
type LookupInterface interface {
	FindByImportKey(ctx context.Context, kind models.Kind, key string) (models.Record, error)
}

// StoreInterface is the persistence the importer resolves against and saves
// into. *store.Store satisfies it.
type StoreInterface interface {
	LookupInterface
	Insert(ctx context.Context, rec models.Record) error
}

// OpenerInterface opens an import location. *source.Opener satisfies it.
type OpenerInterface interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}
