package importer

import (
	"context"
	"fmt"

	"github.com/civicdata/datastore/internal/datastore"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Factory selects an ImportService implementation for a resource based on
// its mimetype.
type Factory struct {
	pool      *pgxpool.Pool
	jobs      datastore.JobStore
	batchSize int
}

// NewFactory creates an import factory. batchSize <= 0 selects the default.
func NewFactory(pool *pgxpool.Pool, jobs datastore.JobStore, batchSize int) *Factory {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Factory{pool: pool, jobs: jobs, batchSize: batchSize}
}

// Instance returns an ImportService scoped to the given resource.
func (f *Factory) Instance(ctx context.Context, r datastore.Resource) (datastore.ImportService, error) {
	var comma rune
	switch r.MimeType {
	case "", "text/csv":
		comma = ','
	case "text/tab-separated-values":
		comma = '\t'
	default:
		return nil, fmt.Errorf("no import service for mimetype %q", r.MimeType)
	}

	return &CSVImporter{
		pool:      f.pool,
		jobs:      f.jobs,
		resource:  r,
		comma:     comma,
		batchSize: f.batchSize,
	}, nil
}
