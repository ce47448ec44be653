// Package datastore implements the import orchestration and query execution
// engine: it coordinates a resource localizer, an import service factory, a
// work queue and a job store to move tabular resources into queryable
// storage, and it translates abstract queries against the imported schema.
package datastore

import "context"

// Row is a single result row as column name -> value pairs.
type Row map[string]any

// Field describes one storage column.
type Field struct {
	Name        string // raw storage column name
	Type        string
	Description string // human label, empty when none was captured
}

// Schema maps storage column names to field metadata.
type Schema struct {
	Fields []Field
}

// Description returns the human label for a column, or "" when absent.
func (s Schema) Description(column string) string {
	for _, f := range s.Fields {
		if f.Name == column {
			return f.Description
		}
	}
	return ""
}

// Localizer resolves an (identifier, version) pair to a concrete, locally
// cached Resource. Get answers only from cache; Localize performs the
// (potentially slow, blocking) fetch.
type Localizer interface {
	Get(ctx context.Context, identifier, version string) (*Resource, error)
	Localize(ctx context.Context, identifier, version string) Result
	Remove(ctx context.Context, identifier, version string) error
	GetResult(ctx context.Context, identifier, version string) Result
}

// ImportService executes the actual import for one resource. Implementations
// vary by resource type and are selected by an ImportFactory.
type ImportService interface {
	Import(ctx context.Context) error
	Result(ctx context.Context) Result
	Storage() Storage
}

// ImportFactory returns an ImportService scoped to a concrete resource.
type ImportFactory interface {
	Instance(ctx context.Context, r Resource) (ImportService, error)
}

// Storage is a handle on one imported resource's rows.
type Storage interface {
	Query(ctx context.Context, q Query) ([]Row, error)
	Schema(ctx context.Context) (Schema, error)
	Destroy(ctx context.Context) error
}

// Queue accepts work items for deferred execution and returns their id.
type Queue interface {
	CreateItem(ctx context.Context, payload ImportItem) (int64, error)
}

// ImportItem is the payload enqueued for a deferred import.
type ImportItem struct {
	Identifier string `json:"identifier"`
	Version    string `json:"version"`
}

// JobRecord is one job-store entry, keyed by composite resource key and
// producer label.
type JobRecord struct {
	Ref     string // CollectionKey(identifier, version)
	Label   string // LabelLocalizer or LabelImporter
	Status  Status
	Percent int
	Message string
	File    string
}

// JobStore enumerates and persists job records.
type JobStore interface {
	Store(ctx context.Context, rec JobRecord) error
	Get(ctx context.Context, ref, label string) (JobRecord, bool, error)
	List(ctx context.Context) ([]JobRecord, error)
	Remove(ctx context.Context, ref string) error
}
