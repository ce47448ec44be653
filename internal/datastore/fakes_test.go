package datastore

import (
	"context"
	"fmt"
)

// Shared in-memory fakes for the collaborator contracts.

type fakeLocalizer struct {
	resources map[string]*Resource
	results   map[string]Result

	localizeFn    func(identifier, version string) Result
	localizeCalls int
	removed       []string
	calls         *[]string // optional shared call log for ordering checks
}

func newFakeLocalizer() *fakeLocalizer {
	return &fakeLocalizer{
		resources: make(map[string]*Resource),
		results:   make(map[string]Result),
	}
}

func (f *fakeLocalizer) Get(ctx context.Context, identifier, version string) (*Resource, error) {
	return f.resources[CollectionKey(identifier, version)], nil
}

func (f *fakeLocalizer) Localize(ctx context.Context, identifier, version string) Result {
	f.localizeCalls++
	if f.localizeFn != nil {
		return f.localizeFn(identifier, version)
	}
	return Result{Status: StatusError, Message: "no localize behavior configured"}
}

func (f *fakeLocalizer) Remove(ctx context.Context, identifier, version string) error {
	key := CollectionKey(identifier, version)
	f.removed = append(f.removed, key)
	if f.calls != nil {
		*f.calls = append(*f.calls, "remove")
	}
	delete(f.resources, key)
	return nil
}

func (f *fakeLocalizer) GetResult(ctx context.Context, identifier, version string) Result {
	return f.results[CollectionKey(identifier, version)]
}

type fakeStorage struct {
	rows      []Row
	countRows []Row
	schema    Schema
	queries   []Query
	destroyed bool
	calls     *[]string
}

func (f *fakeStorage) Query(ctx context.Context, q Query) ([]Row, error) {
	f.queries = append(f.queries, q)
	if q.Count {
		return f.countRows, nil
	}
	return f.rows, nil
}

func (f *fakeStorage) Schema(ctx context.Context) (Schema, error) {
	return f.schema, nil
}

func (f *fakeStorage) Destroy(ctx context.Context) error {
	f.destroyed = true
	if f.calls != nil {
		*f.calls = append(*f.calls, "destroy")
	}
	return nil
}

type fakeImportService struct {
	result  Result
	storage Storage
	imports int
}

func (f *fakeImportService) Import(ctx context.Context) error {
	f.imports++
	return nil
}

func (f *fakeImportService) Result(ctx context.Context) Result {
	return f.result
}

func (f *fakeImportService) Storage() Storage {
	return f.storage
}

type fakeFactory struct {
	svc   ImportService
	err   error
	calls int
}

func (f *fakeFactory) Instance(ctx context.Context, r Resource) (ImportService, error) {
	f.calls++
	return f.svc, f.err
}

type fakeQueue struct {
	nextID int64
	err    error
	items  []ImportItem
}

func (f *fakeQueue) CreateItem(ctx context.Context, payload ImportItem) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	f.items = append(f.items, payload)
	return f.nextID, nil
}

type fakeJobStore struct {
	records []JobRecord
	listErr error
}

func (f *fakeJobStore) Store(ctx context.Context, rec JobRecord) error {
	for i, existing := range f.records {
		if existing.Ref == rec.Ref && existing.Label == rec.Label {
			f.records[i] = rec
			return nil
		}
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeJobStore) Get(ctx context.Context, ref, label string) (JobRecord, bool, error) {
	for _, rec := range f.records {
		if rec.Ref == ref && rec.Label == label {
			return rec, true, nil
		}
	}
	return JobRecord{}, false, nil
}

func (f *fakeJobStore) List(ctx context.Context) ([]JobRecord, error) {
	return f.records, f.listErr
}

func (f *fakeJobStore) Remove(ctx context.Context, ref string) error {
	kept := f.records[:0]
	for _, rec := range f.records {
		if rec.Ref != ref {
			kept = append(kept, rec)
		}
	}
	f.records = kept
	return nil
}

// errFailedEnqueue is a reusable queue failure for tests.
var errFailedEnqueue = fmt.Errorf("queue table missing")
