package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/civicdata/datastore/internal/datastore"
)

type fakeClaimer struct {
	items    []*Item
	deleted  []int64
	released []int64
	claimErr error
}

func (f *fakeClaimer) Claim(ctx context.Context) (*Item, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.items) == 0 {
		return nil, nil
	}
	item := f.items[0]
	f.items = f.items[1:]
	return item, nil
}

func (f *fakeClaimer) Delete(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeClaimer) Release(ctx context.Context, id int64) error {
	f.released = append(f.released, id)
	return nil
}

type fakeImporter struct {
	calls []datastore.ImportItem
	fn    func(identifier, version string) (map[string]datastore.Result, error)
}

func (f *fakeImporter) Import(ctx context.Context, identifier string, deferred bool, version string) (map[string]datastore.Result, error) {
	if deferred {
		return nil, fmt.Errorf("worker must use the immediate path")
	}
	f.calls = append(f.calls, datastore.ImportItem{Identifier: identifier, Version: version})
	if f.fn != nil {
		return f.fn(identifier, version)
	}
	return map[string]datastore.Result{
		datastore.LabelImporter: {Status: datastore.StatusDone},
	}, nil
}

func TestProcessOneRunsImmediateImportAndDeletes(t *testing.T) {
	claimer := &fakeClaimer{items: []*Item{
		{ID: 7, Payload: datastore.ImportItem{Identifier: "abc-123", Version: "2"}},
	}}
	importer := &fakeImporter{}
	w := NewWorker(claimer, importer, time.Second)

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}
	if !processed {
		t.Fatal("ProcessOne() = false, want item processed")
	}
	if len(importer.calls) != 1 || importer.calls[0].Identifier != "abc-123" || importer.calls[0].Version != "2" {
		t.Errorf("import calls = %v, want one immediate import of abc-123 v2", importer.calls)
	}
	if len(claimer.deleted) != 1 || claimer.deleted[0] != 7 {
		t.Errorf("deleted = %v, want [7]", claimer.deleted)
	}
	if len(claimer.released) != 0 {
		t.Errorf("released = %v, want none", claimer.released)
	}
}

func TestProcessOneEmptyQueue(t *testing.T) {
	w := NewWorker(&fakeClaimer{}, &fakeImporter{}, time.Second)

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}
	if processed {
		t.Error("ProcessOne() = true on empty queue")
	}
}

func TestProcessOneErrorStatusStillCompletesItem(t *testing.T) {
	claimer := &fakeClaimer{items: []*Item{
		{ID: 3, Payload: datastore.ImportItem{Identifier: "abc-123"}},
	}}
	importer := &fakeImporter{fn: func(identifier, version string) (map[string]datastore.Result, error) {
		// A failed localization is a value, not an error; the item is done.
		return map[string]datastore.Result{
			datastore.LabelLocalizer: {Status: datastore.StatusError, Message: "404"},
		}, nil
	}}
	w := NewWorker(claimer, importer, time.Second)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}
	if len(claimer.deleted) != 1 {
		t.Errorf("deleted = %v, want the item completed", claimer.deleted)
	}
	if len(claimer.released) != 0 {
		t.Errorf("released = %v, want none", claimer.released)
	}
}

func TestProcessOneInfraErrorReleasesItem(t *testing.T) {
	claimer := &fakeClaimer{items: []*Item{
		{ID: 9, Payload: datastore.ImportItem{Identifier: "abc-123"}},
	}}
	importer := &fakeImporter{fn: func(identifier, version string) (map[string]datastore.Result, error) {
		return nil, fmt.Errorf("connection refused")
	}}
	w := NewWorker(claimer, importer, time.Second)

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne() error = %v", err)
	}
	if len(claimer.released) != 1 || claimer.released[0] != 9 {
		t.Errorf("released = %v, want [9]", claimer.released)
	}
	if len(claimer.deleted) != 0 {
		t.Errorf("deleted = %v, want none", claimer.deleted)
	}
}
