package datastore

import (
	"context"
	"testing"
)

func TestListMergesFetcherAndImporterNamespaces(t *testing.T) {
	jobs := &fakeJobStore{records: []JobRecord{
		{Ref: "abc-123__2", Label: LabelLocalizer, Status: StatusDone, Percent: 100, File: "data.csv"},
		{Ref: "abc-123__2", Label: LabelImporter, Status: StatusInProgress, Percent: 40},
		{Ref: "def-456__", Label: LabelLocalizer, Status: StatusError, Message: "404"},
	}}
	svc := NewService(newFakeLocalizer(), &fakeFactory{}, &fakeQueue{}, jobs, nil)

	listing, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listing) != 2 {
		t.Fatalf("got %d entries, want 2: %v", len(listing), listing)
	}

	first := listing[0]
	if first.Identifier != "abc-123" || first.Version != "2" {
		t.Errorf("entry key = (%q, %q), want (abc-123, 2)", first.Identifier, first.Version)
	}
	if first.FetcherStatus != StatusDone || first.FetcherPercent != 100 {
		t.Errorf("fetcher state = (%q, %d), want (done, 100)", first.FetcherStatus, first.FetcherPercent)
	}
	if first.ImporterStatus != StatusInProgress || first.ImporterPercent != 40 {
		t.Errorf("importer state = (%q, %d), want (in_progress, 40)", first.ImporterStatus, first.ImporterPercent)
	}
	if first.FileName != "data.csv" {
		t.Errorf("file name = %q, want data.csv", first.FileName)
	}

	second := listing[1]
	if second.Identifier != "def-456" || second.Version != "" {
		t.Errorf("entry key = (%q, %q), want (def-456, )", second.Identifier, second.Version)
	}
	if second.FetcherStatus != StatusError {
		t.Errorf("fetcher status = %q, want error", second.FetcherStatus)
	}
	if second.ImporterStatus != StatusWaiting {
		t.Errorf("importer status = %q for never-imported resource, want waiting", second.ImporterStatus)
	}
}

func TestListSkipsForeignRecords(t *testing.T) {
	jobs := &fakeJobStore{records: []JobRecord{
		{Ref: "not-a-collection-key", Label: LabelLocalizer, Status: StatusDone},
	}}
	svc := NewService(newFakeLocalizer(), &fakeFactory{}, &fakeQueue{}, jobs, nil)

	listing, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listing) != 0 {
		t.Errorf("listing = %v, want empty", listing)
	}
}
