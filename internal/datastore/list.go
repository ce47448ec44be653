package datastore

import (
	"context"
	"fmt"
	"sort"
)

// ImportStatus aggregates the localizer ("fetcher") and importer job states
// for one resource into a single listing entry. Purely a projection of the
// job store; it has no lifecycle of its own.
type ImportStatus struct {
	Identifier      string `json:"identifier"`
	Version         string `json:"version"`
	FileName        string `json:"file_name,omitempty"`
	FetcherStatus   Status `json:"fetcher_status"`
	FetcherPercent  int    `json:"fetcher_percent"`
	ImporterStatus  Status `json:"importer_status"`
	ImporterPercent int    `json:"importer_percent"`
}

// listJobs merges job records from both producer namespaces, keyed by
// identifier+version.
func listJobs(ctx context.Context, jobs JobStore) ([]ImportStatus, error) {
	records, err := jobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	byRef := make(map[string]*ImportStatus)
	for _, rec := range records {
		entry, ok := byRef[rec.Ref]
		if !ok {
			identifier, version, err := ParseCollection(rec.Ref)
			if err != nil {
				// Foreign record in the store; not one of ours.
				continue
			}
			entry = &ImportStatus{
				Identifier:     identifier,
				Version:        version,
				FetcherStatus:  StatusWaiting,
				ImporterStatus: StatusWaiting,
			}
			byRef[rec.Ref] = entry
		}

		switch rec.Label {
		case LabelLocalizer:
			entry.FetcherStatus = rec.Status
			entry.FetcherPercent = rec.Percent
			if rec.File != "" {
				entry.FileName = rec.File
			}
		case LabelImporter:
			entry.ImporterStatus = rec.Status
			entry.ImporterPercent = rec.Percent
		}
	}

	refs := make([]string, 0, len(byRef))
	for ref := range byRef {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	listing := make([]ImportStatus, 0, len(refs))
	for _, ref := range refs {
		listing = append(listing, *byRef[ref])
	}
	return listing, nil
}
