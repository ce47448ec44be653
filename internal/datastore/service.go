package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/civicdata/datastore/internal/apperrors"
)

// MetricsRecorder is an optional interface for recording orchestration
// metrics. A nil recorder disables instrumentation.
type MetricsRecorder interface {
	RecordImportQueued(ctx context.Context)
	RecordImport(ctx context.Context, status Status, durationSeconds float64)
	RecordQuery(ctx context.Context, durationSeconds float64)
}

// Service coordinates the localizer, import factory, queue and job store.
//
// The Service is stateless: resource files and job records are owned by the
// collaborators, and the per-resource state machine (unknown -> localizing ->
// localized -> importing -> imported, with error branches) is reconstructed
// on every call from their job records. Concurrent immediate-mode imports of
// the same resource are not mutually excluded here; at-most-once semantics
// are the localizer's and queue worker's responsibility.
type Service struct {
	localizer Localizer
	factory   ImportFactory
	queue     Queue
	jobs      JobStore
	metrics   MetricsRecorder
}

// NewService creates a new orchestration service.
func NewService(localizer Localizer, factory ImportFactory, queue Queue, jobs JobStore, metrics MetricsRecorder) *Service {
	return &Service{
		localizer: localizer,
		factory:   factory,
		queue:     queue,
		jobs:      jobs,
		metrics:   metrics,
	}
}

// Import localizes and imports a resource.
//
// In deferred mode the work item is enqueued and a single acknowledgement is
// returned under the "message" key; the actual import happens later in a
// queue worker. In immediate mode the call blocks through localization and
// import and returns one Result per collaborator, keyed by its label. When
// the resource cannot be resolved, the partial resolution map is returned
// as-is and no import is attempted.
func (s *Service) Import(ctx context.Context, identifier string, deferred bool, version string) (map[string]Result, error) {
	logger := slog.With("identifier", identifier, "version", version)

	if deferred {
		id, err := s.queue.CreateItem(ctx, ImportItem{Identifier: identifier, Version: version})
		if err != nil {
			return nil, apperrors.Unavailable("queue.createItem",
				fmt.Sprintf("failed to enqueue import for resource %s version %q", identifier, version), err)
		}
		if s.metrics != nil {
			s.metrics.RecordImportQueued(ctx)
		}
		logger.Info("import queued", "item_id", id)
		return map[string]Result{
			MessageKey: {
				Status:  StatusWaiting,
				Message: fmt.Sprintf("Resource %s version %q has been queued for import", identifier, version),
			},
		}, nil
	}

	start := time.Now()
	resource, results := s.resolve(ctx, identifier, version)
	if resource == nil {
		logger.Warn("resource not resolved, import skipped",
			"localizer_status", results[LabelLocalizer].Status)
		return results, nil
	}

	svc, err := s.factory.Instance(ctx, *resource)
	if err != nil {
		return results, apperrors.Internal("importer.instance", err)
	}

	if err := svc.Import(ctx); err != nil {
		// The importer records its own failure; it is surfaced as an
		// ERROR-status Result below, not as a call error.
		logger.Error("import failed", "error", err)
	}
	results[LabelImporter] = svc.Result(ctx)

	if s.metrics != nil {
		s.metrics.RecordImport(ctx, results[LabelImporter].Status, time.Since(start).Seconds())
	}
	logger.Info("import finished", "status", results[LabelImporter].Status)
	return results, nil
}

// resolve returns the concrete resource for identifier+version along with
// the result map accumulated while resolving it.
//
// Already-localized resources short-circuit with the localizer's last known
// result, so repeated calls after completion never re-fetch. Otherwise the
// localizer is triggered now (blocking) and the resource is re-queried only
// when localization finished with DONE.
func (s *Service) resolve(ctx context.Context, identifier, version string) (*Resource, map[string]Result) {
	results := make(map[string]Result)

	resource, err := s.localizer.Get(ctx, identifier, version)
	if err == nil && resource != nil {
		results[LabelLocalizer] = s.localizer.GetResult(ctx, identifier, version)
		return resource, results
	}

	localizeResult := s.localizer.Localize(ctx, identifier, version)
	results[LabelLocalizer] = localizeResult
	if localizeResult.Status != StatusDone {
		return nil, results
	}

	resource, err = s.localizer.Get(ctx, identifier, version)
	if err != nil || resource == nil {
		return nil, results
	}
	return resource, results
}

// Drop tears down a resource: storage first (skipped when none exists, the
// storage lookup needs the localized file), then the localized file itself.
func (s *Service) Drop(ctx context.Context, identifier, version string) error {
	storage, err := s.GetStorage(ctx, identifier, version)
	switch {
	case err == nil:
		if err := storage.Destroy(ctx); err != nil {
			slog.Error("storage destroy failed, removing localized file anyway",
				"identifier", identifier, "version", version, "error", err)
		}
	case errors.Is(err, apperrors.ErrNotFound):
		// Nothing imported; nothing to destroy.
	default:
		return err
	}

	return s.localizer.Remove(ctx, identifier, version)
}

// GetStorage resolves the storage handle for an already-localized resource.
// It never triggers localization; a resource the localizer does not know
// about yields a NotFound error.
func (s *Service) GetStorage(ctx context.Context, identifier, version string) (Storage, error) {
	resource, err := s.localizer.Get(ctx, identifier, version)
	if err != nil {
		return nil, apperrors.Internal("localizer.get", err)
	}
	if resource == nil {
		return nil, apperrors.NotFound(CollectionKey(identifier, version))
	}

	svc, err := s.factory.Instance(ctx, *resource)
	if err != nil {
		return nil, apperrors.Internal("importer.instance", err)
	}
	return svc.Storage(), nil
}

// List returns the merged job listing across localizer and importer
// namespaces. Read-only; recomputed on each call.
func (s *Service) List(ctx context.Context) ([]ImportStatus, error) {
	return listJobs(ctx, s.jobs)
}
