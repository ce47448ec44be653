package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/civicdata/datastore/internal/datastore"
)

// Importer is the slice of the orchestrator the worker needs.
type Importer interface {
	Import(ctx context.Context, identifier string, deferred bool, version string) (map[string]datastore.Result, error)
}

// Claimer is the queue surface the worker consumes.
type Claimer interface {
	Claim(ctx context.Context) (*Item, error)
	Delete(ctx context.Context, id int64) error
	Release(ctx context.Context, id int64) error
}

// Worker drains the import queue: each claimed item runs through the same
// immediate-mode resolution+import path a synchronous caller would use.
//
// ERROR-status results are data and complete the item; only infrastructure
// errors release it for retry by another worker.
type Worker struct {
	queue    Claimer
	importer Importer
	interval time.Duration
	logger   *slog.Logger
}

// NewWorker creates a worker polling at the given interval.
func NewWorker(q Claimer, importer Importer, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Worker{
		queue:    q,
		importer: importer,
		interval: interval,
		logger:   slog.With("component", "queue-worker"),
	}
}

// Run processes items until the context is cancelled. The queue is drained
// before the worker goes back to sleep.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("worker started", "interval", w.interval)
	for {
		for {
			processed, err := w.ProcessOne(ctx)
			if err != nil {
				w.logger.Error("claim failed", "error", err)
				break
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOne claims and runs a single item. The boolean reports whether an
// item was available.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	item, err := w.queue.Claim(ctx)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}

	logger := w.logger.With("item_id", item.ID,
		"identifier", item.Payload.Identifier, "version", item.Payload.Version)

	results, err := w.importer.Import(ctx, item.Payload.Identifier, false, item.Payload.Version)
	if err != nil {
		logger.Error("import failed, releasing item", "error", err)
		if releaseErr := w.queue.Release(ctx, item.ID); releaseErr != nil {
			logger.Error("release failed", "error", releaseErr)
		}
		return true, nil
	}

	if err := w.queue.Delete(ctx, item.ID); err != nil {
		logger.Error("delete failed", "error", err)
		return true, nil
	}
	logger.Info("item processed", "importer_status", results[datastore.LabelImporter].Status)
	return true, nil
}
