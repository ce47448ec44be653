// Package localizer resolves (identifier, version) pairs to locally cached
// resource files. Remote sources are fetched over HTTP with retries; local
// paths are copied. Fetch outcomes are persisted as job records.
package localizer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/civicdata/datastore/internal/datastore"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	sourceFile = "source.url"
	dataDir    = "data"
)

// FileLocalizer is the concrete datastore.Localizer backed by a cache
// directory laid out as <cache>/<identifier>/v<version>/.
type FileLocalizer struct {
	cacheDir string
	jobs     datastore.JobStore
	client   *retryablehttp.Client
}

// New creates a FileLocalizer rooted at cacheDir.
func New(cacheDir string, jobs datastore.JobStore, httpTimeout time.Duration, retryMax int) *FileLocalizer {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = httpTimeout
	client.RetryMax = retryMax
	client.Logger = nil // fetch progress is reported through slog below

	return &FileLocalizer{
		cacheDir: cacheDir,
		jobs:     jobs,
		client:   client,
	}
}

func (l *FileLocalizer) resourceDir(identifier, version string) string {
	return filepath.Join(l.cacheDir, identifier, "v"+version)
}

// Register records the source location for a resource so a later Localize
// (possibly in another process, for deferred imports) knows what to fetch.
func (l *FileLocalizer) Register(ctx context.Context, identifier, version, source string) error {
	if identifier == "" {
		return fmt.Errorf("identifier is required")
	}
	if source == "" {
		return fmt.Errorf("source is required")
	}

	dir := l.resourceDir(identifier, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create resource dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, sourceFile), []byte(source), 0o644); err != nil {
		return fmt.Errorf("write source: %w", err)
	}
	return nil
}

// Get returns the cached resource, or nil when it has not been localized.
// It never triggers a fetch.
func (l *FileLocalizer) Get(ctx context.Context, identifier, version string) (*datastore.Resource, error) {
	dir := filepath.Join(l.resourceDir(identifier, version), dataDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		localPath := filepath.Join(dir, entry.Name())
		return &datastore.Resource{
			Identifier: identifier,
			Version:    version,
			LocalPath:  localPath,
			MimeType:   mimeTypeFor(entry.Name()),
		}, nil
	}
	return nil, nil
}

// Localize fetches the registered source into the cache. Blocking; the
// returned Result mirrors the job record written along the way.
func (l *FileLocalizer) Localize(ctx context.Context, identifier, version string) datastore.Result {
	ref := datastore.CollectionKey(identifier, version)
	logger := slog.With("identifier", identifier, "version", version)

	sourceBytes, err := os.ReadFile(filepath.Join(l.resourceDir(identifier, version), sourceFile))
	if err != nil {
		return l.finish(ctx, ref, "", datastore.Result{
			Status:  datastore.StatusError,
			Message: fmt.Sprintf("no source registered for %s", ref),
		})
	}
	source := strings.TrimSpace(string(sourceBytes))

	l.record(ctx, ref, "", datastore.Result{Status: datastore.StatusInProgress, Message: "fetching " + source})

	fileName := fileNameFor(source)
	destDir := filepath.Join(l.resourceDir(identifier, version), dataDir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return l.finish(ctx, ref, "", datastore.Result{
			Status:  datastore.StatusError,
			Message: fmt.Sprintf("create data dir: %v", err),
		})
	}
	dest := filepath.Join(destDir, fileName)

	if err := l.fetch(ctx, source, dest); err != nil {
		logger.Error("localize failed", "source", source, "error", err)
		return l.finish(ctx, ref, fileName, datastore.Result{
			Status:  datastore.StatusError,
			Message: fmt.Sprintf("fetch %s: %v", source, err),
		})
	}

	logger.Info("resource localized", "file", fileName)
	return l.finish(ctx, ref, fileName, datastore.Result{
		Status:  datastore.StatusDone,
		Message: "localized " + fileName,
		Percent: 100,
	})
}

// fetch downloads or copies source into dest via a temp file, so a partial
// fetch never looks like a localized resource.
func (l *FileLocalizer) fetch(ctx context.Context, source, dest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var reader io.ReadCloser
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		req, err := retryablehttp.NewRequestWithContext(ctx, "GET", source, nil)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("build request: %w", err)
		}
		resp, err := l.client.Do(req)
		if err != nil {
			tmp.Close()
			return err
		}
		if resp.StatusCode != 200 {
			resp.Body.Close()
			tmp.Close()
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		reader = resp.Body
	} else {
		f, err := os.Open(source)
		if err != nil {
			tmp.Close()
			return err
		}
		reader = f
	}
	defer reader.Close()

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return os.Rename(tmp.Name(), dest)
}

// Remove deletes the cached resource and its job records.
func (l *FileLocalizer) Remove(ctx context.Context, identifier, version string) error {
	if err := os.RemoveAll(l.resourceDir(identifier, version)); err != nil {
		return fmt.Errorf("remove cache dir: %w", err)
	}
	return l.jobs.Remove(ctx, datastore.CollectionKey(identifier, version))
}

// GetResult returns the last known localization result for a resource.
func (l *FileLocalizer) GetResult(ctx context.Context, identifier, version string) datastore.Result {
	rec, ok, err := l.jobs.Get(ctx, datastore.CollectionKey(identifier, version), datastore.LabelLocalizer)
	if err != nil || !ok {
		return datastore.Result{Status: datastore.StatusWaiting}
	}
	return datastore.Result{Status: rec.Status, Message: rec.Message, Percent: rec.Percent}
}

func (l *FileLocalizer) record(ctx context.Context, ref, file string, res datastore.Result) {
	err := l.jobs.Store(ctx, datastore.JobRecord{
		Ref:     ref,
		Label:   datastore.LabelLocalizer,
		Status:  res.Status,
		Percent: res.Percent,
		Message: res.Message,
		File:    file,
	})
	if err != nil {
		slog.Error("failed to persist localizer job record", "ref", ref, "error", err)
	}
}

func (l *FileLocalizer) finish(ctx context.Context, ref, file string, res datastore.Result) datastore.Result {
	l.record(ctx, ref, file, res)
	return res
}

// fileNameFor derives the cached file name from a source URL or path.
func fileNameFor(source string) string {
	name := path.Base(strings.TrimSuffix(source, "/"))
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		return "data.csv"
	}
	return name
}

func mimeTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tsv":
		return "text/tab-separated-values"
	default:
		return "text/csv"
	}
}
