package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/civicdata/datastore/internal/apperrors"
	"github.com/civicdata/datastore/internal/config"
	"github.com/civicdata/datastore/internal/datastore"
)

type fakeService struct {
	importFn  func(ctx context.Context, identifier string, deferred bool, version string) (map[string]datastore.Result, error)
	dropErr   error
	statuses  []datastore.ImportStatus
	queryFn   func(q datastore.Query) (map[string]any, error)
	dropped   []string
	lastQuery *datastore.Query
}

func (f *fakeService) Import(ctx context.Context, identifier string, deferred bool, version string) (map[string]datastore.Result, error) {
	if f.importFn != nil {
		return f.importFn(ctx, identifier, deferred, version)
	}
	return map[string]datastore.Result{
		datastore.LabelImporter: {Status: datastore.StatusDone},
	}, nil
}

func (f *fakeService) Drop(ctx context.Context, identifier, version string) error {
	if f.dropErr != nil {
		return f.dropErr
	}
	f.dropped = append(f.dropped, identifier+"/"+version)
	return nil
}

func (f *fakeService) List(ctx context.Context) ([]datastore.ImportStatus, error) {
	return f.statuses, nil
}

func (f *fakeService) RunQuery(ctx context.Context, q datastore.Query) (map[string]any, error) {
	f.lastQuery = &q
	if f.queryFn != nil {
		return f.queryFn(q)
	}
	return map[string]any{"results": []datastore.Row{}}, nil
}

type fakeRegistrar struct {
	registered map[string]string
	err        error
}

func (f *fakeRegistrar) Register(ctx context.Context, identifier, version, source string) error {
	if f.err != nil {
		return f.err
	}
	if f.registered == nil {
		f.registered = make(map[string]string)
	}
	f.registered[identifier+"/"+version] = source
	return nil
}

func newTestServer(svc Datastore, reg SourceRegistrar) *Server {
	return NewServer(svc, reg, nil, config.ServerConfig{Port: 8080})
}

func TestHandleImport_DeferredReturnsAccepted(t *testing.T) {
	svc := &fakeService{
		importFn: func(ctx context.Context, identifier string, deferred bool, version string) (map[string]datastore.Result, error) {
			if !deferred {
				t.Error("expected deferred import")
			}
			return map[string]datastore.Result{
				datastore.MessageKey: {Status: datastore.StatusWaiting, Message: "queued"},
			}, nil
		},
	}
	srv := newTestServer(svc, &fakeRegistrar{})

	body := `{"identifier":"abc","version":"2","source":"https://example.com/d.csv","deferred":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/datastore/imports", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	var resp importResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Identifier != "abc" {
		t.Errorf("identifier = %q, want %q", resp.Identifier, "abc")
	}
	if _, ok := resp.Results[datastore.MessageKey]; !ok {
		t.Errorf("results missing %q key: %v", datastore.MessageKey, resp.Results)
	}
}

func TestHandleImport_GeneratesIdentifier(t *testing.T) {
	var got string
	svc := &fakeService{
		importFn: func(ctx context.Context, identifier string, deferred bool, version string) (map[string]datastore.Result, error) {
			got = identifier
			return map[string]datastore.Result{}, nil
		},
	}
	srv := newTestServer(svc, &fakeRegistrar{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datastore/imports", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got == "" {
		t.Error("expected a generated identifier")
	}
	if len(got) != 36 {
		t.Errorf("identifier %q does not look like a UUID", got)
	}
}

func TestHandleImport_RegistersSource(t *testing.T) {
	reg := &fakeRegistrar{}
	srv := newTestServer(&fakeService{}, reg)

	body := `{"identifier":"abc","version":"1","source":"/data/file.csv"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/datastore/imports", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if reg.registered["abc/1"] != "/data/file.csv" {
		t.Errorf("source not registered: %v", reg.registered)
	}
}

func TestHandleImport_InvalidBody(t *testing.T) {
	srv := newTestServer(&fakeService{}, &fakeRegistrar{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datastore/imports", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleDrop_NotFound(t *testing.T) {
	svc := &fakeService{dropErr: apperrors.NotFound("abc__2")}
	srv := newTestServer(svc, &fakeRegistrar{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/datastore/imports/abc?version=2", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "resource abc__2 not found" {
		t.Errorf("error = %q, want the not-found message", resp.Error)
	}
}

func TestHandleDrop_PassesVersion(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(svc, &fakeRegistrar{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/datastore/imports/abc?version=7", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(svc.dropped) != 1 || svc.dropped[0] != "abc/7" {
		t.Errorf("dropped = %v, want [abc/7]", svc.dropped)
	}
}

func TestHandleListImports(t *testing.T) {
	svc := &fakeService{
		statuses: []datastore.ImportStatus{
			{Identifier: "abc", Version: "1", ImporterStatus: datastore.StatusDone},
		},
	}
	srv := newTestServer(svc, &fakeRegistrar{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/datastore/imports", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var statuses []datastore.ImportStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(statuses) != 1 || statuses[0].Identifier != "abc" {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestHandleQuery_ValidationError(t *testing.T) {
	svc := &fakeService{
		queryFn: func(q datastore.Query) (map[string]any, error) {
			return nil, apperrors.Validation("malformed collection key")
		},
	}
	srv := newTestServer(svc, &fakeRegistrar{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datastore/query", strings.NewReader(`{"collection":"nope"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleQuery_ForwardsFlags(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(svc, &fakeRegistrar{})

	body := `{"collection":"abc__2","results":true,"count":true,"show_db_columns":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/datastore/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.lastQuery == nil {
		t.Fatal("query never reached the service")
	}
	if !svc.lastQuery.Results || !svc.lastQuery.Count || !svc.lastQuery.ShowDBColumns {
		t.Errorf("flags not forwarded: %+v", svc.lastQuery)
	}
}

func TestHandleQuery_InternalErrorIsMasked(t *testing.T) {
	svc := &fakeService{
		queryFn: func(q datastore.Query) (map[string]any, error) {
			return nil, apperrors.Internal("storage.query", errors.New("connection refused to 10.0.0.5"))
		},
	}
	srv := newTestServer(svc, &fakeRegistrar{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/datastore/query", strings.NewReader(`{"collection":"abc__2"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Error("internal error detail leaked to client")
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeService{}, &fakeRegistrar{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security header")
	}
}
