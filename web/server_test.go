package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	dbpkg "github.com/harperreed/sheetbridge/db"
	"github.com/harperreed/sheetbridge/models"
	"github.com/harperreed/sheetbridge/sync"
)

type fakeRunner struct {
	report *models.SyncReport
	err    error
	runs   []models.Direction
}

func (r *fakeRunner) Run(ctx context.Context, direction models.Direction) (*models.SyncReport, error) {
	r.runs = append(r.runs, direction)
	return r.report, r.err
}

type fakeSheetReader struct {
	records []models.Record
	err     error
}

func (r *fakeSheetReader) Read(ctx context.Context) ([]models.Record, error) {
	return r.records, r.err
}

func setupTestDB(t *testing.T) *sql.DB {
	database, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test db: %v", err)
	}
	if err := dbpkg.InitSchema(database); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func newTestServer(t *testing.T, runner *fakeRunner, reader *fakeSheetReader) *Server {
	return NewServer(runner, reader, setupTestDB(t), "http://localhost:8000/oauth/callback")
}

func TestHandleSyncPush(t *testing.T) {
	report := models.NewSyncReport("pass-1", models.DirectionSheetToCrm)
	report.Created = 2
	runner := &fakeRunner{report: report}
	server := newTestServer(t, runner, &fakeSheetReader{})

	req := httptest.NewRequest(http.MethodPost, "/sync/push", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(runner.runs) != 1 || runner.runs[0] != models.DirectionSheetToCrm {
		t.Errorf("expected one sheet_to_crm run, got %v", runner.runs)
	}

	var got models.SyncReport
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if got.Created != 2 {
		t.Errorf("expected created=2 in response, got %d", got.Created)
	}
}

func TestHandleSyncPullDirection(t *testing.T) {
	runner := &fakeRunner{report: models.NewSyncReport("pass-1", models.DirectionCrmToSheet)}
	server := newTestServer(t, runner, &fakeSheetReader{})

	req := httptest.NewRequest(http.MethodPost, "/sync/pull", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(runner.runs) != 1 || runner.runs[0] != models.DirectionCrmToSheet {
		t.Errorf("expected one crm_to_sheet run, got %v", runner.runs)
	}
}

func TestHandleSyncPassInProgress(t *testing.T) {
	runner := &fakeRunner{err: sync.ErrPassInProgress}
	server := newTestServer(t, runner, &fakeSheetReader{})

	req := httptest.NewRequest(http.MethodPost, "/sync/push", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for in-progress pass, got %d", rec.Code)
	}
}

func TestHandleSyncAbortedPass(t *testing.T) {
	report := models.NewSyncReport("pass-1", models.DirectionSheetToCrm)
	runner := &fakeRunner{report: report, err: errors.New("failed to read crm: boom")}
	server := newTestServer(t, runner, &fakeSheetReader{})

	req := httptest.NewRequest(http.MethodPost, "/sync/push", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for aborted pass, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body["error"] == nil || body["error"] == "" {
		t.Error("expected error in response body")
	}
	if body["report"] == nil {
		t.Error("expected partial report in response body")
	}
}

func TestHandleSheetsRead(t *testing.T) {
	records := make([]models.Record, 15)
	for i := range records {
		records[i] = models.Record{Name: "Row", RowID: "0"}
	}
	server := newTestServer(t, &fakeRunner{}, &fakeSheetReader{records: records})

	req := httptest.NewRequest(http.MethodGet, "/sheets/read", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		RowsPreview []models.Record `json:"rows_preview"`
		Count       int             `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body.Count != 15 {
		t.Errorf("expected count 15, got %d", body.Count)
	}
	if len(body.RowsPreview) != 10 {
		t.Errorf("expected preview capped at 10, got %d", len(body.RowsPreview))
	}
}

func TestHandleRuns(t *testing.T) {
	server := newTestServer(t, &fakeRunner{}, &fakeSheetReader{})

	report := models.NewSyncReport("pass-1", models.DirectionSheetToCrm)
	if err := dbpkg.RecordRun(server.database, report); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Runs []dbpkg.RunEntry `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(body.Runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(body.Runs))
	}
}

func TestHandleRootStatus(t *testing.T) {
	server := newTestServer(t, &fakeRunner{}, &fakeSheetReader{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 at root, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestOAuthCallbackRejectsBadState(t *testing.T) {
	server := newTestServer(t, &fakeRunner{}, &fakeSheetReader{})

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback?state=wrong&code=abc", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for state mismatch, got %d", rec.Code)
	}
}
