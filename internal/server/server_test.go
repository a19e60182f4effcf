package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
	"github.com/TobiSchelling/accidentwatch/internal/database"
	"github.com/TobiSchelling/accidentwatch/internal/metrics"
	"github.com/TobiSchelling/accidentwatch/internal/runner"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	running bool
	stopped bool
}

func (f *fakeRunner) Start() (string, error) {
	if f.running {
		return "", runner.ErrAlreadyRunning
	}
	f.running = true
	return "run-1", nil
}

func (f *fakeRunner) Stop() error {
	if !f.running {
		return runner.ErrNotRunning
	}
	f.stopped = true
	return nil
}

func (f *fakeRunner) Status() runner.Status {
	return runner.Status{RunID: "run-1", IsRunning: f.running, Progress: 50, CurrentStep: "Running accident data scraping...", Errors: []string{}}
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *database.DB) {
	t.Helper()
	published := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	rec := accident.Record{
		NewsCategory:      accident.CategoryDailyReport,
		LocalID:           "1",
		AccidentsOccurred: 1,
		Frequency:         accident.FrequencyDaily,
		PublishedAt:       &published,
		Division:          "Dhaka",
		District:          "Dhaka",
		Country:           accident.CountryBangladesh,
		AccidentType:      accident.TypeRoad,
		Killed:            2,
		PrimaryVehicle:    "Bus",
		SourceURL:         "https://example.com/a",
		SourceName:        "thedailystar",
	}
	dup := rec
	dup.SourceURL = "https://example.com/b"
	dup.Duplicate = true
	if _, err := db.InsertRecords([]accident.Record{rec, dup}); err != nil {
		t.Fatalf("insert records: %v", err)
	}
	summary := accident.YearlySummary{
		Year:                2024,
		TotalAccidents:      1,
		TotalKilled:         2,
		DailyDeaths:         map[string]int{"2024-03-01": 2},
		MonthlyDeaths:       map[string]int{"2024-03": 2},
		AccidentHotspot:     "Dhaka",
		AccidentsByDistrict: map[string]int{"Dhaka": 1},
		VehiclesInvolved:    map[string]int{"Bus": 1},
	}
	if err := db.UpsertYearlySummary(summary, published); err != nil {
		t.Fatalf("upsert summary: %v", err)
	}
}

func do(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStartStopStatus(t *testing.T) {
	r := &fakeRunner{}
	srv := New(openTestDB(t), r, nil)

	rec := do(t, srv, "POST", "/api/scrape/stop")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("stop while idle: expected 400, got %d", rec.Code)
	}

	rec = do(t, srv, "POST", "/api/scrape/start")
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", rec.Code)
	}
	var started map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode start: %v", err)
	}
	if started["run_id"] != "run-1" {
		t.Errorf("expected run_id run-1, got %q", started["run_id"])
	}

	rec = do(t, srv, "POST", "/api/scrape/start")
	if rec.Code != http.StatusConflict {
		t.Errorf("second start: expected 409, got %d", rec.Code)
	}

	rec = do(t, srv, "GET", "/api/scrape/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	var st runner.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !st.IsRunning || st.Progress != 50 {
		t.Errorf("unexpected status: %+v", st)
	}

	rec = do(t, srv, "POST", "/api/scrape/stop")
	if rec.Code != http.StatusOK || !r.stopped {
		t.Errorf("stop: expected 200 and stop flag, got %d", rec.Code)
	}
}

func TestSummaryRoutes(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	srv := New(db, &fakeRunner{}, nil)

	rec := do(t, srv, "GET", "/api/summary")
	var all []accident.YearlySummary
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode summaries: %v", err)
	}
	if len(all) != 1 || all[0].TotalKilled != 2 {
		t.Errorf("unexpected summaries: %+v", all)
	}

	rec = do(t, srv, "GET", "/api/summary/2024")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	rec = do(t, srv, "GET", "/api/summary/2019")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing year, got %d", rec.Code)
	}
	rec = do(t, srv, "GET", "/api/summary/latest")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad year, got %d", rec.Code)
	}
}

func TestAccidentsRoute(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	srv := New(db, &fakeRunner{}, nil)

	var body struct {
		Total   int               `json:"total"`
		Records []accident.Record `json:"records"`
	}

	rec := do(t, srv, "GET", "/api/accidents")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode accidents: %v", err)
	}
	if body.Total != 1 || len(body.Records) != 1 {
		t.Errorf("expected one unique record, got total=%d len=%d", body.Total, len(body.Records))
	}

	body.Records = nil
	rec = do(t, srv, "GET", "/api/accidents?include_duplicates=true&year=2024")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode accidents: %v", err)
	}
	if body.Total != 2 || len(body.Records) != 2 {
		t.Errorf("expected two records with duplicates, got total=%d len=%d", body.Total, len(body.Records))
	}

	rec = do(t, srv, "GET", "/api/accidents?limit=zero")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestRunsAndStatsRoutes(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	if err := db.InsertRun("r1", time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	srv := New(db, &fakeRunner{}, nil)

	rec := do(t, srv, "GET", "/api/runs")
	var runs []database.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "r1" {
		t.Errorf("unexpected runs: %+v", runs)
	}

	rec = do(t, srv, "GET", "/api/stats")
	var stats database.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalRecords != 2 || stats.DuplicateRecords != 1 || stats.Runs != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestIndexRendersDigest(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	srv := New(db, &fakeRunner{}, nil)

	rec := do(t, srv, "GET", "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<h1>Road Accident Digest</h1>") {
		t.Error("expected digest heading in response")
	}
	if !strings.Contains(body, "<table>") {
		t.Error("expected rendered tables")
	}
}

func TestMetricsRoute(t *testing.T) {
	db := openTestDB(t)

	rec := do(t, New(db, &fakeRunner{}, nil), "GET", "/metrics")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without metrics, got %d", rec.Code)
	}

	m := metrics.New()
	m.RunStarted()
	rec = do(t, New(db, &fakeRunner{}, m), "GET", "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "accidentwatch_run_in_progress 1") {
		t.Error("expected run gauge in scrape")
	}
}
