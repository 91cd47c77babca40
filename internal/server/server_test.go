package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sharonmee/OpenEye/internal/app"
	"github.com/Sharonmee/OpenEye/internal/scan"
	"github.com/Sharonmee/OpenEye/internal/server"
	"github.com/Sharonmee/OpenEye/internal/testutil"
)

func testAlert(risk, name string) scan.Alert {
	return scan.Alert{Risk: scan.Risk(risk), Name: name}
}

func fastAppConfig() *app.Config {
	cfg := app.DefaultConfig()
	cfg.SpiderPollInterval = 5 * time.Millisecond
	cfg.ActivePollInterval = 5 * time.Millisecond
	cfg.SpiderMaxWait = time.Second
	cfg.ActiveMaxWait = time.Second
	return cfg
}

func newTestServer(t *testing.T, engine *testutil.StubEngine) *server.Server {
	t.Helper()

	cfg := server.Config{
		ListenAddr:  ":0",
		StorageRoot: t.TempDir(),
		AppConfig:   fastAppConfig(),
		Engine:      engine,
		Logger:      &testutil.DummyLogger{},
	}

	s, err := server.NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func doJSON(t *testing.T, s http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

// startScan submits a scan and returns its job id.
func startScan(t *testing.T, s *server.Server, token, target string) string {
	t.Helper()
	rec := doJSON(t, s, "POST", "/scans", token, `{"target_url":"`+target+`"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var view map[string]any
	decodeJSON(t, rec, &view)
	id, _ := view["job_id"].(string)
	if id == "" {
		t.Fatalf("no job_id in response: %v", view)
	}
	return id
}

// waitScanStatus polls the status endpoint until the job reaches want.
func waitScanStatus(t *testing.T, s *server.Server, token, jobID, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := doJSON(t, s, "GET", "/scans/"+jobID, token, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 polling scan, got %d: %s", rec.Code, rec.Body.String())
		}
		var view map[string]any
		decodeJSON(t, rec, &view)
		if view["status"] == want {
			return view
		}
		if time.Now().After(deadline) {
			t.Fatalf("scan %s never reached %s, stuck at %v", jobID, want, view["status"])
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ─── Auth ──────────────────────────────────────────────────────────────

func TestServer_RequiresBearerToken(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testutil.NewStubEngine())

	for _, path := range []string{"/scans", "/scans/some-id", "/scans/some-id/results"} {
		rec := doJSON(t, s, "GET", path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: expected 401, got %d", path, rec.Code)
		}
	}

	rec := doJSON(t, s, "POST", "/scans", "", `{"target_url":"http://example.com"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("POST without token: expected 401, got %d", rec.Code)
	}
}

// ─── CORS ──────────────────────────────────────────────────────────────

func TestServer_CORS_HeaderPresent(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testutil.NewStubEngine())

	rec := doJSON(t, s, "GET", "/scans", "alice", "")

	origin := rec.Header().Get("Access-Control-Allow-Origin")
	if origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
}

func TestServer_OptionsPreflight(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testutil.NewStubEngine())

	rec := doJSON(t, s, "OPTIONS", "/scans", "", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for OPTIONS, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("expected Allow-Methods header on OPTIONS")
	}
}

// ─── Starting scans ────────────────────────────────────────────────────

func TestServer_StartScan(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testutil.NewStubEngine())

	rec := doJSON(t, s, "POST", "/scans", "alice", `{"target_url":"http://example.com"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var view map[string]any
	decodeJSON(t, rec, &view)
	if view["target_url"] != "http://example.com" {
		t.Errorf("unexpected target_url: %v", view["target_url"])
	}
	if view["tool"] != "zap" {
		t.Errorf("expected default tool zap, got %v", view["tool"])
	}
	if view["scope"] != "example.com" {
		t.Errorf("expected reporting scope example.com, got %v", view["scope"])
	}
}

func TestServer_StartScan_InvalidJSON(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testutil.NewStubEngine())

	rec := doJSON(t, s, "POST", "/scans", "alice", `{invalid}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestServer_StartScan_InvalidTarget(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testutil.NewStubEngine())

	cases := []string{
		`{"target_url":""}`,
		`{"target_url":"ftp://example.com"}`,
		`{"target_url":"http://example.com","tool":"nmap"}`,
	}
	for _, body := range cases {
		rec := doJSON(t, s, "POST", "/scans", "alice", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
}

// ─── Status and listing ────────────────────────────────────────────────

func TestServer_ScanLifecycleOverHTTP(t *testing.T) {
	t.Parallel()
	engine := testutil.NewStubEngine()
	s := newTestServer(t, engine)

	id := startScan(t, s, "alice", "http://example.com")
	view := waitScanStatus(t, s, "alice", id, "completed")

	if view["completed_at"] == nil {
		t.Error("completed view must carry completed_at")
	}
	if view["progress_percent"] != float64(100) {
		t.Errorf("expected 100%% progress, got %v", view["progress_percent"])
	}
}

func TestServer_GetScan_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testutil.NewStubEngine())

	rec := doJSON(t, s, "GET", "/scans/nonexistent", "alice", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestServer_ScansAreOwnerScoped(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testutil.NewStubEngine())

	id := startScan(t, s, "alice", "http://example.com")
	waitScanStatus(t, s, "alice", id, "completed")

	rec := doJSON(t, s, "GET", "/scans/"+id, "mallory", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign owner: expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, s, "GET", "/scans", "mallory", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var views []map[string]any
	decodeJSON(t, rec, &views)
	if len(views) != 0 {
		t.Errorf("foreign owner must see no scans, got %d", len(views))
	}

	rec = doJSON(t, s, "GET", "/scans", "alice", "")
	decodeJSON(t, rec, &views)
	if len(views) != 1 {
		t.Errorf("owner must see 1 scan, got %d", len(views))
	}
}

// ─── Results ───────────────────────────────────────────────────────────

func TestServer_Results_ConflictUntilCompleted(t *testing.T) {
	t.Parallel()
	engine := testutil.NewStubEngine()
	engine.SpiderSteps = []int{10} // keeps the scan running
	s := newTestServer(t, engine)

	id := startScan(t, s, "alice", "http://example.com")
	waitScanStatus(t, s, "alice", id, "running")

	rec := doJSON(t, s, "GET", "/scans/"+id+"/results", "alice", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 while running, got %d", rec.Code)
	}

	doJSON(t, s, "DELETE", "/scans/"+id, "alice", "")
	waitScanStatus(t, s, "alice", id, "cancelled")
}

func TestServer_Results_Completed(t *testing.T) {
	t.Parallel()
	engine := testutil.NewStubEngine(
		testAlert("High", "SQL Injection"),
		testAlert("Low", "Server Banner"),
	)
	s := newTestServer(t, engine)

	id := startScan(t, s, "alice", "http://example.com")
	waitScanStatus(t, s, "alice", id, "completed")

	rec := doJSON(t, s, "GET", "/scans/"+id+"/results", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var res struct {
		Alerts  []map[string]any `json:"alerts"`
		Summary map[string]any   `json:"summary"`
	}
	decodeJSON(t, rec, &res)
	if len(res.Alerts) != 2 {
		t.Errorf("expected 2 alerts, got %d", len(res.Alerts))
	}
	if res.Summary["total"] != float64(2) || res.Summary["high"] != float64(1) {
		t.Errorf("unexpected summary: %v", res.Summary)
	}
}

// ─── Cancellation ──────────────────────────────────────────────────────

func TestServer_CancelScan(t *testing.T) {
	t.Parallel()
	engine := testutil.NewStubEngine()
	engine.SpiderSteps = []int{10}
	s := newTestServer(t, engine)

	id := startScan(t, s, "alice", "http://example.com")
	waitScanStatus(t, s, "alice", id, "running")

	rec := doJSON(t, s, "DELETE", "/scans/"+id, "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var ack map[string]any
	decodeJSON(t, rec, &ack)
	if ack["acknowledged"] != true {
		t.Errorf("expected acknowledgement, got %v", ack)
	}

	waitScanStatus(t, s, "alice", id, "cancelled")
}

func TestServer_CancelScan_TerminalConflict(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, testutil.NewStubEngine())

	id := startScan(t, s, "alice", "http://example.com")
	waitScanStatus(t, s, "alice", id, "completed")

	rec := doJSON(t, s, "DELETE", "/scans/"+id, "alice", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 cancelling a completed scan, got %d", rec.Code)
	}
}

// ─── Engine health ─────────────────────────────────────────────────────

func TestServer_EngineHealth(t *testing.T) {
	t.Parallel()

	up := newTestServer(t, testutil.NewStubEngine())
	rec := doJSON(t, up, "GET", "/engine/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var health map[string]any
	decodeJSON(t, rec, &health)
	if health["available"] != true || health["engine"] != "zap" {
		t.Errorf("unexpected health payload: %v", health)
	}

	down := newTestServer(t, &testutil.StubEngine{})
	rec = doJSON(t, down, "GET", "/engine/health", "", "")
	decodeJSON(t, rec, &health)
	if health["available"] != false {
		t.Errorf("expected unavailable engine, got %v", health)
	}
}
