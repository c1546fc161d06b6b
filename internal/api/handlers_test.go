package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"stempack/internal/pack"
	"stempack/internal/run"
)

func newFixtureManager(t *testing.T, maxRuns int) *run.Manager {
	t.Helper()
	root := t.TempDir()
	markers := filepath.Join(root, "markers")
	data := filepath.Join(root, "data")
	for _, dir := range []string{markers, data} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	files := map[string]string{
		filepath.Join(markers, "alpha.yml"): "",
		filepath.Join(markers, "beta.yml"):  "",
		filepath.Join(data, "alpha_1.csv"):  "a1",
		filepath.Join(data, "beta_1.csv"):   "b1",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return run.NewManager(run.Options{
		StateDir: filepath.Join(root, "state"),
		Base: pack.Options{
			DataDir:    data,
			MarkerDir:  markers,
			Extensions: []string{".csv"},
			Overwrite:  true,
		},
		MaxConcurrentRuns: maxRuns,
	})
}

func setupRouter(m *run.Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	testRouter := gin.New()
	testRouter.Use(RequestLogger(zerolog.Nop()))
	apiHandler := NewAPI(m)
	apiHandler.RegisterRoutes(testRouter)
	apiHandler.RegisterUIRoutes(testRouter)
	return testRouter
}

func serve(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func startRun(t *testing.T, router *gin.Engine, body string) string {
	t.Helper()
	w := serve(router, http.MethodPost, "/api/v1/runs", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, w.Code, w.Body.String())
	}
	var resp startRunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.RunID == "" || resp.Status != run.StatusCreated {
		t.Fatalf("unexpected start response: %+v", resp)
	}
	return resp.RunID
}

func waitDone(t *testing.T, m *run.Manager, id string) run.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := m.Get(id); ok && (got.Status == run.StatusDone || got.Status == run.StatusFailed) {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for run %s", id)
	return run.Run{}
}

func TestStartRunAndDownload(t *testing.T) {
	m := newFixtureManager(t, 1)
	router := setupRouter(m)

	id := startRun(t, router, "")
	waitDone(t, m, id)

	w := serve(router, http.MethodGet, "/api/v1/runs/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var got runResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to unmarshal run: %v", err)
	}
	if got.Status != run.StatusDone || got.Report == nil || got.Report.Succeeded != 2 {
		t.Fatalf("unexpected run: %+v", got)
	}
	link, ok := got.Archives["alpha"]
	if !ok {
		t.Fatalf("expected archive link for alpha, got %v", got.Archives)
	}

	w = serve(router, http.MethodGet, link, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected archive download, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "alpha.zip") {
		t.Fatalf("unexpected disposition %q", w.Header().Get("Content-Disposition"))
	}
	if !strings.HasPrefix(w.Body.String(), "PK") {
		t.Fatalf("body is not a zip archive")
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}

	w = serve(router, http.MethodGet, "/api/v1/runs/"+id+"/archives/gamma", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown stem, got %d", w.Code)
	}
}

func TestStartRunRejectsBadRequests(t *testing.T) {
	router := setupRouter(newFixtureManager(t, 1))

	if w := serve(router, http.MethodPost, "/api/v1/runs", `{"layout":"tree"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid layout, got %d", w.Code)
	}
	if w := serve(router, http.MethodPost, "/api/v1/runs", `{"extensions":`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", w.Code)
	}
	w := serve(router, http.MethodGet, "/api/v1/runs", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("rejected runs must not be listed, got %d %s", w.Code, w.Body.String())
	}
}

func TestBusyAndUnfinishedRun(t *testing.T) {
	m := newFixtureManager(t, 1)
	blocker := make(chan struct{})
	m.UsePackFunc(func(ctx context.Context, opts pack.Options) (*pack.RunReport, error) {
		<-blocker
		return &pack.RunReport{RunID: opts.RunID}, nil
	})
	router := setupRouter(m)

	id := startRun(t, router, `{"extensions":["csv"]}`)
	if w := serve(router, http.MethodPost, "/api/v1/runs", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while busy, got %d", w.Code)
	}
	if w := serve(router, http.MethodGet, "/api/v1/runs/"+id+"/archives/alpha", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for unfinished run, got %d", w.Code)
	}
	close(blocker)
	if !m.WaitAll(context.Background()) {
		t.Fatalf("expected run to finish")
	}
}

func TestGetUnknownRun(t *testing.T) {
	router := setupRouter(newFixtureManager(t, 1))
	if w := serve(router, http.MethodGet, "/api/v1/runs/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := serve(router, http.MethodGet, "/api/v1/runs/nope/archives/alpha", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestUIPages(t *testing.T) {
	m := newFixtureManager(t, 1)
	router := setupRouter(m)

	form := url.Values{"extensions": {".csv"}, "layout": {"nested"}}
	req := httptest.NewRequest(http.MethodPost, "/ui/runs", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d: %s", w.Code, w.Body.String())
	}
	location := w.Header().Get("Location")
	id := strings.TrimPrefix(location, "/ui/runs/")
	waitDone(t, m, id)

	w = serve(router, http.MethodGet, location, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "alpha") {
		t.Fatalf("run page missing results: %d", w.Code)
	}
	w = serve(router, http.MethodGet, "/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), id) {
		t.Fatalf("home page missing run %s", id)
	}
	if w := serve(router, http.MethodGet, "/ui/runs/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 page, got %d", w.Code)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" .csv, json ,,")
	if len(got) != 2 || got[0] != ".csv" || got[1] != "json" {
		t.Fatalf("unexpected split: %v", got)
	}
	if splitList("  ") != nil {
		t.Fatalf("expected nil for blank input")
	}
}
