package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/cache"
	"github.com/starford/ansuz/internal/complete"
	"github.com/starford/ansuz/internal/extract"
	"github.com/starford/ansuz/internal/guard"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/jobs"
	"github.com/starford/ansuz/internal/runner"
	"github.com/starford/ansuz/internal/score"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/tuner"
)

// newTestService assembles the full stack over a throwaway vault. The
// nonexistent search binary forces the fallback walk.
func newTestService(t *testing.T, files map[string]string) *Service {
	t.Helper()
	_, v := testutil.TestVault(t, files)
	db := testutil.TestDB(t)

	c := cache.New(cache.Config{}, nil)
	g := guard.New(guard.BreakerConfig{}, 0)
	q := jobs.NewQueue(jobs.Config{}, nil)
	r := runner.New(runner.Config{Binary: "rg-missing-for-tests"}, v, nil)
	ex := extract.New(r, c, g, v, extract.Config{NestedTags: true}, nil)
	eng := complete.NewEngine(ex, score.New(true), v.Root(), 0, nil)
	tun := tuner.New(tuner.Config{}, tuner.Sources{Cache: c, Queue: q, Extractor: ex, Engine: eng}, nil)

	// Populate the search index so /search has rows to hit.
	files2, err := v.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, f := range files2 {
		data, err := v.Read(f.Path)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		doc := extract.ParseNote(data)
		err = db.UpsertNote(index.NoteRow{
			Path:    f.Path,
			Title:   doc.Title,
			Aliases: doc.Aliases,
			Tags:    doc.Tags,
			Size:    f.Size,
		}, doc.Body, doc.Links)
		if err != nil {
			t.Fatalf("UpsertNote: %v", err)
		}
	}

	return NewService(eng, ex, db, c, q, g, tun, v.Root())
}

func newTestServer(t *testing.T, files map[string]string, authEnabled bool, token string) *httptest.Server {
	t.Helper()
	svc := newTestService(t, files)
	srv := httptest.NewServer(NewRouter(svc, authEnabled, token, nil))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

var sampleVault = map[string]string{
	"alpha.md": "---\ntitle: Alpha\ntags: [project]\n---\nwork on #project today, see [[Beta]]\n",
	"beta.md":  "# Beta\nread [the docs](docs/setup.md)\n",
}

func TestCompletionsEndpoint(t *testing.T) {
	srv := newTestServer(t, sampleVault, false, "")

	var res complete.Result
	status := getJSON(t, srv.URL+"/completions?"+url.Values{"line": {"status #pro"}}.Encode(), &res)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if res.Context != "tag" || res.Query != "pro" {
		t.Errorf("context/query = %s/%s", res.Context, res.Query)
	}
	if len(res.Items) != 1 || res.Items[0].Label != "#project" {
		t.Errorf("items = %+v", res.Items)
	}
}

func TestCompletionsRejectsBadCol(t *testing.T) {
	srv := newTestServer(t, sampleVault, false, "")
	if status := getJSON(t, srv.URL+"/completions?line=x&col=-1", nil); status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
	if status := getJSON(t, srv.URL+"/completions?line=x&col=abc", nil); status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestTagsEndpoint(t *testing.T) {
	srv := newTestServer(t, sampleVault, false, "")

	var body struct {
		Tags []struct {
			Tag       string `json:"tag"`
			Frequency int    `json:"frequency"`
		} `json:"tags"`
	}
	if status := getJSON(t, srv.URL+"/tags", &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(body.Tags) != 1 || body.Tags[0].Tag != "project" || body.Tags[0].Frequency != 2 {
		t.Errorf("tags = %+v", body.Tags)
	}
}

func TestNotesEndpoint(t *testing.T) {
	srv := newTestServer(t, sampleVault, false, "")

	var body struct {
		Notes []json.RawMessage `json:"notes"`
	}
	if status := getJSON(t, srv.URL+"/notes", &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(body.Notes) != 2 {
		t.Errorf("notes = %d, want 2", len(body.Notes))
	}
}

func TestLinksEndpoint(t *testing.T) {
	srv := newTestServer(t, sampleVault, false, "")

	var body struct {
		Links []struct {
			Target string `json:"target"`
		} `json:"links"`
	}
	if status := getJSON(t, srv.URL+"/links", &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(body.Links) != 1 || body.Links[0].Target != "docs/setup.md" {
		t.Errorf("links = %+v", body.Links)
	}
}

func TestSearchEndpoint(t *testing.T) {
	srv := newTestServer(t, sampleVault, false, "")

	if status := getJSON(t, srv.URL+"/search", nil); status != http.StatusBadRequest {
		t.Errorf("missing q: status = %d, want 400", status)
	}

	var body struct {
		Results []index.SearchResult `json:"results"`
	}
	if status := getJSON(t, srv.URL+"/search?q=docs", &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if len(body.Results) != 1 || body.Results[0].Path != "beta.md" {
		t.Errorf("results = %+v", body.Results)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	srv := newTestServer(t, sampleVault, false, "")

	var body map[string]string
	if status := postJSON(t, srv.URL+"/refresh", &body); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["status"] != "refreshed" {
		t.Errorf("body = %v", body)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, sampleVault, false, "")

	var snap StatsSnapshot
	if status := getJSON(t, srv.URL+"/stats", &snap); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if snap.Circuit != "closed" {
		t.Errorf("circuit = %s", snap.Circuit)
	}
	if snap.Tuner.Health != tuner.HealthHealthy {
		t.Errorf("tuner health = %s", snap.Tuner.Health)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, sampleVault, false, "")

	var rep HealthReport
	if status := getJSON(t, srv.URL+"/health", &rep); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if rep.Status != "healthy" || rep.Circuit != "closed" || rep.Memory != "ok" {
		t.Errorf("report = %+v", rep)
	}
}

func TestBenchEndpoint(t *testing.T) {
	srv := newTestServer(t, sampleVault, false, "")

	var rep BenchReport
	if status := postJSON(t, srv.URL+"/bench?iterations=1", &rep); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if rep.Iterations != 1 || rep.Total <= 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv := newTestServer(t, sampleVault, true, "secret")

	get := func(header string) int {
		req, _ := http.NewRequest("GET", srv.URL+"/tags", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if status := get(""); status != http.StatusUnauthorized {
		t.Errorf("no header: status = %d, want 401", status)
	}
	if status := get("Bearer wrong"); status != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", status)
	}
	if status := get("Bearer secret"); status != http.StatusOK {
		t.Errorf("good token: status = %d, want 200", status)
	}
}

func TestWriteServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.ErrCircuitOpen, http.StatusServiceUnavailable},
		{apperr.ErrResourceExhausted, http.StatusServiceUnavailable},
		{apperr.ErrTimeout, http.StatusGatewayTimeout},
		{apperr.ErrValidation, http.StatusBadRequest},
		{apperr.ErrNotFound, http.StatusNotFound},
		{os.ErrPermission, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeServiceError(rec, "test op", tc.err)
		if rec.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}
