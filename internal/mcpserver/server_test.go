package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/api"
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

func testServer(t *testing.T, files map[string]string) *Server {
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

	files2, err := v.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files2 {
		data, readErr := v.Read(f.Path)
		if readErr != nil {
			t.Fatal(readErr)
		}
		doc := extract.ParseNote(data)
		row := index.NoteRow{Path: f.Path, Title: doc.Title, Aliases: doc.Aliases, Tags: doc.Tags, Size: f.Size}
		if upErr := db.UpsertNote(row, doc.Body, doc.Links); upErr != nil {
			t.Fatal(upErr)
		}
	}

	svc := api.NewService(eng, ex, db, c, q, g, tun, v.Root())
	return New(svc, db)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "complete":
		result, err = srv.complete(ctx, req)
	case "search_tags":
		result, err = srv.searchTags(ctx, req)
	case "list_links":
		result, err = srv.listLinks(ctx, req)
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "refresh_cache":
		result, err = srv.refreshCache(ctx, req)
	case "health_check":
		result, err = srv.healthCheck(ctx, req)
	case "benchmark":
		result, err = srv.benchmark(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

var sampleVault = map[string]string{
	"alpha.md": "---\ntitle: Alpha\ntags: [project]\n---\nwork on #project today, see [[Beta]]\n",
	"beta.md":  "# Beta\nread [the docs](docs/setup.md) and #review\n",
}

func TestCompleteTool(t *testing.T) {
	srv := testServer(t, sampleVault)

	r := callTool(t, srv, "complete", map[string]interface{}{"line": "status #pro"})
	var res complete.Result
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Context != "tag" || res.Query != "pro" {
		t.Errorf("context/query = %s/%s", res.Context, res.Query)
	}
	if len(res.Items) != 1 || res.Items[0].Label != "#project" {
		t.Errorf("items = %+v", res.Items)
	}
}

func TestCompleteToolMissingLine(t *testing.T) {
	srv := testServer(t, sampleVault)
	r := callTool(t, srv, "complete", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error without the line argument")
	}
}

func TestSearchTagsToolPrefixFilter(t *testing.T) {
	srv := testServer(t, sampleVault)

	r := callTool(t, srv, "search_tags", map[string]interface{}{"prefix": "#rev"})
	text := resultText(r)
	if !strings.Contains(text, "review") || strings.Contains(text, "project") {
		t.Errorf("filtered tags = %q", text)
	}
}

func TestListLinksTool(t *testing.T) {
	srv := testServer(t, sampleVault)
	if text := resultText(callTool(t, srv, "list_links", map[string]interface{}{})); !strings.Contains(text, "docs/setup.md") {
		t.Errorf("links = %q", text)
	}
}

func TestSearchNotesTool(t *testing.T) {
	srv := testServer(t, sampleVault)
	text := resultText(callTool(t, srv, "search_notes", map[string]interface{}{"query": "docs"}))
	if !strings.Contains(text, "beta.md") {
		t.Errorf("search result = %q", text)
	}
}

func TestGetBacklinksTool(t *testing.T) {
	srv := testServer(t, sampleVault)

	text := resultText(callTool(t, srv, "get_backlinks", map[string]interface{}{"target": "Beta"}))
	if text != "alpha.md" {
		t.Errorf("backlinks = %q, want alpha.md", text)
	}

	text = resultText(callTool(t, srv, "get_backlinks", map[string]interface{}{"target": "Nothing"}))
	if text != "no backlinks found" {
		t.Errorf("empty backlinks = %q", text)
	}
}

func TestRefreshCacheTool(t *testing.T) {
	srv := testServer(t, sampleVault)
	if text := resultText(callTool(t, srv, "refresh_cache", map[string]interface{}{})); text != "cache refreshed" {
		t.Errorf("refresh result = %q", text)
	}
}

func TestHealthCheckTool(t *testing.T) {
	srv := testServer(t, sampleVault)

	var rep api.HealthReport
	if err := json.Unmarshal([]byte(resultText(callTool(t, srv, "health_check", map[string]interface{}{}))), &rep); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rep.Status != "healthy" || rep.Circuit != "closed" {
		t.Errorf("report = %+v", rep)
	}
}

func TestBenchmarkTool(t *testing.T) {
	srv := testServer(t, sampleVault)

	var rep api.BenchReport
	if err := json.Unmarshal([]byte(resultText(callTool(t, srv, "benchmark", map[string]interface{}{"iterations": 1}))), &rep); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rep.Iterations != 1 || rep.Total <= 0 {
		t.Errorf("report = %+v", rep)
	}
}
