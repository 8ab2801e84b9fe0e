package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/agent-bench/internal/model"
)

func newTestExecutor(t *testing.T, cfg Config) *Executor {
	t.Helper()
	ex, err := NewExecutor(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ex.Close() })
	return ex
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestExecutor_RunCommandEcho(t *testing.T) {
	skipWithoutShell(t)
	ex := newTestExecutor(t, Config{})

	res := ex.Execute(context.Background(), model.RunCommand("echo hi"))

	assert.True(t, res.Success)
	assert.Equal(t, model.ToolRunCommand, res.Kind)
	assert.Equal(t, "echo hi", res.Argument)
	assert.Contains(t, res.Output, "hi")
	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, res.Error)
}

func TestExecutor_RunCommandNonZeroExitKeepsOutput(t *testing.T) {
	skipWithoutShell(t)
	ex := newTestExecutor(t, Config{})

	res := ex.Execute(context.Background(), model.RunCommand("echo partial; echo oops >&2; exit 3"))

	assert.False(t, res.Success)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Output, "partial")
	assert.Contains(t, res.Output, "oops")
	assert.Equal(t, "exit status 3", res.Error)
}

func TestExecutor_RunCommandTimeout(t *testing.T) {
	skipWithoutShell(t)
	ex := newTestExecutor(t, Config{CommandTimeout: 200 * time.Millisecond})

	start := time.Now()
	res := ex.Execute(context.Background(), model.RunCommand("echo started; sleep 5; echo never"))
	elapsed := time.Since(start)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
	assert.NotContains(t, res.Output, "never")
	assert.Less(t, elapsed, 3*time.Second)
}

func TestExecutor_RunCommandBackgroundChildDoesNotHang(t *testing.T) {
	skipWithoutShell(t)
	ex := newTestExecutor(t, Config{CommandTimeout: 200 * time.Millisecond})

	start := time.Now()
	res := ex.Execute(context.Background(), model.RunCommand("sleep 5 & sleep 5"))

	assert.False(t, res.Success)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestExecutor_RunCommandCancelled(t *testing.T) {
	skipWithoutShell(t)
	ex := newTestExecutor(t, Config{CommandTimeout: 10 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res := ex.Execute(ctx, model.RunCommand("sleep 5"))
	assert.False(t, res.Success)
	assert.Equal(t, "command cancelled", res.Error)
}

func TestExecutor_RunCommandTruncatesOutput(t *testing.T) {
	skipWithoutShell(t)
	ex := newTestExecutor(t, Config{OutputLimit: 64})

	res := ex.Execute(context.Background(), model.RunCommand("i=0; while [ $i -lt 100 ]; do echo line-$i; i=$((i+1)); done"))

	assert.True(t, res.Success)
	assert.True(t, res.Truncated)
	assert.Contains(t, res.Output, "[output truncated")
	assert.LessOrEqual(t, len(strings.SplitN(res.Output, "\n[output truncated", 2)[0]), 64)
}

func TestExecutor_RunCommandIsolatedWorkDir(t *testing.T) {
	skipWithoutShell(t)
	dir := filepath.Join(t.TempDir(), "work")
	ex := newTestExecutor(t, Config{WorkDir: dir})

	res := ex.Execute(context.Background(), model.RunCommand("pwd; echo $HOME"))

	require.True(t, res.Success)
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Contains(t, res.Output, resolved)
	assert.Equal(t, dir, ex.WorkDir())
}

func TestExecutor_PrivateWorkDirRemovedOnClose(t *testing.T) {
	ex, err := NewExecutor(Config{})
	require.NoError(t, err)
	dir := ex.WorkDir()
	assert.DirExists(t, dir)

	require.NoError(t, ex.Close())
	assert.NoDirExists(t, dir)
}

func TestExecutor_UnknownKind(t *testing.T) {
	ex := newTestExecutor(t, Config{})

	res := ex.Execute(context.Background(), model.ToolDirective{Kind: "browse", Argument: "x"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unsupported tool")
}

func TestExecutor_SearchDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("search endpoint must not be called")
	}))
	defer srv.Close()
	ex := newTestExecutor(t, Config{SearchURL: srv.URL, DisableSearch: true})

	res := ex.Execute(context.Background(), model.Search("golang"))
	assert.False(t, res.Success)
	assert.Equal(t, model.ToolSearch, res.Kind)
	assert.Contains(t, res.Error, "disabled")

	res = ex.Execute(context.Background(), model.RunCommand("echo still here"))
	assert.True(t, res.Success)
}

const ddgResponse = `{
  "Abstract": "",
  "AbstractText": "Rust is a multi-paradigm programming language.",
  "Answer": "",
  "Definition": "",
  "RelatedTopics": [
    {"Text": "Rust (programming language) - memory safety", "FirstURL": "https://duckduckgo.com/Rust"},
    {"Name": "See also", "Topics": [
      {"Text": "Cargo - package manager"},
      {"Text": "Crates.io - registry"}
    ]},
    {"Text": "Rust Foundation"}
  ]
}`

func TestExecutor_Search(t *testing.T) {
	var gotQuery, gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotFormat = r.URL.Query().Get("format")
		w.Header().Set("Content-Type", "application/x-javascript")
		_, _ = w.Write([]byte(ddgResponse))
	}))
	defer srv.Close()

	ex := newTestExecutor(t, Config{SearchURL: srv.URL, MaxSnippets: 3})
	res := ex.Execute(context.Background(), model.Search("rust programming & more"))

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "rust programming & more", gotQuery)
	assert.Equal(t, "json", gotFormat)
	assert.Contains(t, res.Output, "multi-paradigm")
	assert.Contains(t, res.Output, "- Cargo - package manager")
	assert.NotContains(t, res.Output, "Rust Foundation")
}

func TestExecutor_SearchFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"http error", http.StatusServiceUnavailable, "down", "503"},
		{"invalid json", http.StatusOK, "<html>", "invalid JSON"},
		{"no results", http.StatusOK, `{"AbstractText":"","RelatedTopics":[]}`, "no results"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			ex := newTestExecutor(t, Config{SearchURL: srv.URL})
			res := ex.Execute(context.Background(), model.Search("rust programming"))

			assert.False(t, res.Success)
			assert.Equal(t, model.ToolSearch, res.Kind)
			assert.Contains(t, res.Error, tt.wantErr)
		})
	}
}

func TestExecutor_SearchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	ex := newTestExecutor(t, Config{SearchURL: url, SearchTimeout: time.Second})
	res := ex.Execute(context.Background(), model.Search("rust programming"))

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "search request failed")
}

func TestCappedBuffer(t *testing.T) {
	b := newCappedBuffer(5)
	n, err := b.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.True(t, b.Truncated())
	assert.Equal(t, "hello\n[output truncated, 11 bytes total]", b.String())
}

func TestTruncate_DoesNotSplitRunes(t *testing.T) {
	out, truncated := truncate("héllo", 2)
	assert.True(t, truncated)
	assert.True(t, strings.HasPrefix(out, "h\n"))
}
