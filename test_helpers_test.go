package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/linkshelf/linkshelf/internal/article"
)

var repoRoot string

func init() {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return
	}
	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			repoRoot = dir
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func projectRoot(t *testing.T) string {
	t.Helper()
	if repoRoot == "" {
		t.Fatal("无法定位项目根目录")
	}
	return repoRoot
}

func configFixture(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(projectRoot(t), "internal", "config", "testdata", name)
}

// useBufferWriters 在测试期间把 stdOut/stdErr 替换为内存缓冲区，便于断言 CLI 输出。
func useBufferWriters(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()

	out = &bytes.Buffer{}
	errOut = &bytes.Buffer{}

	prevOut := stdOut
	prevErr := stdErr

	stdOut = out
	stdErr = errOut

	t.Cleanup(func() {
		stdOut = prevOut
		stdErr = prevErr
	})
	return out, errOut
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}

// fakeBackend 是只读的 HTTP 后端桩，按 wire 协议返回固定文章与聚合，并记录请求路径。
type fakeBackend struct {
	mu       sync.Mutex
	articles []article.Article
	fail     bool
	dirty    bool
	paths    []string
}

func newFakeBackend(t *testing.T, articles ...article.Article) (*fakeBackend, *httptest.Server) {
	t.Helper()
	fb := &fakeBackend{articles: articles}
	srv := httptest.NewServer(http.HandlerFunc(fb.serve))
	t.Cleanup(srv.Close)
	return fb, srv
}

func (f *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.RequestURI())
	fail := f.fail
	articles := append([]article.Article(nil), f.articles...)
	dirty := f.dirty
	if r.URL.Path == "/api/refresh-needed" {
		f.dirty = false
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"backend_error","message":"down"}`))
		return
	}

	var payload any
	switch r.URL.Path {
	case "/api/articles":
		payload = articles
	case "/api/popular/tags":
		payload = []article.TagCount{{Name: "go", Count: len(articles)}}
	case "/api/popular/sites":
		payload = []article.SiteCount{{Name: "a.com", Count: len(articles)}}
	case "/api/refresh-needed":
		payload = map[string]bool{"refresh_needed": dirty}
	default:
		w.WriteHeader(http.StatusNotFound)
		payload = map[string]string{"error": "not_found"}
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// externalPut 模拟其他客户端写入：追加文章并让下一次 refresh-needed 返回 true。
func (f *fakeBackend) externalPut(a article.Article) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.articles = append(f.articles, a)
	f.dirty = true
}

func (f *fakeBackend) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}
