package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/linkshelf/linkshelf/internal/article"
	"github.com/linkshelf/linkshelf/internal/gateway"
	"github.com/linkshelf/linkshelf/internal/logging"
)

func TestListArticlesFiltersByTagQuery(t *testing.T) {
	app, backend := newTestApp(t)
	backend.Seed(
		article.Article{URL: "https://a.com", Title: "A", Tags: "x, Y"},
		article.Article{URL: "https://b.com", Title: "B", Tags: "z"},
	)

	resp := doRequest(t, app, httptest.NewRequest("GET", "/api/articles?tag_query=y", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got []article.Article
	decodeJSON(t, resp, &got)
	if len(got) != 1 || got[0].URL != "https://a.com" {
		t.Fatalf("unexpected articles: %+v", got)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestListArticlesEmptyIsArray(t *testing.T) {
	app, _ := newTestApp(t)
	resp := doRequest(t, app, httptest.NewRequest("GET", "/api/articles", nil))
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("expected empty json array, got %s", body)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	app, _ := newTestApp(t)
	req := httptest.NewRequest("GET", "/api/refresh-needed", nil)
	req.Header.Set("X-Request-ID", "req-123")

	resp := doRequest(t, app, req)
	if got := resp.Header.Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestSaveAndUpdateArticle(t *testing.T) {
	app, backend := newTestApp(t)

	resp := doRequest(t, app, jsonRequest(t, "POST", "/api/articles", article.UpsertRequest{URL: "u1", Title: "T"}))
	var saved gateway.SaveResponse
	decodeJSON(t, resp, &saved)
	if saved.Status != article.StatusCreated {
		t.Fatalf("expected created, got %q", saved.Status)
	}

	payload := gateway.UpdatePayload{OriginalURL: "u1", UpsertRequest: article.UpsertRequest{URL: "u2", Title: "T2"}}
	resp = doRequest(t, app, jsonRequest(t, "PUT", "/api/articles", payload))
	var updated gateway.SaveResponse
	decodeJSON(t, resp, &updated)
	if updated.Status != article.StatusUpdated {
		t.Fatalf("expected updated, got %q", updated.Status)
	}
	if backend.Len() != 1 {
		t.Fatalf("url change should replace the old record, got %d articles", backend.Len())
	}
}

func TestErrorMapping(t *testing.T) {
	app, _ := newTestApp(t)

	cases := []struct {
		name   string
		req    *http.Request
		status int
		code   string
		field  string
	}{
		{
			name:   "missing title",
			req:    jsonRequest(t, "POST", "/api/articles", article.UpsertRequest{URL: "u1"}),
			status: fiber.StatusUnprocessableEntity,
			code:   gateway.ErrorCodeInvalid,
			field:  "title",
		},
		{
			name:   "unknown original",
			req:    jsonRequest(t, "PUT", "/api/articles", gateway.UpdatePayload{OriginalURL: "nope", UpsertRequest: article.UpsertRequest{URL: "u", Title: "T"}}),
			status: fiber.StatusNotFound,
			code:   gateway.ErrorCodeNotFound,
		},
		{
			name:   "bad limit",
			req:    httptest.NewRequest("GET", "/api/popular/tags?limit=abc", nil),
			status: fiber.StatusUnprocessableEntity,
			code:   gateway.ErrorCodeInvalid,
			field:  "limit",
		},
		{
			name:   "empty body",
			req:    httptest.NewRequest("POST", "/api/open", nil),
			status: fiber.StatusUnprocessableEntity,
			code:   gateway.ErrorCodeInvalid,
			field:  "body",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, app, tc.req)
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
			var payload gateway.ErrorResponse
			decodeJSON(t, resp, &payload)
			if payload.Error != tc.code || payload.Field != tc.field {
				t.Fatalf("unexpected error payload: %+v", payload)
			}
		})
	}
}

func TestDeleteAndOpenReturnNoContent(t *testing.T) {
	app, backend := newTestApp(t)
	backend.Seed(article.Article{URL: "https://a.com", Title: "A"})

	resp := doRequest(t, app, httptest.NewRequest("DELETE", "/api/articles?url=https://missing.com", nil))
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("delete of unknown url should be 204, got %d", resp.StatusCode)
	}
	resp = doRequest(t, app, jsonRequest(t, "POST", "/api/open", gateway.OpenPayload{URL: "https://a.com"}))
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("open should be 204, got %d", resp.StatusCode)
	}
	if opened := backend.Opened(); len(opened) != 1 {
		t.Fatalf("expected one opened url, got %v", opened)
	}
}

func TestPopularAndRefreshNeeded(t *testing.T) {
	app, backend := newTestApp(t)
	backend.Seed(
		article.Article{URL: "https://a.com/1", Title: "1", Tags: "go"},
		article.Article{URL: "https://a.com/2", Title: "2", Tags: "go, db"},
	)

	resp := doRequest(t, app, httptest.NewRequest("GET", "/api/refresh-needed", nil))
	var refresh gateway.RefreshResponse
	decodeJSON(t, resp, &refresh)
	if !refresh.RefreshNeeded {
		t.Fatalf("seeded backend should report refresh needed")
	}

	resp = doRequest(t, app, httptest.NewRequest("GET", "/api/popular/tags?limit=1", nil))
	var tags []article.TagCount
	decodeJSON(t, resp, &tags)
	if len(tags) != 1 || tags[0].Name != "go" || tags[0].Count != 2 {
		t.Fatalf("unexpected tags: %+v", tags)
	}

	resp = doRequest(t, app, httptest.NewRequest("GET", "/api/popular/sites", nil))
	var sites []article.SiteCount
	decodeJSON(t, resp, &sites)
	if len(sites) != 1 || sites[0].Name != "a.com" {
		t.Fatalf("unexpected sites: %+v", sites)
	}
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t)
	resp := doRequest(t, app, httptest.NewRequest("GET", "/-/health", nil))
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"ok"`)) {
		t.Fatalf("unexpected health body: %s", body)
	}
}

func TestNewAppRequiresDependencies(t *testing.T) {
	if _, err := NewApp(AppOptions{Backend: gateway.NewMemoryBackend()}); err == nil {
		t.Fatalf("missing logger should fail")
	}
	if _, err := NewApp(AppOptions{Logger: logging.Discard()}); err == nil {
		t.Fatalf("missing backend should fail")
	}
}

func newTestApp(t *testing.T) (*fiber.App, *gateway.MemoryBackend) {
	t.Helper()
	backend := gateway.NewMemoryBackend()
	app, err := NewApp(AppOptions{Logger: logging.Discard(), Backend: backend})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return app, backend
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) *http.Response {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	return resp
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("encode body: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode body: %v (status=%d body=%s)", err, resp.StatusCode, body)
	}
}
