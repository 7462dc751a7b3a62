package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/linkshelf/linkshelf/internal/article"
	"github.com/linkshelf/linkshelf/internal/logging"
)

// maxErrorBody caps how much of an error response is read into messages.
const maxErrorBody = 4 << 10

// Doer is the subset of *http.Client used by HTTPGateway. Tests inject
// adapters that dispatch straight into an in-process fiber app.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPOptions configures NewHTTPGateway.
type HTTPOptions struct {
	BaseURL string
	Client  Doer
	Logger  *logrus.Logger
}

// HTTPGateway implements Gateway against the JSON API described in wire.go.
type HTTPGateway struct {
	baseURL *url.URL
	client  Doer
	logger  *logrus.Logger
}

var _ Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway 校验后端地址并构造 HTTP 适配器；未注入 Client 时使用默认超时的共享客户端。
func NewHTTPGateway(opts HTTPOptions) (*HTTPGateway, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("backend url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("backend url must be http or https: %s", raw)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("backend url missing host: %s", raw)
	}

	client := opts.Client
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &HTTPGateway{baseURL: parsed, client: client, logger: logger}, nil
}

func (g *HTTPGateway) GetArticles(ctx context.Context, filter article.Filter) ([]article.Article, error) {
	q := url.Values{}
	if filter.TagQuery != "" {
		q.Set(QueryTagQuery, filter.TagQuery)
	}
	if filter.Site != "" {
		q.Set(QuerySite, filter.Site)
	}
	var articles []article.Article
	err := g.do(ctx, call{op: OpGetArticles, method: http.MethodGet, path: PathArticles, query: q}, &articles)
	if err != nil {
		return nil, err
	}
	return articles, nil
}

func (g *HTTPGateway) SaveArticle(ctx context.Context, req article.UpsertRequest) (article.SaveStatus, error) {
	var resp SaveResponse
	err := g.do(ctx, call{op: OpSaveArticle, method: http.MethodPost, path: PathArticles, body: req, subject: req.URL}, &resp)
	if err != nil {
		return "", err
	}
	return checkStatus(OpSaveArticle, resp.Status)
}

func (g *HTTPGateway) UpdateArticle(ctx context.Context, originalURL string, req article.UpsertRequest) (article.SaveStatus, error) {
	payload := UpdatePayload{OriginalURL: originalURL, UpsertRequest: req}
	var resp SaveResponse
	err := g.do(ctx, call{op: OpUpdateArticle, method: http.MethodPut, path: PathArticles, body: payload, subject: originalURL}, &resp)
	if err != nil {
		return "", err
	}
	// update 接口允许空响应体，视为 updated。
	if resp.Status == "" {
		return article.StatusUpdated, nil
	}
	return checkStatus(OpUpdateArticle, resp.Status)
}

func (g *HTTPGateway) DeleteArticle(ctx context.Context, rawURL string) error {
	q := url.Values{QueryURL: []string{rawURL}}
	return g.do(ctx, call{op: OpDeleteArticle, method: http.MethodDelete, path: PathArticles, query: q, subject: rawURL}, nil)
}

func (g *HTTPGateway) OpenURL(ctx context.Context, rawURL string) error {
	return g.do(ctx, call{op: OpOpenURL, method: http.MethodPost, path: PathOpen, body: OpenPayload{URL: rawURL}, subject: rawURL}, nil)
}

func (g *HTTPGateway) PopularTags(ctx context.Context, limit int) ([]article.TagCount, error) {
	var tags []article.TagCount
	q := url.Values{QueryLimit: []string{strconv.Itoa(limit)}}
	if err := g.do(ctx, call{op: OpPopularTags, method: http.MethodGet, path: PathPopularTags, query: q}, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func (g *HTTPGateway) PopularSites(ctx context.Context, limit int) ([]article.SiteCount, error) {
	var sites []article.SiteCount
	q := url.Values{QueryLimit: []string{strconv.Itoa(limit)}}
	if err := g.do(ctx, call{op: OpPopularSites, method: http.MethodGet, path: PathPopularSites, query: q}, &sites); err != nil {
		return nil, err
	}
	return sites, nil
}

func (g *HTTPGateway) CheckRefreshNeeded(ctx context.Context) (bool, error) {
	var resp RefreshResponse
	if err := g.do(ctx, call{op: OpCheckRefreshNeeded, method: http.MethodGet, path: PathRefreshNeeded}, &resp); err != nil {
		return false, err
	}
	return resp.RefreshNeeded, nil
}

// call 描述一次 HTTP 往返；subject 是 404 时写入 NotFoundError 的 URL。
type call struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    any
	subject string
}

func (g *HTTPGateway) do(ctx context.Context, c call, out any) (err error) {
	requestID := uuid.NewString()
	started := time.Now()
	status := 0
	defer func() {
		g.logCall(c, requestID, status, started, err)
	}()

	req, err := g.newRequest(ctx, c, requestID)
	if err != nil {
		return article.NewTransportError(c.op, err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return article.NewTransportError(c.op, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(c, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return article.NewTransportError(c.op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (g *HTTPGateway) newRequest(ctx context.Context, c call, requestID string) (*http.Request, error) {
	target := *g.baseURL
	target.Path = strings.TrimSuffix(target.Path, "/") + c.path
	target.RawQuery = ""
	if len(c.query) > 0 {
		target.RawQuery = c.query.Encode()
	}

	var body io.Reader
	if c.body != nil {
		encoded, err := json.Marshal(c.body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, target.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderRequestID, requestID)
	return req, nil
}

func decodeError(c call, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload ErrorResponse
	_ = json.Unmarshal(raw, &payload)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return &article.NotFoundError{URL: c.subject}
	case http.StatusUnprocessableEntity:
		field := payload.Field
		if field == "" {
			field = "request"
		}
		reason := payload.Message
		if reason == "" {
			reason = "rejected by backend"
		}
		return &article.ValidationError{Field: field, Reason: reason}
	}

	message := payload.Message
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	return &article.TransportError{
		Op:  c.op,
		Err: fmt.Errorf("backend responded %d: %s", resp.StatusCode, message),
	}
}

func checkStatus(op string, status article.SaveStatus) (article.SaveStatus, error) {
	if !status.Valid() {
		return "", &article.TransportError{Op: op, Err: fmt.Errorf("unexpected save status %q", status)}
	}
	return status, nil
}

func (g *HTTPGateway) logCall(c call, requestID string, status int, started time.Time, err error) {
	fields := logging.GatewayFields(c.op, requestID)
	fields["method"] = c.method
	fields["path"] = c.path
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		g.logger.WithFields(fields).Warn("gateway_failed")
		return
	}
	g.logger.WithFields(fields).Debug("gateway_complete")
}
