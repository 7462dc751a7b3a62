package gateway

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linkshelf/linkshelf/internal/article"
	"github.com/linkshelf/linkshelf/internal/query"
)

// MemoryBackend 是并发安全的内存文章存储，实现 Gateway，供开发服务器与测试使用。
//
// CheckRefreshNeeded 只反映带外写入（Seed/ExternalPut/ExternalDelete），
// 通过 Gateway 方法发起的变更由调用方自行刷新，不会置位。
//
// SaveArticle 会先按 NormalizeURL 规范化 URL；站点过滤为大小写不敏感的子串匹配；
// 热门标签统计跳过 ExcludedTags 中的标签。
type MemoryBackend struct {
	mu            sync.RWMutex
	articles      map[string]article.Article
	dirty         bool
	opened        []string
	now           func() time.Time
	preserveHosts []string
	excludedTags  map[string]struct{}
}

// AutoSavedTag marks articles captured by a quick save; it never appears in
// the popular tag aggregate.
const AutoSavedTag = "auto-saved"

// DefaultPreserveQueryHosts lists hosts whose query string identifies the page.
var DefaultPreserveQueryHosts = []string{"youtube.com"}

var _ Gateway = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty backend using time.Now for timestamps.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		articles:      make(map[string]article.Article),
		now:           time.Now,
		preserveHosts: DefaultPreserveQueryHosts,
		excludedTags:  map[string]struct{}{AutoSavedTag: {}},
	}
}

// SetPreserveQueryHosts replaces the hosts whose query string survives URL
// normalization on save.
func (m *MemoryBackend) SetPreserveQueryHosts(hosts ...string) {
	m.mu.Lock()
	m.preserveHosts = append([]string(nil), hosts...)
	m.mu.Unlock()
}

// SetClock overrides the timestamp source, mainly for deterministic tests.
func (m *MemoryBackend) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Seed 以带外方式写入文章（保留给定的 Site/UpdatedAt），并标记需要刷新。
func (m *MemoryBackend) Seed(articles ...article.Article) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range articles {
		if a.Site == "" {
			a.Site = SiteFromURL(a.URL)
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = m.now().UTC()
		}
		m.articles[a.URL] = a
	}
	if len(articles) > 0 {
		m.dirty = true
	}
}

// ExternalPut simulates another client saving an article, going through the
// same URL normalization as SaveArticle.
func (m *MemoryBackend) ExternalPut(req article.UpsertRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req = req.Trimmed()
	req.URL = NormalizeURL(req.URL, m.preserveHosts)
	m.putLocked(req)
	m.dirty = true
}

// ExternalDelete simulates another client removing an article.
func (m *MemoryBackend) ExternalDelete(rawURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[rawURL]; ok {
		delete(m.articles, rawURL)
		m.dirty = true
	}
}

// Opened returns the urls passed to OpenURL, oldest first.
func (m *MemoryBackend) Opened() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.opened...)
}

// Len returns the number of stored articles.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.articles)
}

func (m *MemoryBackend) GetArticles(ctx context.Context, filter article.Filter) ([]article.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wantTags := query.Tokens(filter.TagQuery)
	wantSite := strings.ToLower(strings.TrimSpace(filter.Site))

	m.mu.RLock()
	result := make([]article.Article, 0, len(m.articles))
	for _, a := range m.articles {
		if wantSite != "" && !strings.Contains(strings.ToLower(a.Site), wantSite) {
			continue
		}
		if !hasAllTags(a, wantTags) {
			continue
		}
		result = append(result, a)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].URL < result[j].URL
	})
	return result, nil
}

func (m *MemoryBackend) SaveArticle(ctx context.Context, req article.UpsertRequest) (article.SaveStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	req = req.Trimmed()
	if err := req.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req.URL = NormalizeURL(req.URL, m.preserveHosts)
	return m.putLocked(req), nil
}

func (m *MemoryBackend) UpdateArticle(ctx context.Context, originalURL string, req article.UpsertRequest) (article.SaveStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	req = req.Trimmed()
	if err := req.Validate(); err != nil {
		return "", err
	}
	originalURL = strings.TrimSpace(originalURL)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[originalURL]; !ok {
		return "", &article.NotFoundError{URL: originalURL}
	}
	if originalURL != req.URL {
		delete(m.articles, originalURL)
	}
	m.putLocked(req)
	return article.StatusUpdated, nil
}

func (m *MemoryBackend) DeleteArticle(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.articles, rawURL)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) OpenURL(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := article.ValidateURL(rawURL); err != nil {
		return err
	}
	m.mu.Lock()
	m.opened = append(m.opened, rawURL)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) PopularTags(ctx context.Context, limit int) ([]article.TagCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := map[string]int{}
	m.mu.RLock()
	for _, a := range m.articles {
		seen := map[string]struct{}{}
		for _, tag := range query.Tokens(a.Tags) {
			if _, dup := seen[tag]; dup {
				continue
			}
			if _, skip := m.excludedTags[tag]; skip {
				continue
			}
			seen[tag] = struct{}{}
			counts[tag]++
		}
	}
	m.mu.RUnlock()

	ranked := rank(counts, limit)
	result := make([]article.TagCount, len(ranked))
	for i, r := range ranked {
		result[i] = article.TagCount{Name: r.name, Count: r.count}
	}
	return result, nil
}

func (m *MemoryBackend) PopularSites(ctx context.Context, limit int) ([]article.SiteCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := map[string]int{}
	m.mu.RLock()
	for _, a := range m.articles {
		if a.Site != "" {
			counts[a.Site]++
		}
	}
	m.mu.RUnlock()

	ranked := rank(counts, limit)
	result := make([]article.SiteCount, len(ranked))
	for i, r := range ranked {
		result[i] = article.SiteCount{Name: r.name, Count: r.count}
	}
	return result, nil
}

// CheckRefreshNeeded 返回并清除带外变更标记。
func (m *MemoryBackend) CheckRefreshNeeded(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dirty := m.dirty
	m.dirty = false
	return dirty, nil
}

func (m *MemoryBackend) putLocked(req article.UpsertRequest) article.SaveStatus {
	status := article.StatusCreated
	if _, ok := m.articles[req.URL]; ok {
		status = article.StatusUpdated
	}
	m.articles[req.URL] = article.Article{
		URL:       req.URL,
		Title:     req.Title,
		Tags:      req.Tags,
		Site:      SiteFromURL(req.URL),
		UpdatedAt: m.now().UTC(),
	}
	return status
}

// NormalizeURL 去掉 http(s) URL 的 query 与 fragment，只保留 origin + path；
// host 命中 preserveHosts（子串匹配）时原样返回。非 http(s) 或无法解析的输入原样返回。
func NormalizeURL(raw string, preserveHosts []string) string {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return raw
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return raw
	}
	host := strings.ToLower(parsed.Hostname())
	for _, keep := range preserveHosts {
		if keep != "" && strings.Contains(host, strings.ToLower(keep)) {
			return raw
		}
	}
	return parsed.Scheme + "://" + strings.ToLower(parsed.Host) + parsed.EscapedPath()
}

// SiteFromURL derives the site label from a url's host, dropping a leading
// "www.". Unparseable input yields an empty site.
func SiteFromURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func hasAllTags(a article.Article, want []string) bool {
	if len(want) == 0 {
		return true
	}
	have := map[string]struct{}{}
	for _, tag := range query.Tokens(a.Tags) {
		have[tag] = struct{}{}
	}
	for _, tag := range want {
		if _, ok := have[tag]; !ok {
			return false
		}
	}
	return true
}

type rankedName struct {
	name  string
	count int
}

func rank(counts map[string]int, limit int) []rankedName {
	if limit <= 0 || len(counts) == 0 {
		return nil
	}
	ranked := make([]rankedName, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, rankedName{name: name, count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].name < ranked[j].name
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
