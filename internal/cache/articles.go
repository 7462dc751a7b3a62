package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linkshelf/linkshelf/internal/article"
	"github.com/linkshelf/linkshelf/internal/gateway"
	"github.com/linkshelf/linkshelf/internal/logging"
)

// Options 汇总 ArticleCache 的依赖；Gateway 必填，其余可选。
type Options struct {
	Gateway   gateway.Gateway
	Logger    *logrus.Logger
	Snapshots SnapshotStore
	Clock     func() time.Time
}

// ArticleCache 是后端文章集合的客户端只读副本。
//
// 快照只会在 Refresh 成功后整体替换，失败时保持上一份快照与过滤条件不变。
// 锁不会跨越 Gateway 调用持有；并发刷新按完成顺序 last-writer-wins。
type ArticleCache struct {
	gateway   gateway.Gateway
	logger    *logrus.Logger
	snapshots SnapshotStore
	now       func() time.Time

	mu        sync.RWMutex
	articles  []article.Article
	index     map[string]int
	filter    article.Filter
	version   uint64
	fetchedAt time.Time
	tags      []article.TagCount
	sites     []article.SiteCount

	subMu   sync.Mutex
	subs    map[uint64]func(Snapshot)
	nextSub uint64

	// publishMu 串行化持久化与通知；published 为最近一次已投递的版本。
	publishMu sync.Mutex
	published uint64
}

// New builds an empty cache. Call Refresh (or Restore) to populate it.
func New(opts Options) (*ArticleCache, error) {
	if opts.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &ArticleCache{
		gateway:   opts.Gateway,
		logger:    logger,
		snapshots: opts.Snapshots,
		now:       clock,
		index:     make(map[string]int),
		subs:      make(map[uint64]func(Snapshot)),
	}, nil
}

// Refresh 以规范化后的过滤条件拉取文章并整体替换快照，返回新快照的副本。
func (c *ArticleCache) Refresh(ctx context.Context, filter article.Filter) ([]article.Article, error) {
	normalized := filter.Normalized()

	fetched, err := c.gateway.GetArticles(ctx, normalized)
	if err != nil {
		c.logger.WithError(err).
			WithFields(logrus.Fields{"action": "cache", "op": gateway.OpGetArticles, "tag_query": normalized.TagQuery, "site": normalized.Site}).
			Warn("refresh_failed")
		return nil, article.NewTransportError(gateway.OpGetArticles, err)
	}

	snapshot := c.replace(fetched, normalized, "refresh")
	c.publish(ctx, snapshot, true)
	return slices.Clone(snapshot.Articles), nil
}

// Reload 使用上一次生效的过滤条件重新拉取。
func (c *ArticleCache) Reload(ctx context.Context) ([]article.Article, error) {
	return c.Refresh(ctx, c.Filter())
}

// List returns the current snapshot in backend order.
func (c *ArticleCache) List() []article.Article {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.articles)
}

// Filter returns the filter that produced the current snapshot.
func (c *ArticleCache) Filter() article.Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter
}

// Snapshot returns a copy of the current snapshot with its metadata.
func (c *ArticleCache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Contains reports whether url is present in the last-known snapshot.
func (c *ArticleCache) Contains(url string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[url]
	return ok
}

// Get returns the cached article for url.
func (c *ArticleCache) Get(url string) (article.Article, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos, ok := c.index[url]
	if !ok {
		return article.Article{}, false
	}
	return c.articles[pos], true
}

// CreateOrUpdate 校验请求后转发给 Gateway：editingURL 为空走 SaveArticle，否则走 UpdateArticle。
// created/updated 完全以 Gateway 返回为准；成功后按上次过滤条件刷新。
func (c *ArticleCache) CreateOrUpdate(ctx context.Context, req article.UpsertRequest, editingURL string) (article.SaveStatus, error) {
	req = req.Trimmed()
	if err := req.Validate(); err != nil {
		return "", err
	}

	var (
		status article.SaveStatus
		err    error
		op     = gateway.OpSaveArticle
	)
	editingURL = strings.TrimSpace(editingURL)
	if editingURL == "" {
		status, err = c.gateway.SaveArticle(ctx, req)
	} else {
		op = gateway.OpUpdateArticle
		if !c.Contains(editingURL) {
			return "", &article.NotFoundError{URL: editingURL}
		}
		status, err = c.gateway.UpdateArticle(ctx, editingURL, req)
	}
	if err != nil {
		return "", article.NewTransportError(op, err)
	}

	c.logger.WithFields(logrus.Fields{
		"action":      "cache",
		"op":          op,
		"url":         req.URL,
		"editing_url": editingURL,
		"status":      status,
	}).Info("article_saved")

	if _, err := c.Reload(ctx); err != nil {
		return status, fmt.Errorf("article %s but refresh failed: %w", status, err)
	}
	return status, nil
}

// Remove 直接把删除请求转发给 Gateway（不预先检查是否存在），随后刷新。
func (c *ArticleCache) Remove(ctx context.Context, url string) error {
	if err := article.ValidateURL(url); err != nil {
		return err
	}
	if err := c.gateway.DeleteArticle(ctx, url); err != nil {
		return article.NewTransportError(gateway.OpDeleteArticle, err)
	}

	c.logger.WithFields(logrus.Fields{
		"action": "cache",
		"op":     gateway.OpDeleteArticle,
		"url":    url,
	}).Info("article_deleted")

	if _, err := c.Reload(ctx); err != nil {
		return fmt.Errorf("article deleted but refresh failed: %w", err)
	}
	return nil
}

// PopularTags 返回后端对全量文章的 tag 聚合。失败只记录日志，并回退到上一次成功的结果（没有则为空列表）。
func (c *ArticleCache) PopularTags(ctx context.Context, limit int) []article.TagCount {
	tags, err := c.gateway.PopularTags(ctx, limit)
	if err != nil {
		c.logger.WithError(err).
			WithFields(logrus.Fields{"action": "cache", "op": gateway.OpPopularTags, "limit": limit}).
			Warn("popular_fallback")
		return c.CachedPopularTags()
	}

	c.mu.Lock()
	c.tags = slices.Clone(tags)
	c.mu.Unlock()
	return nonNil(slices.Clone(tags))
}

// PopularSites mirrors PopularTags for site aggregates.
func (c *ArticleCache) PopularSites(ctx context.Context, limit int) []article.SiteCount {
	sites, err := c.gateway.PopularSites(ctx, limit)
	if err != nil {
		c.logger.WithError(err).
			WithFields(logrus.Fields{"action": "cache", "op": gateway.OpPopularSites, "limit": limit}).
			Warn("popular_fallback")
		return c.CachedPopularSites()
	}

	c.mu.Lock()
	c.sites = slices.Clone(sites)
	c.mu.Unlock()
	return nonNil(slices.Clone(sites))
}

// CachedPopularTags returns the last successful tag aggregate without a backend call.
func (c *ArticleCache) CachedPopularTags() []article.TagCount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return nonNil(slices.Clone(c.tags))
}

// CachedPopularSites returns the last successful site aggregate without a backend call.
func (c *ArticleCache) CachedPopularSites() []article.SiteCount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return nonNil(slices.Clone(c.sites))
}

// Subscribe 注册快照变更回调，返回取消函数。回调在替换完成后同步调用，
// 不持有缓存锁，按 Version 递增顺序投递，比已投递版本旧的快照会被跳过；
// 回调内不能同步触发刷新。Articles 切片为各订阅者共享的副本，不应修改。
func (c *ArticleCache) Subscribe(fn func(Snapshot)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

// Restore 从 SnapshotStore 预热缓存；若已经有成功拉取的快照则不覆盖。
// 没有配置存储或文件不存在时返回 nil。
func (c *ArticleCache) Restore(ctx context.Context) error {
	if c.snapshots == nil {
		return nil
	}
	stored, err := c.snapshots.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			return nil
		}
		return fmt.Errorf("restore snapshot: %w", err)
	}

	c.mu.RLock()
	populated := c.version > 0
	c.mu.RUnlock()
	if populated {
		return nil
	}

	snapshot := c.replace(stored.Articles, stored.Filter, "restore")
	c.publish(ctx, snapshot, false)
	return nil
}

func (c *ArticleCache) replace(fetched []article.Article, filter article.Filter, op string) Snapshot {
	articles := make([]article.Article, 0, len(fetched))
	index := make(map[string]int, len(fetched))
	duplicates := 0
	for _, a := range fetched {
		if _, seen := index[a.URL]; seen {
			duplicates++
			continue
		}
		index[a.URL] = len(articles)
		articles = append(articles, a)
	}

	c.mu.Lock()
	c.articles = articles
	c.index = index
	c.filter = filter
	c.version++
	c.fetchedAt = c.now().UTC()
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	fields := logging.CacheFields(op, snapshot.Version, len(articles))
	if duplicates > 0 {
		fields["duplicates"] = duplicates
		c.logger.WithFields(fields).Warn("duplicate_urls_dropped")
	} else {
		c.logger.WithFields(fields).Debug("snapshot_replaced")
	}
	return snapshot
}

func (c *ArticleCache) snapshotLocked() Snapshot {
	return Snapshot{
		Articles:  slices.Clone(c.articles),
		Filter:    c.filter,
		Version:   c.version,
		FetchedAt: c.fetchedAt,
	}
}

// publish 持久化并通知订阅者。并发刷新完成替换与投递的顺序可能交错，
// 版本不大于已投递版本的快照直接丢弃，保证订阅者与快照文件只会前进。
func (c *ArticleCache) publish(ctx context.Context, snapshot Snapshot, save bool) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	if snapshot.Version <= c.published {
		c.logger.WithFields(logging.CacheFields("publish", snapshot.Version, len(snapshot.Articles))).
			Debug("stale_snapshot_skipped")
		return
	}
	c.published = snapshot.Version
	if save {
		c.persist(ctx, snapshot)
	}
	c.notify(snapshot)
}

func (c *ArticleCache) persist(ctx context.Context, snapshot Snapshot) {
	if c.snapshots == nil {
		return
	}
	if err := c.snapshots.Save(ctx, snapshot); err != nil {
		c.logger.WithError(err).
			WithFields(logging.CacheFields("persist", snapshot.Version, len(snapshot.Articles))).
			Warn("snapshot_save_failed")
	}
}

func (c *ArticleCache) notify(snapshot Snapshot) {
	c.subMu.Lock()
	listeners := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		listeners = append(listeners, fn)
	}
	c.subMu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
