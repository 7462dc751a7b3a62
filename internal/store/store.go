// Package store is the view-model facade the presentation layer talks to.
// A Store is constructed explicitly and passed by reference to the view and
// to the poller; it owns no global state.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/linkshelf/linkshelf/internal/article"
	"github.com/linkshelf/linkshelf/internal/cache"
	"github.com/linkshelf/linkshelf/internal/gateway"
	"github.com/linkshelf/linkshelf/internal/query"
)

// Defaults for the popularity limits used by RefreshAll.
const (
	DefaultTagLimit  = 20
	DefaultSiteLimit = 10
)

// Options 汇总 Store 的依赖。
type Options struct {
	Gateway   gateway.Gateway
	Cache     *cache.ArticleCache
	Logger    *logrus.Logger
	TagLimit  int
	SiteLimit int
}

// Store 组合 Gateway 与 ArticleCache，对外暴露类型化的查询/命令接口。
type Store struct {
	gateway   gateway.Gateway
	cache     *cache.ArticleCache
	logger    *logrus.Logger
	tagLimit  int
	siteLimit int
}

// New 构造 Store；未提供 Cache 时基于 Gateway 创建一个不带持久化的缓存。
func New(opts Options) (*Store, error) {
	if opts.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	articleCache := opts.Cache
	if articleCache == nil {
		created, err := cache.New(cache.Options{Gateway: opts.Gateway, Logger: logger})
		if err != nil {
			return nil, err
		}
		articleCache = created
	}
	tagLimit := opts.TagLimit
	if tagLimit <= 0 {
		tagLimit = DefaultTagLimit
	}
	siteLimit := opts.SiteLimit
	if siteLimit <= 0 {
		siteLimit = DefaultSiteLimit
	}

	return &Store{
		gateway:   opts.Gateway,
		cache:     articleCache,
		logger:    logger,
		tagLimit:  tagLimit,
		siteLimit: siteLimit,
	}, nil
}

// Search 以新的过滤条件整体刷新缓存并返回结果；空参数表示该维度不约束。
func (s *Store) Search(ctx context.Context, tagQuery, site string) ([]article.Article, error) {
	return s.cache.Refresh(ctx, article.Filter{TagQuery: tagQuery, Site: site})
}

// ListArticles returns the current snapshot without contacting the backend.
func (s *Store) ListArticles() []article.Article {
	return s.cache.List()
}

// ActiveFilter returns the filter behind the current snapshot.
func (s *Store) ActiveFilter() article.Filter {
	return s.cache.Filter()
}

// Snapshot returns the current snapshot with metadata.
func (s *Store) Snapshot() cache.Snapshot {
	return s.cache.Snapshot()
}

// Upsert 创建或更新文章。editingURL 为空表示新建，否则表示编辑该 URL 对应的文章；
// 返回值以后端报告为准。
func (s *Store) Upsert(ctx context.Context, req article.UpsertRequest, editingURL string) (article.SaveStatus, error) {
	return s.cache.CreateOrUpdate(ctx, req, editingURL)
}

// Delete forwards the removal to the backend and refreshes the snapshot.
func (s *Store) Delete(ctx context.Context, url string) error {
	return s.cache.Remove(ctx, url)
}

// PopularTags never fails; see ArticleCache.PopularTags.
func (s *Store) PopularTags(ctx context.Context, limit int) []article.TagCount {
	return s.cache.PopularTags(ctx, limit)
}

// PopularSites never fails; see ArticleCache.PopularSites.
func (s *Store) PopularSites(ctx context.Context, limit int) []article.SiteCount {
	return s.cache.PopularSites(ctx, limit)
}

// CachedPopularTags returns the last good tag aggregate without a backend call.
func (s *Store) CachedPopularTags() []article.TagCount {
	return s.cache.CachedPopularTags()
}

// CachedPopularSites returns the last good site aggregate without a backend call.
func (s *Store) CachedPopularSites() []article.SiteCount {
	return s.cache.CachedPopularSites()
}

// OpenURL 请求后端打开链接，空 URL 在本地直接拒绝。
func (s *Store) OpenURL(ctx context.Context, url string) error {
	if err := article.ValidateURL(url); err != nil {
		return err
	}
	if err := s.gateway.OpenURL(ctx, url); err != nil {
		return article.NewTransportError(gateway.OpOpenURL, err)
	}
	return nil
}

// SuggestTag 实现标签建议的点击追加：tag 已在当前过滤条件中时保持不变，
// 否则追加。返回新的 tag 查询，由调用方决定是否 Search。
func (s *Store) SuggestTag(tag string) string {
	return query.AppendTag(s.cache.Filter().TagQuery, tag)
}

// SuggestFormTag 把热门标签追加到编辑表单的 tags 字段，保留原有大小写。
func (s *Store) SuggestFormTag(currentTags, tag string) string {
	return query.AppendFormTag(currentTags, tag)
}

// Subscribe registers fn for every snapshot replacement, whether triggered by
// a direct call or by the poller.
func (s *Store) Subscribe(fn func(cache.Snapshot)) (cancel func()) {
	return s.cache.Subscribe(fn)
}

// Restore seeds the snapshot from persistent storage, if configured.
func (s *Store) Restore(ctx context.Context) error {
	return s.cache.Restore(ctx)
}

// CheckRefreshNeeded 透传给 Gateway，使 Store 可以直接作为 poller.Prober。
func (s *Store) CheckRefreshNeeded(ctx context.Context) (bool, error) {
	needed, err := s.gateway.CheckRefreshNeeded(ctx)
	if err != nil {
		return false, article.NewTransportError(gateway.OpCheckRefreshNeeded, err)
	}
	return needed, nil
}

// RefreshAll 依次刷新文章（沿用上次过滤条件）与两项热门聚合。
// 文章刷新失败时直接返回，不再请求聚合。
func (s *Store) RefreshAll(ctx context.Context) error {
	if _, err := s.cache.Reload(ctx); err != nil {
		return fmt.Errorf("refresh articles: %w", err)
	}
	tags := s.cache.PopularTags(ctx, s.tagLimit)
	sites := s.cache.PopularSites(ctx, s.siteLimit)

	s.logger.WithFields(logrus.Fields{
		"action":   "store",
		"op":       "refresh_all",
		"articles": len(s.cache.List()),
		"tags":     len(tags),
		"sites":    len(sites),
	}).Debug("refresh_all_complete")
	return nil
}

// Limits returns the popularity limits used by RefreshAll.
func (s *Store) Limits() (tags, sites int) {
	return s.tagLimit, s.siteLimit
}
