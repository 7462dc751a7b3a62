// Package gateway is the request/response boundary to the backend article
// store. Gateway is the contract the cache and poller consume; HTTPGateway
// speaks the JSON API served by internal/server, and MemoryBackend is an
// in-process store used for development and tests.
package gateway

import (
	"context"

	"github.com/linkshelf/linkshelf/internal/article"
)

// Operation names used in logs and TransportError.Op.
const (
	OpGetArticles        = "get_articles"
	OpSaveArticle        = "save_article"
	OpUpdateArticle      = "update_article"
	OpDeleteArticle      = "delete_article"
	OpOpenURL            = "open_url"
	OpPopularTags        = "get_popular_tags"
	OpPopularSites       = "get_popular_sites"
	OpCheckRefreshNeeded = "check_refresh_needed"
)

// Gateway 描述后端文章存储暴露的全部操作，所有调用都可能返回传输/后端错误。
type Gateway interface {
	// GetArticles 返回符合过滤条件的文章，顺序由后端决定（通常按更新时间倒序）。
	GetArticles(ctx context.Context, filter article.Filter) ([]article.Article, error)
	// SaveArticle 保存文章，由后端判断是新建还是更新。
	SaveArticle(ctx context.Context, req article.UpsertRequest) (article.SaveStatus, error)
	// UpdateArticle 更新 originalURL 指向的文章，req.URL 可以与 originalURL 不同。
	UpdateArticle(ctx context.Context, originalURL string, req article.UpsertRequest) (article.SaveStatus, error)
	// DeleteArticle 删除文章；不存在时的语义由后端决定。
	DeleteArticle(ctx context.Context, url string) error
	OpenURL(ctx context.Context, url string) error
	// PopularTags/PopularSites 返回最多 limit 条、按数量倒序的全量聚合。
	PopularTags(ctx context.Context, limit int) ([]article.TagCount, error)
	PopularSites(ctx context.Context, limit int) ([]article.SiteCount, error)
	// CheckRefreshNeeded 询问后端自上次探测后是否发生了带外变更。
	CheckRefreshNeeded(ctx context.Context) (bool, error)
}
