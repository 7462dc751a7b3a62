// Package article defines the bookmark data model shared by the cache, the
// gateway adapters and the presentation layer, together with the error
// taxonomy every layer reports through.
package article

import (
	"strings"
	"time"

	"github.com/linkshelf/linkshelf/internal/query"
)

// Article 是以 URL 为唯一键的书签记录。
type Article struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Tags      string    `json:"tags"`
	Site      string    `json:"site"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TagList 拆分逗号分隔的 Tags，去除空白与空 token；空 Tags 返回零个 token。
func (a Article) TagList() []string {
	if strings.TrimSpace(a.Tags) == "" {
		return nil
	}
	parts := strings.Split(a.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

// TagCount 表示某个 tag 在全量文章中的出现次数，由后端聚合。
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SiteCount 表示某个站点的文章数量，由后端聚合。
type SiteCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Filter 描述文章查询条件，空字符串表示该维度不做约束。
type Filter struct {
	TagQuery string `json:"tag_query,omitempty"`
	Site     string `json:"site,omitempty"`
}

// Normalized returns the filter in the canonical form sent to the backend:
// the tag query is normalized and lower-cased, the site is trimmed.
func (f Filter) Normalized() Filter {
	return Filter{
		TagQuery: strings.ToLower(query.Normalize(f.TagQuery)),
		Site:     strings.TrimSpace(f.Site),
	}
}

// IsZero reports whether the filter constrains nothing.
func (f Filter) IsZero() bool {
	return f.TagQuery == "" && f.Site == ""
}

// UpsertRequest 是创建或更新文章时提交的字段，URL/Title 去空白后必填。
type UpsertRequest struct {
	URL   string `json:"url" validate:"required"`
	Title string `json:"title" validate:"required"`
	Tags  string `json:"tags,omitempty"`
}

// Trimmed 返回去除首尾空白后的请求副本。
func (r UpsertRequest) Trimmed() UpsertRequest {
	return UpsertRequest{
		URL:   strings.TrimSpace(r.URL),
		Title: strings.TrimSpace(r.Title),
		Tags:  strings.TrimSpace(r.Tags),
	}
}

// SaveStatus is the backend's verdict on a save or update.
type SaveStatus string

const (
	StatusCreated SaveStatus = "created"
	StatusUpdated SaveStatus = "updated"
)

// Valid reports whether s is one of the statuses the backend may report.
func (s SaveStatus) Valid() bool {
	return s == StatusCreated || s == StatusUpdated
}
