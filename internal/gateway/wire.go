package gateway

import "github.com/linkshelf/linkshelf/internal/article"

// HTTP API paths shared by HTTPGateway and the dev server.
const (
	PathArticles       = "/api/articles"
	PathOpen           = "/api/open"
	PathPopularTags    = "/api/popular/tags"
	PathPopularSites   = "/api/popular/sites"
	PathRefreshNeeded  = "/api/refresh-needed"
	HeaderRequestID    = "X-Request-ID"
	QueryTagQuery      = "tag_query"
	QuerySite          = "site"
	QueryURL           = "url"
	QueryLimit         = "limit"
	ErrorCodeNotFound  = "not_found"
	ErrorCodeInvalid   = "invalid_request"
	ErrorCodeTransport = "backend_error"
)

// SaveResponse 是保存/更新接口的响应体。
type SaveResponse struct {
	Status article.SaveStatus `json:"status"`
}

// UpdatePayload 携带原始 URL，以便后端在 URL 被修改时定位旧记录。
type UpdatePayload struct {
	OriginalURL string `json:"original_url"`
	article.UpsertRequest
}

// OpenPayload is the body of the open-url call.
type OpenPayload struct {
	URL string `json:"url"`
}

// RefreshResponse is the body of the change probe.
type RefreshResponse struct {
	RefreshNeeded bool `json:"refresh_needed"`
}

// ErrorResponse 是所有非 2xx 响应的统一 JSON 结构。
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}
