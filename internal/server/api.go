package server

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/linkshelf/linkshelf/internal/article"
	"github.com/linkshelf/linkshelf/internal/gateway"
)

type apiHandler struct {
	backend      gateway.Gateway
	logger       *logrus.Logger
	defaultLimit int
}

func (h *apiHandler) register(app *fiber.App) {
	app.Get(gateway.PathArticles, h.listArticles)
	app.Post(gateway.PathArticles, h.saveArticle)
	app.Put(gateway.PathArticles, h.updateArticle)
	app.Delete(gateway.PathArticles, h.deleteArticle)
	app.Post(gateway.PathOpen, h.openURL)
	app.Get(gateway.PathPopularTags, h.popularTags)
	app.Get(gateway.PathPopularSites, h.popularSites)
	app.Get(gateway.PathRefreshNeeded, h.refreshNeeded)
}

func (h *apiHandler) listArticles(c fiber.Ctx) error {
	filter := article.Filter{
		TagQuery: c.Query(gateway.QueryTagQuery),
		Site:     c.Query(gateway.QuerySite),
	}
	articles, err := h.backend.GetArticles(c.Context(), filter)
	if err != nil {
		return h.fail(c, gateway.OpGetArticles, err)
	}
	if articles == nil {
		articles = []article.Article{}
	}
	return c.JSON(articles)
}

func (h *apiHandler) saveArticle(c fiber.Ctx) error {
	var req article.UpsertRequest
	if err := decodeBody(c, &req); err != nil {
		return h.fail(c, gateway.OpSaveArticle, err)
	}
	status, err := h.backend.SaveArticle(c.Context(), req)
	if err != nil {
		return h.fail(c, gateway.OpSaveArticle, err)
	}
	return c.JSON(gateway.SaveResponse{Status: status})
}

func (h *apiHandler) updateArticle(c fiber.Ctx) error {
	var payload gateway.UpdatePayload
	if err := decodeBody(c, &payload); err != nil {
		return h.fail(c, gateway.OpUpdateArticle, err)
	}
	if strings.TrimSpace(payload.OriginalURL) == "" {
		return h.fail(c, gateway.OpUpdateArticle, &article.ValidationError{Field: "original_url", Reason: "must not be empty"})
	}
	status, err := h.backend.UpdateArticle(c.Context(), payload.OriginalURL, payload.UpsertRequest)
	if err != nil {
		return h.fail(c, gateway.OpUpdateArticle, err)
	}
	return c.JSON(gateway.SaveResponse{Status: status})
}

func (h *apiHandler) deleteArticle(c fiber.Ctx) error {
	target := c.Query(gateway.QueryURL)
	if err := article.ValidateURL(target); err != nil {
		return h.fail(c, gateway.OpDeleteArticle, err)
	}
	if err := h.backend.DeleteArticle(c.Context(), target); err != nil {
		return h.fail(c, gateway.OpDeleteArticle, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *apiHandler) openURL(c fiber.Ctx) error {
	var payload gateway.OpenPayload
	if err := decodeBody(c, &payload); err != nil {
		return h.fail(c, gateway.OpOpenURL, err)
	}
	if err := article.ValidateURL(payload.URL); err != nil {
		return h.fail(c, gateway.OpOpenURL, err)
	}
	if err := h.backend.OpenURL(c.Context(), payload.URL); err != nil {
		return h.fail(c, gateway.OpOpenURL, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *apiHandler) popularTags(c fiber.Ctx) error {
	limit, err := h.limit(c)
	if err != nil {
		return h.fail(c, gateway.OpPopularTags, err)
	}
	tags, err := h.backend.PopularTags(c.Context(), limit)
	if err != nil {
		return h.fail(c, gateway.OpPopularTags, err)
	}
	if tags == nil {
		tags = []article.TagCount{}
	}
	return c.JSON(tags)
}

func (h *apiHandler) popularSites(c fiber.Ctx) error {
	limit, err := h.limit(c)
	if err != nil {
		return h.fail(c, gateway.OpPopularSites, err)
	}
	sites, err := h.backend.PopularSites(c.Context(), limit)
	if err != nil {
		return h.fail(c, gateway.OpPopularSites, err)
	}
	if sites == nil {
		sites = []article.SiteCount{}
	}
	return c.JSON(sites)
}

func (h *apiHandler) refreshNeeded(c fiber.Ctx) error {
	needed, err := h.backend.CheckRefreshNeeded(c.Context())
	if err != nil {
		return h.fail(c, gateway.OpCheckRefreshNeeded, err)
	}
	return c.JSON(gateway.RefreshResponse{RefreshNeeded: needed})
}

func (h *apiHandler) limit(c fiber.Ctx) (int, error) {
	raw := strings.TrimSpace(c.Query(gateway.QueryLimit))
	if raw == "" {
		return h.defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, &article.ValidationError{Field: gateway.QueryLimit, Reason: "must be a positive integer"}
	}
	return limit, nil
}

// fail 把领域错误映射为 HTTP 状态码与统一的 ErrorResponse。
func (h *apiHandler) fail(c fiber.Ctx, op string, err error) error {
	status := fiber.StatusBadGateway
	payload := gateway.ErrorResponse{Error: gateway.ErrorCodeTransport, Message: err.Error()}

	var (
		validationErr *article.ValidationError
		notFoundErr   *article.NotFoundError
	)
	switch {
	case errors.As(err, &validationErr):
		status = fiber.StatusUnprocessableEntity
		payload = gateway.ErrorResponse{Error: gateway.ErrorCodeInvalid, Message: validationErr.Reason, Field: validationErr.Field}
	case errors.As(err, &notFoundErr):
		status = fiber.StatusNotFound
		payload = gateway.ErrorResponse{Error: gateway.ErrorCodeNotFound, Message: err.Error()}
	}

	h.logger.WithError(err).WithFields(logrus.Fields{
		"action":     "serve",
		"op":         op,
		"request_id": RequestID(c),
		"status":     status,
	}).Warn("request_failed")

	return c.Status(status).JSON(payload)
}

func decodeBody(c fiber.Ctx, out any) error {
	body := c.Body()
	if len(body) == 0 {
		return &article.ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &article.ValidationError{Field: "body", Reason: "invalid json: " + err.Error()}
	}
	return nil
}
