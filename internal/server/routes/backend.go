package routes

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/linkshelf/linkshelf/internal/article"
	"github.com/linkshelf/linkshelf/internal/gateway"
)

// RegisterBackendRoutes 暴露 /-/backend 诊断接口，并提供模拟“其他客户端”写入的入口
// （相当于快捷保存当前页面，未给出标签时打上 auto-saved），便于在开发时观察轮询器的刷新行为。
func RegisterBackendRoutes(app *fiber.App, backend *gateway.MemoryBackend) {
	if app == nil || backend == nil {
		return
	}

	app.Get("/-/backend", func(c fiber.Ctx) error {
		return c.JSON(encodeBackend(backend))
	})

	app.Post("/-/backend/external", func(c fiber.Ctx) error {
		var req article.UpsertRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json"})
		}
		req = req.Trimmed()
		if req.Tags == "" {
			req.Tags = gateway.AutoSavedTag
		}
		if err := req.Validate(); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": gateway.ErrorCodeInvalid, "message": err.Error()})
		}
		backend.ExternalPut(req)
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Delete("/-/backend/external", func(c fiber.Ctx) error {
		target := strings.TrimSpace(c.Query(gateway.QueryURL))
		if target == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
		}
		backend.ExternalDelete(target)
		return c.SendStatus(fiber.StatusNoContent)
	})
}

type backendPayload struct {
	Articles int      `json:"articles"`
	Opened   []string `json:"opened"`
}

func encodeBackend(backend *gateway.MemoryBackend) backendPayload {
	opened := backend.Opened()
	if opened == nil {
		opened = []string{}
	}
	return backendPayload{
		Articles: backend.Len(),
		Opened:   opened,
	}
}
