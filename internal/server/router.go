package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/linkshelf/linkshelf/internal/gateway"
)

// AppOptions controls how the Fiber application serves the article API.
type AppOptions struct {
	Logger  *logrus.Logger
	Backend gateway.Gateway
	// DefaultLimit is used by the popularity endpoints when ?limit= is absent.
	DefaultLimit int
}

const (
	contextKeyRequestID = "_linkshelf_request_id"
	defaultPopularLimit = 10
)

// NewApp builds a Fiber application exposing Backend over the JSON wire
// contract that gateway.HTTPGateway speaks.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = defaultPopularLimit
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	h := &apiHandler{backend: opts.Backend, logger: opts.Logger, defaultLimit: opts.DefaultLimit}
	h.register(app)

	app.Get("/-/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	return app, nil
}

// requestContextMiddleware 沿用调用方的 X-Request-ID（没有则生成），并在响应中回写。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := strings.TrimSpace(c.Get(gateway.HeaderRequestID))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Locals(contextKeyRequestID, reqID)
		c.Set(gateway.HeaderRequestID, reqID)

		err := c.Next()
		if isDiagnosticsPath(c.Path()) {
			return err
		}
		logger.WithFields(logrus.Fields{
			"action":     "serve",
			"request_id": reqID,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
		}).Debug("request_complete")
		return err
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
