package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ContentPrefix 是构建产物的挂载前缀。
const ContentPrefix = "/content/"

// ContentHandler describes the component responsible for serving one
// published file. It allows injecting fake handlers during tests.
type ContentHandler interface {
	Handle(c fiber.Ctx, relPath string) error
}

// ContentHandlerFunc adapts a function to the ContentHandler interface.
type ContentHandlerFunc func(fiber.Ctx, string) error

// Handle makes ContentHandlerFunc satisfy ContentHandler.
func (f ContentHandlerFunc) Handle(c fiber.Ctx, relPath string) error {
	return f(c, relPath)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Content    ContentHandler
	ListenPort int
}

const contextKeyRequestID = "_bundlehub_request_id"

// NewApp builds a Fiber application with request-id middleware and the
// content route. Diagnostics routes are attached afterwards by the caller.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Content == nil {
		return nil, errors.New("content handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	content := func(c fiber.Ctx) error {
		rel := strings.TrimPrefix(string(c.Request().URI().Path()), ContentPrefix)
		return opts.Content.Handle(c, rel)
	}
	app.Get(ContentPrefix+"*", content)
	app.Head(ContentPrefix+"*", content)

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID 并写回响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
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

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}
