package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/bundle-hub/internal/manager"
)

// RegisterBundleRoutes 暴露 /-/bundles 诊断接口，输出每个内容流的加载状态与对象引用计数。
func RegisterBundleRoutes(app *fiber.App, registry *manager.Registry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/bundles", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"streams": registry.Status(),
		})
	})

	app.Get("/-/bundles/:key", func(c fiber.Ctx) error {
		key := c.Params("key")
		if key == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "stream_key_required"})
		}
		for _, status := range registry.Status() {
			if status.Key == key {
				return c.JSON(status)
			}
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "stream_not_found"})
	})
}
