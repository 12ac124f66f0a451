package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/any-hub/bundle-hub/internal/metrics"
)

// RegisterMetricsRoutes 在 /-/metrics 暴露进程私有的 Prometheus Registry。
func RegisterMetricsRoutes(app *fiber.App, m *metrics.Metrics) {
	if app == nil || m == nil {
		return
	}
	handler := promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
	app.Get("/-/metrics", adaptor.HTTPHandler(handler))
}
