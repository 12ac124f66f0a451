package manager

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/any-hub/bundle-hub/internal/cache"
	"github.com/any-hub/bundle-hub/internal/config"
	"github.com/any-hub/bundle-hub/internal/container"
	"github.com/any-hub/bundle-hub/internal/loader"
	"github.com/any-hub/bundle-hub/internal/logging"
	"github.com/any-hub/bundle-hub/internal/metrics"
	"github.com/any-hub/bundle-hub/internal/source"
)

// Deps 是 Manager 共享的进程级依赖：同一进程内的多个内容流复用同一份缓存、
// HTTP 客户端与限速器。
type Deps struct {
	Config  *config.Config
	Logger  *logrus.Logger
	Metrics *metrics.Metrics
	Store   cache.Store
	Client  *http.Client
	Limiter *rate.Limiter
	Opener  container.Opener
	Scenes  loader.SceneHost
}

// NewDeps 按配置构建默认依赖。
func NewDeps(cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics) (Deps, error) {
	if cfg == nil {
		return Deps{}, errors.New("config is nil")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		return Deps{}, fmt.Errorf("init cache store: %w", err)
	}
	return Deps{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Store:   store,
		Client:  source.NewHTTPClient(cfg, logger),
		Limiter: source.NewLimiter(cfg.Global.RequestsPerSecond),
		Opener:  container.ZipOpener{},
	}, nil
}

func (d Deps) factory(key string) *source.Factory {
	return &source.Factory{
		Stream:      key,
		ContentRoot: d.Config.Global.ContentRoot,
		Client:      d.Client,
		Limiter:     d.Limiter,
		Store:       d.Store,
		Opener:      d.Opener,
		Logger:      d.Logger,
	}
}
