// Package manager composes the catalog, content source, patch engine and
// runtime loader into the public lifecycle: initialize, ready-patch,
// apply-patch, then load and unload bundles, objects and scenes.
package manager

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/bundle-hub/internal/catalog"
	"github.com/any-hub/bundle-hub/internal/config"
	"github.com/any-hub/bundle-hub/internal/errs"
	"github.com/any-hub/bundle-hub/internal/loader"
	"github.com/any-hub/bundle-hub/internal/logging"
	"github.com/any-hub/bundle-hub/internal/patch"
	"github.com/any-hub/bundle-hub/internal/settings"
	"github.com/any-hub/bundle-hub/internal/source"
)

// Manager 是单个内容流的门面。catalog 在 Initialize 时加载一次，生命周期内只读；
// 新版本内容需要重新 Initialize。
type Manager struct {
	key     string
	opts    config.StreamOptions
	catalog *catalog.Catalog
	source  source.Source
	engine  *patch.Engine
	loader  *loader.Loader
	logger  *logrus.Logger
}

// Initialize 读取 settings 与 catalog 并选定内容源；开发模式下改为读取授权期索引。
// 任何 settings/catalog 失败都会直接返回。
func Initialize(ctx context.Context, key string, deps Deps) (*Manager, error) {
	if deps.Config == nil {
		return nil, errors.New("config is nil")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if err := config.ValidateKey(key); err != nil {
		return nil, errs.NotFound("initialize", key, err)
	}
	started := time.Now()
	opts := deps.Config.Stream(key)

	c, src, err := openStream(ctx, key, opts, deps)
	if err != nil {
		deps.Logger.WithFields(logrus.Fields{
			"action": "initialize",
			"key":    key,
		}).WithError(err).Error("stream initialization failed")
		return nil, err
	}

	m := &Manager{
		key:     key,
		opts:    opts,
		catalog: c,
		source:  src,
		logger:  deps.Logger,
	}
	m.engine = &patch.Engine{
		Stream:      key,
		Transport:   src,
		Concurrency: deps.Config.Global.MaxConcurrentTransfers,
		Logger:      deps.Logger,
		Metrics:     deps.Metrics,
	}
	if src.Kind() == source.KindRemote && deps.Store != nil {
		m.engine.Pruner = deps.Store
	}
	m.loader = loader.New(c, src, loader.Options{
		Stream:      key,
		Strict:      opts.StrictLookups,
		Concurrency: deps.Config.Global.MaxConcurrentTransfers,
		Scenes:      deps.Scenes,
		Logger:      deps.Logger,
		Metrics:     deps.Metrics,
	})

	deps.Logger.WithFields(logrus.Fields{
		"action":     "initialize",
		"key":        key,
		"source":     src.Kind().String(),
		"load_mode":  c.LoadMode.String(),
		"bundles":    len(c.Bundles),
		"strict":     opts.StrictLookups,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("stream initialized")
	return m, nil
}

func openStream(ctx context.Context, key string, opts config.StreamOptions, deps Deps) (*catalog.Catalog, source.Source, error) {
	if opts.Simulate {
		dev, err := source.NewDev(deps.Config.Global.DevIndexRoot, deps.Config.Global.DevSourceRoot, key)
		if err != nil {
			return nil, nil, err
		}
		data, err := dev.ReadCatalog(ctx)
		if err != nil {
			return nil, nil, err
		}
		c, err := catalog.Decode(data)
		if err != nil {
			return nil, nil, err
		}
		return c, dev, nil
	}

	s, err := settings.Load(deps.Config.Global.SettingsRoot, key)
	if err != nil {
		return nil, nil, err
	}
	factory := deps.factory(key)
	bootstrap, err := factory.ForSettings(s)
	if err != nil {
		return nil, nil, err
	}
	data, err := bootstrap.ReadCatalog(ctx)
	if err != nil {
		return nil, nil, err
	}
	c, err := catalog.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	src, err := factory.ForCatalog(s.BaseLocation, c)
	if err != nil {
		return nil, nil, err
	}
	return c, src, nil
}

// Key 返回内容流 key。
func (m *Manager) Key() string { return m.key }

// Catalog 返回只读 catalog。
func (m *Manager) Catalog() *catalog.Catalog { return m.catalog }

// SourceKind 返回选定的内容源变体。
func (m *Manager) SourceKind() source.Kind { return m.source.Kind() }

// ReadyPatch 计算补丁计划。
func (m *Manager) ReadyPatch(ctx context.Context) patch.Plan {
	return m.engine.ReadyPatch(ctx, m.catalog)
}

// ApplyPatch 执行补丁计划；拉取的 bundle 只写入缓存，不保持加载。
func (m *Manager) ApplyPatch(ctx context.Context, plan patch.Plan) patch.Plan {
	return m.engine.ApplyPatch(ctx, m.catalog, plan)
}

func (m *Manager) LoadBundle(ctx context.Context, name string, withDependencies bool) (*loader.LoadedBundle, error) {
	return m.loader.LoadBundle(ctx, name, withDependencies)
}

func (m *Manager) LoadBundleAsync(ctx context.Context, name string, withDependencies bool) *loader.Future[*loader.LoadedBundle] {
	return loader.Go(func() (*loader.LoadedBundle, error) {
		return m.loader.LoadBundle(ctx, name, withDependencies)
	})
}

func (m *Manager) LoadObject(ctx context.Context, bundle, name string) (loader.Handle, error) {
	return m.loader.LoadObject(ctx, bundle, name)
}

func (m *Manager) LoadObjectAsync(ctx context.Context, bundle, name string) *loader.Future[loader.Handle] {
	return loader.Go(func() (loader.Handle, error) {
		return m.loader.LoadObject(ctx, bundle, name)
	})
}

// Object 解引用句柄。
func (m *Manager) Object(h loader.Handle) (any, error) {
	return m.loader.Object(h)
}

func (m *Manager) UnloadObject(bundle, name string) error {
	return m.loader.UnloadObject(bundle, name)
}

func (m *Manager) UnloadObjectHandle(bundle string, h loader.Handle) error {
	return m.loader.UnloadObjectHandle(bundle, h)
}

func (m *Manager) LoadScene(ctx context.Context, bundle, scene string) error {
	return m.loader.LoadScene(ctx, bundle, scene)
}

func (m *Manager) UnloadScene(ctx context.Context, bundle, scene string) error {
	return m.loader.UnloadScene(ctx, bundle, scene)
}

func (m *Manager) UnloadBundle(ctx context.Context, name string, releaseAllObjects bool) error {
	return m.loader.UnloadBundle(ctx, name, releaseAllObjects)
}

// Close 卸载全部 bundle 并释放对象。
func (m *Manager) Close(ctx context.Context) error {
	return m.loader.UnloadAll(ctx, true)
}

// Snapshot 是 Manager 的诊断视图。
type Snapshot struct {
	Key      string               `json:"key"`
	Source   string               `json:"source"`
	LoadMode string               `json:"load_mode"`
	Strict   bool                 `json:"strict"`
	Catalog  int                  `json:"catalog_bundles"`
	Bundles  []loader.BundleState `json:"bundles"`
}

func (m *Manager) Snapshot() Snapshot {
	return Snapshot{
		Key:      m.key,
		Source:   m.source.Kind().String(),
		LoadMode: m.catalog.LoadMode.String(),
		Strict:   m.opts.StrictLookups,
		Catalog:  len(m.catalog.Bundles),
		Bundles:  m.loader.Snapshot(),
	}
}
