// Package loader owns the runtime bundle cache: dependency-ordered bundle
// loads with at most one physical load per name in flight, and the
// reference-counted object and scene tracking inside each loaded bundle.
// The loaded-bundle map, every bundle's object map and the handle arena
// are mutated only here, under Loader.mu.
package loader

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/bundle-hub/internal/catalog"
	"github.com/any-hub/bundle-hub/internal/container"
	"github.com/any-hub/bundle-hub/internal/errs"
	"github.com/any-hub/bundle-hub/internal/logging"
	"github.com/any-hub/bundle-hub/internal/metrics"
)

// BundleOpener 是 loader 需要的内容源能力。
type BundleOpener interface {
	OpenBundle(ctx context.Context, entry catalog.BundleEntry) (container.Archive, error)
}

// ObjectResolver 由能够自行解析对象名的内容源实现（开发模式索引）。
type ObjectResolver interface {
	ResolveObject(bundle, name string) (string, bool)
}

// Options 控制 Loader 行为。
type Options struct {
	Stream string
	// Strict 为 true 时未知对象名与卸载未跟踪条目返回 ErrUnknownObject。
	Strict      bool
	Concurrency int
	Scenes      SceneHost
	Logger      *logrus.Logger
	Metrics     *metrics.Metrics
}

// Loader 是运行时 bundle 缓存。
type Loader struct {
	opts    Options
	catalog *catalog.Catalog
	source  BundleOpener

	flights singleflight.Group

	mu      sync.Mutex
	bundles map[string]*LoadedBundle
	arena   arena
}

// LoadedBundle 是已加载（或加载失败）的 bundle。加载失败时 archive 为 nil，
// 对它的对象加载返回 ErrResourceUnavailable。
type LoadedBundle struct {
	name    string
	archive container.Archive
	err     error

	// matMu 串行化同一 bundle 内的对象物化，避免同一路径被重复加载。
	matMu   sync.Mutex
	objects map[string]*tracked
	scenes  map[string]*tracked
}

type tracked struct {
	value  any
	refs   int
	handle Handle
}

func newLoadedBundle(name string, archive container.Archive, err error) *LoadedBundle {
	return &LoadedBundle{
		name:    name,
		archive: archive,
		err:     err,
		objects: make(map[string]*tracked),
		scenes:  make(map[string]*tracked),
	}
}

func (b *LoadedBundle) entries(scene bool) map[string]*tracked {
	if scene {
		return b.scenes
	}
	return b.objects
}

func (b *LoadedBundle) Name() string { return b.name }

// Available 表示 bundle 已成功打开。
func (b *LoadedBundle) Available() bool { return b != nil && b.archive != nil }

// Err 返回加载失败的原因。
func (b *LoadedBundle) Err() error { return b.err }

// New 创建 Loader；catalog 在其生命周期内只读。
func New(c *catalog.Catalog, source BundleOpener, opts Options) *Loader {
	if opts.Scenes == nil {
		opts.Scenes = NewSceneTable()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Loader{
		opts:    opts,
		catalog: c,
		source:  source,
		bundles: make(map[string]*LoadedBundle),
	}
}

// LoadBundle 加载 name 及（可选）其依赖，依赖之间并发加载，全部完成后返回。
// 单个 bundle 失败不会中断其它加载：失败记录为不可用句柄，返回值 error 为 nil。
func (l *Loader) LoadBundle(ctx context.Context, name string, withDependencies bool) (*LoadedBundle, error) {
	entry, ok := l.catalog.Bundle(name)
	if !ok {
		return nil, errs.UnknownBundle("load_bundle", name)
	}

	targets := []string{name}
	if withDependencies {
		targets = append(l.catalog.Closure(entry.Name), name)
	}
	pending := l.missing(targets)

	var (
		g      errgroup.Group
		result *LoadedBundle
	)
	g.SetLimit(l.opts.Concurrency)
	for _, target := range pending {
		g.Go(func() error {
			b := l.loadOne(ctx, target)
			if target == name {
				result = b
			}
			return nil
		})
	}
	_ = g.Wait()

	if result == nil {
		l.mu.Lock()
		result = l.bundles[name]
		l.mu.Unlock()
	}
	if result == nil {
		// 在等待期间被并发卸载。
		return nil, errs.Unavailable("load_bundle", name, nil)
	}
	return result, nil
}

// missing 过滤掉已可用的 bundle，保持调用顺序并去重；不可用的 bundle 会被重试。
func (l *Loader) missing(names []string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		if b := l.bundles[n]; b.Available() {
			continue
		}
		out = append(out, n)
	}
	return out
}

// loadOne 保证同名 bundle 同时至多一次物理加载：并发调用方加入同一 flight，
// flight 内部再次检查缓存，已完成的加载不会被重复执行。
// 物理加载脱离调用方的取消信号运行；每个调用方只按自己的 ctx 放弃等待，
// 放弃时得到一个不写入缓存的不可用句柄。
func (l *Loader) loadOne(ctx context.Context, name string) *LoadedBundle {
	if err := ctx.Err(); err != nil {
		return newLoadedBundle(name, nil, err)
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := l.flights.DoChan(name, func() (any, error) {
		l.mu.Lock()
		if b := l.bundles[name]; b.Available() {
			l.mu.Unlock()
			return b, nil
		}
		l.mu.Unlock()

		started := time.Now()
		var (
			archive container.Archive
			err     error
		)
		if entry, ok := l.catalog.Bundle(name); !ok {
			err = errs.UnknownBundle("load_bundle", name)
		} else {
			archive, err = l.source.OpenBundle(loadCtx, entry)
			if err == nil && archive == nil {
				err = errs.Unavailable("load_bundle", name, nil)
			}
		}
		b := newLoadedBundle(name, archive, err)

		l.mu.Lock()
		l.bundles[name] = b
		loaded := len(l.bundles)
		l.mu.Unlock()

		l.opts.Metrics.ObserveBundleLoad(l.opts.Stream, started, err)
		l.opts.Metrics.SetLoadedBundles(l.opts.Stream, loaded)
		fields := logging.BundleFields("load_bundle", l.opts.Stream, name, "")
		fields["elapsed_ms"] = time.Since(started).Milliseconds()
		if err != nil {
			l.opts.Logger.WithFields(fields).WithError(err).Warn("bundle unavailable")
		} else {
			l.opts.Logger.WithFields(fields).Debug("bundle loaded")
		}
		return b, nil
	})
	select {
	case res := <-ch:
		return res.Val.(*LoadedBundle)
	case <-ctx.Done():
		return newLoadedBundle(name, nil, ctx.Err())
	}
}

// Bundle 返回当前缓存中的 bundle。
func (l *Loader) Bundle(name string) (*LoadedBundle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bundles[name]
	return b, ok
}

// UnloadBundle 移除 bundle 及其全部对象条目（无论引用计数），并释放底层资源。
// 不级联到依赖：依赖需单独卸载。releaseAll 为 true 时同时释放仍被引用的对象与场景。
func (l *Loader) UnloadBundle(ctx context.Context, name string, releaseAll bool) error {
	if _, ok := l.catalog.Bundle(name); !ok {
		return errs.UnknownBundle("unload_bundle", name)
	}

	l.mu.Lock()
	b := l.bundles[name]
	if b == nil {
		l.mu.Unlock()
		return nil
	}
	delete(l.bundles, name)
	objects, scenes := b.objects, b.scenes
	for _, t := range objects {
		l.arena.release(t.handle)
	}
	b.objects = make(map[string]*tracked)
	b.scenes = make(map[string]*tracked)
	loaded := len(l.bundles)
	l.mu.Unlock()

	released := len(objects) + len(scenes)
	l.opts.Metrics.SetLoadedBundles(l.opts.Stream, loaded)
	l.opts.Metrics.AddTrackedObjects(l.opts.Stream, -released)

	if b.archive == nil {
		return nil
	}
	if releaseAll {
		for path, t := range objects {
			_ = b.archive.Release(path, t.value)
		}
		for path := range scenes {
			if err := l.opts.Scenes.UnloadScene(ctx, name, path); err != nil {
				l.opts.Logger.WithFields(logging.BundleFields("unload_bundle", l.opts.Stream, name, "")).
					WithField("scene", path).WithError(err).Warn("scene unload failed")
			}
		}
	}
	if err := b.archive.Close(releaseAll); err != nil {
		return errs.Transfer("unload_bundle", name, err)
	}
	l.opts.Logger.WithFields(logging.BundleFields("unload_bundle", l.opts.Stream, name, "")).
		WithFields(logrus.Fields{"objects": released, "release_all": releaseAll}).
		Debug("bundle unloaded")
	return nil
}

// UnloadAll 卸载全部 bundle，用于 Manager 关闭。
func (l *Loader) UnloadAll(ctx context.Context, releaseAll bool) error {
	l.mu.Lock()
	names := make([]string, 0, len(l.bundles))
	for name := range l.bundles {
		names = append(names, name)
	}
	l.mu.Unlock()
	sort.Strings(names)

	var firstErr error
	for _, name := range names {
		if err := l.UnloadBundle(ctx, name, releaseAll); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
