package loader

import (
	"context"
	"errors"

	"github.com/any-hub/bundle-hub/internal/errs"
	"github.com/any-hub/bundle-hub/internal/logging"
)

var errStaleHandle = errors.New("stale object handle")

// LoadObject 确保 bundle 已加载（首次访问时连同依赖加载），解析对象路径并物化对象，
// 每次调用引用计数加一，同一路径返回同一句柄。
func (l *Loader) LoadObject(ctx context.Context, bundle, name string) (Handle, error) {
	h, err := l.loadObject(ctx, bundle, name)
	l.opts.Metrics.ObserveObjectLoad(l.opts.Stream, err)
	return h, err
}

func (l *Loader) loadObject(ctx context.Context, bundle, name string) (Handle, error) {
	b, err := l.ensureBundle(ctx, "load_object", bundle)
	if err != nil {
		return Handle{}, err
	}
	path, err := l.resolvePath("load_object", bundle, name)
	if err != nil {
		return Handle{}, err
	}

	b.matMu.Lock()
	defer b.matMu.Unlock()

	if h, ok := l.retain(b, path, false); ok {
		return h, nil
	}

	value, err := b.archive.LoadObject(ctx, path)
	if err != nil {
		return Handle{}, errs.Transfer("load_object", bundle+"/"+name, err)
	}

	l.mu.Lock()
	if l.bundles[bundle] != b {
		l.mu.Unlock()
		_ = b.archive.Release(path, value)
		return Handle{}, errs.Unavailable("load_object", bundle, errors.New("bundle unloaded during load"))
	}
	t := &tracked{value: value, refs: 1}
	t.handle = l.arena.alloc(b, path)
	b.objects[path] = t
	l.mu.Unlock()

	l.opts.Metrics.AddTrackedObjects(l.opts.Stream, 1)
	return t.handle, nil
}

// retain 对已跟踪条目加一；bundle 已被卸载或条目不存在时返回 false。
func (l *Loader) retain(b *LoadedBundle, path string, scene bool) (Handle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bundles[b.name] != b {
		return Handle{}, false
	}
	t, ok := b.entries(scene)[path]
	if !ok {
		return Handle{}, false
	}
	t.refs++
	return t.handle, true
}

// Object 返回句柄对应的对象；句柄在对象释放后失效并返回 ErrResourceUnavailable。
func (l *Loader) Object(h Handle) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.arena.get(h)
	if !ok {
		return nil, errs.Unavailable("object", h.String(), errStaleHandle)
	}
	t := s.bundle.objects[s.path]
	if t == nil {
		return nil, errs.Unavailable("object", h.String(), errStaleHandle)
	}
	return t.value, nil
}

// UnloadObject 按对象名减少引用计数，归零时移除条目并释放对象。
// 宽松模式下未跟踪的条目静默忽略；严格模式返回 ErrUnknownObject。
func (l *Loader) UnloadObject(bundle, name string) error {
	path, err := l.resolvePath("unload_object", bundle, name)
	if err != nil {
		return err
	}
	return l.release(context.Background(), "unload_object", bundle, path, false)
}

// UnloadObjectHandle 按句柄减少引用计数；失效句柄总是返回 ErrResourceUnavailable。
func (l *Loader) UnloadObjectHandle(bundle string, h Handle) error {
	l.mu.Lock()
	s, ok := l.arena.get(h)
	if !ok || s.bundle.name != bundle {
		l.mu.Unlock()
		return errs.Unavailable("unload_object", bundle, errStaleHandle)
	}
	path := s.path
	l.mu.Unlock()
	return l.release(context.Background(), "unload_object", bundle, path, false)
}

// LoadScene 与对象使用相同的计数模型，但跟踪的值为 nil：场景属于进程级状态，
// 仅在首次引用时调用 SceneHost.LoadScene。
func (l *Loader) LoadScene(ctx context.Context, bundle, scene string) error {
	b, err := l.ensureBundle(ctx, "load_scene", bundle)
	if err != nil {
		return err
	}
	path, err := l.resolvePath("load_scene", bundle, scene)
	if err != nil {
		return err
	}

	b.matMu.Lock()
	defer b.matMu.Unlock()

	if _, ok := l.retain(b, path, true); ok {
		return nil
	}
	if err := l.opts.Scenes.LoadScene(ctx, bundle, path); err != nil {
		return errs.Transfer("load_scene", bundle+"/"+scene, err)
	}

	l.mu.Lock()
	if l.bundles[bundle] != b {
		l.mu.Unlock()
		_ = l.opts.Scenes.UnloadScene(ctx, bundle, path)
		return errs.Unavailable("load_scene", bundle, errors.New("bundle unloaded during load"))
	}
	b.scenes[path] = &tracked{refs: 1}
	l.mu.Unlock()

	l.opts.Metrics.AddTrackedObjects(l.opts.Stream, 1)
	return nil
}

// UnloadScene 减少场景引用计数，归零时调用 SceneHost.UnloadScene。
func (l *Loader) UnloadScene(ctx context.Context, bundle, scene string) error {
	path, err := l.resolvePath("unload_scene", bundle, scene)
	if err != nil {
		return err
	}
	return l.release(ctx, "unload_scene", bundle, path, true)
}

func (l *Loader) release(ctx context.Context, op, bundle, path string, scene bool) error {
	l.mu.Lock()
	b := l.bundles[bundle]
	var t *tracked
	if b != nil {
		t = b.entries(scene)[path]
	}
	if t == nil {
		l.mu.Unlock()
		if l.opts.Strict {
			return errs.UnknownObject(op, bundle+"/"+path)
		}
		l.opts.Logger.WithFields(logging.BundleFields(op, l.opts.Stream, bundle, "")).
			WithField("object", path).
			Debug("untracked entry ignored")
		return nil
	}
	if t.refs > 0 {
		t.refs--
	}
	if t.refs > 0 {
		l.mu.Unlock()
		return nil
	}
	delete(b.entries(scene), path)
	if !scene {
		l.arena.release(t.handle)
	}
	l.mu.Unlock()

	l.opts.Metrics.AddTrackedObjects(l.opts.Stream, -1)
	if scene {
		if err := l.opts.Scenes.UnloadScene(ctx, bundle, path); err != nil {
			return errs.Transfer(op, bundle+"/"+path, err)
		}
		return nil
	}
	if err := b.archive.Release(path, t.value); err != nil {
		return errs.Transfer(op, bundle+"/"+path, err)
	}
	return nil
}

// ensureBundle 返回可用的 bundle；首次访问时连同依赖加载，已记录为不可用时
// 返回 ErrResourceUnavailable。
func (l *Loader) ensureBundle(ctx context.Context, op, name string) (*LoadedBundle, error) {
	l.mu.Lock()
	b := l.bundles[name]
	l.mu.Unlock()

	if b == nil {
		loaded, err := l.LoadBundle(ctx, name, true)
		if err != nil {
			return nil, err
		}
		b = loaded
	}
	if !b.Available() {
		return nil, errs.Unavailable(op, name, b.err)
	}
	return b, nil
}

// resolvePath 先查 catalog（精确后大小写不敏感），再查内容源自带的解析器；
// 宽松模式下回退为对象名本身。
func (l *Loader) resolvePath(op, bundle, name string) (string, error) {
	if _, ok := l.catalog.Bundle(bundle); !ok {
		return "", errs.UnknownBundle(op, bundle)
	}
	if p, ok := l.catalog.ObjectPath(bundle, name); ok {
		return p, nil
	}
	if r, ok := l.source.(ObjectResolver); ok {
		if p, ok := r.ResolveObject(bundle, name); ok {
			return p, nil
		}
	}
	if l.opts.Strict {
		return "", errs.UnknownObject(op, bundle+"/"+name)
	}
	return name, nil
}
