package patch

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/bundle-hub/internal/cache"
	"github.com/any-hub/bundle-hub/internal/catalog"
	"github.com/any-hub/bundle-hub/internal/errs"
	"github.com/any-hub/bundle-hub/internal/logging"
	"github.com/any-hub/bundle-hub/internal/metrics"
)

// Transport 是补丁引擎需要的内容源能力子集。
type Transport interface {
	CachedVersions(ctx context.Context, bundle string) ([]catalog.Hash128, error)
	ProbeSize(ctx context.Context, entry catalog.BundleEntry) (int64, error)
	Fetch(ctx context.Context, entry catalog.BundleEntry) (int64, error)
}

// Pruner 在补丁成功后清理旧版本，cache.Store 满足该接口。
type Pruner interface {
	Prune(ctx context.Context, keep cache.Locator) (int, error)
}

// Engine 负责 ReadyPatch/ApplyPatch。
type Engine struct {
	Stream      string
	Transport   Transport
	Pruner      Pruner
	Concurrency int
	Logger      *logrus.Logger
	Metrics     *metrics.Metrics
}

// ReadyPatch 计算哈希不在缓存中的 bundle 并并行探测其大小；任一探测失败返回 NotReady。
func (e *Engine) ReadyPatch(ctx context.Context, c *catalog.Catalog) Plan {
	if c == nil {
		return e.finish("ready", Plan{State: NotReady})
	}
	if c.LoadMode == catalog.Local {
		return e.finish("ready", Plan{State: Ready})
	}

	candidates := e.candidates(ctx, c)
	if len(candidates) == 0 {
		return e.finish("ready", Plan{State: Ready})
	}

	sizes := make([]int64, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit())
	for i, entry := range candidates {
		g.Go(func() error {
			size, err := e.Transport.ProbeSize(gctx, entry)
			e.Metrics.ObserveTransfer(e.Stream, "probe", size, err)
			if err != nil {
				e.log().WithFields(logging.BundleFields("patch_probe", e.Stream, entry.Name, entry.Hash.String())).
					WithError(err).
					Warn("size probe failed")
				return err
			}
			sizes[i] = size
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return e.finish("ready", Plan{State: NotReady})
	}

	plan := Plan{State: Ready, Bundles: make([]string, len(candidates))}
	for i, entry := range candidates {
		plan.Bundles[i] = entry.Name
		plan.TotalBytes += sizes[i]
	}
	return e.finish("ready", plan)
}

// candidates 按名称顺序返回缓存中没有当前哈希的条目；读取缓存失败视为未缓存。
func (e *Engine) candidates(ctx context.Context, c *catalog.Catalog) []catalog.BundleEntry {
	var out []catalog.BundleEntry
	for _, name := range c.Names() {
		entry, _ := c.Bundle(name)
		versions, err := e.Transport.CachedVersions(ctx, name)
		if err != nil {
			e.log().WithFields(logging.BundleFields("patch_diff", e.Stream, name, "")).
				WithError(err).
				Warn("cache listing failed, treating bundle as missing")
		}
		if !slices.Contains(versions, entry.Hash) {
			out = append(out, entry)
		}
	}
	return out
}

// ApplyPatch 并行拉取计划内的全部 bundle；仅当全部成功时返回 Success，
// 单个失败不会取消其它拉取，已校验写入的内容保留在缓存中。
func (e *Engine) ApplyPatch(ctx context.Context, c *catalog.Catalog, plan Plan) Plan {
	if plan.State != Ready {
		return plan
	}
	result := Plan{
		Bundles:    slices.Clone(plan.Bundles),
		TotalBytes: plan.TotalBytes,
	}
	if plan.Empty() {
		result.State = Success
		return e.finish("apply", result)
	}

	started := time.Now()
	var (
		mu     sync.Mutex
		failed []string
		done   []catalog.BundleEntry
	)
	var g errgroup.Group
	g.SetLimit(e.limit())
	for _, name := range plan.Bundles {
		g.Go(func() error {
			entry, ok := c.Bundle(name)
			var (
				written int64
				err     error
			)
			if !ok {
				err = errs.UnknownBundle("apply_patch", name)
			} else if err = ctx.Err(); err == nil {
				written, err = e.Transport.Fetch(ctx, entry)
			}
			e.Metrics.ObserveTransfer(e.Stream, "fetch", written, err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, name)
				e.log().WithFields(logging.BundleFields("patch_fetch", e.Stream, name, entry.Hash.String())).
					WithError(err).
					Warn("bundle fetch failed")
				return nil
			}
			done = append(done, entry)
			return nil
		})
	}
	_ = g.Wait()

	fields := logrus.Fields{
		"action":     "apply_patch",
		"key":        e.Stream,
		"bundles":    len(plan.Bundles),
		"failed":     len(failed),
		"bytes":      plan.TotalBytes,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
	if len(failed) > 0 {
		slices.Sort(failed)
		fields["failed_bundles"] = failed
		e.log().WithFields(fields).Warn("patch failed")
		result.State = Fail
		return e.finish("apply", result)
	}

	e.prune(ctx, done)
	e.log().WithFields(fields).Info("patch applied")
	result.State = Success
	return e.finish("apply", result)
}

// prune 清理已成功补丁的 bundle 的其它哈希版本，失败只记录日志。
func (e *Engine) prune(ctx context.Context, entries []catalog.BundleEntry) {
	if e.Pruner == nil {
		return
	}
	for _, entry := range entries {
		removed, err := e.Pruner.Prune(ctx, cache.Locator{Stream: e.Stream, Bundle: entry.Name, Hash: entry.Hash})
		fields := logging.BundleFields("patch_prune", e.Stream, entry.Name, entry.Hash.String())
		if err != nil {
			e.log().WithFields(fields).WithError(err).Warn("prune failed")
			continue
		}
		if removed > 0 {
			e.log().WithFields(fields).WithField("removed", removed).Debug("stale versions pruned")
		}
	}
}

func (e *Engine) finish(phase string, plan Plan) Plan {
	e.Metrics.ObservePatch(e.Stream, phase, plan.State.String(), plan.TotalBytes)
	return plan
}

func (e *Engine) limit() int {
	if e.Concurrency <= 0 {
		return 8
	}
	return e.Concurrency
}

func (e *Engine) log() *logrus.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}
