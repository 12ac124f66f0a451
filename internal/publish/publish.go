// Package publish finalizes a grouped build: it hashes the bundle files the
// grouping tool produced, then writes the catalog next to them and the
// settings record for the stream key. It never decides grouping itself.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/bundle-hub/internal/catalog"
	"github.com/any-hub/bundle-hub/internal/container"
	"github.com/any-hub/bundle-hub/internal/logging"
	"github.com/any-hub/bundle-hub/internal/manifest"
	"github.com/any-hub/bundle-hub/internal/settings"
)

// Options 控制发布位置。
type Options struct {
	// BaseDir 用于解析相对的 output_path，CLI 传入索引文件所在目录。
	BaseDir string
	// SettingsRoot 是 <key>.bin 的写入目录。
	SettingsRoot string
	Concurrency  int
	Logger       *logrus.Logger
}

// Result 汇总一次发布的产物。
type Result struct {
	OutputDir    string
	CatalogPath  string
	SettingsPath string
	Catalog      *catalog.Catalog
	TotalBytes   int64
}

// Publish 读取输出目录中的 bundle 文件，计算哈希并写出 catalog 与 settings。
func Publish(ctx context.Context, m *manifest.Manifest, opts Options) (*Result, error) {
	if m == nil {
		return nil, errors.New("manifest is nil")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	mode, err := m.Mode()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	started := time.Now()

	outDir := m.Format(m.OutputPath)
	if strings.TrimSpace(outDir) == "" {
		return nil, errors.New("manifest output_path required")
	}
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(opts.BaseDir, outDir)
	}

	entries := make([]catalog.BundleEntry, len(m.Bundles))
	sizes := make([]int64, len(m.Bundles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Concurrency, 1))
	for i, b := range m.Bundles {
		g.Go(func() error {
			hash, size, err := hashFile(gctx, bundlePath(outDir, b.Name))
			if err != nil {
				return fmt.Errorf("bundle %s: %w", b.Name, err)
			}
			entries[i] = catalog.BundleEntry{
				Name:         b.Name,
				Hash:         hash,
				Dependencies: append([]string(nil), b.Dependencies...),
				Objects:      b.ObjectMap(),
			}
			sizes[i] = size
			logger.WithFields(logging.BundleFields("publish_bundle", m.Key, b.Name, hash.String())).
				WithField("bytes", size).
				Debug("bundle hashed")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c := catalog.New(m.Format(m.BundleLocation), mode, entries...)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	// catalog 中的依赖列表写成展开后的传递闭包。
	closures := make(map[string][]string, len(c.Bundles))
	for _, name := range c.Names() {
		closures[name] = c.Closure(name)
	}
	for name, deps := range closures {
		entry := c.Bundles[name]
		entry.Dependencies = deps
		c.Bundles[name] = entry
	}
	encoded, err := catalog.Encode(c)
	if err != nil {
		return nil, err
	}
	catalogPath := filepath.Join(outDir, catalog.FileName)
	if err := writeAtomic(catalogPath, encoded); err != nil {
		return nil, fmt.Errorf("write catalog: %w", err)
	}

	location := m.Format(m.CatalogLocation)
	if strings.TrimSpace(location) == "" {
		location = catalogPath
	}
	if err := settings.Save(opts.SettingsRoot, m.Key, settings.Settings{
		BaseLocation: location,
		LoadMode:     mode,
	}); err != nil {
		return nil, fmt.Errorf("write settings: %w", err)
	}

	var total int64
	for _, size := range sizes {
		total += size
	}
	logger.WithFields(logrus.Fields{
		"action":     "publish",
		"key":        m.Key,
		"version":    m.Version,
		"platform":   m.Platform,
		"load_mode":  mode.String(),
		"bundles":    len(entries),
		"bytes":      total,
		"output":     outDir,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("build published")

	return &Result{
		OutputDir:    outDir,
		CatalogPath:  catalogPath,
		SettingsPath: settings.Path(opts.SettingsRoot, m.Key),
		Catalog:      c,
		TotalBytes:   total,
	}, nil
}

func bundlePath(outDir, name string) string {
	return filepath.Join(outDir, filepath.FromSlash(container.CleanPath(name)))
}

func hashFile(ctx context.Context, path string) (catalog.Hash128, int64, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Hash128{}, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return catalog.Hash128{}, 0, err
	}
	defer f.Close()
	h := catalog.NewHasher()
	n, err := io.Copy(h, f)
	if err != nil {
		return catalog.Hash128{}, 0, err
	}
	sum, err := catalog.FromDigest(h.Sum(nil))
	if err != nil {
		return catalog.Hash128{}, 0, err
	}
	return sum, n, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".catalog-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
