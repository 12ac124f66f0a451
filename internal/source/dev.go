package source

import (
	"context"
	"errors"
	"io/fs"

	"github.com/any-hub/bundle-hub/internal/catalog"
	"github.com/any-hub/bundle-hub/internal/container"
	"github.com/any-hub/bundle-hub/internal/errs"
	"github.com/any-hub/bundle-hub/internal/manifest"
)

var errNoPhysicalBundle = errors.New("dev source has no physical bundles")

// Dev 绕过 catalog/补丁流程，直接从授权期索引与源码树解析对象，用于无需产出 bundle 的迭代。
type Dev struct {
	index      *manifest.Manifest
	sourceRoot string
}

// NewDev 读取 <indexRoot>/<key>.yaml 并以 sourceRoot 作为对象根目录。
func NewDev(indexRoot, sourceRoot, key string) (*Dev, error) {
	m, err := manifest.Load(manifest.Path(indexRoot, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.NotFound("load_index", key, err)
		}
		return nil, errs.Decode("load_index", key, err)
	}
	return &Dev{index: m, sourceRoot: sourceRoot}, nil
}

func (s *Dev) Kind() Kind { return KindDev }

// Catalog 合成 Local 模式的 catalog：不含依赖，对象表来自索引。
func (s *Dev) Catalog() *catalog.Catalog {
	entries := make([]catalog.BundleEntry, 0, len(s.index.Bundles))
	for _, b := range s.index.Bundles {
		entries = append(entries, catalog.BundleEntry{
			Name:    b.Name,
			Hash:    catalog.HashBytes([]byte(s.index.Key + "/" + b.Name + "@" + s.index.Version)),
			Objects: b.ObjectMap(),
		})
	}
	return catalog.New(s.sourceRoot, catalog.Local, entries...)
}

func (s *Dev) ReadCatalog(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Transfer("read_catalog", s.index.Key, err)
	}
	data, err := catalog.Encode(s.Catalog())
	if err != nil {
		return nil, errs.Decode("read_catalog", s.index.Key, err)
	}
	return data, nil
}

func (s *Dev) ReadBundle(_ context.Context, entry catalog.BundleEntry) ([]byte, error) {
	return nil, errs.NotFound("read_bundle", entry.Name, errNoPhysicalBundle)
}

func (s *Dev) OpenBundle(ctx context.Context, entry catalog.BundleEntry) (container.Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Transfer("open_bundle", entry.Name, err)
	}
	if _, ok := s.index.Bundle(entry.Name); !ok {
		return nil, errs.UnknownBundle("open_bundle", entry.Name)
	}
	return container.NewDirArchive(entry.Name, s.sourceRoot), nil
}

func (s *Dev) ProbeSize(context.Context, catalog.BundleEntry) (int64, error) {
	return 0, nil
}

func (s *Dev) CachedVersions(context.Context, string) ([]catalog.Hash128, error) {
	return nil, nil
}

func (s *Dev) Fetch(context.Context, catalog.BundleEntry) (int64, error) {
	return 0, nil
}

// ResolveObject 在索引中大小写不敏感地匹配对象名或路径。
func (s *Dev) ResolveObject(bundle, name string) (string, bool) {
	return s.index.FindObject(bundle, name)
}
