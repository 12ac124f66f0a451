package source

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/any-hub/bundle-hub/internal/catalog"
	"github.com/any-hub/bundle-hub/internal/container"
	"github.com/any-hub/bundle-hub/internal/errs"
)

// Local 从固定目录读取随应用分发的 bundle，内容视为已就绪，不参与补丁。
type Local struct {
	catalogPath string
	root        string
	opener      container.Opener
}

func (s *Local) Kind() Kind { return KindLocal }

func (s *Local) ReadCatalog(ctx context.Context) ([]byte, error) {
	return readFile(ctx, "read_catalog", catalog.FileName, s.catalogPath)
}

func (s *Local) ReadBundle(ctx context.Context, entry catalog.BundleEntry) ([]byte, error) {
	return readFile(ctx, "read_bundle", entry.Name, s.bundlePath(entry.Name))
}

func (s *Local) OpenBundle(ctx context.Context, entry catalog.BundleEntry) (container.Archive, error) {
	data, err := s.ReadBundle(ctx, entry)
	if err != nil {
		return nil, err
	}
	archive, err := s.opener.Open(entry.Name, data)
	if err != nil {
		return nil, errs.Decode("open_bundle", entry.Name, err)
	}
	return archive, nil
}

func (s *Local) ProbeSize(ctx context.Context, entry catalog.BundleEntry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, errs.Transfer("probe_size", entry.Name, err)
	}
	info, err := os.Stat(s.bundlePath(entry.Name))
	if err != nil {
		return 0, classifyFileErr("probe_size", entry.Name, err)
	}
	return info.Size(), nil
}

// CachedVersions 对 Local 无意义：内容随应用分发，始终视为最新。
func (s *Local) CachedVersions(context.Context, string) ([]catalog.Hash128, error) {
	return nil, nil
}

func (s *Local) Fetch(context.Context, catalog.BundleEntry) (int64, error) {
	return 0, nil
}

func (s *Local) bundlePath(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(container.CleanPath(name)))
}

func readFile(ctx context.Context, op, name, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Transfer(op, name, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, classifyFileErr(op, name, err)
	}
	return data, nil
}

func classifyFileErr(op, name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return errs.NotFound(op, name, err)
	}
	return errs.Transfer(op, name, err)
}
