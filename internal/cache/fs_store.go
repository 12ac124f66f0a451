package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/any-hub/bundle-hub/internal/catalog"
	"github.com/any-hub/bundle-hub/internal/errs"
)

const versionExt = ".bundle"

// NewStore 以 basePath 为根目录构建磁盘缓存，进程内复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 以 bundle 为粒度加锁：同一 bundle 的写入、删除与清理互斥，不同 bundle 互不阻塞。
type fileStore struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := s.versionPath(locator)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.NotFound("cache_get", locator.Bundle, err)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, errs.NotFound("cache_get", locator.Bundle, nil)
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.NotFound("cache_get", locator.Bundle, err)
		}
		return nil, err
	}

	return &ReadResult{
		Entry: Entry{
			Locator:   locator,
			FilePath:  filePath,
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		},
		Reader: f,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	filePath, err := s.versionPath(locator)
	if err != nil {
		return nil, err
	}

	unlock := s.lockBundle(locator.Stream, locator.Bundle)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return nil, err
	}
	tempName := tempFile.Name()

	digest := newDigestWriter()
	written, err := copyWithContext(ctx, io.MultiWriter(tempFile, digest), body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		_, err = digest.verify(locator.Hash)
	}
	if err != nil {
		os.Remove(tempName)
		return nil, err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return nil, err
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	if err := os.Chtimes(filePath, modTime, modTime); err != nil {
		return nil, err
	}

	return &Entry{
		Locator:   locator,
		FilePath:  filePath,
		SizeBytes: written,
		ModTime:   modTime,
	}, nil
}

func (s *fileStore) Remove(ctx context.Context, locator Locator) error {
	filePath, err := s.versionPath(locator)
	if err != nil {
		return err
	}

	unlock := s.lockBundle(locator.Stream, locator.Bundle)
	defer unlock()

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) Versions(ctx context.Context, stream, bundle string) ([]catalog.Hash128, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.bundleDir(stream, bundle)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []catalog.Hash128
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), versionExt) {
			continue
		}
		h, err := catalog.ParseHash128(strings.TrimSuffix(entry.Name(), versionExt))
		if err != nil {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *fileStore) Prune(ctx context.Context, keep Locator) (int, error) {
	versions, err := s.Versions(ctx, keep.Stream, keep.Bundle)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, h := range versions {
		if h == keep.Hash {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		stale := Locator{Stream: keep.Stream, Bundle: keep.Bundle, Hash: h}
		if err := s.Remove(ctx, stale); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *fileStore) lockBundle(stream, bundle string) func() {
	key := stream + "::" + bundle
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) bundleDir(stream, bundle string) (string, error) {
	if stream == "" || strings.ContainsAny(stream, `/\`) || stream == "." || stream == ".." {
		return "", fmt.Errorf("invalid stream %q", stream)
	}
	if bundle == "" {
		return "", errors.New("bundle name required")
	}

	rel := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(bundle)), "/")
	if rel == "" {
		return "", fmt.Errorf("invalid bundle name %q", bundle)
	}

	root := filepath.Join(s.basePath, stream)
	dir := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(dir, root+string(filepath.Separator)) {
		return "", errors.New("invalid cache path")
	}
	return dir, nil
}

func (s *fileStore) versionPath(locator Locator) (string, error) {
	if locator.Hash.IsZero() {
		return "", errors.New("content hash required")
	}
	dir, err := s.bundleDir(locator.Stream, locator.Bundle)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, locator.Hash.String()+versionExt), nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
