package container

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// DirArchive 直接从源码树读取对象，供开发模式在不产出 bundle 的情况下迭代。
type DirArchive struct {
	name string
	root string

	mu     sync.Mutex
	closed bool
}

// NewDirArchive 以 root 为根构造目录 archive。
func NewDirArchive(name, root string) *DirArchive {
	return &DirArchive{name: name, root: root}
}

func (a *DirArchive) Name() string { return a.name }

func (a *DirArchive) LoadObject(ctx context.Context, p string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	rel := CleanPath(p)
	data, err := os.ReadFile(filepath.Join(a.root, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, a.name, p)
		}
		return nil, err
	}
	return &Object{Path: rel, Data: data}, nil
}

func (a *DirArchive) Release(string, any) error { return nil }

func (a *DirArchive) Close(bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.closed = true
	return nil
}
