package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
)

// ZipOpener 以 zip 作为默认容器格式。
type ZipOpener struct{}

// Open 解析 zip 目录；对象在 LoadObject 时才解压。
func (ZipOpener) Open(name string, data []byte) (Archive, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open bundle %s: %w", name, err)
	}
	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		files[CleanPath(f.Name)] = f
	}
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	return &zipArchive{name: name, files: files, names: names, live: make(map[string]int)}, nil
}

type zipArchive struct {
	name  string
	files map[string]*zip.File
	// names 为排序后的路径，大小写不敏感匹配按此顺序取第一个。
	names []string

	mu     sync.Mutex
	live   map[string]int
	closed bool
}

func (a *zipArchive) Name() string { return a.name }

func (a *zipArchive) LoadObject(ctx context.Context, p string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	f := a.lookup(CleanPath(p))
	if f == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, a.name, p)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	key := CleanPath(f.Name)
	a.mu.Lock()
	a.live[key]++
	a.mu.Unlock()
	return &Object{Path: key, Data: data}, nil
}

func (a *zipArchive) lookup(p string) *zip.File {
	if f, ok := a.files[p]; ok {
		return f
	}
	for _, name := range a.names {
		if strings.EqualFold(name, p) {
			return a.files[name]
		}
	}
	return nil
}

func (a *zipArchive) Release(p string, value any) error {
	key := CleanPath(p)
	if obj, ok := value.(*Object); ok && obj != nil {
		key = obj.Path
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.live[key] > 0 {
		a.live[key]--
		if a.live[key] == 0 {
			delete(a.live, key)
		}
	}
	return nil
}

func (a *zipArchive) Close(releaseAll bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.closed = true
	if releaseAll {
		a.live = make(map[string]int)
	}
	return nil
}

// Live 返回仍未释放的对象数量，用于诊断。
func (a *zipArchive) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.live {
		n += c
	}
	return n
}
