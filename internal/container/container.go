// Package container is the boundary to the physical bundle format. The
// loader only needs to open bundle bytes and materialize objects by path;
// how objects are packed is decided by the Opener in use.
package container

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrObjectNotFound 表示 bundle 内不存在该路径。
var ErrObjectNotFound = errors.New("object not found in bundle")

// ErrClosed 表示 archive 已经关闭。
var ErrClosed = errors.New("bundle archive closed")

// Opener 将一份 bundle 字节打开为 Archive。
type Opener interface {
	Open(name string, data []byte) (Archive, error)
}

// Archive 是已打开 bundle 的运行时资源。
type Archive interface {
	Name() string
	// LoadObject 按路径物化一个对象；同一路径多次调用会得到独立的值。
	LoadObject(ctx context.Context, path string) (any, error)
	// Release 释放 LoadObject 返回的值。
	Release(path string, value any) error
	// Close 释放 archive 本身；releaseAll 为 true 时同时释放仍存活的对象。
	Close(releaseAll bool) error
}

// Object 是默认 Opener 物化出的对象：路径与原始字节。
type Object struct {
	Path string
	Data []byte
}

// OpenerFunc 允许以函数实现 Opener。
type OpenerFunc func(name string, data []byte) (Archive, error)

func (f OpenerFunc) Open(name string, data []byte) (Archive, error) {
	return f(name, data)
}

// CleanPath 统一对象路径：正斜杠、无前导 /、无 ..。
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}
