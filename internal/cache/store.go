package cache

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/any-hub/bundle-hub/internal/catalog"
	"github.com/any-hub/bundle-hub/internal/errs"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<StoragePath>/<Stream>/<Bundle>/<Hash>.bundle    # 校验通过的包正文
//
// 同一 bundle 可同时保留多个哈希版本，补丁成功后由 Prune 清理旧版本。
type Store interface {
	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 将包正文写入缓存。写入过程同时计算 BLAKE3 摘要，与 locator.Hash 不一致时
	// 丢弃临时文件并返回 ErrHashMismatch，已有内容保持不变。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除单个版本。
	Remove(ctx context.Context, locator Locator) error

	// Versions 列出某个 bundle 当前缓存的全部哈希版本。
	Versions(ctx context.Context, stream, bundle string) ([]catalog.Hash128, error)

	// Prune 删除除 keep 以外的全部版本，返回删除数量。
	Prune(ctx context.Context, keep Locator) (int, error)
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Locator 唯一定位一个缓存条目（内容流 + 包名 + 内容哈希）。
type Locator struct {
	Stream string
	Bundle string
	Hash   catalog.Hash128
}

// Entry 表示一次缓存命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	Locator   Locator   `json:"locator"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合 Entry 与正文 Reader。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示缓存不存在，与 errs.ErrNotFound 同源。
var ErrNotFound = errs.ErrNotFound

// ErrHashMismatch 表示写入内容与期望哈希不一致。
var ErrHashMismatch = errors.New("content hash mismatch")
