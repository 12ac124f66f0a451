package cache

import (
	"fmt"
	"hash"

	"github.com/any-hub/bundle-hub/internal/catalog"
)

// digestWriter 在写盘的同时累计摘要与字节数，避免二次读取临时文件。
type digestWriter struct {
	h hash.Hash
	n int64
}

func newDigestWriter() *digestWriter {
	return &digestWriter{h: catalog.NewHasher()}
}

func (w *digestWriter) Write(p []byte) (int, error) {
	n, err := w.h.Write(p)
	w.n += int64(n)
	return n, err
}

// verify 比较累计摘要与期望哈希。
func (w *digestWriter) verify(want catalog.Hash128) (catalog.Hash128, error) {
	got, err := catalog.FromDigest(w.h.Sum(nil))
	if err != nil {
		return catalog.Hash128{}, err
	}
	if got != want {
		return got, fmt.Errorf("%w: want %s got %s", ErrHashMismatch, want, got)
	}
	return got, nil
}
