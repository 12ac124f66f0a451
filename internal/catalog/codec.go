package catalog

import (
	"fmt"
	"io"

	"github.com/any-hub/bundle-hub/internal/codec"
	"github.com/any-hub/bundle-hub/internal/errs"
)

// Encode 序列化 catalog；写出前先校验，避免发布不可加载的版本。
func Encode(c *Catalog) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	if c.FormatVersion == 0 {
		clone := *c
		clone.FormatVersion = FormatVersion
		c = &clone
	}
	return codec.Marshal(c)
}

// Decode 解析 catalog 字节并校验；任何失败都归类为 ErrDecode。
func Decode(data []byte) (*Catalog, error) {
	if len(data) == 0 {
		return nil, errs.Decode("decode_catalog", "", io.ErrUnexpectedEOF)
	}
	var c Catalog
	if err := codec.Unmarshal(data, &c); err != nil {
		return nil, errs.Decode("decode_catalog", "", err)
	}
	if c.Bundles == nil {
		c.Bundles = map[string]BundleEntry{}
	}
	if err := c.Validate(); err != nil {
		return nil, errs.Decode("decode_catalog", "", err)
	}
	return &c, nil
}
