// Package catalog models the versioned manifest that maps bundle names to
// content hashes, flat dependency lists and named object locations. A
// Catalog is decoded once per session and never mutated afterwards; a new
// content version means decoding a new Catalog.
package catalog

import (
	"sort"
	"strings"
)

// FormatVersion 是当前写出的 catalog 格式版本。
const FormatVersion = 1

// FileName 是构建产物中 catalog 的固定文件名。
const FileName = "catalog.bin"

// Catalog 描述一个内容版本的全部 bundle。解码后只读。
type Catalog struct {
	FormatVersion int                    `cbor:"format_version"`
	BaseLocation  string                 `cbor:"base_location"`
	LoadMode      LoadMode               `cbor:"load_mode"`
	Bundles       map[string]BundleEntry `cbor:"bundles"`
}

// BundleEntry 描述单个 bundle：内容哈希、已展开的依赖列表与对象路径表。
type BundleEntry struct {
	Name         string            `cbor:"name"`
	Hash         Hash128           `cbor:"hash"`
	Dependencies []string          `cbor:"dependencies"`
	Objects      map[string]string `cbor:"objects"`
}

// New 以给定条目构建 catalog，条目以 Name 为键。
func New(baseLocation string, mode LoadMode, entries ...BundleEntry) *Catalog {
	bundles := make(map[string]BundleEntry, len(entries))
	for _, entry := range entries {
		bundles[entry.Name] = entry
	}
	return &Catalog{
		FormatVersion: FormatVersion,
		BaseLocation:  baseLocation,
		LoadMode:      mode,
		Bundles:       bundles,
	}
}

// Bundle 返回指定名称的条目。
func (c *Catalog) Bundle(name string) (BundleEntry, bool) {
	if c == nil {
		return BundleEntry{}, false
	}
	entry, ok := c.Bundles[name]
	return entry, ok
}

// Names 返回按名称排序的 bundle 列表，保证 patch 计划等输出稳定。
func (c *Catalog) Names() []string {
	if c == nil || len(c.Bundles) == 0 {
		return nil
	}
	names := make([]string, 0, len(c.Bundles))
	for name := range c.Bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ObjectPath 将对象名解析为 bundle 内的存储路径。先精确匹配，再大小写不敏感匹配；
// 都未命中时返回 false，由调用方决定是否回退为对象名本身。
func (c *Catalog) ObjectPath(bundle, object string) (string, bool) {
	entry, ok := c.Bundle(bundle)
	if !ok {
		return "", false
	}
	if p, ok := entry.Objects[object]; ok && p != "" {
		return p, true
	}
	names := make([]string, 0, len(entry.Objects))
	for name := range entry.Objects {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := entry.Objects[name]; strings.EqualFold(name, object) && p != "" {
			return p, true
		}
	}
	return "", false
}

// Closure 返回 name 的传递依赖：依赖在前、去重、不含 name 本身。
// 环上的条目只访问一次，环由 Validate 负责拒绝。
func (c *Catalog) Closure(name string) []string {
	if c == nil {
		return nil
	}
	seen := map[string]bool{name: true}
	var out []string
	var visit func(n string)
	visit = func(n string) {
		for _, dep := range c.Bundles[n].Dependencies {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			visit(dep)
			out = append(out, dep)
		}
	}
	visit(name)
	return out
}
