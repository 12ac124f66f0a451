// Package manifest reads the authoring-time index emitted by the external
// grouping tool. The index names every bundle, its flat dependency list and
// the objects packed into it; the publisher and the development source both
// consume it, neither re-derives grouping.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/any-hub/bundle-hub/internal/catalog"
)

// Manifest 描述一次构建的分组结果。
type Manifest struct {
	Key             string   `yaml:"key"`
	Version         string   `yaml:"version"`
	Platform        string   `yaml:"platform"`
	LoadMode        string   `yaml:"load_mode"`
	CatalogLocation string   `yaml:"catalog_location"`
	BundleLocation  string   `yaml:"bundle_location"`
	OutputPath      string   `yaml:"output_path"`
	Bundles         []Bundle `yaml:"bundles"`
}

// Bundle 是单个包的分组描述。
type Bundle struct {
	Name         string   `yaml:"name"`
	Dependencies []string `yaml:"dependencies"`
	Objects      []Object `yaml:"objects"`
}

// Object 将逻辑名映射到源码树中的路径。
type Object struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Path 返回 key 对应的索引文件路径。
func Path(root, key string) string {
	return filepath.Join(root, key+".yaml")
}

// Load 读取并校验 YAML 索引。
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse 解析索引内容。
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate 检查必填字段与包名唯一性，依赖闭包交由 catalog 校验。
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Key) == "" {
		return errors.New("manifest key required")
	}
	if _, err := m.Mode(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(m.Bundles))
	for i, b := range m.Bundles {
		if strings.TrimSpace(b.Name) == "" {
			return fmt.Errorf("bundles[%d]: name required", i)
		}
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("bundles[%d]: duplicate bundle %q", i, b.Name)
		}
		seen[b.Name] = struct{}{}
		for j, obj := range b.Objects {
			if strings.TrimSpace(obj.Path) == "" {
				return fmt.Errorf("bundles[%d].objects[%d]: path required", i, j)
			}
		}
	}
	return nil
}

// Mode 解析 load_mode，缺省为 local。
func (m *Manifest) Mode() (catalog.LoadMode, error) {
	if strings.TrimSpace(m.LoadMode) == "" {
		return catalog.Local, nil
	}
	return catalog.ParseLoadMode(m.LoadMode)
}

// Format 替换 {Key}/{Platform}/{Version} 占位符。
func (m *Manifest) Format(pattern string) string {
	return strings.NewReplacer(
		"{Key}", m.Key,
		"{Platform}", m.Platform,
		"{Version}", m.Version,
	).Replace(pattern)
}

// Bundle 按名称查找分组。
func (m *Manifest) Bundle(name string) (Bundle, bool) {
	for _, b := range m.Bundles {
		if b.Name == name {
			return b, true
		}
	}
	return Bundle{}, false
}

// ObjectMap 返回对象名到路径的映射，未命名对象以文件名（去扩展名）作为逻辑名。
func (b Bundle) ObjectMap() map[string]string {
	out := make(map[string]string, len(b.Objects))
	for _, obj := range b.Objects {
		name := obj.Name
		if name == "" {
			base := filepath.Base(obj.Path)
			name = strings.TrimSuffix(base, filepath.Ext(base))
		}
		out[name] = obj.Path
	}
	return out
}

// FindObject 在所有分组中按名称匹配对象（大小写不敏感），返回所属包与路径。
func (m *Manifest) FindObject(bundle, name string) (string, bool) {
	for _, b := range m.Bundles {
		if !strings.EqualFold(b.Name, bundle) {
			continue
		}
		objects := b.ObjectMap()
		keys := make([]string, 0, len(objects))
		for k := range objects {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if strings.EqualFold(k, name) || strings.EqualFold(objects[k], name) {
				return objects[k], true
			}
		}
	}
	return "", false
}
