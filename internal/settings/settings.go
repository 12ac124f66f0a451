// Package settings persists the bootstrap pointer that lets a loader find
// catalog bytes before the catalog itself is known. One record per content
// stream, stored as <root>/<key>.bin.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/any-hub/bundle-hub/internal/catalog"
	"github.com/any-hub/bundle-hub/internal/codec"
	"github.com/any-hub/bundle-hub/internal/errs"
)

// ContentRootPlaceholder 在 Local 模式的地址中代表随应用分发的内容根目录。
const ContentRootPlaceholder = "{ContentRoot}"

// Settings 记录 catalog 的位置与读取方式。
type Settings struct {
	BaseLocation string           `cbor:"base_location"`
	LoadMode     catalog.LoadMode `cbor:"load_mode"`
}

// Path 返回 key 对应的持久化文件路径。
func Path(root, key string) string {
	return filepath.Join(root, key+".bin")
}

// Load 读取 key 对应的 settings；文件不存在时返回 ErrNotFound，内容损坏时返回 ErrDecode。
func Load(root, key string) (Settings, error) {
	if err := validateKey(key); err != nil {
		return Settings{}, errs.NotFound("load_settings", key, err)
	}
	f, err := os.Open(Path(root, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Settings{}, errs.NotFound("load_settings", key, err)
		}
		return Settings{}, errs.Transfer("load_settings", key, err)
	}
	defer f.Close()
	var s Settings
	if err := codec.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, errs.Decode("load_settings", key, err)
	}
	if strings.TrimSpace(s.BaseLocation) == "" {
		return Settings{}, errs.Decode("load_settings", key, errors.New("base location is empty"))
	}
	return s, nil
}

// Save 以临时文件 + rename 的方式写入 settings。
func Save(root, key string, s Settings) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := codec.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create settings root: %w", err)
	}
	tmp, err := os.CreateTemp(root, ".settings-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, Path(root, key)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ExpandLocation 替换地址中的 {ContentRoot} 占位符。
func ExpandLocation(location, contentRoot string) string {
	if !strings.Contains(location, ContentRootPlaceholder) {
		return location
	}
	root := filepath.ToSlash(strings.TrimRight(contentRoot, `/\`))
	return strings.ReplaceAll(location, ContentRootPlaceholder, root)
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("settings key required")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid settings key %q", key)
	}
	return nil
}
