package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvConfigPath 指定未显式传入 -config 时读取的环境变量。
const EnvConfigPath = "BUNDLE_HUB_CONFIG"

// ResolvePath 依次采用显式路径、环境变量与默认 config.toml。
func ResolvePath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := strings.TrimSpace(os.Getenv(EnvConfigPath)); env != "" {
		return env
	}
	return "config.toml"
}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	path = ResolvePath(path)

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectStreamLevelGlobals(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Streams {
		cfg.Streams[i].Key = strings.TrimSpace(cfg.Streams[i].Key)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := absolutize(&cfg.Global); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("SettingsRoot", "./settings")
	v.SetDefault("ContentRoot", "./content")
	v.SetDefault("ServeRoot", "./build")
	v.SetDefault("MaxRetries", 3)
	v.SetDefault("InitialBackoff", "1s")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("MaxConcurrentTransfers", 8)
	v.SetDefault("RequestsPerSecond", 0)
	v.SetDefault("StrictLookups", false)
	v.SetDefault("Simulate", false)
	v.SetDefault("DevIndexRoot", "./authoring")
	v.SetDefault("DevSourceRoot", ".")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(time.Second)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.MaxConcurrentTransfers == 0 {
		g.MaxConcurrentTransfers = 8
	}
}

// absolutize 将目录类配置转换为绝对路径，避免工作目录变化带来的歧义。
func absolutize(g *GlobalConfig) error {
	targets := []struct {
		name string
		ptr  *string
	}{
		{"StoragePath", &g.StoragePath},
		{"SettingsRoot", &g.SettingsRoot},
		{"ContentRoot", &g.ContentRoot},
		{"ServeRoot", &g.ServeRoot},
		{"DevIndexRoot", &g.DevIndexRoot},
		{"DevSourceRoot", &g.DevSourceRoot},
	}
	for _, target := range targets {
		abs, err := filepath.Abs(*target.ptr)
		if err != nil {
			return fmt.Errorf("无法解析目录 %s: %w", target.name, err)
		}
		*target.ptr = abs
	}
	return nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// globalOnlyKeys 只能在全局范围设置，流级出现时直接拒绝。
var globalOnlyKeys = []string{"StoragePath", "SettingsRoot", "ContentRoot", "ListenPort"}

func rejectStreamLevelGlobals(v *viper.Viper) error {
	raw := v.Get("Stream")
	streams, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	for idx, entry := range streams {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		for _, key := range globalOnlyKeys {
			if _, exists := lookupFold(m, key); !exists {
				continue
			}
			name := fmt.Sprintf("#%d", idx)
			if rawKey, ok := lookupFold(m, "Key"); ok {
				if s, ok := rawKey.(string); ok && s != "" {
					name = s
				}
			}
			return newFieldError(streamField(name, key), "只能在全局范围配置")
		}
	}

	return nil
}

// lookupFold 以大小写不敏感方式读取 map，viper 可能已将键名转为小写。
func lookupFold(m map[string]interface{}, key string) (interface{}, bool) {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
