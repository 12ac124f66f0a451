package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有内容流共享同一份参数。
type GlobalConfig struct {
	ListenPort             int      `mapstructure:"ListenPort"`
	LogLevel               string   `mapstructure:"LogLevel"`
	LogFilePath            string   `mapstructure:"LogFilePath"`
	LogMaxSize             int      `mapstructure:"LogMaxSize"`
	LogMaxBackups          int      `mapstructure:"LogMaxBackups"`
	LogCompress            bool     `mapstructure:"LogCompress"`
	StoragePath            string   `mapstructure:"StoragePath"`
	SettingsRoot           string   `mapstructure:"SettingsRoot"`
	ContentRoot            string   `mapstructure:"ContentRoot"`
	ServeRoot              string   `mapstructure:"ServeRoot"`
	MaxRetries             int      `mapstructure:"MaxRetries"`
	InitialBackoff         Duration `mapstructure:"InitialBackoff"`
	UpstreamTimeout        Duration `mapstructure:"UpstreamTimeout"`
	MaxConcurrentTransfers int      `mapstructure:"MaxConcurrentTransfers"`
	RequestsPerSecond      float64  `mapstructure:"RequestsPerSecond"`
	StrictLookups          bool     `mapstructure:"StrictLookups"`
	Simulate               bool     `mapstructure:"Simulate"`
	DevIndexRoot           string   `mapstructure:"DevIndexRoot"`
	DevSourceRoot          string   `mapstructure:"DevSourceRoot"`
}

// StreamConfig 针对单个内容流（settings key）覆盖全局开关。
type StreamConfig struct {
	Key           string `mapstructure:"Key"`
	Simulate      bool   `mapstructure:"Simulate"`
	StrictLookups bool   `mapstructure:"StrictLookups"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig   `mapstructure:",squash"`
	Streams []StreamConfig `mapstructure:"Stream"`
}

// StreamOptions 是某个内容流最终生效的开关。
type StreamOptions struct {
	Key           string
	Simulate      bool
	StrictLookups bool
}

// Stream 合并全局与流级配置；流级只能打开开关，不能关闭全局开关。
func (c *Config) Stream(key string) StreamOptions {
	opts := StreamOptions{
		Key:           key,
		Simulate:      c.Global.Simulate,
		StrictLookups: c.Global.StrictLookups,
	}
	for _, s := range c.Streams {
		if s.Key != key {
			continue
		}
		opts.Simulate = opts.Simulate || s.Simulate
		opts.StrictLookups = opts.StrictLookups || s.StrictLookups
	}
	return opts
}

// StreamKeys 返回配置中声明的全部内容流。
func (c *Config) StreamKeys() []string {
	if len(c.Streams) == 0 {
		return nil
	}
	keys := make([]string, len(c.Streams))
	for i, s := range c.Streams {
		keys[i] = s.Key
	}
	return keys
}
