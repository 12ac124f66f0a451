package config

import (
	"errors"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	for field, value := range map[string]string{
		"Global.StoragePath":   g.StoragePath,
		"Global.SettingsRoot":  g.SettingsRoot,
		"Global.ContentRoot":   g.ContentRoot,
		"Global.ServeRoot":     g.ServeRoot,
		"Global.DevIndexRoot":  g.DevIndexRoot,
		"Global.DevSourceRoot": g.DevSourceRoot,
	} {
		if strings.TrimSpace(value) == "" {
			return newFieldError(field, "不能为空")
		}
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.MaxConcurrentTransfers <= 0 {
		return newFieldError("Global.MaxConcurrentTransfers", "必须大于 0")
	}
	if g.RequestsPerSecond < 0 {
		return newFieldError("Global.RequestsPerSecond", "不能为负数")
	}

	seen := map[string]struct{}{}
	for i := range c.Streams {
		s := c.Streams[i]
		if err := ValidateKey(s.Key); err != nil {
			return newFieldError(streamField(s.Key, "Key"), err.Error())
		}
		if _, exists := seen[s.Key]; exists {
			return newFieldError(streamField(s.Key, "Key"), "重复")
		}
		seen[s.Key] = struct{}{}
	}

	return nil
}

// ValidateKey 校验内容流 key：它会直接作为文件名使用。
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("不能为空")
	}
	if strings.ContainsAny(key, `/\ `) {
		return errors.New("不允许包含路径分隔符或空格")
	}
	if key == "." || key == ".." {
		return errors.New("非法取值")
	}
	return nil
}
