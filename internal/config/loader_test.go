package config

import (
	"errors"
	"testing"
)

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
StoragePath = "./data"
UpstreamTimeout = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadRejectsStreamLevelStoragePath(t *testing.T) {
	cfg := `
StoragePath = "./data"

[[Stream]]
Key = "Game"
StoragePath = "./elsewhere"
`
	path := writeTempConfig(t, cfg)
	_, err := Load(path)
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "Stream[Game].StoragePath" {
		t.Fatalf("流级 StoragePath 应被拒绝, got %v", err)
	}
}

func TestLoadUsesEnvPath(t *testing.T) {
	path := writeTempConfig(t, "LogLevel = \"warn\"\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.LogLevel != "warn" {
		t.Fatalf("应读取环境变量指定的配置")
	}
}
