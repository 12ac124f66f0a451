package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.InitialBackoff.DurationValue() != time.Second {
		t.Fatalf("InitialBackoff 应该自动填充默认值")
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 45*time.Second {
		t.Fatalf("UpstreamTimeout 应当被解析, got %s", cfg.Global.UpstreamTimeout.DurationValue())
	}
	if cfg.Global.MaxConcurrentTransfers != 8 {
		t.Fatalf("MaxConcurrentTransfers 默认应为 8")
	}
	if cfg.Global.ListenPort != 5080 {
		t.Fatalf("ListenPort 应当被解析")
	}
	if cfg.Global.DevIndexRoot == "" || cfg.Global.DevSourceRoot == "" {
		t.Fatalf("开发模式目录应填充默认值")
	}
	if len(cfg.Streams) != 2 {
		t.Fatalf("应解析出两个 Stream")
	}
}

func TestStreamOverrides(t *testing.T) {
	cfg, err := Load(testConfigPath(t, "valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	game := cfg.Stream("Game")
	if !game.StrictLookups || game.Simulate {
		t.Fatalf("Game 流开关不正确: %+v", game)
	}
	tools := cfg.Stream("Tools")
	if !tools.Simulate || tools.StrictLookups {
		t.Fatalf("Tools 流开关不正确: %+v", tools)
	}
	other := cfg.Stream("Other")
	if other.Simulate || other.StrictLookups {
		t.Fatalf("未声明的流应沿用全局值: %+v", other)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cfgPath := testConfigPath(t, "missing.toml")

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateRejectsZeroConcurrency(t *testing.T) {
	cfg := validConfig()
	cfg.Global.MaxConcurrentTransfers = 0
	err := cfg.Validate()
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "Global.MaxConcurrentTransfers" {
		t.Fatalf("expected FieldError on MaxConcurrentTransfers, got %v", err)
	}
}

func TestStreamKeyValidation(t *testing.T) {
	testCases := []struct {
		name      string
		key       string
		shouldErr bool
	}{
		{"plain ok", "Game", false},
		{"dotted ok", "game.v2", false},
		{"empty", "", true},
		{"slash", "a/b", true},
		{"parent", "..", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Streams = []StreamConfig{{Key: tc.key}}
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for key %q", tc.key)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for key %q: %v", tc.key, err)
			}
		})
	}
}

func TestValidateRejectsDuplicateStreams(t *testing.T) {
	cfg := validConfig()
	cfg.Streams = []StreamConfig{{Key: "Game"}, {Key: "Game"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("重复的 Stream Key 应报错")
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:             5000,
			StoragePath:            "./storage",
			SettingsRoot:           "./settings",
			ContentRoot:            "./content",
			ServeRoot:              "./build",
			DevIndexRoot:           "./authoring",
			DevSourceRoot:          ".",
			MaxRetries:             1,
			InitialBackoff:         Duration(time.Second),
			UpstreamTimeout:        Duration(time.Second),
			MaxConcurrentTransfers: 4,
		},
	}
}
