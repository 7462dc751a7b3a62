package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Defaults shared by the loader and by callers that build a Config by hand.
const (
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultBackendTimeout   = 10 * time.Second
	DefaultPopularTagLimit  = 20
	DefaultPopularSiteLimit = 10
	DefaultListenPort       = 5000
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyBackendDefaults(&cfg.Backend)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.SnapshotEnabled() {
		absSnapshot, err := filepath.Abs(cfg.Global.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("无法解析快照路径: %w", err)
		}
		cfg.Global.SnapshotPath = absSnapshot
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("PollInterval", "500ms")
	v.SetDefault("PopularTagLimit", DefaultPopularTagLimit)
	v.SetDefault("PopularSiteLimit", DefaultPopularSiteLimit)
	v.SetDefault("SnapshotPath", "./storage/snapshot.json")
	v.SetDefault("ListenPort", DefaultListenPort)
	v.SetDefault("Backend.Timeout", "10s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.PollInterval.DurationValue() == 0 {
		g.PollInterval = Duration(DefaultPollInterval)
	}
	if g.PopularTagLimit == 0 {
		g.PopularTagLimit = DefaultPopularTagLimit
	}
	if g.PopularSiteLimit == 0 {
		g.PopularSiteLimit = DefaultPopularSiteLimit
	}
	if g.ListenPort == 0 {
		g.ListenPort = DefaultListenPort
	}
	g.LogLevel = strings.ToLower(strings.TrimSpace(g.LogLevel))
}

func applyBackendDefaults(b *BackendConfig) {
	b.URL = strings.TrimSpace(b.URL)
	if b.Timeout.DurationValue() == 0 {
		b.Timeout = Duration(DefaultBackendTimeout)
	}
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
