package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "500ms"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
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

// GlobalConfig 描述客户端运行时行为：日志、轮询节奏、热门聚合条数与快照位置。
type GlobalConfig struct {
	LogLevel         string   `mapstructure:"LogLevel"`
	LogFilePath      string   `mapstructure:"LogFilePath"`
	LogMaxSize       int      `mapstructure:"LogMaxSize"`
	LogMaxBackups    int      `mapstructure:"LogMaxBackups"`
	LogCompress      bool     `mapstructure:"LogCompress"`
	PollInterval     Duration `mapstructure:"PollInterval"`
	PopularTagLimit  int      `mapstructure:"PopularTagLimit"`
	PopularSiteLimit int      `mapstructure:"PopularSiteLimit"`
	SnapshotPath     string   `mapstructure:"SnapshotPath"`
	ListenPort       int      `mapstructure:"ListenPort"`
}

// BackendConfig 决定客户端如何访问后端文章存储。
type BackendConfig struct {
	URL     string   `mapstructure:"URL"`
	Timeout Duration `mapstructure:"Timeout"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig  `mapstructure:",squash"`
	Backend BackendConfig `mapstructure:"Backend"`
}

// SnapshotEnabled reports whether the on-disk snapshot is configured.
func (c *Config) SnapshotEnabled() bool {
	return c != nil && strings.TrimSpace(c.Global.SnapshotPath) != ""
}
