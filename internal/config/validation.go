package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动客户端。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.LogLevel != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError("Global.LogLevel", "无法识别的日志级别")
		}
	}
	if g.PollInterval.DurationValue() <= 0 {
		return newFieldError("Global.PollInterval", "必须大于 0")
	}
	if g.PopularTagLimit <= 0 {
		return newFieldError("Global.PopularTagLimit", "必须大于 0")
	}
	if g.PopularSiteLimit <= 0 {
		return newFieldError("Global.PopularSiteLimit", "必须大于 0")
	}
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogMaxSize < 0 || g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxSize/LogMaxBackups", "不能为负数")
	}

	if err := validateBackendURL(c.Backend.URL); err != nil {
		return fmt.Errorf("Backend.URL: %w", err)
	}
	if c.Backend.Timeout.DurationValue() <= 0 {
		return newFieldError("Backend.Timeout", "必须大于 0")
	}

	return nil
}

func validateBackendURL(raw string) error {
	if raw == "" {
		return errors.New("缺少后端地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，后端: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("后端缺少 Host: %s", raw)
	}
	return nil
}
