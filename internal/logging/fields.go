package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// GatewayFields 提供一次后端调用的操作名与请求 ID。
func GatewayFields(op, requestID string) logrus.Fields {
	return logrus.Fields{
		"action":     "gateway",
		"op":         op,
		"request_id": requestID,
	}
}

// CacheFields describes a snapshot replacement.
func CacheFields(op string, version uint64, articles int) logrus.Fields {
	return logrus.Fields{
		"action":   "cache",
		"op":       op,
		"version":  version,
		"articles": articles,
	}
}

// PollFields 描述一次轮询 tick 的上下文。
func PollFields(tick uint64, state string) logrus.Fields {
	return logrus.Fields{
		"action": "poll",
		"tick":   tick,
		"state":  state,
	}
}
