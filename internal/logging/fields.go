package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// BundleFields 提供内容流/bundle/哈希字段，供加载与补丁日志复用。
func BundleFields(action, key, bundle, hash string) logrus.Fields {
	fields := logrus.Fields{
		"action": action,
		"key":    key,
		"bundle": bundle,
	}
	if hash != "" {
		fields["hash"] = hash
	}
	return fields
}

// Discard 返回丢弃全部输出的 logger，供测试与未注入 logger 的组件使用。
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// Leveled 将 logrus 适配为键值对风格的分级日志接口（retryablehttp.LeveledLogger）。
type Leveled struct {
	Logger *logrus.Logger
	Action string
}

func (l Leveled) entry(keysAndValues []interface{}) *logrus.Entry {
	fields := logrus.Fields{"action": l.Action}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return l.Logger.WithFields(fields)
}

func (l Leveled) Error(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Error(msg)
}

func (l Leveled) Warn(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Warn(msg)
}

func (l Leveled) Info(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Info(msg)
}

func (l Leveled) Debug(msg string, keysAndValues ...interface{}) {
	l.entry(keysAndValues).Debug(msg)
}
