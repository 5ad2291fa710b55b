package log

import (
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// typeEmoji 日志类型到表情符号的映射，type 字段由 LogHelper 自动写入
var typeEmoji = map[string]string{
	"api":          "🔗",
	"request":      "🌐",
	"success":      "✅",
	"database":     "💾",
	"redis":        "📦",
	"scheduler":    "🎯",
	"startup":      "🚀",
	"audit":        "📋",
	"circuit":      "🔌",
	"retry":        "🔁",
	"quota":        "🚦",
	"usage":        "📊",
	"routing":      "🧭",
	"slow_request": "🐌",
	"cache_stats":  "🧹",
}

// circuitEmoji 熔断器日志按 state 字段着色
var circuitEmoji = map[string]string{
	"closed":    "🟢",
	"half_open": "🟡",
	"open":      "🔴",
}

// statusEmoji 根据 HTTP 状态码返回表情符号
func statusEmoji(status int64) string {
	switch {
	case status >= 500:
		return "🔴"
	case status >= 400:
		return "🟠"
	case status >= 300:
		return "🟡"
	}
	return "🟢"
}

func levelEmoji(level zapcore.Level) string {
	switch {
	case level >= zapcore.ErrorLevel:
		return "❌"
	case level == zapcore.WarnLevel:
		return "⚠️"
	case level == zapcore.InfoLevel:
		return "ℹ️"
	}
	return "🐛"
}

// emojiFor 选择表情符号，优先级：HTTP 状态码 > 熔断器状态 > 日志类型 > 日志级别
func emojiFor(level zapcore.Level, fields []zapcore.Field) string {
	var logType, state string
	var status int64

	for _, f := range fields {
		switch {
		case f.Key == "type" && f.Type == zapcore.StringType:
			logType = f.String
		case f.Key == "state" && f.Type == zapcore.StringType:
			state = f.String
		case f.Key == "status" && (f.Type == zapcore.Int64Type || f.Type == zapcore.Int32Type):
			status = f.Integer
		}
	}

	if status > 0 {
		return statusEmoji(status)
	}
	if logType == "circuit" {
		if e, ok := circuitEmoji[state]; ok {
			return e
		}
	}
	if e, ok := typeEmoji[logType]; ok {
		return e
	}
	return levelEmoji(level)
}

// EmojiConsoleEncoder 包装 Zap ConsoleEncoder，在消息前加表情符号，仅用于开发环境
type EmojiConsoleEncoder struct {
	zapcore.Encoder
}

// NewEmojiConsoleEncoder 创建带表情符号的控制台编码器
func NewEmojiConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

// EncodeEntry 编码日志条目
func (enc *EmojiConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	entry.Message = emojiFor(entry.Level, fields) + " " + entry.Message
	return enc.Encoder.EncodeEntry(entry, fields)
}

// Clone 克隆编码器（Zap 内部使用）
func (enc *EmojiConsoleEncoder) Clone() zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: enc.Encoder.Clone()}
}
