package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	cfgpkg "github.com/taoyao-code/telemetry-collector/internal/config"
)

// ParseLevel 解析日志级别，未知值回退到 info
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// InitLogger 初始化 zap 日志器：stdout + lumberjack 滚动文件（filename 为空时仅 stdout）
func InitLogger(cfg cfgpkg.LoggingConfig) (*zap.Logger, error) {
	ws := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if cfg.File.Filename != "" {
		ws = append(ws, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}))
	}
	return newLogger(cfg, zapcore.NewMultiWriteSyncer(ws...)), nil
}

// NewWriterLogger 输出到任意 writer（命令行工具把日志写到 stderr，stdout 留给结果）
func NewWriterLogger(cfg cfgpkg.LoggingConfig, w io.Writer) *zap.Logger {
	return newLogger(cfg, zapcore.AddSync(w))
}

func newLogger(cfg cfgpkg.LoggingConfig, ws zapcore.WriteSyncer) *zap.Logger {
	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig())
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig())
	}
	core := zapcore.NewCore(encoder, ws, ParseLevel(cfg.Level))
	return zap.New(core, zap.AddCaller())
}
