package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggerOptions struct {
	Key  string
	Data interface{}
}

// Config controls where and how much we log.
type Config struct {
	Level string
	// File enables a rotating JSON log next to the console output.
	File string
}

var Logger = zap.NewNop()

func init() {
	Init(Config{Level: os.Getenv("LOG_LEVEL")})
}

// Init replaces the global logger. Console output always goes to stderr so it
// never mixes with command results on stdout.
func Init(cfg Config) {
	level := ParseLevel(cfg.Level)

	consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level),
	}

	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(fileWriter),
			level,
		))
	}

	Logger = zap.New(zapcore.NewTee(cores...))
}

// ParseLevel falls back to warn, keeping the CLI quiet unless asked otherwise.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

func fields(payload []LoggerOptions) []zapcore.Field {
	zapFields := make([]zapcore.Field, 0, len(payload))
	for _, data := range payload {
		zapFields = append(zapFields, zap.Any(data.Key, data.Data))
	}
	return zapFields
}

// This logs debug level messages.
func Debug(msg string, payload ...LoggerOptions) {
	Logger.Debug(msg, fields(payload)...)
}

// This logs info level messages.
func Info(msg string, payload ...LoggerOptions) {
	Logger.Info(msg, fields(payload)...)
}

// This logs warning messages.
func Warning(msg string, payload ...LoggerOptions) {
	Logger.Warn(msg, fields(payload)...)
}

// This logs error messages.
// describe the incident in msg and pass the error through logger options
// with key error
func Error(msg string, payload ...LoggerOptions) {
	Logger.Error(msg, fields(payload)...)
}

// Sync flushes buffered entries; call it before the process exits.
func Sync() {
	_ = Logger.Sync()
}
