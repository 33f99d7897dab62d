package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	global       *zap.Logger
	fallbackOnce sync.Once
	fallbackLog  *zap.Logger
)

// Init builds the global logger. Debug mode logs to the console; any other
// mode writes JSON to a rotated file under dir.
func Init(mode, dir string) *zap.Logger {
	global = New(mode, dir)
	zap.ReplaceGlobals(global)
	return global
}

func New(mode, dir string) *zap.Logger {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	if strings.EqualFold(strings.TrimSpace(mode), "debug") {
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level)
		return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level)
		return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "replenish.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   true,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(writer), level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

func Z() *zap.Logger {
	if global != nil {
		return global
	}
	fallbackOnce.Do(func() {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "time"
		encoderConfig.MessageKey = "message"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), zap.NewAtomicLevelAt(zap.InfoLevel))
		fallbackLog = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	})
	return fallbackLog
}

func S() *zap.SugaredLogger {
	return Z().Sugar()
}

func Debugw(message string, kv ...any) { S().Debugw(message, kv...) }
func Infow(message string, kv ...any)  { S().Infow(message, kv...) }
func Warnw(message string, kv ...any)  { S().Warnw(message, kv...) }
func Errorw(message string, kv ...any) { S().Errorw(message, kv...) }
