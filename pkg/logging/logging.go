// Package logging holds the logger shared by every imgaccel package.
//
// By default nothing is logged. Call SetLogger, usually with a logger
// built by New, to enable output.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var loggerPtr atomic.Pointer[zap.Logger]

func init() {
	loggerPtr.Store(zap.NewNop())
}

// SetLogger replaces the shared logger. Passing nil restores the silent
// default. Safe for concurrent use.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerPtr.Store(l)
}

// Logger returns the shared logger
func Logger() *zap.Logger {
	return loggerPtr.Load()
}

// Config describes the logger built by New
type Config struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level" default:"info" validate:"oneof=debug info warn error"`

	// Format is console or json
	Format string `mapstructure:"format" yaml:"format" default:"console" validate:"oneof=console json"`

	// File enables a rotating log file in addition to stderr
	File string `mapstructure:"file" yaml:"file"`

	MaxSize    int  `mapstructure:"max-size" yaml:"max-size" default:"100" validate:"gte=1"`
	MaxBackups int  `mapstructure:"max-backups" yaml:"max-backups" default:"5" validate:"gte=0"`
	MaxAge     int  `mapstructure:"max-age" yaml:"max-age" default:"7" validate:"gte=0"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ParseLevel converts a level name to a zapcore.Level
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// New builds a logger writing to stderr and, when cfg.File is set, to a
// lumberjack rotated file. The returned close function flushes and
// closes the file sink.
func New(cfg Config) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEnc zapcore.Encoder
	if cfg.Format == "json" {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	} else {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(consoleCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level),
	}

	closeFn := func() error { return nil }
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		// Files are always JSON so they can be parsed
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level))
		closeFn = file.Close
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger, func() error {
		_ = logger.Sync()
		return closeFn()
	}, nil
}
