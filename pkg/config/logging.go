package config

import (
	"fmt"
	"os"
	"strings"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `yaml:"logFormat" env:"LOG_FORMAT" env-default:"console"`
	Level  string `yaml:"logLevel" env:"LOG_LEVEL" env-default:"info"`
}

var logLevels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// Validate normalizes the format and level to lower case and rejects unknown values.
func (c *LoggingConfig) Validate() error {
	c.Format = strings.ToLower(c.Format)
	switch c.Format {
	case "json", "console", "logfmt":
	default:
		return fmt.Errorf("logFormat must be 'json', 'console', or 'logfmt', got '%s'", c.Format)
	}

	c.Level = strings.ToLower(c.Level)
	if _, ok := logLevels[c.Level]; !ok {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error, got '%s'", c.Level)
	}
	return nil
}

// ZapLevel returns the configured level, defaulting to info.
func (c *LoggingConfig) ZapLevel() zapcore.Level {
	if level, ok := logLevels[strings.ToLower(c.Level)]; ok {
		return level
	}
	return zapcore.InfoLevel
}

// NewLogger builds a zap logger writing to stdout.
func (c *LoggingConfig) NewLogger() (*zap.Logger, error) {
	if c.Format == "logfmt" {
		return zap.New(LogfmtCore(zapcore.AddSync(os.Stdout), c.ZapLevel())), nil
	}

	var zapConfig zap.Config
	if c.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(c.ZapLevel())

	return zapConfig.Build()
}

// LogfmtCore returns a core encoding entries as logfmt lines.
func LogfmtCore(ws zapcore.WriteSyncer, level zapcore.LevelEnabler) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	return zapcore.NewCore(zaplogfmt.NewEncoder(encoderConfig), ws, level)
}
