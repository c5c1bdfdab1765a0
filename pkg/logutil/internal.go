// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logutil

import (
	"context"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
)

// LogConfig serializes log related config in toml/json.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Filename   string `toml:"filename"`
	MaxSize    int    `toml:"max-size"`
	MaxDays    int    `toml:"max-days"`
	MaxBackups int    `toml:"max-backups"`
	// StacktraceLevel is the level at which zap records a stack, fatal by default.
	StacktraceLevel string `toml:"stacktrace-level"`
}

var (
	globalLogger    atomic.Value
	globalLogConfig atomic.Value
)

func init() {
	SetupMOLogger(&LogConfig{
		Level:  zapcore.InfoLevel.String(),
		Format: "console",
	})
}

// SetupMOLogger sets up the global logger.
func SetupMOLogger(conf *LogConfig) {
	logger := GetLoggerWithOptions(conf.getLevel(), conf.getEncoder(), conf.getSyncer(), conf.getOptions()...)
	replaceGlobalLogger(logger)
	globalLogConfig.Store(*conf)
	Debugf("MO logger init, level=%s, log file=%s", conf.Level, conf.Filename)
}

// GetGlobalLogger returns the current global zap Logger.
func GetGlobalLogger() *zap.Logger {
	return globalLogger.Load().(*zap.Logger)
}

func getGlobalLogConfig() LogConfig {
	return globalLogConfig.Load().(LogConfig)
}

func replaceGlobalLogger(logger *zap.Logger) {
	globalLogger.Store(logger)
}

// GetLoggerWithOptions creates a logger on a custom encoder and syncer.
func GetLoggerWithOptions(level zapcore.LevelEnabler, encoder zapcore.Encoder, syncer zapcore.WriteSyncer, options ...zap.Option) *zap.Logger {
	if syncer == nil {
		syncer = getConsoleSyncer()
	}
	return zap.New(zapcore.NewCore(encoder, syncer, level), options...)
}

// WithContext returns the global logger tagged with the operator name
// carried by ctx, if any.
func WithContext(ctx context.Context) *zap.Logger {
	if name := moerr.OpName(ctx); name != "" {
		return GetGlobalLogger().With(OpField(name))
	}
	return GetGlobalLogger()
}

func (cfg *LogConfig) getSyncer() zapcore.WriteSyncer {
	if cfg.Filename == "" || cfg.Filename == "console" {
		return getConsoleSyncer()
	}

	if stat, err := os.Stat(cfg.Filename); err == nil {
		if stat.IsDir() {
			panic("log file can't be a directory")
		}
	}

	if cfg.MaxSize == 0 {
		cfg.MaxSize = 512
	}
	// add lumberjack logger
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxDays,
		MaxBackups: cfg.MaxBackups,
		LocalTime:  true,
		Compress:   false,
	})
}

func (cfg *LogConfig) getEncoder() zapcore.Encoder {
	return getLoggerEncoder(cfg.Format)
}

func (cfg *LogConfig) getLevel() zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	err := level.UnmarshalText([]byte(cfg.Level))
	if err != nil {
		panic(err)
	}
	return level
}

func (cfg *LogConfig) getStacktraceLevel() zapcore.Level {
	if cfg.StacktraceLevel == "" {
		return zapcore.FatalLevel
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.StacktraceLevel)); err != nil {
		panic(err)
	}
	return level
}

func (cfg *LogConfig) getOptions() []zap.Option {
	return []zap.Option{zap.AddStacktrace(cfg.getStacktraceLevel()), zap.AddCaller()}
}

func getLoggerEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		TimeKey:          "time",
		NameKey:          "name",
		CallerKey:        "caller",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000 -0700"),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	}

	switch format {
	case "json", "":
		return zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		return zapcore.NewConsoleEncoder(encoderConfig)
	default:
		panic(moerr.NewInternalError(context.Background(), "unsupported log format: %s", format))
	}
}

func getConsoleSyncer() zapcore.WriteSyncer {
	return zapcore.Lock(os.Stdout)
}
