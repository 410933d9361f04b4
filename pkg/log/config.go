// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// defaultLogMaxSize is the default maximum size of a log file in MB.
	defaultLogMaxSize = 300
)

// FileLogConfig serializes file log related config (yaml/json).
type FileLogConfig struct {
	// RootPath is the root directory for log files.
	RootPath string `mapstructure:"rootpath" json:"rootpath"`
	// Filename is the log file name. Empty disables file logging.
	Filename string `mapstructure:"filename" json:"filename"`
	// MaxSize is the maximum size of a single log file in MB.
	MaxSize int `mapstructure:"max-size" json:"max-size"`
	// MaxDays is the maximum number of days to retain old log files.
	MaxDays int `mapstructure:"max-days" json:"max-days"`
	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `mapstructure:"max-backups" json:"max-backups"`
}

// Config serializes log related config (yaml/json).
type Config struct {
	// Level is the log level.
	Level string `mapstructure:"level" json:"level"`
	// Format is the log format, one of "json", "text" or "console".
	Format string `mapstructure:"format" json:"format"`
	// DisableTimestamp disables automatic timestamps in output.
	DisableTimestamp bool `mapstructure:"disable-timestamp" json:"disable-timestamp"`
	// Stdout enables logging to stdout.
	Stdout bool `mapstructure:"stdout" json:"stdout"`
	// File is the file log config.
	File FileLogConfig `mapstructure:"file" json:"file"`
	// Development puts the logger in development mode, which changes the
	// behavior of DPanicLevel and takes stacktraces more liberally.
	Development bool `mapstructure:"development" json:"development"`
	// DisableCaller stops annotating logs with the calling function's file
	// name and line number.
	DisableCaller bool `mapstructure:"disable-caller" json:"disable-caller"`
	// DisableStacktrace completely disables automatic stacktrace capturing.
	DisableStacktrace bool `mapstructure:"disable-stacktrace" json:"disable-stacktrace"`
	// Sampling sets a sampling policy, configured per second.
	// See zapcore.NewSamplerWithOptions for details.
	Sampling *zap.SamplingConfig `mapstructure:"sampling" json:"sampling"`
}

// ZapProperties records some information about zap.
type ZapProperties struct {
	Core   zapcore.Core
	Syncer zapcore.WriteSyncer
	Level  zap.AtomicLevel
}

func newEncoder(cfg *Config) zapcore.Encoder {
	cc := zap.NewProductionEncoderConfig()
	cc.EncodeTime = zapcore.ISO8601TimeEncoder
	cc.EncodeDuration = zapcore.StringDurationEncoder
	cc.EncodeLevel = zapcore.CapitalLevelEncoder
	if cfg.DisableTimestamp {
		cc.TimeKey = zapcore.OmitKey
	}
	switch cfg.Format {
	case "json":
		return zapcore.NewJSONEncoder(cc)
	default:
		// "text" and "console" share the console encoder.
		return zapcore.NewConsoleEncoder(cc)
	}
}

func (cfg *Config) buildOptions(errSink zapcore.WriteSyncer) []zap.Option {
	opts := []zap.Option{zap.ErrorOutput(errSink)}

	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	if !cfg.DisableCaller {
		opts = append(opts, zap.AddCaller())
	}

	stackLevel := zap.ErrorLevel
	if cfg.Development {
		stackLevel = zap.WarnLevel
	}
	if !cfg.DisableStacktrace {
		opts = append(opts, zap.AddStacktrace(stackLevel))
	}

	if cfg.Sampling != nil {
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewSamplerWithOptions(core, time.Second, cfg.Sampling.Initial, cfg.Sampling.Thereafter, zapcore.SamplerHook(cfg.Sampling.Hook))
		}))
	}
	return opts
}
