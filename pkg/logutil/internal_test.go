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
	"regexp"
	"testing"

	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matrixorigin/relcore/pkg/common/moerr"
)

func TestLogConfig_getter(t *testing.T) {
	cfg := &LogConfig{
		Level:  "debug",
		Format: "console",
	}
	require.Equal(t, zap.NewAtomicLevelAt(zap.DebugLevel), cfg.getLevel())
	require.Equal(t, 2, len(cfg.getOptions()))
	require.Equal(t, zapcore.FatalLevel, cfg.getStacktraceLevel())

	cfg.StacktraceLevel = "error"
	require.Equal(t, zapcore.ErrorLevel, cfg.getStacktraceLevel())

	entry := zapcore.Entry{Level: zapcore.DebugLevel, Message: "console msg"}
	wantMsg, _ := getLoggerEncoder("console").EncodeEntry(entry, nil)
	gotMsg, _ := cfg.getEncoder().EncodeEntry(entry, nil)
	require.Equal(t, wantMsg.String(), gotMsg.String())
}

func TestSetupMOLogger(t *testing.T) {
	defer leaktest.AfterTest(t)()
	tests := []struct {
		name string
		conf *LogConfig
	}{
		{
			name: "console",
			conf: &LogConfig{
				Level:           zapcore.DebugLevel.String(),
				Format:          "console",
				MaxSize:         512,
				StacktraceLevel: "panic",
			},
		},
		{
			name: "json",
			conf: &LogConfig{
				Level:           zapcore.DebugLevel.String(),
				Format:          "json",
				MaxSize:         512,
				StacktraceLevel: "error",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetupMOLogger(tt.conf)
			require.Equal(t, tt.conf.Format, getGlobalLogConfig().Format)
			Info("hello", zap.Int("int", 0))
			Debugf("hello %s", "debug")
		})
	}
	SetupMOLogger(&LogConfig{Level: "info", Format: "console"})
}

func TestSetupMOLogger_panic(t *testing.T) {
	conf := &LogConfig{
		Level:  zapcore.DebugLevel.String(),
		Format: "panic",
	}
	defer func() {
		if err := recover(); err != nil {
			require.Equal(t, moerr.NewInternalError(context.Background(), "unsupported log format: %s", conf.Format), err)
		} else {
			t.Errorf("not receive panic")
		}
	}()
	SetupMOLogger(conf)
}

func TestSetupMOLogger_panicDir(t *testing.T) {
	conf := &LogConfig{
		Level:    zapcore.DebugLevel.String(),
		Format:   "json",
		Filename: t.TempDir(),
		MaxSize:  512,
	}
	defer func() {
		if err := recover(); err != nil {
			require.Equal(t, "log file can't be a directory", err)
		} else {
			t.Errorf("not receive panic")
		}
	}()
	SetupMOLogger(conf)
}

func Test_getLoggerEncoder(t *testing.T) {
	tests := []struct {
		name       string
		format     string
		entry      zapcore.Entry
		wantOutput *regexp.Regexp
	}{
		{
			name:       "console",
			format:     "console",
			entry:      zapcore.Entry{Level: zapcore.DebugLevel, Message: "console msg"},
			// like: 0001/01/01 00:00:00.000000 +0000 DEBUG console msg
			wantOutput: regexp.MustCompile(`(?m)^\d{4}/\d{2}/\d{2} (\d{2}:{0,1}){3}\.\d{6} \+\d{4} DEBUG console msg$`),
		},
		{
			name:       "json",
			format:     "json",
			entry:      zapcore.Entry{Level: zapcore.DebugLevel, Message: "json msg"},
			wantOutput: regexp.MustCompile(`\{.*"level":"DEBUG".*"msg":"json msg".*\}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getLoggerEncoder(tt.format)
			require.NotNil(t, got)
			buf, err := got.EncodeEntry(tt.entry, nil)
			require.Nil(t, err)
			t.Logf("encode result: %s", buf.String())
			require.Equal(t, 1, len(tt.wantOutput.FindAll(buf.Bytes(), -1)))
		})
	}
}

func TestWithContext(t *testing.T) {
	ctx := moerr.WithOpName(context.Background(), "join")
	require.NotNil(t, WithContext(ctx))
	require.Same(t, GetGlobalLogger(), WithContext(context.Background()))
}
