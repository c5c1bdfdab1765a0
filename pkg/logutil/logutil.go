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
	"fmt"

	"go.uber.org/zap"
)

func Debug(msg string, fields ...zap.Field) {
	GetGlobalLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	GetGlobalLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetGlobalLogger().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetGlobalLogger().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetGlobalLogger().Fatal(msg, fields...)
}

// Debugf only use in develop mode
func Debugf(msg string, fields ...interface{}) {
	if GetGlobalLogger().Core().Enabled(zap.DebugLevel) {
		GetGlobalLogger().Debug(fmt.Sprintf(msg, fields...))
	}
}

// Infof only use in develop mode
func Infof(msg string, fields ...interface{}) {
	if GetGlobalLogger().Core().Enabled(zap.InfoLevel) {
		GetGlobalLogger().Info(fmt.Sprintf(msg, fields...))
	}
}

func Warnf(msg string, fields ...interface{}) {
	if GetGlobalLogger().Core().Enabled(zap.WarnLevel) {
		GetGlobalLogger().Warn(fmt.Sprintf(msg, fields...))
	}
}

func Errorf(msg string, fields ...interface{}) {
	GetGlobalLogger().Error(fmt.Sprintf(msg, fields...))
}

// OpField names the operator a log line belongs to.
func OpField(name string) zap.Field {
	return zap.String("op", name)
}

// RowsField reports a row count.
func RowsField(key string, rows int) zap.Field {
	return zap.Int(key, rows)
}
