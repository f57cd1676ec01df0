/*
Copyright 2022 The Nerfstudio Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.SugaredLogger
var loggerLock sync.Mutex

func initializeLogger() {
	logLevel := os.Getenv("NERF_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	zapLevel, ok := toZapLogLevel(logLevel)
	if !ok {
		panic(ErrorInvalidLogLevel(logLevel, LogLevelTypes()))
	}

	zapConfig := DefaultZapConfig(zapLevel)

	disableJSONLogging := strings.ToLower(os.Getenv("NERF_DISABLE_JSON_LOGGING"))
	if disableJSONLogging == "true" {
		zapConfig.Encoding = "console"
	}

	trainerLogger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}

	logger = trainerLogger.Sugar()
}

func GetLogger() *zap.SugaredLogger {
	loggerLock.Lock()
	defer loggerLock.Unlock()

	if logger == nil {
		initializeLogger()
	}
	return logger
}

func LogLevelTypes() []string {
	return []string{"debug", "info", "warn", "error"}
}

func toZapLogLevel(logLevel string) (zapcore.Level, bool) {
	switch strings.ToLower(logLevel) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

func DefaultZapConfig(level zapcore.Level, fields ...map[string]interface{}) zap.Config {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.MessageKey = "message"

	labels := map[string]interface{}{}
	for _, m := range fields {
		for k, v := range m {
			labels[k] = v
		}
	}

	initialFields := map[string]interface{}{}
	if len(labels) > 0 {
		initialFields["labels"] = labels
	}

	return zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		InitialFields:    initialFields,
	}
}
