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

package telemetry

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/ignatpenshin/nerfstudio/pkg/consts"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/errors"
)

var _config *Config

type Config struct {
	Enabled     bool
	RunID       string
	Properties  map[string]interface{}
	Environment string
	LogErrors   bool
}

type silentSentryLogger struct{}

func (logger silentSentryLogger) Write(p []byte) (n int, err error) {
	return len(p), nil
}

func Init(telemetryConfig Config) error {
	if !telemetryConfig.Enabled {
		_config = nil
		return nil
	}

	dsn := os.Getenv("NERF_TELEMETRY_SENTRY_DSN")
	if dsn == "" {
		_config = nil
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Release:     consts.Version,
		Environment: telemetryConfig.Environment,
	})
	if err != nil {
		_config = nil
		return err
	}

	if !telemetryConfig.LogErrors {
		sentry.Logger.SetOutput(silentSentryLogger{})
	}

	_config = &telemetryConfig
	return nil
}

func Error(err error) {
	if err == nil || _config == nil {
		return
	}

	if errors.IsNoTelemetry(err) {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: _config.RunID})
		scope.SetExtras(_config.Properties)
		e := EventFromException(err)
		sentry.CaptureEvent(e)

		go sentry.Flush(10 * time.Second)
	})
}

func EventFromException(exception error) *sentry.Event {
	stacktrace := sentry.ExtractStacktrace(exception)

	if stacktrace == nil {
		stacktrace = sentry.NewStacktrace()
	}

	cause := exception
	if ex, ok := exception.(interface{ Cause() error }); ok {
		cause = ex.Cause()
	}

	event := sentry.NewEvent()
	event.Level = sentry.LevelError

	errTypeString := reflect.TypeOf(cause).String()
	errKind := errors.GetKind(exception)
	if errKind != errors.ErrNotNerfError {
		errTypeString = errKind
	}

	event.Exception = []sentry.Exception{{
		Value:      cause.Error(),
		Type:       errTypeString,
		Stacktrace: stacktrace,
	}}
	return event
}

func ErrorMessage(message string) {
	if _config == nil || !_config.Enabled || strings.ToLower(os.Getenv("NERF_TELEMETRY_DISABLE")) == "true" {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: _config.RunID})
		scope.SetExtras(_config.Properties)
		sentry.CaptureMessage(message)

		go sentry.Flush(10 * time.Second)
	})
}

func Close() {
	if _config == nil {
		return
	}
	sentry.Flush(5 * time.Second)
	_config = nil
}
