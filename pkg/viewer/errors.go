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

package viewer

import (
	"fmt"

	"github.com/ignatpenshin/nerfstudio/pkg/lib/errors"
)

const (
	ErrViewerCommunication    = "viewer.viewer_communication"
	ErrMalformedCameraMessage = "viewer.malformed_camera_message"
	ErrMissingOutputKey       = "viewer.missing_output_key"
)

func ErrorViewerCommunication(op string, err error) error {
	return errors.WithStack(&errors.Error{
		Kind:        ErrViewerCommunication,
		Message:     fmt.Sprintf("viewer %s failed: %v", op, err),
		Cause:       err,
		NoTelemetry: true,
	})
}

func ErrorMalformedCameraMessage(field string) error {
	return errors.WithStack(&errors.Error{
		Kind:        ErrMalformedCameraMessage,
		Message:     fmt.Sprintf("camera message is missing or has a malformed %s field", field),
		NoTelemetry: true,
	})
}

func ErrorMissingOutputKey(key string) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrMissingOutputKey,
		Message: fmt.Sprintf("model outputs do not contain declared primary key %s", key),
	})
}
