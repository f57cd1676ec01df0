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
	"math"
)

// CameraMessage is the camera description pulled from the viewer's control
// channel: a vertical field of view in degrees, an aspect ratio, and the
// camera-to-world matrix flattened column-major (threejs convention).
type CameraMessage struct {
	FOV    float64
	Aspect float64
	Matrix [16]float64
}

func decodeCameraMessage(object map[string]interface{}) (*CameraMessage, error) {
	fov, ok := toFloat64(object["fov"])
	if !ok {
		return nil, ErrorMalformedCameraMessage("fov")
	}
	aspect, ok := toFloat64(object["aspect"])
	if !ok {
		return nil, ErrorMalformedCameraMessage("aspect")
	}

	matrixValues, ok := object["matrix"].([]interface{})
	if !ok || len(matrixValues) != 16 {
		return nil, ErrorMalformedCameraMessage("matrix")
	}

	msg := &CameraMessage{FOV: fov, Aspect: aspect}
	for i, v := range matrixValues {
		f, ok := toFloat64(v)
		if !ok {
			return nil, ErrorMalformedCameraMessage("matrix")
		}
		msg.Matrix[i] = f
	}

	return msg, nil
}

// IntrinsicsAndCameraToWorld converts the camera message into an intrinsics
// matrix at the given render height and a homogeneous camera-to-world
// transform.
func IntrinsicsAndCameraToWorld(msg *CameraMessage, imageHeight int) ([3][3]float64, [4][4]float64) {
	height := float64(imageHeight)
	width := math.Round(height * msg.Aspect)
	focal := height / (2 * math.Tan(msg.FOV*math.Pi/360))

	intrinsics := [3][3]float64{
		{focal, 0, width / 2},
		{0, focal, height / 2},
		{0, 0, 1},
	}

	var cameraToWorldH [4][4]float64
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			cameraToWorldH[row][col] = msg.Matrix[col*4+row]
		}
	}

	return intrinsics, cameraToWorldH
}

func toFloat64(v interface{}) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int64:
		return float64(value), true
	case uint64:
		return float64(value), true
	case int:
		return float64(value), true
	default:
		return 0, false
	}
}
