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

package model

import (
	"testing"

	"github.com/ignatpenshin/nerfstudio/pkg/data"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/errors"
	"github.com/stretchr/testify/require"
)

func testMetadata(numImages int) *data.DatasetMetadata {
	return &data.DatasetMetadata{
		Cameras:     make([]data.CameraInfo, numImages),
		ImageHeight: 8,
		ImageWidth:  8,
	}
}

func constantBatch(numRays int, color [3]float64) ([]data.RayIndex, *data.Batch) {
	rayIndices := make([]data.RayIndex, numRays)
	pixels := make([][3]float64, numRays)
	for i := range rayIndices {
		rayIndices[i] = data.RayIndex{0, int32(i / 8), int32(i % 8)}
		pixels[i] = color
	}
	return rayIndices, &data.Batch{RayIndices: rayIndices, Pixels: pixels}
}

func TestForwardLoss(t *testing.T) {
	t.Parallel()

	m := NewLinearModel(testMetadata(2), "cpu")
	rayIndices, batch := constantBatch(16, [3]float64{0.5, 0.5, 0.5})

	outputs, lossDict, err := m.Forward(rayIndices, batch)
	require.NoError(t, err)

	// zero-initialized model predicts black, so mse is 0.25
	require.InDelta(t, 0.25, lossDict["rgb_loss"], 1e-12)

	rendered := outputs[m.PrimaryOutputKey()]
	require.NotNil(t, rendered)
	require.Len(t, rendered.Pixels, 16)
}

func TestForwardRayTargetMismatch(t *testing.T) {
	t.Parallel()

	m := NewLinearModel(testMetadata(1), "cpu")
	rayIndices, batch := constantBatch(4, [3]float64{0, 0, 0})

	_, _, err := m.Forward(rayIndices[:2], batch)
	require.Error(t, err)
	require.Equal(t, ErrRayTargetMismatch, errors.GetKind(err))
}

func TestBackwardBeforeForward(t *testing.T) {
	t.Parallel()

	m := NewLinearModel(testMetadata(1), "cpu")
	err := m.Backward(1.0)
	require.Error(t, err)
	require.Equal(t, ErrBackwardBeforeForward, errors.GetKind(err))
}

func TestGradientDescentReducesLoss(t *testing.T) {
	t.Parallel()

	m := NewLinearModel(testMetadata(1), "cpu")
	rayIndices, batch := constantBatch(64, [3]float64{0.7, 0.4, 0.9})

	_, before, err := m.Forward(rayIndices, batch)
	require.NoError(t, err)

	for iter := 0; iter < 50; iter++ {
		_, lossDict, err := m.Forward(rayIndices, batch)
		require.NoError(t, err)

		for _, group := range m.GetParamGroups() {
			for i := range group.Grads {
				group.Grads[i] = 0
			}
		}
		require.NoError(t, m.Backward(lossDict["rgb_loss"]))

		for _, group := range m.GetParamGroups() {
			for i := range group.Values {
				group.Values[i] -= 0.5 * group.Grads[i]
			}
		}
	}

	_, after, err := m.Forward(rayIndices, batch)
	require.NoError(t, err)
	require.Less(t, after["rgb_loss"], before["rgb_loss"]/10)
}

func TestStateDictRoundTrip(t *testing.T) {
	t.Parallel()

	m := NewLinearModel(testMetadata(3), "cpu")
	m.GetParamGroups()["fields"].Values[0] = 0.25
	m.GetParamGroups()["cameras"].Values[4] = -0.5

	state, err := m.StateDict()
	require.NoError(t, err)

	restored := NewLinearModel(testMetadata(3), "cpu")
	require.NoError(t, restored.LoadGraph(state))
	require.Equal(t, m.GetParamGroups()["fields"].Values, restored.GetParamGroups()["fields"].Values)
	require.Equal(t, m.GetParamGroups()["cameras"].Values, restored.GetParamGroups()["cameras"].Values)
}

func TestLoadGraphIncompatibleShape(t *testing.T) {
	t.Parallel()

	m := NewLinearModel(testMetadata(4), "cpu")
	state, err := m.StateDict()
	require.NoError(t, err)

	// a model built for a different camera count cannot accept the snapshot
	other := NewLinearModel(testMetadata(2), "cpu")
	err = other.LoadGraph(state)
	require.Error(t, err)
	require.Equal(t, ErrIncompatibleSnapshot, errors.GetKind(err))
}

func TestGetOutputsForCameraRayBundleChunked(t *testing.T) {
	t.Parallel()

	m := NewLinearModel(testMetadata(1), "cpu")
	bundle := &data.RayBundle{CameraIndex: 0, Height: 8, Width: 8, NumRaysPerChunk: 5}

	chunked, err := m.GetOutputsForCameraRayBundle(bundle)
	require.NoError(t, err)

	bundle.NumRaysPerChunk = 0 // single chunk
	whole, err := m.GetOutputsForCameraRayBundle(bundle)
	require.NoError(t, err)

	require.Equal(t, whole[m.PrimaryOutputKey()].Pixels, chunked[m.PrimaryOutputKey()].Pixels)
	require.Len(t, chunked[m.PrimaryOutputKey()].Pixels, 64)
}

func TestWithEvalModeRestoresTraining(t *testing.T) {
	t.Parallel()

	m := NewLinearModel(testMetadata(1), "cpu")
	require.True(t, m.IsTrainMode())

	err := WithEvalMode(m, func() error {
		require.False(t, m.IsTrainMode())
		return nil
	})
	require.NoError(t, err)
	require.True(t, m.IsTrainMode())

	// restored even when the body fails
	wantErr := errors.New("render exploded")
	err = WithEvalMode(m, func() error {
		return wantErr
	})
	require.Equal(t, wantErr, err)
	require.True(t, m.IsTrainMode())
}

func TestFlatGradientsRoundTrip(t *testing.T) {
	t.Parallel()

	m := NewLinearModel(testMetadata(2), "cpu")
	rayIndices, batch := constantBatch(8, [3]float64{1, 1, 1})

	_, _, err := m.Forward(rayIndices, batch)
	require.NoError(t, err)
	require.NoError(t, m.Backward(1.0))

	flat := m.FlatGradients()
	require.Len(t, flat, 9+3*2)

	halved := make([]float64, len(flat))
	for i, g := range flat {
		halved[i] = g / 2
	}
	require.NoError(t, m.SetFlatGradients(halved))
	require.Equal(t, halved, m.FlatGradients())

	require.Error(t, m.SetFlatGradients(halved[:3]))
}
