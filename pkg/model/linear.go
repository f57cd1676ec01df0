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
	"math"

	"github.com/ignatpenshin/nerfstudio/pkg/data"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/errors"
	libmath "github.com/ignatpenshin/nerfstudio/pkg/lib/math"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/msgpack"
)

const (
	fieldsGroup  = "fields"
	camerasGroup = "cameras"

	// bias, u coefficient, v coefficient per color channel
	numFieldParams = 9
)

// LinearModel predicts pixel color as an affine function of normalized pixel
// coordinates plus a per-camera bias. It is deterministic and CPU-only; it
// exists so the orchestration around the model contract can be exercised end
// to end without a real field network.
type LinearModel struct {
	meta      *data.DatasetMetadata
	device    string
	trainMode bool

	paramGroups map[string]*ParamGroup

	lastIndices []data.RayIndex
	lastTargets [][3]float64
	lastPreds   [][3]float64

	callbacks []StepCallback
}

func NewLinearModel(meta *data.DatasetMetadata, device string) *LinearModel {
	return &LinearModel{
		meta:      meta,
		device:    device,
		trainMode: true,
		paramGroups: map[string]*ParamGroup{
			fieldsGroup: {
				Values: make([]float64, numFieldParams),
				Grads:  make([]float64, numFieldParams),
			},
			camerasGroup: {
				Values: make([]float64, 3*meta.NumImages()),
				Grads:  make([]float64, 3*meta.NumImages()),
			},
		},
	}
}

func (m *LinearModel) predict(idx data.RayIndex) [3]float64 {
	fields := m.paramGroups[fieldsGroup].Values
	cameras := m.paramGroups[camerasGroup].Values

	u := float64(idx[2]) / float64(m.meta.ImageWidth-1)
	v := float64(idx[1]) / float64(m.meta.ImageHeight-1)
	cam := int(idx[0])

	var color [3]float64
	for c := 0; c < 3; c++ {
		color[c] = fields[3*c] + fields[3*c+1]*u + fields[3*c+2]*v + cameras[3*cam+c]
	}
	return color
}

func (m *LinearModel) Forward(rayIndices []data.RayIndex, batch *data.Batch) (Outputs, LossDict, error) {
	if len(rayIndices) != len(batch.Pixels) {
		return nil, nil, ErrorRayTargetMismatch(len(rayIndices), len(batch.Pixels))
	}

	preds := make([][3]float64, len(rayIndices))
	mse := 0.0
	for i, idx := range rayIndices {
		preds[i] = m.predict(idx)
		for c := 0; c < 3; c++ {
			diff := preds[i][c] - batch.Pixels[i][c]
			mse += diff * diff
		}
	}
	mse /= float64(3 * len(rayIndices))

	m.lastIndices = rayIndices
	m.lastTargets = batch.Pixels
	m.lastPreds = preds

	outputs := Outputs{
		m.PrimaryOutputKey(): {Height: 1, Width: len(rayIndices), Pixels: preds},
	}
	return outputs, LossDict{"rgb_loss": mse}, nil
}

func (m *LinearModel) Backward(aggregatedLoss float64) error {
	if m.lastIndices == nil {
		return ErrorBackwardBeforeForward()
	}

	fields := m.paramGroups[fieldsGroup]
	cameras := m.paramGroups[camerasGroup]

	n := float64(3 * len(m.lastIndices))
	for i, idx := range m.lastIndices {
		u := float64(idx[2]) / float64(m.meta.ImageWidth-1)
		v := float64(idx[1]) / float64(m.meta.ImageHeight-1)
		cam := int(idx[0])
		for c := 0; c < 3; c++ {
			g := 2 * (m.lastPreds[i][c] - m.lastTargets[i][c]) / n
			fields.Grads[3*c] += g
			fields.Grads[3*c+1] += g * u
			fields.Grads[3*c+2] += g * v
			cameras.Grads[3*cam+c] += g
		}
	}

	return nil
}

func (m *LinearModel) GetOutputsForCameraRayBundle(bundle *data.RayBundle) (Outputs, error) {
	numRays := bundle.NumRays()
	pixels := make([][3]float64, 0, numRays)

	chunk := bundle.NumRaysPerChunk
	if chunk < 1 {
		chunk = numRays
	}

	for start := 0; start < numRays; start += chunk {
		end := libmath.MinInt(start+chunk, numRays)
		for ray := start; ray < end; ray++ {
			row := ray / bundle.Width
			col := ray % bundle.Width
			pixels = append(pixels, m.predict(data.RayIndex{bundle.CameraIndex, int32(row), int32(col)}))
		}
	}

	image := &data.Image{Height: bundle.Height, Width: bundle.Width, Pixels: pixels}
	return Outputs{m.PrimaryOutputKey(): image}, nil
}

func (m *LinearModel) SetTrainMode(train bool) {
	m.trainMode = train
}

func (m *LinearModel) IsTrainMode() bool {
	return m.trainMode
}

func (m *LinearModel) StateDict() ([]byte, error) {
	state := map[string][]float64{}
	for name, group := range m.paramGroups {
		values := make([]float64, len(group.Values))
		copy(values, group.Values)
		state[name] = values
	}
	return msgpack.Marshal(state)
}

func (m *LinearModel) LoadGraph(state []byte) error {
	loaded := map[string][]float64{}
	if err := msgpack.Unmarshal(state, &loaded); err != nil {
		return err
	}

	for name, values := range loaded {
		group, ok := m.paramGroups[name]
		if !ok || len(group.Values) != len(values) {
			return ErrorIncompatibleSnapshot(name)
		}
		copy(group.Values, values)
	}
	return nil
}

func (m *LinearModel) GetParamGroups() map[string]*ParamGroup {
	return m.paramGroups
}

func (m *LinearModel) Callbacks() []StepCallback {
	return m.callbacks
}

func (m *LinearModel) RegisterCallbacks() {}

func (m *LinearModel) PrimaryOutputKey() string {
	return "rgb"
}

func (m *LinearModel) FlatGradients() []float64 {
	flat := make([]float64, 0, m.numParams())
	for _, name := range m.groupOrder() {
		flat = append(flat, m.paramGroups[name].Grads...)
	}
	return flat
}

func (m *LinearModel) SetFlatGradients(grads []float64) error {
	if len(grads) != m.numParams() {
		return errors.New("flat gradient length mismatch")
	}
	offset := 0
	for _, name := range m.groupOrder() {
		group := m.paramGroups[name]
		copy(group.Grads, grads[offset:offset+len(group.Grads)])
		offset += len(group.Grads)
	}
	return nil
}

func (m *LinearModel) groupOrder() []string {
	return []string{camerasGroup, fieldsGroup}
}

func (m *LinearModel) numParams() int {
	total := 0
	for _, group := range m.paramGroups {
		total += len(group.Values)
	}
	return total
}

// MeanLoss is a convenience for tests comparing training trajectories.
func (m *LinearModel) MeanLoss(images []data.Image) float64 {
	total := 0.0
	count := 0
	for cam := range images {
		img := &images[cam]
		for row := 0; row < img.Height; row++ {
			for col := 0; col < img.Width; col++ {
				pred := m.predict(data.RayIndex{int32(cam), int32(row), int32(col)})
				gt := img.At(row, col)
				for c := 0; c < 3; c++ {
					d := pred[c] - gt[c]
					total += d * d
					count++
				}
			}
		}
	}
	if count == 0 {
		return math.NaN()
	}
	return total / float64(count)
}
