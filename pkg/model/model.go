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

// Package model declares the scene-model contract driven by the trainer. The
// model's architecture and loss computation are opaque to the training loop;
// everything the loop needs is expressed by the Model interface.
package model

import (
	"github.com/ignatpenshin/nerfstudio/pkg/data"
)

// AggregatedLossKey is the loss-dict entry backpropagated through the model.
const AggregatedLossKey = "aggregated_loss"

// LossDict maps named loss terms to scalar values. It is produced fresh each
// step; entries other than the aggregated loss are logged but not optimized
// directly.
type LossDict map[string]float64

// Outputs maps output names to rendered images.
type Outputs map[string]*data.Image

// StepCallback is a model-declared hook invoked after each optimizer step.
type StepCallback interface {
	AfterStep(step int)
}

// ParamGroup is a named group of parameters and their gradients, mutated by
// the optimizer collection.
type ParamGroup struct {
	Values []float64
	Grads  []float64
}

type Model interface {
	// Forward runs the model over a batch of target rays and returns the
	// outputs along with the loss dictionary.
	Forward(rayIndices []data.RayIndex, batch *data.Batch) (Outputs, LossDict, error)

	// Backward populates parameter gradients for the given aggregated loss.
	Backward(aggregatedLoss float64) error

	// GetOutputsForCameraRayBundle renders a full image for the bundle,
	// honoring the bundle's per-chunk ray budget.
	GetOutputsForCameraRayBundle(bundle *data.RayBundle) (Outputs, error)

	SetTrainMode(train bool)
	IsTrainMode() bool

	StateDict() ([]byte, error)
	LoadGraph(state []byte) error

	GetParamGroups() map[string]*ParamGroup

	Callbacks() []StepCallback
	RegisterCallbacks()

	// PrimaryOutputKey names the output holding the rendered color image.
	// The model declares it at construction time; callers never probe the
	// outputs map for candidate keys.
	PrimaryOutputKey() string
}

// GradientAccessor exposes a flat view of all gradients. Models must
// implement it to participate in distributed gradient synchronization.
type GradientAccessor interface {
	FlatGradients() []float64
	SetFlatGradients(grads []float64) error
}

// WithEvalMode runs fn with the model in inference mode and restores training
// mode afterwards, even when fn fails.
func WithEvalMode(m Model, fn func() error) error {
	wasTraining := m.IsTrainMode()
	m.SetTrainMode(false)
	defer m.SetTrainMode(wasTraining)
	return fn()
}
