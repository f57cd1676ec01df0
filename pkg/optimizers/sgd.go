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

package optimizers

import (
	"math"

	"github.com/ignatpenshin/nerfstudio/pkg/lib/msgpack"
	"github.com/ignatpenshin/nerfstudio/pkg/model"
)

type SGD struct {
	group    *model.ParamGroup
	lr       float64
	momentum float64
	velocity []float64
}

func NewSGD(group *model.ParamGroup, lr float64, momentum float64) *SGD {
	return &SGD{
		group:    group,
		lr:       lr,
		momentum: momentum,
		velocity: make([]float64, len(group.Values)),
	}
}

func (o *SGD) ZeroGrad() {
	for i := range o.group.Grads {
		o.group.Grads[i] = 0
	}
}

func (o *SGD) Step() {
	for i := range o.group.Values {
		o.velocity[i] = o.momentum*o.velocity[i] + o.group.Grads[i]
		o.group.Values[i] -= o.lr * o.velocity[i]
	}
}

func (o *SGD) SetLR(lr float64) {
	o.lr = lr
}

func (o *SGD) LR() float64 {
	return o.lr
}

type sgdState struct {
	LR       float64   `codec:"lr"`
	Momentum float64   `codec:"momentum"`
	Velocity []float64 `codec:"velocity"`
}

func (o *SGD) StateDict() ([]byte, error) {
	velocity := make([]float64, len(o.velocity))
	copy(velocity, o.velocity)
	return msgpack.Marshal(sgdState{
		LR:       o.lr,
		Momentum: o.momentum,
		Velocity: velocity,
	})
}

func (o *SGD) LoadStateDict(state []byte) error {
	loaded := sgdState{}
	if err := msgpack.Unmarshal(state, &loaded); err != nil {
		return err
	}
	if len(loaded.Velocity) != len(o.velocity) {
		return ErrorIncompatibleOptimizerState(len(o.velocity), len(loaded.Velocity))
	}
	o.lr = loaded.LR
	o.momentum = loaded.Momentum
	copy(o.velocity, loaded.Velocity)
	return nil
}

// ExponentialDecayScheduler sets lr = baseLR * gamma^globalStep. A gamma of 1
// leaves the learning rate constant.
type ExponentialDecayScheduler struct {
	optimizer *SGD
	baseLR    float64
	gamma     float64
}

func NewExponentialDecayScheduler(optimizer *SGD, baseLR float64, gamma float64) *ExponentialDecayScheduler {
	return &ExponentialDecayScheduler{
		optimizer: optimizer,
		baseLR:    baseLR,
		gamma:     gamma,
	}
}

func (s *ExponentialDecayScheduler) Step(globalStep int) {
	if s.gamma == 1 {
		return
	}
	s.optimizer.SetLR(s.baseLR * math.Pow(s.gamma, float64(globalStep)))
}
