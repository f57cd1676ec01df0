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

// Package optimizers manages the named optimizer/scheduler pairs stepped by
// the training loop. The numerical algorithms behind an Optimizer are opaque
// to the trainer; the SGD implementation here is the reference collaborator.
package optimizers

import (
	"sort"

	"github.com/ignatpenshin/nerfstudio/pkg/config"
	"github.com/ignatpenshin/nerfstudio/pkg/model"
)

type Optimizer interface {
	ZeroGrad()
	Step()
	StateDict() ([]byte, error)
	LoadStateDict(state []byte) error
}

// Scheduler adjusts its optimizer's hyperparameters for the given global
// step. Receiving the global step rather than a local counter keeps every
// schedule resumable from an arbitrary checkpoint.
type Scheduler interface {
	Step(globalStep int)
}

type Collection struct {
	names      []string
	optimizers map[string]Optimizer
	schedulers map[string]Scheduler
}

// SetupOptimizers builds one optimizer/scheduler pair per model parameter
// group.
func SetupOptimizers(cfg config.OptimConfig, paramGroups map[string]*model.ParamGroup) (*Collection, error) {
	names := make([]string, 0, len(paramGroups))
	for name := range paramGroups {
		names = append(names, name)
	}
	sort.Strings(names)

	optimizers := make(map[string]Optimizer, len(names))
	schedulers := make(map[string]Scheduler, len(names))
	for _, name := range names {
		sgd := NewSGD(paramGroups[name], cfg.LR, cfg.Momentum)
		optimizers[name] = sgd
		schedulers[name] = NewExponentialDecayScheduler(sgd, cfg.LR, cfg.LRDecayGamma)
	}

	return &Collection{
		names:      names,
		optimizers: optimizers,
		schedulers: schedulers,
	}, nil
}

func (c *Collection) ZeroGradAll() {
	for _, name := range c.names {
		c.optimizers[name].ZeroGrad()
	}
}

func (c *Collection) OptimizerStepAll() {
	for _, name := range c.names {
		c.optimizers[name].Step()
	}
}

func (c *Collection) SchedulerStepAll(globalStep int) {
	for _, name := range c.names {
		c.schedulers[name].Step(globalStep)
	}
}

func (c *Collection) StateDicts() (map[string][]byte, error) {
	states := make(map[string][]byte, len(c.names))
	for _, name := range c.names {
		state, err := c.optimizers[name].StateDict()
		if err != nil {
			return nil, err
		}
		states[name] = state
	}
	return states, nil
}

func (c *Collection) LoadOptimizers(states map[string][]byte) error {
	for _, name := range c.names {
		state, ok := states[name]
		if !ok {
			return ErrorMissingOptimizerState(name)
		}
		if err := c.optimizers[name].LoadStateDict(state); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection) Names() []string {
	return c.names
}
