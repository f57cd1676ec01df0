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

package trainer

import (
	"github.com/ignatpenshin/nerfstudio/pkg/config"
	libmath "github.com/ignatpenshin/nerfstudio/pkg/lib/math"
)

type Action int

const (
	ActionLog Action = iota
	ActionSave
	ActionRender
	ActionTest
	ActionFlush
)

type ActionSet map[Action]bool

// DueActions is a pure function of (step, config): identical inputs always
// yield the identical action set. Evaluation fires at step 0 on purpose; the
// baseline score before any training is part of the schedule.
func DueActions(step int, cfg *config.Config, viewerActive bool) ActionSet {
	due := ActionSet{}

	if step != 0 && libmath.CheckDivisibleByInt(step, cfg.Logging.StepsPerLog) {
		due[ActionLog] = true
	}
	if step != 0 && cfg.Trainer.StepsPerSave > 0 && libmath.CheckDivisibleByInt(step, cfg.Trainer.StepsPerSave) {
		due[ActionSave] = true
	}
	if viewerActive && step != 0 && cfg.Viewer.StepsPerRenderImage > 0 && libmath.CheckDivisibleByInt(step, cfg.Viewer.StepsPerRenderImage) {
		due[ActionRender] = true
	}
	if libmath.CheckDivisibleByInt(step, cfg.Trainer.StepsPerTest) {
		due[ActionTest] = true
	}
	if due[ActionLog] || due[ActionSave] || due[ActionTest] || step == cfg.Trainer.MaxNumIterations {
		due[ActionFlush] = true
	}

	return due
}
