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
	"testing"

	"github.com/ignatpenshin/nerfstudio/pkg/config"
	"github.com/stretchr/testify/require"
)

func cadenceConfig(maxIters, stepsPerLog, stepsPerSave, stepsPerTest, stepsPerRender int) *config.Config {
	return &config.Config{
		Trainer: config.TrainerConfig{
			MaxNumIterations: maxIters,
			StepsPerSave:     stepsPerSave,
			StepsPerTest:     stepsPerTest,
		},
		Logging: config.LoggingConfig{
			StepsPerLog: stepsPerLog,
		},
		Viewer: config.ViewerConfig{
			StepsPerRenderImage: stepsPerRender,
		},
	}
}

func TestDueActionsSchedule(t *testing.T) {
	t.Parallel()

	cfg := cadenceConfig(10, 5, 0, 10, 0)

	tests := []struct {
		name string
		step int
		want ActionSet
	}{{
		name: "step 0 scores the untrained baseline",
		step: 0,
		want: ActionSet{ActionTest: true, ActionFlush: true},
	}, {
		name: "step 3 is quiet",
		step: 3,
		want: ActionSet{},
	}, {
		name: "step 5 logs",
		step: 5,
		want: ActionSet{ActionLog: true, ActionFlush: true},
	}, {
		name: "step 10 logs and evaluates",
		step: 10,
		want: ActionSet{ActionLog: true, ActionTest: true, ActionFlush: true},
	}}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, test.want, DueActions(test.step, cfg, false))
		})
	}
}

func TestDueActionsSaveDisabled(t *testing.T) {
	t.Parallel()

	cfg := cadenceConfig(100, 5, 0, 10, 0)
	for step := 0; step <= 100; step++ {
		require.False(t, DueActions(step, cfg, false)[ActionSave], "step %d", step)
	}
}

func TestDueActionsSaveSkipsStepZero(t *testing.T) {
	t.Parallel()

	cfg := cadenceConfig(100, 5, 10, 50, 0)

	require.False(t, DueActions(0, cfg, false)[ActionSave])
	require.True(t, DueActions(10, cfg, false)[ActionSave])
	require.True(t, DueActions(20, cfg, false)[ActionSave])
	require.False(t, DueActions(15, cfg, false)[ActionSave])
}

func TestDueActionsRenderRequiresViewer(t *testing.T) {
	t.Parallel()

	cfg := cadenceConfig(100, 5, 0, 50, 4)

	require.False(t, DueActions(8, cfg, false)[ActionRender])
	require.True(t, DueActions(8, cfg, true)[ActionRender])
	require.False(t, DueActions(0, cfg, true)[ActionRender])

	// renders alone never trigger a flush
	require.False(t, DueActions(8, cfg, true)[ActionFlush])
}

func TestDueActionsFlushAtFinalStep(t *testing.T) {
	t.Parallel()

	cfg := cadenceConfig(7, 5, 0, 100, 0)

	// step 7 is neither a log, save, nor test step, but it is the iteration
	// budget boundary
	require.Equal(t, ActionSet{ActionFlush: true}, DueActions(7, cfg, false))
}

func TestDueActionsDeterministic(t *testing.T) {
	t.Parallel()

	cfg := cadenceConfig(1000, 10, 250, 500, 16)
	for step := 0; step <= 1000; step += 7 {
		require.Equal(t, DueActions(step, cfg, true), DueActions(step, cfg, true), "step %d", step)
	}
}
