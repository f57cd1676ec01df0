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

// Package trainer owns the training step loop. It composes the dataset
// readers, the scene model, the optimizer collection, checkpointing, periodic
// evaluation and the optional viewer bridge, and enforces the loop's ordering
// and resumability invariants.
package trainer

import (
	"github.com/ignatpenshin/nerfstudio/pkg/checkpoint"
	"github.com/ignatpenshin/nerfstudio/pkg/config"
	"github.com/ignatpenshin/nerfstudio/pkg/data"
	"github.com/ignatpenshin/nerfstudio/pkg/distributed"
	"github.com/ignatpenshin/nerfstudio/pkg/events"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/errors"
	"github.com/ignatpenshin/nerfstudio/pkg/model"
	"github.com/ignatpenshin/nerfstudio/pkg/optimizers"
	"github.com/ignatpenshin/nerfstudio/pkg/viewer"
	"go.uber.org/zap"
)

type SetupTrainDatasetFunc func(cfg config.DataConfig, device string) (*data.DatasetMetadata, data.TrainReader, error)
type SetupEvalDatasetFunc func(cfg config.DataConfig, testMode bool, device string) (*data.DatasetMetadata, data.EvalReader, error)
type SetupModelFunc func(cfg *config.Config, meta *data.DatasetMetadata, device string) (model.Model, error)
type SetupOptimizersFunc func(cfg config.OptimConfig, paramGroups map[string]*model.ParamGroup) (*optimizers.Collection, error)

// LossAggregator folds a loss dictionary into the single scalar that is
// backpropagated. The default is the unweighted sum of every entry.
type LossAggregator func(lossDict model.LossDict) float64

func SumLosses(lossDict model.LossDict) float64 {
	sum := 0.0
	for name, value := range lossDict {
		if name == model.AggregatedLossKey {
			continue
		}
		sum += value
	}
	return sum
}

// Trainer drives training. Exactly one instance exists per process; the
// model and optimizers are mutated only inside the step loop and during
// checkpoint load.
type Trainer struct {
	cfg         *config.Config
	device      string
	writer      *events.Writer
	bridge      *viewer.Bridge
	coordinator *distributed.Coordinator
	store       *checkpoint.Store
	log         *zap.SugaredLogger

	// collaborator factories; tests may replace them before Setup
	SetupTrainDataset SetupTrainDatasetFunc
	SetupEvalDataset  SetupEvalDatasetFunc
	SetupModel        SetupModelFunc
	SetupOptimizers   SetupOptimizersFunc
	LossAggregator    LossAggregator

	meta        *data.DatasetMetadata
	trainReader data.TrainReader
	evalReader  data.EvalReader
	graph       model.Model
	optimizers  *optimizers.Collection
	startStep   int
}

func New(cfg *config.Config, coordinator *distributed.Coordinator, bridge *viewer.Bridge, writer *events.Writer, log *zap.SugaredLogger) *Trainer {
	return &Trainer{
		cfg:         cfg,
		device:      "cpu",
		writer:      writer,
		bridge:      bridge,
		coordinator: coordinator,
		store:       checkpoint.NewStore(log),
		log:         log,

		SetupTrainDataset: data.SetupDatasetTrain,
		SetupEvalDataset:  data.SetupDatasetEval,
		SetupModel: func(cfg *config.Config, meta *data.DatasetMetadata, device string) (model.Model, error) {
			return model.NewLinearModel(meta, device), nil
		},
		SetupOptimizers: optimizers.SetupOptimizers,
		LossAggregator:  SumLosses,
	}
}

// StartStep is 1 + the restored checkpoint's step, or 0 without a resume.
func (t *Trainer) StartStep() int {
	return t.startStep
}

// Setup builds the readers, the model and the optimizers, restores a
// checkpoint if configured, wraps the model for distributed execution, and
// registers model-declared callbacks. Any failure here aborts before training
// has any side effect.
func (t *Trainer) Setup(testMode bool) error {
	meta, trainReader, err := t.SetupTrainDataset(t.cfg.Data, t.device)
	if err != nil {
		return errors.Wrap(err, "unable to set up training dataset")
	}
	t.meta = meta
	t.trainReader = trainReader

	_, evalReader, err := t.SetupEvalDataset(t.cfg.Data, testMode, t.device)
	if err != nil {
		return errors.Wrap(err, "unable to set up evaluation dataset")
	}
	t.evalReader = evalReader

	graph, err := t.SetupModel(t.cfg, meta, t.device)
	if err != nil {
		return errors.Wrap(err, "unable to set up model")
	}
	t.graph = graph

	collection, err := t.SetupOptimizers(t.cfg.Optim, graph.GetParamGroups())
	if err != nil {
		return errors.Wrap(err, "unable to set up optimizers")
	}
	t.optimizers = collection

	if t.cfg.Trainer.ResumeTrain != nil {
		if err := t.loadCheckpoint(); err != nil {
			return err
		}
	}

	if t.coordinator.WorldSize() > 1 {
		wrapped, err := t.coordinator.Wrap(t.graph, t.cfg.Distributed.LocalRank)
		if err != nil {
			return err
		}
		t.graph = wrapped
		if err := t.coordinator.Barrier(); err != nil {
			return err
		}
	}

	t.graph.RegisterCallbacks()
	return nil
}

// Train runs steps startStep .. startStep+maxNumIterations-1 in strictly
// increasing order, each exactly once. Same-step side effects run in a fixed
// order: log, save, viewer render, evaluation, flush. The checkpoint must
// capture the step's completed state before any externally visible side
// effect; the flush runs last so all same-step writes land together.
func (t *Trainer) Train() error {
	if t.bridge != nil {
		if err := t.bridge.DrawSceneInViewer(t.meta, t.trainReader.Images()); err != nil {
			t.log.Warnw("viewer scene seeding failed; continuing without it", "error", err)
		}
	}

	numIterations := t.cfg.Trainer.MaxNumIterations
	totalTimer := t.writer.StartTimer(events.TotalTrainTime, t.startStep+numIterations)

	iterator := t.trainReader.Iter()
	for step := t.startStep; step < t.startStep+numIterations; step++ {
		loadTimer := t.writer.StartTimer(events.IterLoadTime, step)
		batch, err := iterator.Next()
		loadTimer.Stop()
		if err != nil {
			return errors.Wrap(err, "unable to fetch training batch")
		}

		trainTimer := t.writer.StartTimer(events.IterTrainTime, step)
		lossDict, err := t.trainIteration(batch, step)
		trainTimer.Stop()
		if err != nil {
			// no partial-step recovery; the last checkpoint is the
			// recovery point on restart
			return err
		}

		if trainTimer.Duration > 0 {
			t.writer.PutScalar(events.RaysPerSec, float64(len(batch.RayIndices))/trainTimer.Duration.Seconds(), step)
		}

		due := DueActions(step, t.cfg, t.bridge != nil)

		if due[ActionLog] {
			t.writer.PutDict("Loss/train-loss_dict", lossDict, step)
		}
		if due[ActionSave] && t.coordinator.IsCoordinator() {
			if err := t.saveCheckpoint(step); err != nil {
				return err
			}
		}
		if due[ActionRender] {
			if err := t.bridge.RenderImageInViewer(t.graph); err != nil {
				t.log.Warnw("viewer render failed; continuing training", "step", step, "error", err)
			}
		}
		if due[ActionTest] {
			if err := t.EvalWithDataloader(t.evalReader, step); err != nil {
				return err
			}
		}
		if due[ActionFlush] {
			if err := t.writer.WriteOutStorage(); err != nil {
				return err
			}
		}
	}

	totalTimer.Stop()
	return t.writer.WriteOutStorage()
}

// trainIteration runs one optimization step and returns the loss dictionary
// for logging. The batch is consumed exactly once and never mutated.
func (t *Trainer) trainIteration(batch *data.Batch, step int) (model.LossDict, error) {
	_, lossDict, err := t.graph.Forward(batch.RayIndices, batch)
	if err != nil {
		return nil, err
	}

	aggregatedLoss := t.LossAggregator(lossDict)
	lossDict[model.AggregatedLossKey] = aggregatedLoss

	t.optimizers.ZeroGradAll()
	if err := t.graph.Backward(aggregatedLoss); err != nil {
		return nil, err
	}
	t.optimizers.OptimizerStepAll()

	// schedulers receive the global step so any resume point reproduces the
	// schedule
	t.optimizers.SchedulerStepAll(step)

	for _, callback := range t.graph.Callbacks() {
		callback.AfterStep(step)
	}

	return lossDict, nil
}

func (t *Trainer) loadCheckpoint() error {
	resume := t.cfg.Trainer.ResumeTrain
	loadPath := checkpoint.PathForStep(resume.LoadDir, resume.LoadStep)

	ckpt, err := t.store.Load(loadPath)
	if err != nil {
		return err
	}

	if err := t.graph.LoadGraph(ckpt.Model); err != nil {
		return errors.Wrap(err, loadPath)
	}
	if err := t.optimizers.LoadOptimizers(ckpt.Optimizers); err != nil {
		return errors.Wrap(err, loadPath)
	}

	t.startStep = ckpt.Step + 1
	return nil
}

func (t *Trainer) saveCheckpoint(step int) error {
	// checkpoints hold base parameters, never the distributed proxy
	modelState, err := distributed.Unwrap(t.graph).StateDict()
	if err != nil {
		return err
	}

	optimizerStates, err := t.optimizers.StateDicts()
	if err != nil {
		return err
	}

	_, err = t.store.Save(t.cfg.Trainer.ModelDir, step, modelState, optimizerStates)
	return err
}
