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

package config

import (
	"github.com/cortexlabs/yaml"
	"github.com/ignatpenshin/nerfstudio/pkg/consts"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/errors"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/files"
)

// Config is resolved once at startup and read-only afterwards.
type Config struct {
	Trainer     TrainerConfig     `yaml:"trainer"`
	Logging     LoggingConfig     `yaml:"logging"`
	Data        DataConfig        `yaml:"data"`
	Optim       OptimConfig       `yaml:"optim"`
	Viewer      ViewerConfig      `yaml:"viewer"`
	Distributed DistributedConfig `yaml:"distributed"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type TrainerConfig struct {
	MaxNumIterations int           `yaml:"max_num_iterations"`
	StepsPerSave     int           `yaml:"steps_per_save"` // 0 disables checkpointing
	StepsPerTest     int           `yaml:"steps_per_test"`
	ModelDir         string        `yaml:"model_dir"`
	ResumeTrain      *ResumeConfig `yaml:"resume_train"` // nil starts from scratch
}

type ResumeConfig struct {
	LoadDir  string `yaml:"load_dir"`
	LoadStep int    `yaml:"load_step"`
}

type LoggingConfig struct {
	StepsPerLog int    `yaml:"steps_per_log"`
	EventsDir   string `yaml:"events_dir"`
}

type DataConfig struct {
	NumImages       int   `yaml:"num_images"`
	ImageHeight     int   `yaml:"image_height"`
	ImageWidth      int   `yaml:"image_width"`
	NumRaysPerBatch int   `yaml:"num_rays_per_batch"`
	Seed            int64 `yaml:"seed"`
}

type OptimConfig struct {
	LR           float64 `yaml:"lr"`
	Momentum     float64 `yaml:"momentum"`
	LRDecayGamma float64 `yaml:"lr_decay_gamma"` // per-step multiplicative decay; 1 disables
}

type ViewerConfig struct {
	Enable              bool   `yaml:"enable"`
	ControlURL          string `yaml:"control_url"`
	StepsPerRenderImage int    `yaml:"steps_per_render_image"`
	RenderImageHeight   int    `yaml:"render_image_height"`
	NumRaysPerChunk     int    `yaml:"num_rays_per_chunk"`
}

type DistributedConfig struct {
	WorldSize      int    `yaml:"world_size"`
	LocalRank      int    `yaml:"local_rank"`
	CoordinatorURL string `yaml:"coordinator_url"`
}

type MetricsConfig struct {
	StatsdAddress  string `yaml:"statsd_address"`
	PrometheusPort int    `yaml:"prometheus_port"`
}

func NewForFile(path string) (*Config, error) {
	configBytes, err := files.ReadFileBytes(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read training config")
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(configBytes, cfg); err != nil {
		return nil, ErrorParseConfig(path, err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}

	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Logging.StepsPerLog == 0 {
		cfg.Logging.StepsPerLog = 10
	}
	if cfg.Trainer.StepsPerTest == 0 {
		cfg.Trainer.StepsPerTest = 500
	}
	if cfg.Distributed.WorldSize == 0 {
		cfg.Distributed.WorldSize = 1
	}
	if cfg.Viewer.RenderImageHeight == 0 {
		cfg.Viewer.RenderImageHeight = consts.DefaultRenderImageHeight
	}
	if cfg.Viewer.NumRaysPerChunk == 0 {
		cfg.Viewer.NumRaysPerChunk = consts.DefaultNumRaysPerChunk
	}
	if cfg.Data.NumImages == 0 {
		cfg.Data.NumImages = 16
	}
	if cfg.Data.ImageHeight == 0 {
		cfg.Data.ImageHeight = 32
	}
	if cfg.Data.ImageWidth == 0 {
		cfg.Data.ImageWidth = 32
	}
	if cfg.Data.NumRaysPerBatch == 0 {
		cfg.Data.NumRaysPerBatch = 256
	}
	if cfg.Optim.LR == 0 {
		cfg.Optim.LR = 0.1
	}
	if cfg.Optim.LRDecayGamma == 0 {
		cfg.Optim.LRDecayGamma = 1.0
	}
}

// Validate fails fast on invalid cadences so that a bad modulo divisor
// surfaces at setup, not at the first due-action evaluation.
func (cfg *Config) Validate() error {
	if cfg.Trainer.MaxNumIterations < 1 {
		return ErrorInvalidIterationBudget(cfg.Trainer.MaxNumIterations)
	}
	if cfg.Logging.StepsPerLog < 1 {
		return ErrorInvalidCadence("logging.steps_per_log", cfg.Logging.StepsPerLog)
	}
	if cfg.Trainer.StepsPerTest < 1 {
		return ErrorInvalidCadence("trainer.steps_per_test", cfg.Trainer.StepsPerTest)
	}
	if cfg.Trainer.StepsPerSave < 0 {
		return ErrorInvalidCadence("trainer.steps_per_save", cfg.Trainer.StepsPerSave)
	}
	if cfg.Trainer.StepsPerSave > 0 && cfg.Trainer.ModelDir == "" {
		return ErrorMissingField("trainer.model_dir")
	}
	if cfg.Trainer.ResumeTrain != nil {
		if cfg.Trainer.ResumeTrain.LoadDir == "" {
			return ErrorMissingField("trainer.resume_train.load_dir")
		}
		if cfg.Trainer.ResumeTrain.LoadStep < 0 {
			return ErrorInvalidCadence("trainer.resume_train.load_step", cfg.Trainer.ResumeTrain.LoadStep)
		}
	}
	if cfg.Optim.LR <= 0 {
		return ErrorInvalidOptimValue("optim.lr", cfg.Optim.LR)
	}
	if cfg.Optim.Momentum < 0 || cfg.Optim.Momentum >= 1 {
		return ErrorInvalidOptimValue("optim.momentum", cfg.Optim.Momentum)
	}
	if cfg.Optim.LRDecayGamma <= 0 || cfg.Optim.LRDecayGamma > 1 {
		return ErrorInvalidOptimValue("optim.lr_decay_gamma", cfg.Optim.LRDecayGamma)
	}
	if cfg.Viewer.Enable {
		if cfg.Viewer.ControlURL == "" {
			return ErrorMissingField("viewer.control_url")
		}
		if cfg.Viewer.StepsPerRenderImage < 0 {
			return ErrorInvalidCadence("viewer.steps_per_render_image", cfg.Viewer.StepsPerRenderImage)
		}
		if cfg.Viewer.RenderImageHeight < 1 {
			return ErrorInvalidCadence("viewer.render_image_height", cfg.Viewer.RenderImageHeight)
		}
		if cfg.Viewer.NumRaysPerChunk < 1 {
			return ErrorInvalidCadence("viewer.num_rays_per_chunk", cfg.Viewer.NumRaysPerChunk)
		}
	}
	if cfg.Distributed.WorldSize < 1 {
		return ErrorInvalidWorldSize(cfg.Distributed.WorldSize)
	}
	if cfg.Distributed.LocalRank < 0 || cfg.Distributed.LocalRank >= cfg.Distributed.WorldSize {
		return ErrorInvalidLocalRank(cfg.Distributed.LocalRank, cfg.Distributed.WorldSize)
	}
	if cfg.Distributed.WorldSize > 1 && cfg.Distributed.CoordinatorURL == "" {
		return ErrorMissingField("distributed.coordinator_url")
	}
	return nil
}
