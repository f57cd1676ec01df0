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

// Package checkpoint persists training snapshots addressed by step number.
// A checkpoint is the sole mechanism for carrying training state across
// process restarts.
package checkpoint

import (
	"fmt"
	"path/filepath"

	"github.com/ignatpenshin/nerfstudio/pkg/consts"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/files"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/msgpack"
	"go.uber.org/zap"
)

// Checkpoint is an immutable snapshot of a fully completed training step.
// Model and optimizer states are opaque blobs; device placement after load is
// the caller's responsibility.
type Checkpoint struct {
	Step       int               `codec:"step"`
	Model      []byte            `codec:"model"`
	Optimizers map[string][]byte `codec:"optimizers"`
}

type Store struct {
	log *zap.SugaredLogger
}

func NewStore(log *zap.SugaredLogger) *Store {
	return &Store{log: log}
}

// PathForStep returns the step-addressed checkpoint path inside dir.
func PathForStep(dir string, step int) string {
	return filepath.Join(dir, fmt.Sprintf(consts.CheckpointFileFormat, step))
}

// Save writes the checkpoint atomically; a reader never observes a partially
// written file. When running distributed, only the coordinator rank may call
// Save.
func (s *Store) Save(outputDir string, step int, modelState []byte, optimizerStates map[string][]byte) (string, error) {
	if _, err := files.CreateDirIfMissing(outputDir); err != nil {
		return "", err
	}

	ckpt := Checkpoint{
		Step:       step,
		Model:      modelState,
		Optimizers: optimizerStates,
	}

	ckptBytes, err := msgpack.Marshal(ckpt)
	if err != nil {
		return "", err
	}

	ckptPath := PathForStep(outputDir, step)
	if err := files.WriteFileAtomic(ckptBytes, ckptPath); err != nil {
		return "", err
	}

	s.log.Infow("saved checkpoint", "path", ckptPath, "step", step)
	return ckptPath, nil
}

// Load reads and decodes the checkpoint at path, or fails with a typed
// not-found error when the path is absent.
func (s *Store) Load(path string) (*Checkpoint, error) {
	if !files.IsFile(path) {
		return nil, ErrorCheckpointNotFound(path)
	}

	ckptBytes, err := files.ReadFileBytes(path)
	if err != nil {
		return nil, err
	}

	ckpt := &Checkpoint{}
	if err := msgpack.Unmarshal(ckptBytes, ckpt); err != nil {
		return nil, ErrorCheckpointCorrupt(path, err)
	}

	s.log.Infow("done loading checkpoint", "path", path, "step", ckpt.Step)
	return ckpt, nil
}
