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

package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ignatpenshin/nerfstudio/pkg/lib/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()

	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zap.FatalLevel)
	logger, err := config.Build()
	require.NoError(t, err)

	return logger.Sugar()
}

func TestPathForStep(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/tmp/run/step-000000500.ckpt", PathForStep("/tmp/run", 500))
	require.Equal(t, "/tmp/run/step-000000000.ckpt", PathForStep("/tmp/run", 0))
	require.Equal(t, "/tmp/run/step-123456789.ckpt", PathForStep("/tmp/run", 123456789))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(newLogger(t))
	dir := filepath.Join(t.TempDir(), "checkpoints") // Save creates it

	modelState := []byte{0x01, 0x02, 0x03}
	optimizerStates := map[string][]byte{
		"fields":  {0x0a, 0x0b},
		"cameras": {0x0c},
	}

	path, err := store.Save(dir, 42, modelState, optimizerStates)
	require.NoError(t, err)
	require.Equal(t, PathForStep(dir, 42), path)

	loaded, err := store.Load(path)
	require.NoError(t, err)
	require.Equal(t, 42, loaded.Step)
	require.Equal(t, modelState, loaded.Model)
	require.Equal(t, optimizerStates, loaded.Optimizers)
}

func TestLoadMissingCheckpoint(t *testing.T) {
	t.Parallel()

	store := NewStore(newLogger(t))

	_, err := store.Load(PathForStep(t.TempDir(), 7))
	require.Error(t, err)
	require.Equal(t, ErrCheckpointNotFound, errors.GetKind(err))
}

func TestLoadCorruptCheckpoint(t *testing.T) {
	t.Parallel()

	store := NewStore(newLogger(t))
	path := filepath.Join(t.TempDir(), "step-000000001.ckpt")
	require.NoError(t, os.WriteFile(path, []byte("not a checkpoint"), 0644))

	_, err := store.Load(path)
	require.Error(t, err)
	require.Equal(t, ErrCheckpointCorrupt, errors.GetKind(err))
}

func TestSaveOverwritesExistingStep(t *testing.T) {
	t.Parallel()

	store := NewStore(newLogger(t))
	dir := t.TempDir()

	_, err := store.Save(dir, 10, []byte{0x01}, nil)
	require.NoError(t, err)

	path, err := store.Save(dir, 10, []byte{0x02}, nil)
	require.NoError(t, err)

	loaded, err := store.Load(path)
	require.NoError(t, err)
	require.Equal(t, []byte{0x02}, loaded.Model)
}
