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

package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

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

func newTestWriter(t *testing.T, eventsDir string) *Writer {
	t.Helper()

	writer, err := NewWriter(WriterOptions{
		RunID:     "run-123",
		EventsDir: eventsDir,
	}, newLogger(t))
	require.NoError(t, err)
	t.Cleanup(writer.Close)
	return writer
}

func readEventsFile(t *testing.T, eventsDir string) []Event {
	t.Helper()

	f, err := os.Open(filepath.Join(eventsDir, "events.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	var out []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		out = append(out, event)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestWriterBuffersUntilFlush(t *testing.T) {
	t.Parallel()

	eventsDir := t.TempDir()
	writer := newTestWriter(t, eventsDir)

	writer.PutScalar("Train Loss", 0.5, 10)
	writer.PutScalar("Train Loss", 0.4, 20)
	require.Equal(t, int64(2), writer.PendingEvents())

	// nothing on disk before the flush
	_, err := os.Stat(filepath.Join(eventsDir, "events.jsonl"))
	require.True(t, os.IsNotExist(err))

	require.NoError(t, writer.WriteOutStorage())
	require.Zero(t, writer.PendingEvents())

	recorded := readEventsFile(t, eventsDir)
	require.Len(t, recorded, 2)
	require.Equal(t, "Train Loss", recorded[0].Name)
	require.Equal(t, 0.5, recorded[0].Value)
	require.Equal(t, 10, recorded[0].Step)
	require.Equal(t, "run-123", recorded[0].RunID)
	require.NotZero(t, recorded[0].Timestamp)
}

func TestWriterFlushAppends(t *testing.T) {
	t.Parallel()

	eventsDir := t.TempDir()
	writer := newTestWriter(t, eventsDir)

	writer.PutScalar("a", 1, 1)
	require.NoError(t, writer.WriteOutStorage())

	writer.PutScalar("b", 2, 2)
	require.NoError(t, writer.WriteOutStorage())

	recorded := readEventsFile(t, eventsDir)
	require.Len(t, recorded, 2)
	require.Equal(t, "a", recorded[0].Name)
	require.Equal(t, "b", recorded[1].Name)
}

func TestWriterEmptyFlush(t *testing.T) {
	t.Parallel()

	eventsDir := t.TempDir()
	writer := newTestWriter(t, eventsDir)

	require.NoError(t, writer.WriteOutStorage())
	_, err := os.Stat(filepath.Join(eventsDir, "events.jsonl"))
	require.True(t, os.IsNotExist(err))
}

func TestWriterNoEventsDir(t *testing.T) {
	t.Parallel()

	writer, err := NewWriter(WriterOptions{RunID: "run-123"}, newLogger(t))
	require.NoError(t, err)
	t.Cleanup(writer.Close)

	writer.PutScalar("a", 1, 1)
	require.NoError(t, writer.WriteOutStorage())
}

func TestWriterPutDict(t *testing.T) {
	t.Parallel()

	eventsDir := t.TempDir()
	writer := newTestWriter(t, eventsDir)

	writer.PutDict("Loss/train-loss_dict", map[string]float64{
		"rgb_loss":        0.25,
		"aggregated_loss": 0.25,
	}, 30)
	require.NoError(t, writer.WriteOutStorage())

	recorded := readEventsFile(t, eventsDir)
	require.Len(t, recorded, 2)

	names := []string{recorded[0].Name, recorded[1].Name}
	require.ElementsMatch(t, names, []string{
		"Loss/train-loss_dict/rgb_loss",
		"Loss/train-loss_dict/aggregated_loss",
	})
}

func TestTimeWriter(t *testing.T) {
	t.Parallel()

	eventsDir := t.TempDir()
	writer := newTestWriter(t, eventsDir)

	timer := writer.StartTimer(IterTrainTime, 5)
	time.Sleep(10 * time.Millisecond)
	timer.Stop()

	require.GreaterOrEqual(t, timer.Duration, 10*time.Millisecond)
	require.NoError(t, writer.WriteOutStorage())

	recorded := readEventsFile(t, eventsDir)
	require.Len(t, recorded, 1)
	require.Equal(t, IterTrainTime, recorded[0].Name)
	require.Equal(t, 5, recorded[0].Step)
	require.Greater(t, recorded[0].Value, 0.0)
}

func TestStatsdName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Train Rays / Sec", "nerf.train_rays_sec"},
		{"Test PSNR", "nerf.test_psnr"},
		{"Loss/train-loss_dict/rgb_loss", "nerf.loss_train_loss_dict_rgb_loss"},
	}
	for _, test := range tests {
		require.Equal(t, test.want, statsdName(test.in), test.in)
	}
}
