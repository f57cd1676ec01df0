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

package viewer

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ignatpenshin/nerfstudio/pkg/config"
	"github.com/ignatpenshin/nerfstudio/pkg/consts"
	"github.com/ignatpenshin/nerfstudio/pkg/data"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/msgpack"
	"github.com/ignatpenshin/nerfstudio/pkg/model"
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

// fakeViewer is a control-channel stub: it records every command and answers
// get_object requests with a fixed interactive camera.
type fakeViewer struct {
	server   *httptest.Server
	commands chan map[string]interface{}
}

func newFakeViewer(t *testing.T) *fakeViewer {
	t.Helper()

	fv := &fakeViewer{
		commands: make(chan map[string]interface{}, 64),
	}

	upgrader := websocket.Upgrader{}
	fv.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, commandBytes, err := conn.ReadMessage()
			if err != nil {
				return
			}

			command := map[string]interface{}{}
			if err := msgpack.Unmarshal(commandBytes, &command); err != nil {
				return
			}
			fv.commands <- command

			if command["type"] == "get_object" {
				matrix := make([]float64, 16)
				for i := 0; i < 4; i++ {
					matrix[i*4+i] = 1
				}
				reply := map[string]interface{}{
					"path": command["path"],
					"object": map[string]interface{}{
						"object": map[string]interface{}{
							"fov":    90.0,
							"aspect": 1.0,
							"matrix": matrix,
						},
					},
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, msgpack.MustMarshal(reply)); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(fv.server.Close)

	return fv
}

func (fv *fakeViewer) url() string {
	return "ws" + strings.TrimPrefix(fv.server.URL, "http")
}

func (fv *fakeViewer) nextCommand(t *testing.T) map[string]interface{} {
	t.Helper()

	select {
	case command := <-fv.commands:
		return command
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for viewer command")
		return nil
	}
}

func testViewerConfig(url string) config.ViewerConfig {
	return config.ViewerConfig{
		Enable:            true,
		ControlURL:        url,
		RenderImageHeight: 4,
		NumRaysPerChunk:   8,
	}
}

func newTestDataset(t *testing.T) (*data.DatasetMetadata, []data.Image) {
	t.Helper()

	meta, reader, err := data.SetupDatasetTrain(config.DataConfig{
		NumImages:       4,
		ImageHeight:     4,
		ImageWidth:      4,
		NumRaysPerBatch: 8,
		Seed:            1,
	}, "cpu")
	require.NoError(t, err)
	return meta, reader.Images()
}

func TestNewBridgeClearsScene(t *testing.T) {
	t.Parallel()

	fv := newFakeViewer(t)

	bridge, err := NewBridge(testViewerConfig(fv.url()), newLogger(t))
	require.NoError(t, err)
	t.Cleanup(bridge.Close)

	command := fv.nextCommand(t)
	require.Equal(t, "delete", command["type"])
}

func TestNewBridgeUnreachableViewer(t *testing.T) {
	t.Parallel()

	_, err := NewBridge(testViewerConfig("ws://127.0.0.1:1/viewer"), newLogger(t))
	require.Error(t, err)
}

func TestDrawSceneInViewer(t *testing.T) {
	t.Parallel()

	fv := newFakeViewer(t)
	bridge, err := NewBridge(testViewerConfig(fv.url()), newLogger(t))
	require.NoError(t, err)
	t.Cleanup(bridge.Close)
	fv.nextCommand(t) // initial delete

	meta, images := newTestDataset(t)
	require.NoError(t, bridge.DrawSceneInViewer(meta, images))

	// 4 dataset images (fewer than the seed budget), then the scene bounds
	frustumPaths := map[string]bool{}
	for i := 0; i < 4; i++ {
		command := fv.nextCommand(t)
		require.Equal(t, "set_object", command["type"])
		path := command["path"].(string)
		require.True(t, strings.HasPrefix(path, "image_dataset_train/"), path)
		frustumPaths[path] = true

		frustum := command["object"].(map[string]interface{})
		require.Equal(t, "camera_frustum", frustum["type"])
		require.Len(t, frustum["image"], 4*4*3)
		require.Len(t, frustum["pose"], 16)
		require.Len(t, frustum["intrinsics"], 9)
	}
	require.Len(t, frustumPaths, 4)

	bounds := fv.nextCommand(t)
	require.Equal(t, "set_object", bounds["type"])
	require.Equal(t, "dataset_inputs_train/scene_bounds/aabb", bounds["path"])
}

func TestRenderImageInViewer(t *testing.T) {
	t.Parallel()

	fv := newFakeViewer(t)
	cfg := testViewerConfig(fv.url())
	bridge, err := NewBridge(cfg, newLogger(t))
	require.NoError(t, err)
	t.Cleanup(bridge.Close)
	fv.nextCommand(t) // initial delete

	meta, _ := newTestDataset(t)
	m := model.NewLinearModel(meta, "cpu")

	require.NoError(t, bridge.RenderImageInViewer(m))
	require.True(t, m.IsTrainMode())

	getObject := fv.nextCommand(t)
	require.Equal(t, "get_object", getObject["type"])
	require.Equal(t, consts.MainCameraPath, getObject["path"])

	setImage := fv.nextCommand(t)
	require.Equal(t, "set_image", setImage["type"])
	require.Equal(t, consts.MainCameraPath, setImage["path"])

	// aspect 1 at the configured render height
	require.EqualValues(t, 4, asInt(setImage["height"]))
	require.EqualValues(t, 4, asInt(setImage["width"]))
	require.Len(t, setImage["image"], 4*4*3)
}

func asInt(v interface{}) int {
	f, _ := toFloat64(v)
	return int(f)
}
