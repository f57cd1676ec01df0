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

// Package viewer streams training progress to a remote interactive viewer
// over a message-oriented websocket channel. Every remote call is isolated:
// a viewer hiccup is logged and reported as a typed error, never propagated
// in a way that could abort training.
package viewer

import (
	"fmt"
	"math"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ignatpenshin/nerfstudio/pkg/config"
	"github.com/ignatpenshin/nerfstudio/pkg/consts"
	"github.com/ignatpenshin/nerfstudio/pkg/data"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/msgpack"
	"github.com/ignatpenshin/nerfstudio/pkg/lib/random"
	"github.com/ignatpenshin/nerfstudio/pkg/model"
	"go.uber.org/zap"
)

const _numSeedImages = 10

type Bridge struct {
	cfg config.ViewerConfig
	log *zap.SugaredLogger

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewBridge(cfg config.ViewerConfig, log *zap.SugaredLogger) (*Bridge, error) {
	conn, _, err := websocket.DefaultDialer.Dial(cfg.ControlURL, nil)
	if err != nil {
		return nil, ErrorViewerCommunication("connect", err)
	}

	b := &Bridge{cfg: cfg, log: log, conn: conn}
	log.Infof("connected to viewer at %s", cfg.ControlURL)

	// start from an empty scene tree
	if err := b.send(map[string]interface{}{"type": "delete", "path": ""}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return b, nil
}

func (b *Bridge) send(command map[string]interface{}) error {
	commandBytes, err := msgpack.Marshal(command)
	if err != nil {
		return ErrorViewerCommunication("encode", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.conn.WriteMessage(websocket.BinaryMessage, commandBytes); err != nil {
		return ErrorViewerCommunication("send", err)
	}
	return nil
}

func (b *Bridge) getObject(path string) (map[string]interface{}, error) {
	commandBytes, err := msgpack.Marshal(map[string]interface{}{"type": "get_object", "path": path})
	if err != nil {
		return nil, ErrorViewerCommunication("encode", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.conn.WriteMessage(websocket.BinaryMessage, commandBytes); err != nil {
		return nil, ErrorViewerCommunication("get_object", err)
	}

	_, replyBytes, err := b.conn.ReadMessage()
	if err != nil {
		return nil, ErrorViewerCommunication("get_object", err)
	}

	reply := map[string]interface{}{}
	if err := msgpack.Unmarshal(replyBytes, &reply); err != nil {
		return nil, ErrorViewerCommunication("decode", err)
	}
	return reply, nil
}

// DrawSceneInViewer seeds the viewer with a sample of training images (drawn
// as camera frusta) and the scene bounding box. Called once before the step
// loop starts.
func (b *Bridge) DrawSceneInViewer(meta *data.DatasetMetadata, images []data.Image) error {
	indices := random.SampleIndices(len(images), _numSeedImages)
	for _, idx := range indices {
		camera := meta.Cameras[idx]
		frustum := map[string]interface{}{
			"type":       "camera_frustum",
			"image":      flattenImageScaled(&images[idx]),
			"height":     images[idx].Height,
			"width":      images[idx].Width,
			"pose":       flattenPose(camera.CameraToWorld),
			"intrinsics": flattenIntrinsics(camera.Intrinsics),
		}
		err := b.send(map[string]interface{}{
			"type":   "set_object",
			"path":   fmt.Sprintf("image_dataset_train/%06d", idx),
			"object": frustum,
		})
		if err != nil {
			return err
		}
	}

	return b.send(map[string]interface{}{
		"type": "set_object",
		"path": "dataset_inputs_train/scene_bounds/aabb",
		"object": map[string]interface{}{
			"type": "aabb",
			"min":  meta.SceneBounds.Min[:],
			"max":  meta.SceneBounds.Max[:],
		},
	})
}

// RenderImageInViewer pulls the viewer's interactive camera, renders through
// the model at the configured resolution, and pushes the image back.
func (b *Bridge) RenderImageInViewer(m model.Model) error {
	reply, err := b.getObject(consts.MainCameraPath)
	if err != nil {
		return err
	}

	cameraObject, err := unpackCameraObject(reply)
	if err != nil {
		return err
	}

	cameraMsg, err := decodeCameraMessage(cameraObject)
	if err != nil {
		return err
	}

	intrinsics, cameraToWorldH := IntrinsicsAndCameraToWorld(cameraMsg, b.cfg.RenderImageHeight)

	height := b.cfg.RenderImageHeight
	width := int(math.Round(float64(height) * cameraMsg.Aspect))
	bundle := &data.RayBundle{
		Height:          height,
		Width:           width,
		NumRaysPerChunk: b.cfg.NumRaysPerChunk,
		Intrinsics:      intrinsics,
		CameraToWorldH:  cameraToWorldH,
	}

	var outputs model.Outputs
	err = model.WithEvalMode(m, func() error {
		var renderErr error
		outputs, renderErr = m.GetOutputsForCameraRayBundle(bundle)
		return renderErr
	})
	if err != nil {
		return ErrorViewerCommunication("render", err)
	}

	image, ok := outputs[m.PrimaryOutputKey()]
	if !ok {
		return ErrorMissingOutputKey(m.PrimaryOutputKey())
	}

	return b.send(map[string]interface{}{
		"type":   "set_image",
		"path":   consts.MainCameraPath,
		"image":  flattenImageScaled(image),
		"height": image.Height,
		"width":  image.Width,
	})
}

func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.conn.Close()
}

// unpackCameraObject digs the camera description out of the viewer's nested
// reply envelope.
func unpackCameraObject(reply map[string]interface{}) (map[string]interface{}, error) {
	outer, ok := reply["object"].(map[string]interface{})
	if !ok {
		return nil, ErrorMalformedCameraMessage("object")
	}
	inner, ok := outer["object"].(map[string]interface{})
	if !ok {
		return nil, ErrorMalformedCameraMessage("object.object")
	}
	return inner, nil
}

func flattenImageScaled(img *data.Image) []float64 {
	flat := make([]float64, 0, len(img.Pixels)*3)
	for _, pixel := range img.Pixels {
		flat = append(flat, pixel[0]*255, pixel[1]*255, pixel[2]*255)
	}
	return flat
}

func flattenPose(pose [3][4]float64) []float64 {
	flat := make([]float64, 0, 16)
	for row := 0; row < 3; row++ {
		flat = append(flat, pose[row][:]...)
	}
	flat = append(flat, 0, 0, 0, 1)
	return flat
}

func flattenIntrinsics(k [3][3]float64) []float64 {
	flat := make([]float64, 0, 9)
	for row := 0; row < 3; row++ {
		flat = append(flat, k[row][:]...)
	}
	return flat
}
