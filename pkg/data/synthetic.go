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

package data

import (
	"math"
	"math/rand"

	"github.com/ignatpenshin/nerfstudio/pkg/config"
)

// SetupDatasetTrain builds the training reader bound to a compute device.
// The synthetic dataset is fully deterministic given cfg.Seed, which the
// resumption tests rely on.
func SetupDatasetTrain(cfg config.DataConfig, device string) (*DatasetMetadata, TrainReader, error) {
	dataset := newSyntheticDataset(cfg)
	reader := &syntheticTrainReader{
		dataset:         dataset,
		numRaysPerBatch: cfg.NumRaysPerBatch,
		seed:            cfg.Seed,
	}
	return dataset.metadata, reader, nil
}

// SetupDatasetEval builds the held-out reader. In test mode every camera is
// evaluated; otherwise a fixed subset keeps periodic evaluation cheap.
func SetupDatasetEval(cfg config.DataConfig, testMode bool, device string) (*DatasetMetadata, EvalReader, error) {
	dataset := newSyntheticDataset(cfg)
	numEval := dataset.metadata.NumImages()
	if !testMode && numEval > 2 {
		numEval = 2
	}
	reader := &syntheticEvalReader{
		dataset:         dataset,
		numEval:         numEval,
		numRaysPerChunk: cfg.NumRaysPerBatch,
	}
	return dataset.metadata, reader, nil
}

type syntheticDataset struct {
	metadata *DatasetMetadata
	images   []Image
}

func newSyntheticDataset(cfg config.DataConfig) *syntheticDataset {
	cameras := make([]CameraInfo, cfg.NumImages)
	images := make([]Image, cfg.NumImages)

	focal := float64(cfg.ImageHeight) // ~53 degree vertical fov
	cx := float64(cfg.ImageWidth) / 2
	cy := float64(cfg.ImageHeight) / 2

	for cam := 0; cam < cfg.NumImages; cam++ {
		theta := 2 * math.Pi * float64(cam) / float64(cfg.NumImages)
		cameras[cam] = CameraInfo{
			Intrinsics: [3][3]float64{
				{focal, 0, cx},
				{0, focal, cy},
				{0, 0, 1},
			},
			CameraToWorld: lookAtOrigin(theta, 4.0),
		}

		pixels := make([][3]float64, cfg.ImageHeight*cfg.ImageWidth)
		for row := 0; row < cfg.ImageHeight; row++ {
			for col := 0; col < cfg.ImageWidth; col++ {
				pixels[row*cfg.ImageWidth+col] = syntheticColor(cam, row, col, cfg.ImageHeight, cfg.ImageWidth)
			}
		}
		images[cam] = Image{Height: cfg.ImageHeight, Width: cfg.ImageWidth, Pixels: pixels}
	}

	return &syntheticDataset{
		metadata: &DatasetMetadata{
			Cameras:     cameras,
			SceneBounds: AABB{Min: [3]float64{-1, -1, -1}, Max: [3]float64{1, 1, 1}},
			ImageHeight: cfg.ImageHeight,
			ImageWidth:  cfg.ImageWidth,
		},
		images: images,
	}
}

// syntheticColor is a smooth procedural target; smooth targets keep the
// reference model's loss surface well behaved.
func syntheticColor(cam int, row int, col int, height int, width int) [3]float64 {
	u := float64(col) / float64(width-1)
	v := float64(row) / float64(height-1)
	phase := float64(cam) * 0.37
	return [3]float64{
		0.5 + 0.5*math.Sin(3*u+phase),
		0.5 + 0.5*math.Cos(2*v+phase),
		0.5 + 0.5*math.Sin(2*u+3*v),
	}
}

func lookAtOrigin(theta float64, radius float64) [3][4]float64 {
	eye := [3]float64{radius * math.Cos(theta), radius * math.Sin(theta), 0.5 * radius}

	forward := normalize([3]float64{-eye[0], -eye[1], -eye[2]})
	right := normalize(cross(forward, [3]float64{0, 0, 1}))
	up := cross(right, forward)

	return [3][4]float64{
		{right[0], up[0], -forward[0], eye[0]},
		{right[1], up[1], -forward[1], eye[1]},
		{right[2], up[2], -forward[2], eye[2]},
	}
}

func cross(a [3]float64, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize(v [3]float64) [3]float64 {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		return v
	}
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}

type syntheticTrainReader struct {
	dataset         *syntheticDataset
	numRaysPerBatch int
	seed            int64
}

func (r *syntheticTrainReader) Iter() TrainIterator {
	return &syntheticTrainIterator{
		reader: r,
		rng:    rand.New(rand.NewSource(r.seed)),
	}
}

func (r *syntheticTrainReader) Images() []Image {
	return r.dataset.images
}

type syntheticTrainIterator struct {
	reader *syntheticTrainReader
	rng    *rand.Rand
}

func (it *syntheticTrainIterator) Next() (*Batch, error) {
	dataset := it.reader.dataset
	meta := dataset.metadata

	rayIndices := make([]RayIndex, it.reader.numRaysPerBatch)
	pixels := make([][3]float64, it.reader.numRaysPerBatch)
	for i := range rayIndices {
		cam := it.rng.Intn(meta.NumImages())
		row := it.rng.Intn(meta.ImageHeight)
		col := it.rng.Intn(meta.ImageWidth)
		rayIndices[i] = RayIndex{int32(cam), int32(row), int32(col)}
		pixels[i] = dataset.images[cam].At(row, col)
	}

	return &Batch{RayIndices: rayIndices, Pixels: pixels}, nil
}

type syntheticEvalReader struct {
	dataset         *syntheticDataset
	numEval         int
	numRaysPerChunk int
	cursor          int
}

func (r *syntheticEvalReader) Restart() {
	r.cursor = 0
}

func (r *syntheticEvalReader) Next() (*RayBundle, *Batch, bool) {
	if r.cursor >= r.numEval {
		return nil, nil, false
	}

	cam := r.cursor
	r.cursor++

	meta := r.dataset.metadata
	image := r.dataset.images[cam]

	bundle := &RayBundle{
		CameraIndex:     int32(cam),
		Height:          meta.ImageHeight,
		Width:           meta.ImageWidth,
		NumRaysPerChunk: r.numRaysPerChunk,
	}

	rayIndices := make([]RayIndex, 0, bundle.NumRays())
	pixels := make([][3]float64, 0, bundle.NumRays())
	for row := 0; row < meta.ImageHeight; row++ {
		for col := 0; col < meta.ImageWidth; col++ {
			rayIndices = append(rayIndices, RayIndex{int32(cam), int32(row), int32(col)})
			pixels = append(pixels, image.At(row, col))
		}
	}

	return bundle, &Batch{RayIndices: rayIndices, Pixels: pixels}, true
}
