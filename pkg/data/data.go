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

// Package data defines the dataset reader contracts consumed by the training
// loop, plus the ray and image types shared across the system. The trainer
// treats readers as black boxes; the synthetic reader in this package is the
// reference implementation used by tests and local smoke runs.
package data

// RayIndex addresses a single target ray as (camera, row, col).
type RayIndex [3]int32

// Batch is one step's worth of training data. It is produced once per step
// and discarded after the iteration consumes it.
type Batch struct {
	RayIndices []RayIndex
	Pixels     [][3]float64 // ground-truth color per ray
}

// RayBundle is a full-image bundle of camera rays used for rendering. For
// viewer renders the pose comes from the interactive camera rather than a
// dataset camera; CameraIndex is meaningful only for dataset bundles.
type RayBundle struct {
	CameraIndex     int32
	Height          int
	Width           int
	NumRaysPerChunk int
	Intrinsics      [3][3]float64
	CameraToWorldH  [4][4]float64
}

func (b *RayBundle) NumRays() int {
	return b.Height * b.Width
}

// Image is a row-major RGB image with channel values in [0, 1].
type Image struct {
	Height int
	Width  int
	Pixels [][3]float64
}

func (img *Image) At(row int, col int) [3]float64 {
	return img.Pixels[row*img.Width+col]
}

// CameraInfo carries the per-image intrinsics matrix and camera-to-world
// transform needed to seed the viewer.
type CameraInfo struct {
	Intrinsics    [3][3]float64
	CameraToWorld [3][4]float64
}

// AABB is an axis-aligned scene bounding box.
type AABB struct {
	Min [3]float64
	Max [3]float64
}

// DatasetMetadata is produced once at dataset setup and stays immutable.
type DatasetMetadata struct {
	Cameras     []CameraInfo
	SceneBounds AABB
	ImageHeight int
	ImageWidth  int
}

func (m *DatasetMetadata) NumImages() int {
	return len(m.Cameras)
}

// TrainIterator is a persistent cursor over the training stream. Next never
// exhausts; the reader reshuffles per its own policy.
type TrainIterator interface {
	Next() (*Batch, error)
}

// TrainReader produces training batches and exposes the underlying image
// dataset for viewer seeding.
type TrainReader interface {
	Iter() TrainIterator
	Images() []Image
}

// EvalReader is a finite sequence of (ray bundle, batch) pairs, restartable
// from its start on every Restart call.
type EvalReader interface {
	Restart()
	Next() (*RayBundle, *Batch, bool)
}
