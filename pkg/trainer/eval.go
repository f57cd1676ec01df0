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
	"math"

	"github.com/ignatpenshin/nerfstudio/pkg/data"
	"github.com/ignatpenshin/nerfstudio/pkg/events"
	"github.com/ignatpenshin/nerfstudio/pkg/model"
)

// EvalWithDataloader renders every image the reader yields in inference mode
// and records the mean PSNR at the given step. The reader is rewound first, so
// repeated evaluations at different steps score the same image set. Training
// mode is restored even when rendering fails; an empty reader records nothing.
func (t *Trainer) EvalWithDataloader(reader data.EvalReader, step int) error {
	reader.Restart()

	var psnrSum float64
	var numImages int

	err := model.WithEvalMode(t.graph, func() error {
		for {
			bundle, batch, ok := reader.Next()
			if !ok {
				return nil
			}
			psnr, err := t.testImage(bundle, batch)
			if err != nil {
				return err
			}
			t.log.Debugw("evaluated test image", "step", step, "image", numImages, "psnr", psnr)
			psnrSum += psnr
			numImages++
		}
	})
	if err != nil {
		return err
	}

	if numImages > 0 {
		t.writer.PutScalar(events.TestPSNR, psnrSum/float64(numImages), step)
	}
	return nil
}

// testImage renders the bundle's full image and scores it against the
// ground-truth pixels.
func (t *Trainer) testImage(bundle *data.RayBundle, batch *data.Batch) (float64, error) {
	outputs, err := t.graph.GetOutputsForCameraRayBundle(bundle)
	if err != nil {
		return 0, err
	}

	rendered, ok := outputs[t.graph.PrimaryOutputKey()]
	if !ok {
		return 0, ErrorMissingPrimaryOutput(t.graph.PrimaryOutputKey())
	}

	return ComputePSNR(rendered, batch.Pixels), nil
}

// ComputePSNR scores a rendered image against ground-truth pixels in [0, 1]
// as -10*log10(mse). A perfect match (or an empty target) returns +Inf.
func ComputePSNR(rendered *data.Image, target [][3]float64) float64 {
	if len(target) == 0 {
		return math.Inf(1)
	}

	var sqErr float64
	for i, pixel := range target {
		for c := 0; c < 3; c++ {
			diff := rendered.Pixels[i][c] - pixel[c]
			sqErr += diff * diff
		}
	}
	mse := sqErr / float64(len(target)*3)
	if mse == 0 {
		return math.Inf(1)
	}
	return -10 * math.Log10(mse)
}
