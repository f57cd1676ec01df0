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
	"time"
)

// TimeWriter records the wall time of a scoped block as a named duration
// event. Stop must be called exactly once.
type TimeWriter struct {
	writer   *Writer
	name     string
	step     int
	start    time.Time
	Duration time.Duration
}

func (w *Writer) StartTimer(name string, step int) *TimeWriter {
	return &TimeWriter{
		writer: w,
		name:   name,
		step:   step,
		start:  time.Now(),
	}
}

func (t *TimeWriter) Stop() {
	t.Duration = time.Since(t.start)
	t.writer.PutScalar(t.name, t.Duration.Seconds(), t.step)
}
