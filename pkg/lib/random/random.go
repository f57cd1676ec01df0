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

package random

import (
	"math/rand"
	"time"
)

// SampleIndices returns k distinct indices in [0, n), sampled without
// replacement. If k >= n, all indices are returned (shuffled).
func SampleIndices(n int, k int) []int {
	return SampleIndicesSeeded(n, k, time.Now().UnixNano())
}

func SampleIndicesSeeded(n int, k int, seed int64) []int {
	if k > n {
		k = n
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[:k]
}
