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

package model

import (
	"fmt"

	"github.com/ignatpenshin/nerfstudio/pkg/lib/errors"
)

const (
	ErrRayTargetMismatch     = "model.ray_target_mismatch"
	ErrBackwardBeforeForward = "model.backward_before_forward"
	ErrIncompatibleSnapshot  = "model.incompatible_snapshot"
)

func ErrorRayTargetMismatch(numRays int, numTargets int) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrRayTargetMismatch,
		Message: fmt.Sprintf("got %d target rays but %d ground-truth pixels", numRays, numTargets),
	})
}

func ErrorBackwardBeforeForward() error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrBackwardBeforeForward,
		Message: "backward called before any forward pass",
	})
}

func ErrorIncompatibleSnapshot(groupName string) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrIncompatibleSnapshot,
		Message: fmt.Sprintf("snapshot parameter group %s does not match the model", groupName),
	})
}
