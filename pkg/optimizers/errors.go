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

package optimizers

import (
	"fmt"

	"github.com/ignatpenshin/nerfstudio/pkg/lib/errors"
)

const (
	ErrMissingOptimizerState      = "optimizers.missing_optimizer_state"
	ErrIncompatibleOptimizerState = "optimizers.incompatible_optimizer_state"
)

func ErrorMissingOptimizerState(name string) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrMissingOptimizerState,
		Message: fmt.Sprintf("checkpoint does not contain optimizer state for %s", name),
	})
}

func ErrorIncompatibleOptimizerState(expected int, got int) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrIncompatibleOptimizerState,
		Message: fmt.Sprintf("optimizer state has %d parameters; expected %d", got, expected),
	})
}
