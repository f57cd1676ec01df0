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

package config

import (
	"fmt"

	"github.com/ignatpenshin/nerfstudio/pkg/lib/errors"
)

const (
	ErrParseConfig            = "config.parse_config"
	ErrInvalidCadence         = "config.invalid_cadence"
	ErrInvalidIterationBudget = "config.invalid_iteration_budget"
	ErrInvalidWorldSize       = "config.invalid_world_size"
	ErrInvalidLocalRank       = "config.invalid_local_rank"
	ErrInvalidOptimValue      = "config.invalid_optim_value"
	ErrMissingField           = "config.missing_field"
)

func ErrorInvalidOptimValue(field string, value float64) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrInvalidOptimValue,
		Message: fmt.Sprintf("%s: invalid value %g", field, value),
	})
}

func ErrorParseConfig(path string, err error) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrParseConfig,
		Message: fmt.Sprintf("%s: unable to parse training config: %v", path, err),
		Cause:   err,
	})
}

func ErrorInvalidCadence(field string, value int) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrInvalidCadence,
		Message: fmt.Sprintf("%s: invalid value %d", field, value),
	})
}

func ErrorInvalidIterationBudget(value int) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrInvalidIterationBudget,
		Message: fmt.Sprintf("trainer.max_num_iterations must be at least 1; got %d", value),
	})
}

func ErrorInvalidWorldSize(worldSize int) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrInvalidWorldSize,
		Message: fmt.Sprintf("distributed.world_size must be at least 1; got %d", worldSize),
	})
}

func ErrorInvalidLocalRank(localRank int, worldSize int) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrInvalidLocalRank,
		Message: fmt.Sprintf("distributed.local_rank must be in [0, %d); got %d", worldSize, localRank),
	})
}

func ErrorMissingField(field string) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrMissingField,
		Message: fmt.Sprintf("%s is required", field),
	})
}
