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

package distributed

import (
	"fmt"

	"github.com/ignatpenshin/nerfstudio/pkg/lib/errors"
)

const (
	ErrInvalidCoordinatorURL  = "distributed.invalid_coordinator_url"
	ErrCoordinatorUnreachable = "distributed.coordinator_unreachable"
	ErrModelNotSynchronizable = "distributed.model_not_synchronizable"
	ErrCollectiveFailed       = "distributed.collective_failed"
	ErrCollectiveOutOfSync    = "distributed.collective_out_of_sync"
)

func ErrorInvalidCoordinatorURL(url string, err error) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrInvalidCoordinatorURL,
		Message: fmt.Sprintf("%s: invalid coordinator url: %v", url, err),
		Cause:   err,
	})
}

func ErrorCoordinatorUnreachable(url string, err error) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrCoordinatorUnreachable,
		Message: fmt.Sprintf("%s: coordinator unreachable: %v", url, err),
		Cause:   err,
	})
}

func ErrorModelNotSynchronizable() error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrModelNotSynchronizable,
		Message: "model does not expose flat gradients; it cannot be wrapped for distributed training",
	})
}

func ErrorCollectiveFailed(op string, err error) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrCollectiveFailed,
		Message: fmt.Sprintf("%s collective failed: %v", op, err),
		Cause:   err,
	})
}

func ErrorCollectiveOutOfSync(wantOp string, wantSeq uint64, gotOp string, gotSeq uint64) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrCollectiveOutOfSync,
		Message: fmt.Sprintf("expected %s collective result (seq %d); got %s (seq %d)", wantOp, wantSeq, gotOp, gotSeq),
	})
}
