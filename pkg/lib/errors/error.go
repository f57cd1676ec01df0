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

package errors

import (
	"fmt"
	"io"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

const ErrNotNerfError = "error"

type Error struct {
	Kind        string
	Message     string
	Metadata    interface{} // won't be printed
	NoTelemetry bool
	Cause       error
	stack       *stack
}

func (nerfError *Error) Error() string {
	return nerfError.Message
}

func (nerfError *Error) StackTrace() pkgerrors.StackTrace {
	stackTrace := make([]pkgerrors.Frame, len(*nerfError.stack))
	for i := 0; i < len(stackTrace); i++ {
		stackTrace[i] = pkgerrors.Frame((*nerfError.stack)[i])
	}
	return stackTrace
}

func WithStack(err error) error {
	if err == nil {
		return nil
	}

	nerfError := getNerfError(err)

	if nerfError == nil {
		nerfError = &Error{
			Kind:    ErrNotNerfError,
			Message: strings.TrimSpace(err.Error()),
			Cause:   err,
		}
	}

	if nerfError.stack == nil {
		nerfError.stack = callers()
	}

	return nerfError
}

func Wrap(err error, strs ...string) error {
	if err == nil {
		return nil
	}

	nerfError := WithStack(err).(*Error)

	strs = removeEmptyStrs(strs)
	strs = append(strs, nerfError.Message)
	nerfError.Message = strings.Join(strs, ": ")

	return nerfError
}

// adds to the end of the error message (without adding any whitespace or punctuation)
func Append(err error, str string) error {
	if err == nil {
		return nil
	}

	nerfError := WithStack(err).(*Error)
	nerfError.Message = nerfError.Message + str
	return nerfError
}

func getNerfError(err error) *Error {
	if nerfError, ok := err.(*Error); ok {
		return nerfError
	}
	return nil
}

func GetKind(err error) string {
	if nerfError, ok := err.(*Error); ok {
		return nerfError.Kind
	}
	return ErrNotNerfError
}

func GetMetadata(err error) interface{} {
	if nerfError, ok := err.(*Error); ok {
		return nerfError.Metadata
	}
	return nil
}

func IsNoTelemetry(err error) bool {
	if nerfError, ok := err.(*Error); ok {
		return nerfError.NoTelemetry
	}
	return false
}

func SetNoTelemetry(err error) error {
	nerfError := WithStack(err).(*Error)
	nerfError.NoTelemetry = true
	return nerfError
}

// Returns nil if no cause
func Cause(err error) error {
	if nerfError, ok := err.(*Error); ok {
		return nerfError.Cause
	}
	return nil
}

func CauseOrSelf(err error) error {
	if nerfError, ok := err.(*Error); ok {
		cause := nerfError.Cause
		if cause != nil {
			return cause
		}
	}
	return err
}

func PrintStacktrace(err error) {
	fmt.Printf("%+v\n", err)
}

func (nerfError *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			io.WriteString(s, nerfError.Message)
			nerfError.stack.Format(s, verb)
			return
		}
		fallthrough
	case 's':
		io.WriteString(s, nerfError.Message)
	case 'q':
		fmt.Fprintf(s, "%q", nerfError.Message)
	}
}

func CastRecoverError(errInterface interface{}, strs ...string) error {
	var err error
	var ok bool
	err, ok = errInterface.(error)
	if !ok {
		err = &Error{
			Kind:    ErrNotNerfError,
			Message: fmt.Sprint(errInterface),
		}
	}
	return Wrap(err, strs...)
}

func removeEmptyStrs(strs []string) []string {
	var cleanStrs []string
	for _, str := range strs {
		if str != "" {
			cleanStrs = append(cleanStrs, str)
		}
	}
	return cleanStrs
}
