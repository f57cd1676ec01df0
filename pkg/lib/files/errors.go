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

package files

import (
	"fmt"

	"github.com/ignatpenshin/nerfstudio/pkg/lib/errors"
)

const (
	ErrCreateDir         = "files.create_dir"
	ErrCreateFile        = "files.create_file"
	ErrReadFile          = "files.read_file"
	ErrFileAlreadyExists = "files.file_already_exists"
	ErrFileDoesNotExist  = "files.file_does_not_exist"
	ErrDirDoesNotExist   = "files.dir_does_not_exist"
)

func ErrorCreateDir(path string) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrCreateDir,
		Message: fmt.Sprintf("%s: unable to create directory", path),
	})
}

func ErrorCreateFile(path string) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrCreateFile,
		Message: fmt.Sprintf("%s: unable to create file", path),
	})
}

func ErrorReadFile(path string) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrReadFile,
		Message: fmt.Sprintf("%s: unable to read file", path),
	})
}

func ErrorFileAlreadyExists(path string) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrFileAlreadyExists,
		Message: fmt.Sprintf("%s: file already exists", path),
	})
}

func ErrorFileDoesNotExist(path string) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrFileDoesNotExist,
		Message: fmt.Sprintf("%s: file does not exist", path),
	})
}

func ErrorDirDoesNotExist(path string) error {
	return errors.WithStack(&errors.Error{
		Kind:    ErrDirDoesNotExist,
		Message: fmt.Sprintf("%s: directory does not exist", path),
	})
}
