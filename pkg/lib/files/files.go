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
	"os"
	"path/filepath"

	"github.com/ignatpenshin/nerfstudio/pkg/lib/errors"
)

func ReadFileBytes(path string) ([]byte, error) {
	if err := CheckFile(path); err != nil {
		return nil, err
	}

	fileBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.Message(ErrorReadFile(path)))
	}

	return fileBytes, nil
}

func WriteFile(data []byte, path string) error {
	if err := os.WriteFile(path, data, 0664); err != nil {
		return errors.Wrap(err, errors.Message(ErrorCreateFile(path)))
	}

	return nil
}

// WriteFileAtomic writes to a temp file in the target directory and renames it
// into place, so readers never observe a partially written file.
func WriteFileAtomic(data []byte, path string) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, errors.Message(ErrorCreateFile(path)))
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, errors.Message(ErrorCreateFile(path)))
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, errors.Message(ErrorCreateFile(path)))
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, errors.Message(ErrorCreateFile(path)))
	}

	return nil
}

func IsFile(path string) bool {
	if path == "" {
		return false
	}
	fileInfo, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !fileInfo.IsDir()
}

func IsDir(path string) bool {
	if path == "" {
		return false
	}
	fileInfo, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fileInfo.IsDir()
}

func CheckFile(path string) error {
	if !IsFile(path) {
		return ErrorFileDoesNotExist(path)
	}
	return nil
}

func CheckDir(dirPath string) error {
	if !IsDir(dirPath) {
		return ErrorDirDoesNotExist(dirPath)
	}
	return nil
}

func CreateDir(path string) error {
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return errors.Wrap(err, errors.Message(ErrorCreateDir(path)))
	}

	return nil
}

func CreateDirIfMissing(path string) (bool, error) {
	if IsDir(path) {
		return false, nil
	}

	if IsFile(path) {
		return false, ErrorFileAlreadyExists(path)
	}

	err := CreateDir(path)
	if err != nil {
		return false, err
	}

	return true, nil
}
