// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// FindProjectRoot returns the module root, found by walking up from the
// caller's source file until a directory containing go.mod appears. Tests
// use it to locate the module regardless of the package they run in.
func FindProjectRoot() (string, error) {
	_, file, _, ok := runtime.Caller(1)
	if !ok {
		return "", errors.New("failed to resolve caller source file")
	}

	for dir := filepath.Dir(file); ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		if dir == filepath.Dir(dir) {
			return "", errors.New("no go.mod found above " + file)
		}
	}
}
