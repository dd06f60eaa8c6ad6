//go:build unix

package cpi

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// CheckExecutable verifies that path is a regular file the current process
// may execute.
func CheckExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if err := unix.Access(path, unix.X_OK); err != nil {
		return fmt.Errorf("access %s: %w", path, err)
	}
	return nil
}
