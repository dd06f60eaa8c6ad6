//go:build !unix

package cpi

import (
	"fmt"
	"os"
)

// CheckExecutable verifies that path is a regular file with an execute bit set.
func CheckExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%s has no execute permission", path)
	}
	return nil
}
