//go:build unix

package daemon

import (
	"os"

	"golang.org/x/sys/unix"
)

// Reexec replaces the current process image with a fresh copy of the
// running binary and the same arguments.
func Reexec() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	return unix.Exec(exe, os.Args, os.Environ())
}
