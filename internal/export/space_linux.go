//go:build linux

package export

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// preflightDir verifies write access and reports available bytes.
func preflightDir(dir string) (int64, error) {
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrNoDestination, dir)
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", dir, err)
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
