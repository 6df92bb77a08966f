//go:build linux

package memwatch

import "golang.org/x/sys/unix"

func sampleSystem() (total, avail uint64, err error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0, 0, err
	}
	unit := uint64(si.Unit)
	total = uint64(si.Totalram) * unit
	avail = (uint64(si.Freeram) + uint64(si.Bufferram)) * unit
	return total, avail, nil
}
