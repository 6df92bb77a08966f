//go:build !linux

package memwatch

import "errors"

var errUnsupported = errors.New("memwatch: system memory sampling unsupported on this platform")

func sampleSystem() (total, avail uint64, err error) {
	return 0, 0, errUnsupported
}
