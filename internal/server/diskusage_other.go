//go:build !(linux || darwin || freebsd)

package server

import "errors"

func diskUsage(path string) (total uint64, free uint64, err error) {
	return 0, 0, errors.New("disk usage not supported on this platform")
}
