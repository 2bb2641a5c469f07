//go:build !unix

package guard

import "os"

// processAlive relies on FindProcess, which fails for unknown PIDs on
// non-unix platforms.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
