//go:build !linux

package files

import "os"

// statTimes falls back to the modification time on platforms where access
// and change times are not portably available.
func statTimes(info os.FileInfo) (accessed, created uint64) {
	mod := uint64(info.ModTime().Unix())
	return mod, mod
}
