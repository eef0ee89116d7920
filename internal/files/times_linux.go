//go:build linux

package files

import (
	"os"
	"syscall"
)

// statTimes returns the access and change timestamps in epoch seconds.
func statTimes(info os.FileInfo) (accessed, created uint64) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		mod := uint64(info.ModTime().Unix())
		return mod, mod
	}
	return uint64(st.Atim.Sec), uint64(st.Ctim.Sec)
}
