//go:build unix

package tail

import (
	"os"
	"syscall"
)

// inodeOf extracts the inode number backing fi. Rotation detection compares
// inodes across polls; 0 means the identity is unknown.
func inodeOf(fi os.FileInfo) uint64 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return st.Ino
	}
	return 0
}
