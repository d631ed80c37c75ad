//go:build !unix

package tail

import "os"

// inodeOf has no portable equivalent off unix. Returning 0 disables
// inode-based rotation detection; truncation handling still applies.
func inodeOf(os.FileInfo) uint64 { return 0 }
