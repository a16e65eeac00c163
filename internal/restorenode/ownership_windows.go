//go:build windows

package restorenode

import "os"

// statOwnership has no Windows equivalent; ownership preservation is
// Unix-only, matching the POSIX-permission assumptions of the rest of the
// restore path (commitlog/saved-caches purge, table directory naming).
func statOwnership(info os.FileInfo) (uid, gid int, ok bool) {
	return 0, 0, false
}
