//go:build unix

package nginx

import "golang.org/x/sys/unix"

// dirWritable reports whether the process may create entries in dir.
func dirWritable(dir string) bool {
	return unix.Access(dir, unix.W_OK|unix.X_OK) == nil
}
