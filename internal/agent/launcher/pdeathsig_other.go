//go:build unix && !linux

package launcher

import "syscall"

// dieWithParent is a no-op where Pdeathsig is unavailable; orphans are
// cleaned up by Stop and Shutdown only.
func dieWithParent(*syscall.SysProcAttr) {}
