package launcher

import "syscall"

// dieWithParent terminates the agent when the orchestrator dies without
// calling Stop.
func dieWithParent(attr *syscall.SysProcAttr) {
	attr.Pdeathsig = syscall.SIGTERM
}
