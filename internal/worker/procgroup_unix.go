//go:build !windows

package worker

import (
	"os/exec"
	"syscall"
	"time"
)

// setProcGroup runs the worker subprocess in its own process group so that a supervisor-initiated
// kill (timeout or no-heartbeat) terminates the whole group, not just the
// direct child.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = 3 * time.Second
}

// killGroup sends SIGTERM, then SIGKILL after the grace period, to the
// process group of pid (spec.md §4.3 step 5: "terminate the child (SIGTERM,
// then SIGKILL after 5s)").
func killGroup(pid int, grace time.Duration) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	time.AfterFunc(grace, func() {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	})
}
