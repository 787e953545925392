//go:build windows

package worker

import (
	"os"
	"os/exec"
	"time"
)

// setProcGroup has no windows process-group equivalent; it only sets
// WaitDelay.
func setProcGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = 3 * time.Second
}

// killGroup best-effort kills pid directly; windows process trees are not
// torn down as a unit here.
func killGroup(pid int, grace time.Duration) {
	_ = grace
	if p, err := os.FindProcess(pid); err == nil {
		_ = p.Kill()
	}
}
