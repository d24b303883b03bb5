//go:build !windows

package tui

import (
	"os"
	"os/exec"
)

// bestEffortResetTTY restores a sane terminal mode after the watch viewer
// exits. bubbletea normally does this itself, but a panic or a killed
// program can leave the terminal raw.
func bestEffortResetTTY() {
	fi, err := os.Stdin.Stat()
	if err != nil || (fi.Mode()&os.ModeCharDevice) == 0 {
		return
	}

	// Target /dev/tty directly so a redirected stdin doesn't matter.
	_ = exec.Command("sh", "-lc", "stty sane < /dev/tty >/dev/null 2>&1 || true").Run()
}
