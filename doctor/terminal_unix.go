//go:build !windows

package doctor

import (
	"os"
	"os/exec"
	"syscall"
)

// resetTerminal undoes a raw-mode tty left behind by a crashed session.
// stty reads the terminal from stdin, so it has to be wired through.
func resetTerminal() {
	cmd := exec.Command("stty", "sane")
	cmd.Stdin = os.Stdin
	_ = cmd.Run()
}

func interruptSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
