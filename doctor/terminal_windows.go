//go:build windows

package doctor

import "os"

// Windows consoles restore their own mode; there is nothing to reset.
func resetTerminal() {}

func interruptSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
