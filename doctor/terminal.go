package doctor

import (
	"fmt"
	"os"
	"os/signal"
)

// setupInterruptHandler exits cleanly on Ctrl-C so an aborted check does
// not leave the terminal half-configured.
func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, interruptSignals()...)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted")
		resetTerminal()
		os.Exit(1)
	}()
}
