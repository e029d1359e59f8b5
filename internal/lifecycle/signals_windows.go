//go:build windows

package lifecycle

import "os"

func TerminationSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// RescanSignals is empty on Windows; rescans only run on the interval.
func RescanSignals() []os.Signal {
	return nil
}
