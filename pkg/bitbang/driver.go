// Package bitbang drives a JTAG Test Access Port one signal edge at a time
// through a pin-level driver, and dispatches queued debug commands against it.
package bitbang

import (
	"errors"
	"fmt"
)

// PinDriver abstracts the adapter's signal pins. WritePins drives one edge of
// TCK together with the TMS and TDI levels; ReadTDO samples the target's data
// out line. Implementations are expected to block until the pin change has
// taken effect.
type PinDriver interface {
	WritePins(tck, tms, tdi bool) error
	ReadTDO() (bool, error)
	Reset(trst, srst bool) error
}

// Blinker is optionally implemented by drivers with an activity LED. The
// engine turns it on for the duration of a dispatch pass.
type Blinker interface {
	Blink(on bool) error
}

// ErrQueueFailed reports that a scan's readback verification failed. The
// dispatch pass keeps draining the queue and returns the first such failure.
var ErrQueueFailed = errors.New("bitbang: queue readback verification failed")

// ContractError marks a programming-contract violation: an unstable end state,
// an illegal path transition, an unknown command. These are never expected in
// correct operation; the host decides whether to treat them as fatal.
type ContractError struct {
	msg string
}

func (e *ContractError) Error() string {
	return "bitbang: contract violation: " + e.msg
}

func contractErrf(format string, args ...interface{}) error {
	return &ContractError{msg: fmt.Sprintf(format, args...)}
}
