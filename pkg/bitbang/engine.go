package bitbang

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/tap"
)

// TCK must rest low between operations: some targets generate their debug
// clock on the falling edge while parked in Run-Test/Idle, and resets fail if
// that last transition never happens.
const clockIdle = false

// Config carries dispatch-time policy.
type Config struct {
	// SRSTPullsTRST declares that the board wires system reset to TAP reset,
	// so asserting SRST also forces the TAP to Test-Logic-Reset.
	SRSTPullsTRST bool
}

// Engine executes queued debug commands against a pin driver. It owns the TAP
// state cursor; a single logical caller at a time.
type Engine struct {
	drv PinDriver
	cfg Config

	state    tap.State
	endState tap.State
}

// NewEngine wires a pin driver into an engine parked in Test-Logic-Reset.
func NewEngine(drv PinDriver, cfg Config) *Engine {
	return &Engine{
		drv:      drv,
		cfg:      cfg,
		state:    tap.StateTestLogicReset,
		endState: tap.StateTestLogicReset,
	}
}

// State reports the tracked TAP state.
func (e *Engine) State() tap.State {
	return e.state
}

func (e *Engine) setEndState(s tap.State) error {
	if !tap.IsStable(s) {
		return contractErrf("%s is not a valid end state", s)
	}
	e.endState = s
	return nil
}

// pulse drives one full TCK cycle: low edge first, then high.
func (e *Engine) pulse(tms, tdi bool) error {
	if err := e.drv.WritePins(false, tms, tdi); err != nil {
		return err
	}
	return e.drv.WritePins(true, tms, tdi)
}

// moveTo walks the shortest TMS path from the tracked state to the end state,
// starting at bit skip, and leaves TCK at the idle level. skip lets a scan
// splice its exit clock into the start of the path.
func (e *Engine) moveTo(skip int) error {
	path, err := tap.ShortestPath(e.state, e.endState)
	if err != nil {
		return contractErrf("state move: %v", err)
	}

	tms := false
	for i := skip; i < path.Len; i++ {
		tms = path.TMS(i)
		if err := e.pulse(tms, false); err != nil {
			return err
		}
	}
	if err := e.drv.WritePins(clockIdle, tms, false); err != nil {
		return err
	}

	e.state = e.endState
	return nil
}

// runTest clocks cycles in Run-Test/Idle and parks in the caller's end state.
func (e *Engine) runTest(cycles int) error {
	saved := e.endState

	if e.state != tap.StateRunTestIdle {
		if err := e.setEndState(tap.StateRunTestIdle); err != nil {
			return err
		}
		if err := e.moveTo(0); err != nil {
			return err
		}
	}

	for i := 0; i < cycles; i++ {
		if err := e.pulse(false, false); err != nil {
			return err
		}
	}
	if err := e.drv.WritePins(clockIdle, false, false); err != nil {
		return err
	}

	if err := e.setEndState(saved); err != nil {
		return err
	}
	if e.state != e.endState {
		return e.moveTo(0)
	}
	return nil
}

// stableClocks emits clock pulses without leaving the current stable state.
// Staying in Test-Logic-Reset needs TMS high, every other stable state needs
// TMS low.
func (e *Engine) stableClocks(cycles int) error {
	tms := e.state == tap.StateTestLogicReset
	for i := 0; i < cycles; i++ {
		if err := e.drv.WritePins(true, tms, false); err != nil {
			return err
		}
		if err := e.drv.WritePins(false, tms, false); err != nil {
			return err
		}
	}
	return nil
}

// scan shifts bits through the instruction or data register. The final bit is
// clocked with TMS high, which exits the shift state; the follow-up move to
// the end state therefore skips the first path bit.
func (e *Engine) scan(ir bool, dir ScanDirection, buf []byte, bits int) error {
	if bits <= 0 {
		return contractErrf("scan of %d bits", bits)
	}
	if need := (bits + 7) / 8; len(buf) < need {
		return contractErrf("scan buffer of %d bytes, need %d", len(buf), need)
	}

	saved := e.endState
	shiftState := tap.StateShiftDR
	if ir {
		shiftState = tap.StateShiftIR
	}

	if e.state != shiftState {
		if err := e.setEndState(shiftState); err != nil {
			return err
		}
		if err := e.moveTo(0); err != nil {
			return err
		}
		if err := e.setEndState(saved); err != nil {
			return err
		}
	}

	for i := 0; i < bits; i++ {
		tms := i == bits-1
		bytec := i / 8
		mask := byte(1) << (i % 8)

		// Capture-only scans drive TDI low so the shifted-out bits are
		// deterministic rather than whatever the buffer held.
		tdi := dir != ScanIn && buf[bytec]&mask != 0

		if err := e.drv.WritePins(false, tms, tdi); err != nil {
			return err
		}
		if dir != ScanOut {
			val, err := e.drv.ReadTDO()
			if err != nil {
				return err
			}
			if val {
				buf[bytec] |= mask
			} else {
				buf[bytec] &^= mask
			}
		}
		if err := e.drv.WritePins(true, tms, tdi); err != nil {
			return err
		}
	}

	if e.state != e.endState {
		// The last shift clock already took the first transition out of the
		// shift state, so the move starts one bit into the path.
		return e.moveTo(1)
	}
	return nil
}

// rawTMS clocks an arbitrary TMS pattern without consulting or updating the
// TAP cursor. SWD line sequences are injected this way.
func (e *Engine) rawTMS(bits []byte, bitCount int) error {
	if need := (bitCount + 7) / 8; len(bits) < need {
		return contractErrf("tms buffer of %d bytes, need %d", len(bits), need)
	}
	tms := false
	for i := 0; i < bitCount; i++ {
		tms = bits[i/8]&(1<<(i%8)) != 0
		if err := e.pulse(tms, false); err != nil {
			return err
		}
	}
	return e.drv.WritePins(clockIdle, tms, false)
}

// pathMove walks an explicit state sequence, one TMS transition per hop.
func (e *Engine) pathMove(path []tap.State) error {
	tms := false
	for _, next := range path {
		switch next {
		case tap.NextState(e.state, false):
			tms = false
		case tap.NextState(e.state, true):
			tms = true
		default:
			return contractErrf("%s -> %s is not a valid TAP transition", e.state, next)
		}

		if err := e.pulse(tms, false); err != nil {
			return err
		}
		e.state = next
	}

	if err := e.drv.WritePins(clockIdle, tms, false); err != nil {
		return err
	}
	e.endState = e.state
	return nil
}

// ExecuteQueue drains the command queue in order. Recoverable scan readback
// failures are collected and the first one is returned after the whole queue
// has run; contract violations and driver I/O errors abort the pass
// immediately.
func (e *Engine) ExecuteQueue(cmds []Command) error {
	if e.drv == nil {
		return contractErrf("engine has no pin driver")
	}

	if b, ok := e.drv.(Blinker); ok {
		b.Blink(true)
		defer b.Blink(false)
	}

	var queueErr error
	for i := range cmds {
		cmd := &cmds[i]
		if err := e.execute(cmd); err != nil {
			if err == ErrQueueFailed {
				if queueErr == nil {
					queueErr = err
				}
				continue
			}
			return err
		}
	}
	return queueErr
}

func (e *Engine) execute(cmd *Command) error {
	switch cmd.Kind {
	case KindReset:
		log.Debugf("bitbang: reset trst=%v srst=%v", cmd.TRST, cmd.SRST)
		if cmd.TRST || (cmd.SRST && e.cfg.SRSTPullsTRST) {
			e.state = tap.StateTestLogicReset
		}
		return e.drv.Reset(cmd.TRST, cmd.SRST)

	case KindRunTest:
		log.Debugf("bitbang: runtest %d cycles, end in %s", cmd.Cycles, cmd.EndState)
		if err := e.setEndState(cmd.EndState); err != nil {
			return err
		}
		return e.runTest(cmd.Cycles)

	case KindStableClocks:
		// The enqueuing layer guarantees the TAP is already parked in a
		// stable state.
		return e.stableClocks(cmd.Cycles)

	case KindStateMove:
		log.Debugf("bitbang: statemove end in %s", cmd.EndState)
		if err := e.setEndState(cmd.EndState); err != nil {
			return err
		}
		return e.moveTo(0)

	case KindPathMove:
		log.Debugf("bitbang: pathmove %d states", len(cmd.Path))
		return e.pathMove(cmd.Path)

	case KindScan:
		log.Debugf("bitbang: %s scan of %d bits, end in %s",
			map[bool]string{true: "IR", false: "DR"}[cmd.IR], cmd.BitCount, cmd.EndState)
		if err := e.setEndState(cmd.EndState); err != nil {
			return err
		}
		if err := e.scan(cmd.IR, cmd.Dir, cmd.Bits, cmd.BitCount); err != nil {
			return err
		}
		if cmd.Verify != nil {
			if err := cmd.Verify(cmd.Bits); err != nil {
				log.Debugf("bitbang: scan readback check failed: %v", err)
				return ErrQueueFailed
			}
		}
		return nil

	case KindSleep:
		log.Debugf("bitbang: sleep %s", cmd.Duration)
		time.Sleep(cmd.Duration)
		return nil

	case KindRawTMS:
		log.Debugf("bitbang: raw tms, %d bits", cmd.BitCount)
		return e.rawTMS(cmd.Bits, cmd.BitCount)
	}

	return contractErrf("unknown command kind %d", cmd.Kind)
}

// RawTMS exposes raw TMS clocking outside a queued pass, for callers that
// inject line sequences directly.
func (e *Engine) RawTMS(bits []byte, bitCount int) error {
	if e.drv == nil {
		return contractErrf("engine has no pin driver")
	}
	return e.rawTMS(bits, bitCount)
}
