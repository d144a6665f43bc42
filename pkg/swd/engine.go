package swd

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/hexwire"
)

// Frame geometry of the response half of a transaction, in bits. A read
// response is turnaround, ACK, data, parity, turnaround; a write splits at the
// second turnaround and the requester drives data and parity itself.
const (
	trnBits    = 1
	ackBits    = 3
	dataBits   = 32
	parityBits = 1

	ackOffset       = trnBits
	readDataOffset  = trnBits + ackBits
	writeDataOffset = trnBits + ackBits + trnBits
)

var (
	// ErrFault is recorded when the target acknowledges with FAULT.
	ErrFault = errors.New("swd: target reported fault")
	// ErrParity is recorded when read data fails its parity check.
	ErrParity = errors.New("swd: wrong parity on read data")
	// ErrProtocol is recorded for any unrecognized acknowledge pattern.
	ErrProtocol = errors.New("swd: no valid acknowledge")
	// ErrTimeout is recorded when WAIT retries are exhausted.
	ErrTimeout = errors.New("swd: wait retries exhausted")
)

// ContractError marks misuse of the engine: a missing transport, or a request
// whose direction does not match the operation. The host decides whether to
// treat it as fatal.
type ContractError struct {
	msg string
}

func (e *ContractError) Error() string {
	return "swd: contract violation: " + e.msg
}

func contractErrf(format string, args ...interface{}) error {
	return &ContractError{msg: fmt.Sprintf(format, args...)}
}

// DefaultWaitRetries bounds how often a WAIT acknowledge is retried before the
// batch is failed with ErrTimeout.
const DefaultWaitRetries = 64

// Engine runs SWD register transactions through a hex-wire codec. Protocol
// and transport failures are batched: the first one is latched and every
// later register access no-ops until RunQueue reads and clears it. A single
// logical caller at a time.
type Engine struct {
	codec *hexwire.Codec

	// WaitRetries caps consecutive WAIT acknowledges per transaction; zero
	// retries forever, which matches the historical behavior but can hang on
	// a wedged target.
	WaitRetries int

	queued error
}

// NewEngine wraps a codec. The codec's transport must already be open.
func NewEngine(codec *hexwire.Codec) *Engine {
	return &Engine{
		codec:       codec,
		WaitRetries: DefaultWaitRetries,
	}
}

// record latches the first error of the batch.
func (e *Engine) record(err error) {
	if e.queued == nil {
		e.queued = err
	}
}

func ackName(ack uint32) string {
	switch ack {
	case AckOK:
		return "OK"
	case AckWait:
		return "WAIT"
	case AckFault:
		return "FAULT"
	}
	return "JUNK"
}

// ReadReg reads a DP or AP register. On success the result is stored through
// value (which may be nil to discard it); for AP reads, apDelay extra idle
// clocks are run so the pipelined access completes. Protocol failures are
// recorded for RunQueue rather than returned; only contract violations
// produce a non-nil error.
func (e *Engine) ReadReg(req Request, value *uint32, apDelay int) error {
	if e.codec == nil {
		return contractErrf("engine has no transport codec")
	}
	if !req.IsRead() {
		return contractErrf("write request %#02x passed to ReadReg", uint8(req))
	}
	if e.queued != nil {
		log.Debugf("swd: skip %s, queued error: %v", req, e.queued)
		return nil
	}

	for attempts := 0; ; {
		cmd := []byte{byte(req)}
		if err := e.codec.Exchange(false, cmd, 0, 8); err != nil {
			e.record(err)
			return nil
		}

		// Response frame: trn + ack + data + parity + trn.
		frame := make([]byte, 5)
		if err := e.codec.DriveSWDIO(false); err != nil {
			e.record(err)
			return nil
		}
		if err := e.codec.Exchange(true, frame, 0, trnBits+ackBits+dataBits+parityBits+trnBits); err != nil {
			e.record(err)
			return nil
		}
		if err := e.codec.DriveSWDIO(true); err != nil {
			e.record(err)
			return nil
		}

		ack := hexwire.GetBits(frame, ackOffset, ackBits)
		data := hexwire.GetBits(frame, readDataOffset, dataBits)
		parity := hexwire.GetBits(frame, readDataOffset+dataBits, parityBits)
		log.Debugf("swd: %s %s = %08x", ackName(ack), req, data)

		switch ack {
		case AckOK:
			if parity != Parity32(data) {
				log.Debugf("swd: wrong parity on %s", req)
				e.record(ErrParity)
				return nil
			}
			if value != nil {
				*value = data
			}
			if req.IsAP() && apDelay > 0 {
				if err := e.codec.Exchange(true, nil, 0, apDelay); err != nil {
					e.record(err)
				}
			}
			return nil

		case AckWait:
			attempts++
			if e.WaitRetries > 0 && attempts > e.WaitRetries {
				e.record(ErrTimeout)
				return nil
			}
			e.clearStickyErrors()
			if e.queued != nil {
				return nil
			}

		case AckFault:
			e.record(ErrFault)
			return nil

		default:
			e.record(fmt.Errorf("%w: ack %#x", ErrProtocol, ack))
			return nil
		}
	}
}

// WriteReg writes a DP or AP register; the engine sends data and parity after
// the acknowledge turnaround. Error semantics match ReadReg.
func (e *Engine) WriteReg(req Request, value uint32, apDelay int) error {
	if e.codec == nil {
		return contractErrf("engine has no transport codec")
	}
	if req.IsRead() {
		return contractErrf("read request %#02x passed to WriteReg", uint8(req))
	}
	if e.queued != nil {
		log.Debugf("swd: skip %s, queued error: %v", req, e.queued)
		return nil
	}
	return e.writeReg(req, value, apDelay, true)
}

// writeReg is the write transaction proper. retryWait is false for the
// sticky-clear ABORT write issued from inside a WAIT retry: that write must
// never start a retry cycle of its own, or two targets answering WAIT to
// everything would bounce the engine between the two transactions forever.
func (e *Engine) writeReg(req Request, value uint32, apDelay int, retryWait bool) error {
	for attempts := 0; ; {
		frame := make([]byte, 5)
		hexwire.SetBits(frame, writeDataOffset, dataBits, value)
		hexwire.SetBits(frame, writeDataOffset+dataBits, parityBits, Parity32(value))

		cmd := []byte{byte(req)}
		if err := e.codec.Exchange(false, cmd, 0, 8); err != nil {
			e.record(err)
			return nil
		}

		if err := e.codec.DriveSWDIO(false); err != nil {
			e.record(err)
			return nil
		}
		if err := e.codec.Exchange(true, frame, 0, trnBits+ackBits+trnBits); err != nil {
			e.record(err)
			return nil
		}
		if err := e.codec.DriveSWDIO(true); err != nil {
			e.record(err)
			return nil
		}
		if err := e.codec.Exchange(false, frame, writeDataOffset, dataBits+parityBits); err != nil {
			e.record(err)
			return nil
		}

		ack := hexwire.GetBits(frame, ackOffset, ackBits)
		log.Debugf("swd: %s %s = %08x", ackName(ack), req, value)

		switch ack {
		case AckOK:
			if req.IsAP() && apDelay > 0 {
				if err := e.codec.Exchange(true, nil, 0, apDelay); err != nil {
					e.record(err)
				}
			}
			return nil

		case AckWait:
			if !retryWait {
				e.record(ErrTimeout)
				return nil
			}
			attempts++
			if e.WaitRetries > 0 && attempts > e.WaitRetries {
				e.record(ErrTimeout)
				return nil
			}
			e.clearStickyErrors()
			if e.queued != nil {
				return nil
			}

		case AckFault:
			e.record(ErrFault)
			return nil

		default:
			e.record(fmt.Errorf("%w: ack %#x", ErrProtocol, ack))
			return nil
		}
	}
}

// clearStickyErrors writes the DP ABORT register to release latched fault
// flags before a WAIT retry. The write itself does not retry on WAIT.
func (e *Engine) clearStickyErrors() {
	e.writeReg(MakeRequest(false, false, RegDPAbort), abortStickyClear, 0, false)
}

// RunQueue flushes the transaction pipeline and returns the batch result.
// A transaction must be followed by another transaction or at least 8 idle
// cycles to ensure data is clocked through the AP. The queued error
// accumulator is cleared for the next batch.
func (e *Engine) RunQueue() error {
	if e.codec == nil {
		return contractErrf("engine has no transport codec")
	}
	if err := e.codec.Exchange(true, nil, 0, 8); err != nil {
		e.record(err)
	}

	err := e.queued
	e.queued = nil
	if err != nil {
		log.Debugf("swd: queue result: %v", err)
	}
	return err
}

// SwitchSequence clocks one of the fixed line patterns onto the wire. Unknown
// kinds are a configuration error, reported rather than recorded.
func (e *Engine) SwitchSequence(kind SequenceKind) error {
	if e.codec == nil {
		return contractErrf("engine has no transport codec")
	}

	switch kind {
	case LineReset:
		log.Debug("swd: line reset")
		return e.codec.Exchange(false, seqLineReset, 0, seqLineResetBits)
	case JTAGToSWD:
		log.Debug("swd: JTAG-to-SWD")
		return e.codec.Exchange(false, seqJTAGToSWD, 0, seqJTAGToSWDBits)
	case SWDToJTAG:
		log.Debug("swd: SWD-to-JTAG")
		return e.codec.Exchange(false, seqSWDToJTAG, 0, seqSWDToJTAGBits)
	}
	return fmt.Errorf("swd: sequence %d not supported", kind)
}

// SwitchToSWD is shorthand for the JTAG-to-SWD activation sequence.
func (e *Engine) SwitchToSWD() error {
	return e.SwitchSequence(JTAGToSWD)
}
