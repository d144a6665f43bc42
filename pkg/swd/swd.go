// Package swd implements the Serial Wire Debug transaction protocol on top of
// a hex-wire codec: request framing, acknowledge handling with retry, parity
// checking, and the special line sequences that switch a target between JTAG
// and SWD.
package swd

import (
	"fmt"
	"math/bits"
)

// Request header bit positions. A request is start, APnDP, RnW, the two
// register address bits, odd parity over those four, a stop bit held low and
// the park bit held high.
const (
	reqStart  = 1 << 0
	reqAPnDP  = 1 << 1
	reqRnW    = 1 << 2
	reqAddr   = 3 << 3
	reqParity = 1 << 5
	reqPark   = 1 << 7
)

// Acknowledge codes, sampled LSB first from the target.
const (
	AckOK    = 0x1
	AckWait  = 0x2
	AckFault = 0x4
)

// Debug Port ABORT register and the value that clears every sticky error flag
// (STKCMPCLR, STKERRCLR, WDERRCLR, ORUNERRCLR).
const (
	RegDPAbort       = 0x0
	abortStickyClear = 0x1e
)

// Request is a fully framed 8-bit SWD request header.
type Request uint8

// MakeRequest builds the header for a register access. addr is the register
// address; only its A[3:2] bits select the target register.
func MakeRequest(ap, read bool, addr uint8) Request {
	cmd := uint8(0)
	if ap {
		cmd |= reqAPnDP
	}
	if read {
		cmd |= reqRnW
	}
	cmd |= (addr & 0xC) << 1
	if Parity32(uint32(cmd)) == 1 {
		cmd |= reqParity
	}
	cmd |= reqStart | reqPark
	return Request(cmd)
}

// IsAP reports whether the request targets the Access Port register space.
func (r Request) IsAP() bool {
	return r&reqAPnDP != 0
}

// IsRead reports whether the request is a register read.
func (r Request) IsRead() bool {
	return r&reqRnW != 0
}

// Reg returns the register address encoded in the request (A[3:2] aligned).
func (r Request) Reg() uint8 {
	return uint8(r&reqAddr) >> 1
}

func (r Request) String() string {
	port := "DP"
	if r.IsAP() {
		port = "AP"
	}
	dir := "write"
	if r.IsRead() {
		dir = "read"
	}
	return fmt.Sprintf("%s %s reg %X", port, dir, r.Reg())
}

// Parity32 returns 1 if v has an odd number of set bits.
func Parity32(v uint32) uint32 {
	return uint32(bits.OnesCount32(v) & 1)
}

// SequenceKind selects one of the fixed line sequences.
type SequenceKind int

const (
	// LineReset holds the data line high for 50+ clocks, then idles.
	LineReset SequenceKind = iota
	// JTAGToSWD sends the deprecated-JTAG selection sequence bracketed by
	// line resets.
	JTAGToSWD
	// SWDToJTAG returns a switchable target to its JTAG interface.
	SWDToJTAG
)

// The sequences are clocked LSB first from each byte. The 16-bit selection
// values 0xE79E and 0xE73C therefore appear byte-swapped.
var (
	seqLineReset = []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

	seqJTAGToSWD = []byte{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0x9e, 0xe7,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0x00,
	}

	seqSWDToJTAG = []byte{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0x3c, 0xe7,
		0xff,
	}
)

const (
	seqLineResetBits = 64
	seqJTAGToSWDBits = 136
	seqSWDToJTAGBits = 80
)
