// Package hexwire implements the byte framing spoken by hex-wire debug
// adapters: bit-shift requests and responses travel as a fixed seven byte
// header followed by ASCII-hex encoded payload bytes. The codec is the only
// place wire bytes exist; callers above it deal in bit-addressed buffers.
package hexwire

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Frame tag bytes. Read and write requests carry a full header; the drive
// frames are single control bytes that flip the SWDIO half-duplex direction.
const (
	TagWrite    = 0xF0
	TagRead     = 0xF1
	TagDriveIn  = 0xE0
	TagDriveOut = 0xE1
)

// Transport is a blocking byte-oriented duplex channel. The codec never opens,
// configures or closes it.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

var (
	// ErrTimeout indicates the transport poll limit was exhausted before a
	// complete response arrived.
	ErrTimeout = errors.New("hexwire: poll limit exceeded waiting for response")
	// ErrMalformed indicates a byte outside the ASCII-hex alphabet, or more
	// response data than the request declared.
	ErrMalformed = errors.New("hexwire: malformed response stream")
)

// DefaultPollLimit bounds the number of transport reads per exchange. The
// adapter firmware answers within a handful of reads; anything near the limit
// means the adapter is gone.
const DefaultPollLimit = 65536

// Codec frames bit-shift exchanges over a Transport.
type Codec struct {
	t Transport

	// PollLimit caps transport read calls per exchange; zero polls forever,
	// matching adapters that are slow to wake from reset.
	PollLimit int

	// FlushDelay is how long to wait after a headerless read request (no
	// destination buffer) before returning; the adapter clocks the cycles out
	// without replying.
	FlushDelay time.Duration
}

// NewCodec wraps a transport with the default poll limit.
func NewCodec(t Transport) *Codec {
	return &Codec{
		t:          t,
		PollLimit:  DefaultPollLimit,
		FlushDelay: 10 * time.Millisecond,
	}
}

func upperHex(b byte) byte {
	return hexDigit(b >> 4)
}

func lowerHex(b byte) byte {
	return hexDigit(b & 0x0F)
}

func hexDigit(n byte) byte {
	if n > 9 {
		return n - 10 + 'A'
	}
	return n + '0'
}

func hexVal(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	}
	return 0, fmt.Errorf("%w: byte %#02x is not an ASCII-hex digit", ErrMalformed, c)
}

// header builds the seven byte request header. Bit counts and offsets are
// encoded as two ASCII-hex digits each, most significant nibble first.
func header(tag byte, bitCount, offset, payloadLen int) []byte {
	return []byte{
		tag,
		upperHex(byte(bitCount)), lowerHex(byte(bitCount)),
		upperHex(byte(offset)), lowerHex(byte(offset)),
		upperHex(byte(payloadLen)), lowerHex(byte(payloadLen)),
	}
}

func (c *Codec) writeAll(p []byte) error {
	for len(p) > 0 {
		n, err := c.t.Write(p)
		if err != nil {
			return fmt.Errorf("hexwire: transport write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// poll reads from the transport and hex-decodes incoming digit pairs into dst
// until want bytes have been assembled. Receiving more than want decoded bytes
// in one burst is a framing violation.
func (c *Codec) poll(dst []byte, want int) error {
	chunk := make([]byte, 128)
	nibbles := 0
	for iter := 0; ; iter++ {
		if c.PollLimit > 0 && iter >= c.PollLimit {
			return ErrTimeout
		}
		n, err := c.t.Read(chunk)
		if err != nil {
			return fmt.Errorf("hexwire: transport read: %w", err)
		}
		for _, b := range chunk[:n] {
			if nibbles/2 >= want {
				return fmt.Errorf("%w: %d bytes expected, adapter sent more", ErrMalformed, want)
			}
			v, err := hexVal(b)
			if err != nil {
				return err
			}
			if nibbles%2 == 0 {
				dst[nibbles/2] = v << 4
			} else {
				dst[nibbles/2] |= v
			}
			nibbles++
		}
		if nibbles/2 == want && nibbles%2 == 0 {
			return nil
		}
	}
}

// validateCounts rejects requests the single-byte header fields cannot encode.
func validateCounts(bitCount, offset int) (int, error) {
	if bitCount < 0 || bitCount > 0xFF {
		return 0, fmt.Errorf("hexwire: bit count %d out of range", bitCount)
	}
	if offset < 0 || offset > 0xFF {
		return 0, fmt.Errorf("hexwire: bit offset %d out of range", offset)
	}
	payloadLen := (bitCount + offset + 7) / 8
	if payloadLen > 0xFF {
		return 0, fmt.Errorf("hexwire: payload of %d bytes out of range", payloadLen)
	}
	return payloadLen, nil
}

// Exchange shifts bitCount bits through the adapter starting at bit offset
// within buf. When rnw is true the adapter samples the line and the captured
// bits land in buf; bits outside [offset, offset+bitCount) are preserved.
// When rnw is false the bits of buf are driven onto the line.
//
// A nil buf clocks the line without data: reads return as soon as the header
// is sent (the adapter does not reply), writes still wait for the adapter's
// one byte acknowledgement.
func (c *Codec) Exchange(rnw bool, buf []byte, offset, bitCount int) error {
	payloadLen, err := validateCounts(bitCount, offset)
	if err != nil {
		return err
	}
	if buf != nil && len(buf) < payloadLen {
		return fmt.Errorf("hexwire: buffer of %d bytes, need %d", len(buf), payloadLen)
	}

	tag := byte(TagWrite)
	if rnw {
		tag = TagRead
	}
	declared := payloadLen
	if buf == nil {
		declared = 0
	}
	log.Tracef("hexwire: %s %d bits at offset %d (%d payload bytes)",
		map[bool]string{true: "read", false: "write"}[rnw], bitCount, offset, declared)

	if err := c.writeAll(header(tag, bitCount, offset, declared)); err != nil {
		return err
	}

	if rnw {
		if buf == nil {
			// Fire-and-forget clocking; give the adapter time to run the
			// cycles before the next frame lands.
			time.Sleep(c.FlushDelay)
			return nil
		}
		scratch := make([]byte, payloadLen)
		if err := c.poll(scratch, payloadLen); err != nil {
			return err
		}
		for i := offset; i < offset+bitCount; i++ {
			bytec := i / 8
			mask := byte(1) << (i % 8)
			if scratch[bytec]&mask != 0 {
				buf[bytec] |= mask
			} else {
				buf[bytec] &^= mask
			}
		}
		return nil
	}

	if buf != nil {
		enc := make([]byte, 0, payloadLen*2)
		for _, b := range buf[:payloadLen] {
			enc = append(enc, upperHex(b), lowerHex(b))
		}
		if err := c.writeAll(enc); err != nil {
			return err
		}
	}

	// The adapter acknowledges every write request with a single byte.
	var ack [1]byte
	return c.poll(ack[:], 1)
}

// DriveSWDIO switches the shared data line between adapter-driven output and
// target-driven input. The adapter does not acknowledge direction frames.
func (c *Codec) DriveSWDIO(out bool) error {
	b := byte(TagDriveIn)
	if out {
		b = TagDriveOut
	}
	log.Tracef("hexwire: swdio drive %v", out)
	return c.writeAll([]byte{b})
}
