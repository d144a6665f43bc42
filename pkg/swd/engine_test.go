package swd

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/hexwire"
)

// scriptTransport records written bytes and serves canned replies in order.
type scriptTransport struct {
	sent    []byte
	replies [][]byte
}

func (s *scriptTransport) Write(p []byte) (int, error) {
	s.sent = append(s.sent, p...)
	return len(p), nil
}

func (s *scriptTransport) Read(p []byte) (int, error) {
	if len(s.replies) == 0 {
		return 0, nil
	}
	n := copy(p, s.replies[0])
	s.replies = s.replies[1:]
	return n, nil
}

func (s *scriptTransport) reply(data string) {
	s.replies = append(s.replies, []byte(data))
}

func newTestEngine() (*Engine, *scriptTransport) {
	tr := &scriptTransport{}
	codec := hexwire.NewCodec(tr)
	codec.FlushDelay = 0
	codec.PollLimit = 64
	return NewEngine(codec), tr
}

// readFrameHex encodes the adapter's reply to a read transaction: turnaround,
// ack, 32-bit data, parity, turnaround, as ASCII-hex pairs.
func readFrameHex(ack, data, parity uint32) string {
	frame := make([]byte, 5)
	hexwire.SetBits(frame, ackOffset, ackBits, ack)
	hexwire.SetBits(frame, readDataOffset, dataBits, data)
	hexwire.SetBits(frame, readDataOffset+dataBits, parityBits, parity)
	return hexString(frame)
}

// ackFrameHex encodes the turnaround+ack+turnaround reply of a write.
func ackFrameHex(ack uint32) string {
	frame := make([]byte, 1)
	hexwire.SetBits(frame, ackOffset, ackBits, ack)
	return hexString(frame)
}

func hexString(b []byte) string {
	var out bytes.Buffer
	for _, v := range b {
		fmt.Fprintf(&out, "%02X", v)
	}
	return out.String()
}

// scriptWriteOK queues the three replies a successful write transaction
// consumes: request ack byte, acknowledge frame, data ack byte.
func scriptWriteOK(tr *scriptTransport) {
	tr.reply("00")
	tr.reply(ackFrameHex(AckOK))
	tr.reply("00")
}

func TestMakeRequestKnownHeaders(t *testing.T) {
	cases := []struct {
		name string
		ap   bool
		read bool
		addr uint8
		want uint8
	}{
		{"DP read 0 (DPIDR)", false, true, 0x0, 0xA5},
		{"DP write 0 (ABORT)", false, false, 0x0, 0x81},
		{"DP read 4 (CTRL/STAT)", false, true, 0x4, 0x8D},
		{"DP write 8 (SELECT)", false, false, 0x8, 0xB1},
		{"AP read 0 (CSW)", true, true, 0x0, 0x87},
		{"AP write 4 (TAR)", true, false, 0x4, 0x8B},
		{"AP read C (DRW)", true, true, 0xC, 0x9F},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MakeRequest(tc.ap, tc.read, tc.addr)
			if uint8(got) != tc.want {
				t.Errorf("MakeRequest = %#02x, want %#02x", uint8(got), tc.want)
			}
		})
	}
}

func TestReadRegOK(t *testing.T) {
	e, tr := newTestEngine()
	data := uint32(0xDEADBEEF)
	tr.reply("00") // request ack
	tr.reply(readFrameHex(AckOK, data, Parity32(data)))

	var v uint32
	if err := e.ReadReg(MakeRequest(false, true, 0), &v, 0); err != nil {
		t.Fatalf("ReadReg returned error: %v", err)
	}
	if v != data {
		t.Errorf("value = %#08x, want %#08x", v, data)
	}
	if err := e.RunQueue(); err != nil {
		t.Errorf("RunQueue returned error: %v", err)
	}

	// The request goes out as an 8-bit write of the 0xA5 header, and the data
	// line turns around to input and back.
	wantReq := append([]byte{hexwire.TagWrite, '0', '8', '0', '0', '0', '1'}, "A5"...)
	if !bytes.HasPrefix(tr.sent, wantReq) {
		t.Errorf("sent stream begins %q, want %q", tr.sent[:9], wantReq)
	}
	if !bytes.Contains(tr.sent, []byte{hexwire.TagDriveIn}) ||
		!bytes.Contains(tr.sent, []byte{hexwire.TagDriveOut}) {
		t.Error("missing SWDIO direction frames")
	}
}

func TestReadRegParityMismatch(t *testing.T) {
	e, tr := newTestEngine()
	data := uint32(0x12345678)
	tr.reply("00")
	tr.reply(readFrameHex(AckOK, data, Parity32(data)^1))

	v := uint32(0xCAFED00D)
	if err := e.ReadReg(MakeRequest(false, true, 0), &v, 0); err != nil {
		t.Fatalf("ReadReg returned error: %v", err)
	}
	if v != 0xCAFED00D {
		t.Errorf("value mutated to %#08x on parity failure", v)
	}
	if err := e.RunQueue(); !errors.Is(err, ErrParity) {
		t.Errorf("RunQueue = %v, want ErrParity", err)
	}
	if err := e.RunQueue(); err != nil {
		t.Errorf("second RunQueue = %v, want nil (accumulator cleared)", err)
	}
}

func TestReadRegFaultShortCircuitsBatch(t *testing.T) {
	e, tr := newTestEngine()
	tr.reply("00")
	tr.reply(readFrameHex(AckFault, 0, 0))

	if err := e.ReadReg(MakeRequest(false, true, 0), nil, 0); err != nil {
		t.Fatalf("ReadReg returned error: %v", err)
	}

	sentLen := len(tr.sent)
	// Poisoned batch: further accesses must not touch the wire.
	if err := e.ReadReg(MakeRequest(false, true, 4), nil, 0); err != nil {
		t.Fatalf("ReadReg returned error: %v", err)
	}
	if err := e.WriteReg(MakeRequest(false, false, 8), 1, 0); err != nil {
		t.Fatalf("WriteReg returned error: %v", err)
	}
	if len(tr.sent) != sentLen {
		t.Error("register access reached the wire despite queued error")
	}

	if err := e.RunQueue(); !errors.Is(err, ErrFault) {
		t.Errorf("RunQueue = %v, want ErrFault", err)
	}
	if err := e.RunQueue(); err != nil {
		t.Errorf("second RunQueue = %v, want nil", err)
	}
}

func TestReadRegWaitThenOK(t *testing.T) {
	e, tr := newTestEngine()
	data := uint32(0x0BAD_CAFE)

	// First attempt waits, the sticky-clear ABORT write succeeds, and the
	// retried request is acknowledged.
	tr.reply("00")
	tr.reply(readFrameHex(AckWait, 0, 0))
	scriptWriteOK(tr)
	tr.reply("00")
	tr.reply(readFrameHex(AckOK, data, Parity32(data)))

	var v uint32
	if err := e.ReadReg(MakeRequest(false, true, 0), &v, 0); err != nil {
		t.Fatalf("ReadReg returned error: %v", err)
	}
	if v != data {
		t.Errorf("value = %#08x, want %#08x", v, data)
	}
	if err := e.RunQueue(); err != nil {
		t.Errorf("RunQueue = %v, want nil after successful retry", err)
	}

	// The retry path must have written the ABORT register (header 0x81).
	if !bytes.Contains(tr.sent, []byte("81")) {
		t.Error("no ABORT request on the wire after WAIT")
	}
}

func TestWaitRetriesExhausted(t *testing.T) {
	e, tr := newTestEngine()
	e.WaitRetries = 1

	tr.reply("00")
	tr.reply(readFrameHex(AckWait, 0, 0))
	scriptWriteOK(tr) // sticky clear
	tr.reply("00")
	tr.reply(readFrameHex(AckWait, 0, 0))

	if err := e.ReadReg(MakeRequest(false, true, 0), nil, 0); err != nil {
		t.Fatalf("ReadReg returned error: %v", err)
	}
	if err := e.RunQueue(); !errors.Is(err, ErrTimeout) {
		t.Errorf("RunQueue = %v, want ErrTimeout", err)
	}
}

func TestPersistentWaitUnwinds(t *testing.T) {
	// A target answering WAIT to everything, the sticky-clear ABORT write
	// included, must not keep generating wire traffic: the ABORT write does
	// not retry, so the whole transaction ends after one retry attempt.
	e, tr := newTestEngine()
	e.WaitRetries = 8

	tr.reply("00")
	tr.reply(readFrameHex(AckWait, 0, 0))
	tr.reply("00") // ABORT request ack
	tr.reply(ackFrameHex(AckWait))
	tr.reply("00") // ABORT data phase ack

	if err := e.ReadReg(MakeRequest(false, true, 0), nil, 0); err != nil {
		t.Fatalf("ReadReg returned error: %v", err)
	}
	if len(tr.replies) != 0 {
		t.Errorf("%d scripted replies left unconsumed", len(tr.replies))
	}
	// Exactly three write exchanges reach the wire: the read request, the
	// ABORT request, and the ABORT data phase.
	if got := bytes.Count(tr.sent, []byte{hexwire.TagWrite}); got != 3 {
		t.Errorf("%d write exchanges on the wire, want 3", got)
	}
	if err := e.RunQueue(); !errors.Is(err, ErrTimeout) {
		t.Errorf("RunQueue = %v, want ErrTimeout", err)
	}
}

func TestReadRegJunkAck(t *testing.T) {
	e, tr := newTestEngine()
	tr.reply("00")
	tr.reply(readFrameHex(0x7, 0, 0))

	if err := e.ReadReg(MakeRequest(false, true, 0), nil, 0); err != nil {
		t.Fatalf("ReadReg returned error: %v", err)
	}
	if err := e.RunQueue(); !errors.Is(err, ErrProtocol) {
		t.Errorf("RunQueue = %v, want ErrProtocol", err)
	}
}

func TestWriteRegOK(t *testing.T) {
	e, tr := newTestEngine()
	scriptWriteOK(tr)

	if err := e.WriteReg(MakeRequest(false, false, 8), 0x0000_00F0, 0); err != nil {
		t.Fatalf("WriteReg returned error: %v", err)
	}
	if err := e.RunQueue(); err != nil {
		t.Errorf("RunQueue = %v, want nil", err)
	}
}

func TestAPAccessRunsDelayClocks(t *testing.T) {
	e, tr := newTestEngine()
	scriptWriteOK(tr)

	if err := e.WriteReg(MakeRequest(true, false, 4), 0x2000_0000, 8); err != nil {
		t.Fatalf("WriteReg returned error: %v", err)
	}

	// The pipeline flush is a buffer-less read of 8 bits: header only, zero
	// declared payload.
	flush := []byte{hexwire.TagRead, '0', '8', '0', '0', '0', '0'}
	if !bytes.HasSuffix(tr.sent, flush) {
		t.Errorf("sent stream does not end with AP delay clocking, tail %q",
			tr.sent[len(tr.sent)-7:])
	}
}

func TestRunQueueFlushesIdleClocks(t *testing.T) {
	e, tr := newTestEngine()
	if err := e.RunQueue(); err != nil {
		t.Fatalf("RunQueue returned error: %v", err)
	}
	want := []byte{hexwire.TagRead, '0', '8', '0', '0', '0', '0'}
	if !bytes.Equal(tr.sent, want) {
		t.Errorf("sent %q, want %q", tr.sent, want)
	}
}

func TestRequestDirectionContract(t *testing.T) {
	e, _ := newTestEngine()

	var ce *ContractError
	if err := e.ReadReg(MakeRequest(false, false, 0), nil, 0); !errors.As(err, &ce) {
		t.Errorf("ReadReg with write request = %v, want ContractError", err)
	}
	if err := e.WriteReg(MakeRequest(false, true, 0), 0, 0); !errors.As(err, &ce) {
		t.Errorf("WriteReg with read request = %v, want ContractError", err)
	}

	uninit := NewEngine(nil)
	if err := uninit.ReadReg(MakeRequest(false, true, 0), nil, 0); !errors.As(err, &ce) {
		t.Errorf("uninitialized engine = %v, want ContractError", err)
	}
}

func TestSwitchSequences(t *testing.T) {
	cases := []struct {
		name    string
		kind    SequenceKind
		bits    [2]byte
		payload [2]byte
	}{
		{"line reset", LineReset, [2]byte{'4', '0'}, [2]byte{'0', '8'}},
		{"jtag to swd", JTAGToSWD, [2]byte{'8', '8'}, [2]byte{'1', '1'}},
		{"swd to jtag", SWDToJTAG, [2]byte{'5', '0'}, [2]byte{'0', 'A'}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, tr := newTestEngine()
			tr.reply("00")
			if err := e.SwitchSequence(tc.kind); err != nil {
				t.Fatalf("SwitchSequence returned error: %v", err)
			}
			hdr := tr.sent[:7]
			want := []byte{hexwire.TagWrite, tc.bits[0], tc.bits[1], '0', '0', tc.payload[0], tc.payload[1]}
			if !bytes.Equal(hdr, want) {
				t.Errorf("header %q, want %q", hdr, want)
			}
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		e, _ := newTestEngine()
		if err := e.SwitchSequence(SequenceKind(42)); err == nil {
			t.Error("expected error for unsupported sequence kind")
		}
		if err := e.RunQueue(); err != nil {
			t.Errorf("unsupported sequence poisoned the batch: %v", err)
		}
	})
}

func TestParity32(t *testing.T) {
	cases := []struct {
		v    uint32
		want uint32
	}{
		{0x00000000, 0},
		{0x00000001, 1},
		{0xFFFFFFFF, 0},
		{0xDEADBEEF, 0},
		{0x00000007, 1},
	}
	for _, tc := range cases {
		if got := Parity32(tc.v); got != tc.want {
			t.Errorf("Parity32(%#08x) = %d, want %d", tc.v, got, tc.want)
		}
	}
}
