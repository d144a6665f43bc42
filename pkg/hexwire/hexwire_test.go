package hexwire

import (
	"bytes"
	"errors"
	"testing"
)

// scriptTransport records everything written and serves canned reads, a few
// bytes at a time to exercise the codec's poll loop.
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
	r := s.replies[0]
	n := copy(p, r)
	if n == len(r) {
		s.replies = s.replies[1:]
	} else {
		s.replies[0] = r[n:]
	}
	return n, nil
}

func (s *scriptTransport) reply(data string) {
	s.replies = append(s.replies, []byte(data))
}

func newTestCodec(t *scriptTransport) *Codec {
	c := NewCodec(t)
	c.FlushDelay = 0
	c.PollLimit = 64
	return c
}

func TestExchangeWriteFraming(t *testing.T) {
	tr := &scriptTransport{}
	c := newTestCodec(tr)
	tr.reply("00") // adapter ack byte

	if err := c.Exchange(false, []byte{0xAB, 0xCD}, 0, 16); err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}

	want := append([]byte{TagWrite, '1', '0', '0', '0', '0', '2'}, "ABCD"...)
	if !bytes.Equal(tr.sent, want) {
		t.Errorf("sent %q, want %q", tr.sent, want)
	}
}

func TestExchangeReadDecodesPayload(t *testing.T) {
	tr := &scriptTransport{}
	c := newTestCodec(tr)
	tr.reply("AB")

	buf := make([]byte, 1)
	if err := c.Exchange(true, buf, 0, 8); err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}
	if buf[0] != 0xAB {
		t.Errorf("decoded byte = %#02x, want 0xAB", buf[0])
	}

	wantHdr := []byte{TagRead, '0', '8', '0', '0', '0', '1'}
	if !bytes.Equal(tr.sent, wantHdr) {
		t.Errorf("sent header %q, want %q", tr.sent, wantHdr)
	}
}

func TestExchangeReadPreservesBitsOutsideWindow(t *testing.T) {
	tr := &scriptTransport{}
	c := newTestCodec(tr)
	tr.reply("0000") // two payload bytes, all zero

	buf := []byte{0xFF, 0xFF}
	if err := c.Exchange(true, buf, 4, 8); err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}
	// Bits 4..11 cleared by the response, bits 0..3 and 12..15 untouched.
	if buf[0] != 0x0F || buf[1] != 0xF0 {
		t.Errorf("buf = %#02x %#02x, want 0x0f 0xf0", buf[0], buf[1])
	}
}

func TestExchangeReadSplitAcrossPolls(t *testing.T) {
	tr := &scriptTransport{}
	c := newTestCodec(tr)
	tr.reply("A")
	tr.reply("BC")
	tr.reply("D")

	buf := make([]byte, 2)
	if err := c.Exchange(true, buf, 0, 16); err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}
	if buf[0] != 0xAB || buf[1] != 0xCD {
		t.Errorf("decoded = %#02x %#02x, want 0xab 0xcd", buf[0], buf[1])
	}
}

func TestExchangeReadNilBufferSendsHeaderOnly(t *testing.T) {
	tr := &scriptTransport{}
	c := newTestCodec(tr)

	if err := c.Exchange(true, nil, 0, 8); err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}
	want := []byte{TagRead, '0', '8', '0', '0', '0', '0'}
	if !bytes.Equal(tr.sent, want) {
		t.Errorf("sent %q, want %q", tr.sent, want)
	}
}

func TestExchangeErrors(t *testing.T) {
	t.Run("poll limit", func(t *testing.T) {
		tr := &scriptTransport{} // never replies
		c := newTestCodec(tr)
		c.PollLimit = 8
		err := c.Exchange(true, make([]byte, 1), 0, 8)
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("err = %v, want ErrTimeout", err)
		}
	})

	t.Run("junk digit", func(t *testing.T) {
		tr := &scriptTransport{}
		c := newTestCodec(tr)
		tr.reply("G0")
		err := c.Exchange(true, make([]byte, 1), 0, 8)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("err = %v, want ErrMalformed", err)
		}
	})

	t.Run("excess payload", func(t *testing.T) {
		tr := &scriptTransport{}
		c := newTestCodec(tr)
		tr.reply("ABCD") // one byte declared, two sent
		err := c.Exchange(true, make([]byte, 1), 0, 8)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("err = %v, want ErrMalformed", err)
		}
	})

	t.Run("oversized request", func(t *testing.T) {
		tr := &scriptTransport{}
		c := newTestCodec(tr)
		if err := c.Exchange(true, make([]byte, 64), 0, 300); err == nil {
			t.Error("expected error for bit count beyond header range")
		}
	})

	t.Run("short buffer", func(t *testing.T) {
		tr := &scriptTransport{}
		c := newTestCodec(tr)
		if err := c.Exchange(true, make([]byte, 1), 0, 16); err == nil {
			t.Error("expected error for undersized buffer")
		}
	})
}

func TestDriveSWDIO(t *testing.T) {
	tr := &scriptTransport{}
	c := newTestCodec(tr)

	if err := c.DriveSWDIO(false); err != nil {
		t.Fatalf("DriveSWDIO(false) returned error: %v", err)
	}
	if err := c.DriveSWDIO(true); err != nil {
		t.Fatalf("DriveSWDIO(true) returned error: %v", err)
	}
	if !bytes.Equal(tr.sent, []byte{TagDriveIn, TagDriveOut}) {
		t.Errorf("sent %#02x, want [0xe0 0xe1]", tr.sent)
	}
}

func TestBitHelpers(t *testing.T) {
	buf := make([]byte, 5)
	SetBits(buf, 4, 32, 0xDEADBEEF)
	if got := GetBits(buf, 4, 32); got != 0xDEADBEEF {
		t.Fatalf("GetBits = %#08x, want 0xdeadbeef", got)
	}
	if got := GetBits(buf, 0, 4); got != 0 {
		t.Errorf("low bits disturbed: %#x", got)
	}

	SetBits(buf, 4, 32, 0)
	for i, b := range buf {
		if b != 0 {
			t.Errorf("byte %d = %#02x after clearing, want 0", i, b)
		}
	}
}
