package simplatform

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/ironkey-labs/pared/pkg/pared"
)

// Serial is an in-memory, half-duplex pared.Serial backed by a pair of
// byte channels. Use NewSerialPair to build two ends that talk to each
// other, the same way two eCTF boards are cross-connected over a UART.
type Serial struct {
	out     chan byte
	in      chan byte
	timeout time.Duration
	closed  int32
}

// NewSerialPair returns two Serial endpoints, each other's peer.
func NewSerialPair(timeout time.Duration) (a, b *Serial) {
	c1 := make(chan byte, 4096)
	c2 := make(chan byte, 4096)
	a = &Serial{out: c1, in: c2, timeout: timeout}
	b = &Serial{out: c2, in: c1, timeout: timeout}
	return a, b
}

func (s *Serial) ReadByte() (byte, error) {
	b, ok := <-s.in
	if !ok {
		return 0, io.EOF
	}
	return b, nil
}

func (s *Serial) ReadByteTimeout() (byte, error) {
	select {
	case b, ok := <-s.in:
		if !ok {
			return 0, io.EOF
		}
		return b, nil
	case <-time.After(s.timeout):
		return 0, pared.E("Serial.ReadByteTimeout", pared.KindUartTimeout, nil)
	}
}

func (s *Serial) WriteByte(b byte) error {
	if atomic.LoadInt32(&s.closed) != 0 {
		return io.ErrClosedPipe
	}
	s.out <- b
	return nil
}

func (s *Serial) Write(p []byte) error {
	for _, b := range p {
		if err := s.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

func (s *Serial) ReadFull(buf []byte) error {
	for i := range buf {
		b, err := s.ReadByteTimeout()
		if err != nil {
			return err
		}
		buf[i] = b
	}
	return nil
}

func (s *Serial) Flush() {
	for {
		select {
		case <-s.in:
		default:
			return
		}
	}
}
