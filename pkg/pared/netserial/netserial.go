// Package netserial adapts a net.Conn into a pared.Serial, the way
// original_source's framed_tcp.rs stands in for a real UART whenever the
// two eCTF boards under test are two separate host processes rather than
// two separate microcontrollers. cmd/car and cmd/fob use this package to
// rendezvous over TCP; the protocol engine never imports it directly.
package netserial

import (
	"bufio"
	"net"
	"time"

	"github.com/ironkey-labs/pared/pkg/pared"
)

// Serial wraps a net.Conn, applying a read deadline derived from timeout
// on every timed read the way the grounding source calls
// TcpStream::set_read_timeout before each recv (spec.md §4.2's
// nonblocking_read_byte polling budget, expressed here as a wall-clock
// deadline since Go has no portable polling-iteration primitive).
type Serial struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// New wraps conn with the given per-read timeout.
func New(conn net.Conn, timeout time.Duration) *Serial {
	return &Serial{conn: conn, r: bufio.NewReader(conn), timeout: timeout}
}

// Dial connects to addr and wraps the resulting connection, matching the
// grounding source's connect(): disables Nagle's algorithm and drains any
// bytes already pending before handing the channel to the protocol engine.
func Dial(network, addr string, timeout time.Duration) (*Serial, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	s := New(conn, timeout)
	s.Flush()
	return s, nil
}

func (s *Serial) ReadByte() (byte, error) {
	_ = s.conn.SetReadDeadline(time.Time{})
	return s.r.ReadByte()
}

func (s *Serial) ReadByteTimeout() (byte, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.timeout))
	b, err := s.r.ReadByte()
	if err != nil {
		return 0, pared.E("Serial.ReadByteTimeout", pared.KindUartTimeout, err)
	}
	return b, nil
}

func (s *Serial) WriteByte(b byte) error {
	_, err := s.conn.Write([]byte{b})
	return err
}

func (s *Serial) Write(p []byte) error {
	_, err := s.conn.Write(p)
	return err
}

func (s *Serial) ReadFull(buf []byte) error {
	for i := range buf {
		b, err := s.ReadByteTimeout()
		if err != nil {
			return pared.E("Serial.ReadFull", pared.KindUartTimeout, err)
		}
		buf[i] = b
	}
	return nil
}

// Flush drains whatever is already buffered without blocking, mirroring
// flush_rx_stream's nonblocking drain-to-EOF.
func (s *Serial) Flush() {
	_ = s.conn.SetReadDeadline(time.Now())
	for {
		if _, err := s.r.ReadByte(); err != nil {
			break
		}
	}
	_ = s.conn.SetReadDeadline(time.Time{})
}

// Close closes the underlying connection.
func (s *Serial) Close() error { return s.conn.Close() }
