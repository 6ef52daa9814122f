package pared

// Frame gate bytes, per spec.md §4.2 / §6.1.
const (
	FrameOK  byte = 0xF0
	FrameBad byte = 0x2C
)

// ReadyWrite is the peer-synchronous write primitive of spec.md §4.2: read
// one byte, require FrameOK, then write payload.
func ReadyWrite(s Serial, payload []byte) error {
	b, err := s.ReadByteTimeout()
	if err != nil {
		return E("ReadyWrite", KindUartTimeout, err)
	}
	if b != FrameOK {
		return E("ReadyWrite", KindInvalidReady, nil)
	}
	if err := s.Write(payload); err != nil {
		return E("ReadyWrite", KindUartTimeout, err)
	}
	return nil
}

// ReadyReadExact is the peer-synchronous read primitive of spec.md §4.2:
// write FrameOK, then read exactly len(buf) bytes with a per-byte timeout.
func ReadyReadExact(s Serial, buf []byte) error {
	if err := s.WriteByte(FrameOK); err != nil {
		return E("ReadyReadExact", KindUartTimeout, err)
	}
	if err := s.ReadFull(buf); err != nil {
		return E("ReadyReadExact", KindUartTimeout, err)
	}
	return nil
}

// SignalBad writes a single FrameBad byte, the device's universal failure
// signal: any framing, integrity, signature, or digest-binding failure
// results in FrameBad with no secret material released (spec.md §4.4
// Failure semantics, §7 propagation policy).
func SignalBad(s Serial) {
	_ = s.WriteByte(FrameBad)
}

// SignalOK writes a single FrameOK byte, the device's universal success
// signal on links that use the ready/ack convention outside of a
// ready-handshake round (e.g. the end of pairing, spec.md §4.6 step 4).
func SignalOK(s Serial) {
	_ = s.WriteByte(FrameOK)
}
