package mpegts

import "fmt"

// Splitter implements the PacketSplitter stage: it resyncs on the 0x47
// sync byte and emits well-formed 188-byte packets, carrying a residual
// buffer of up to 187 bytes across Push calls so that packets are never
// split across chunk boundaries.
type Splitter struct {
	residual []byte
}

// NewSplitter returns an empty Splitter.
func NewSplitter() *Splitter {
	return &Splitter{}
}

// Push concatenates residual+data and emits one raw packet for each sync
// byte that starts a full 188-byte packet. Where the buffer extends past
// the following packet boundary, that boundary must also hold a sync byte;
// the last full packet in the buffer is emitted on its own sync byte
// alone, without that pair check. Byte ranges that don't line up are
// skipped one byte at a time until resync. The unconsumed tail (shorter
// than one packet) is retained as residual for the next Push.
func (s *Splitter) Push(data []byte) [][]byte {
	buf := data
	if len(s.residual) > 0 {
		buf = make([]byte, 0, len(s.residual)+len(data))
		buf = append(buf, s.residual...)
		buf = append(buf, data...)
	}

	var out [][]byte
	i := 0
	for i+PacketSize <= len(buf) {
		if buf[i] != syncByte {
			i++
			continue
		}
		// Confirm the next packet boundary also starts with a sync byte
		// when there is enough data to check; this is what lets us
		// recover from a single corrupted packet rather than drifting.
		if i+2*PacketSize <= len(buf) && buf[i+PacketSize] != syncByte {
			i++
			continue
		}
		pkt := make([]byte, PacketSize)
		copy(pkt, buf[i:i+PacketSize])
		out = append(out, pkt)
		i += PacketSize
	}

	if i < len(buf) {
		s.residual = append([]byte(nil), buf[i:]...)
	} else {
		s.residual = nil
	}
	return out
}

// Flush emits a final packet if exactly one sync-prefixed 188-byte packet
// remains in the residual; excess garbage simply produces no packets.
func (s *Splitter) Flush() [][]byte {
	defer func() { s.residual = nil }()
	if len(s.residual) == PacketSize && s.residual[0] == syncByte {
		return [][]byte{s.residual}
	}
	return nil
}

// ParseHeader decodes a raw 188-byte packet's header and trims the
// adaptation field (if any) off the front of the payload.
func ParseHeader(buf []byte) (TsPacket, error) {
	if len(buf) != PacketSize {
		return TsPacket{}, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), PacketSize)
	}
	if buf[0] != syncByte {
		return TsPacket{}, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p := TsPacket{
		TransportErrorIndicator:   buf[1]&0x80 != 0,
		PayloadUnitStartIndicator: buf[1]&0x40 != 0,
		PID:                       uint16(buf[1]&0x1F)<<8 | uint16(buf[2]),
		AdaptationFieldControl:    (buf[3] >> 4) & 0x03,
		ContinuityCounter:         buf[3] & 0x0F,
	}

	hasAdaptationField := p.AdaptationFieldControl == 0x2 || p.AdaptationFieldControl == 0x3
	hasPayload := p.AdaptationFieldControl == 0x1 || p.AdaptationFieldControl == 0x3

	offset := 4
	if hasAdaptationField {
		if offset >= PacketSize {
			return p, nil
		}
		afLen := int(buf[offset])
		if afLen > 0 && offset+1 < PacketSize {
			p.DiscontinuityIndicator = buf[offset+1]&0x80 != 0
		}
		offset += 1 + afLen
		if offset > PacketSize {
			offset = PacketSize
		}
	}

	if hasPayload && offset < PacketSize {
		p.Payload = buf[offset:PacketSize]
	}
	return p, nil
}
