package mpegts

import "errors"

var errPESTooShort = errors.New("mpegts: PES header too short")

// pesAccumulator buffers TS payload fragments for one PID between PUSI
// boundaries.
type pesAccumulator struct {
	fragments [][]byte
	size      int
}

func (a *pesAccumulator) append(payload []byte) {
	if len(payload) == 0 {
		return
	}
	a.fragments = append(a.fragments, payload)
	a.size += len(payload)
}

func (a *pesAccumulator) reset() {
	a.fragments = a.fragments[:0]
	a.size = 0
}

func (a *pesAccumulator) concat() []byte {
	buf := make([]byte, 0, a.size)
	for _, f := range a.fragments {
		buf = append(buf, f...)
	}
	return buf
}

// isPESPayload reports whether payload begins with the PES start-code
// prefix 0x000001.
func isPESPayload(payload []byte) bool {
	return len(payload) >= 3 && payload[0] == 0x00 && payload[1] == 0x00 && payload[2] == 0x01
}

// parsePES parses a fully-buffered PES unit per ISO 13818-1 Table 2-21.
// PTS/DTS are decoded exactly per the marker-bit layout of that table, not
// any equivalent rearrangement.
func parsePES(data []byte) (*PesPacket, error) {
	if len(data) < 9 {
		return nil, errPESTooShort
	}
	if data[0] != 0x00 || data[1] != 0x00 || data[2] != 0x01 {
		return nil, errors.New("mpegts: missing PES start code")
	}

	streamID := data[3]
	packetLength := uint16(data[4])<<8 | uint16(data[5])

	p := &PesPacket{
		PacketLength: packetLength,
	}

	// Stream IDs with no PES optional header at all (program_stream_map,
	// padding_stream, private_stream_2, ECM, EMM, program_stream_directory,
	// DSMCC_stream, ITU-T Rec. H.222.1 type E streams).
	switch streamID {
	case 0xBC, 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		p.Data = data[6:]
		return p, nil
	}

	if len(data) < 9 {
		return nil, errPESTooShort
	}
	p.DataAlignment = data[6]&0x04 != 0
	ptsDtsFlags := (data[7] >> 6) & 0x03
	headerDataLength := int(data[8])
	dataStart := 9 + headerDataLength
	if dataStart > len(data) {
		return nil, errPESTooShort
	}

	switch ptsDtsFlags {
	case 0x2: // PTS only
		if len(data) < 14 {
			return nil, errPESTooShort
		}
		pts := decodeTimestamp33(data[9:14])
		p.PTS = &pts
	case 0x3: // PTS and DTS
		if len(data) < 19 {
			return nil, errPESTooShort
		}
		pts := decodeTimestamp33(data[9:14])
		dts := decodeTimestamp33(data[14:19])
		p.PTS = &pts
		p.DTS = &dts
	}

	p.Data = data[dataStart:]
	return p, nil
}

// decodeTimestamp33 decodes a 33-bit PTS/DTS field from its 5-byte wire
// encoding (ISO 13818-1 2.4.3.6).
func decodeTimestamp33(b []byte) uint64 {
	_ = b[4]
	return uint64(b[0]&0x0E)<<29 | uint64(b[1])<<22 | uint64(b[2]&0xFE)<<14 |
		uint64(b[3])<<7 | uint64(b[4]&0xFE)>>1
}
