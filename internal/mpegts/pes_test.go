package mpegts

import "testing"

func buildPESHeader(streamID byte, pts, dts *uint64, payload []byte) []byte {
	var optional []byte
	ptsDtsFlags := byte(0)
	switch {
	case pts != nil && dts != nil:
		ptsDtsFlags = 0x3
		optional = append(optional, encodeTimestamp33(0x3, *pts)...)
		optional = append(optional, encodeTimestamp33(0x1, *dts)...)
	case pts != nil:
		ptsDtsFlags = 0x2
		optional = append(optional, encodeTimestamp33(0x2, *pts)...)
	}

	buf := []byte{0x00, 0x00, 0x01, streamID, 0, 0}
	buf = append(buf, 0x80, ptsDtsFlags<<6, byte(len(optional)))
	buf = append(buf, optional...)
	buf = append(buf, payload...)
	return buf
}

// encodeTimestamp33 is the test-side inverse of decodeTimestamp33, used to
// build fixtures; marker is the 4-bit marker prefix (0x2, 0x3, or 0x1 for
// the DTS-after-PTS case).
func encodeTimestamp33(marker byte, ts uint64) []byte {
	b := make([]byte, 5)
	b[0] = marker<<4 | byte((ts>>29)&0x0E) | 0x01
	b[1] = byte(ts >> 22)
	b[2] = byte((ts>>14)&0xFE) | 0x01
	b[3] = byte(ts >> 7)
	b[4] = byte((ts<<1)&0xFE) | 0x01
	return b
}

func TestParsePESPTSExact(t *testing.T) {
	wantPTS := uint64(1) << 32 // exercises the high bit of the 33-bit field
	data := buildPESHeader(0xE0, &wantPTS, nil, []byte{1, 2, 3, 4})

	pes, err := parsePES(data)
	if err != nil {
		t.Fatalf("parsePES: %v", err)
	}
	if pes.PTS == nil || *pes.PTS != wantPTS {
		t.Fatalf("PTS = %v, want %d", pes.PTS, wantPTS)
	}
	if pes.DTS != nil {
		t.Fatalf("DTS = %v, want nil", pes.DTS)
	}
	if string(pes.Data) != "\x01\x02\x03\x04" {
		t.Fatalf("Data = %q", pes.Data)
	}
}

func TestParsePESPTSDTS(t *testing.T) {
	pts := uint64(5_400_000)
	dts := uint64(5_397_000)
	data := buildPESHeader(0xE0, &pts, &dts, []byte{0xAA})

	pes, err := parsePES(data)
	if err != nil {
		t.Fatalf("parsePES: %v", err)
	}
	if pes.PTS == nil || *pes.PTS != pts {
		t.Fatalf("PTS = %v, want %d", pes.PTS, pts)
	}
	if pes.DTS == nil || *pes.DTS != dts {
		t.Fatalf("DTS = %v, want %d", pes.DTS, dts)
	}
}

func TestParsePESNoOptionalHeaderStreamIDs(t *testing.T) {
	for _, id := range []byte{0xBE, 0xBF, 0xF0} {
		data := []byte{0x00, 0x00, 0x01, id, 0, 0, 1, 2, 3}
		pes, err := parsePES(data)
		if err != nil {
			t.Fatalf("streamID 0x%02X: %v", id, err)
		}
		if string(pes.Data) != "\x01\x02\x03" {
			t.Fatalf("streamID 0x%02X: Data = %q", id, pes.Data)
		}
	}
}

func TestParsePESRejectsShortInput(t *testing.T) {
	if _, err := parsePES([]byte{0, 0, 1, 0xE0}); err == nil {
		t.Fatal("expected error for too-short PES")
	}
}

func FuzzParsePES(f *testing.F) {
	pts := uint64(123456)
	f.Add(buildPESHeader(0xE0, &pts, nil, []byte{1, 2, 3}))
	f.Add([]byte{0, 0, 1, 0xE0, 0, 0})
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = parsePES(data) // must never panic
	})
}
