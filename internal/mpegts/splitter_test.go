package mpegts

import (
	"bytes"
	"math/rand"
	"testing"
)

func makePacket(pid uint16, pusi bool, fill byte) []byte {
	pkt := make([]byte, PacketSize)
	pkt[0] = syncByte
	pkt[1] = byte(pid>>8) & 0x1F
	if pusi {
		pkt[1] |= 0x40
	}
	pkt[2] = byte(pid)
	pkt[3] = 0x10 // payload only, continuity counter 0
	for i := 4; i < PacketSize; i++ {
		pkt[i] = fill
	}
	return pkt
}

func TestSplitterPacketAlignment(t *testing.T) {
	var want []byte
	for i := 0; i < 5; i++ {
		want = append(want, makePacket(256, i == 0, byte(i))...)
	}

	s := NewSplitter()
	got := s.Push(want)
	if len(got) != 5 {
		t.Fatalf("got %d packets, want 5", len(got))
	}
	for i, pkt := range got {
		if len(pkt) != PacketSize || pkt[0] != syncByte {
			t.Fatalf("packet %d not aligned: len=%d sync=0x%02X", i, len(pkt), pkt[0])
		}
	}
}

func TestSplitterBoundaryPreservation(t *testing.T) {
	var input []byte
	for i := 0; i < 20; i++ {
		input = append(input, makePacket(256, i%3 == 0, byte(i))...)
	}

	whole := NewSplitter().Push(input)

	for _, cut := range []int{1, 37, 188, 189, 2000, len(input) - 1} {
		if cut <= 0 || cut >= len(input) {
			continue
		}
		s := NewSplitter()
		part1 := s.Push(input[:cut])
		part2 := s.Push(input[cut:])
		part2 = append(part2, s.Flush()...)
		got := append(part1, part2...)

		if len(got) != len(whole) {
			t.Fatalf("cut=%d: got %d packets, want %d", cut, len(got), len(whole))
		}
		for i := range got {
			if !bytes.Equal(got[i], whole[i]) {
				t.Fatalf("cut=%d: packet %d mismatch", cut, i)
			}
		}
	}
}

func TestSplitterResyncsOnGarbage(t *testing.T) {
	garbage := make([]byte, 50)
	rand.New(rand.NewSource(1)).Read(garbage)
	for i := range garbage {
		garbage[i] &= 0xFE // keep away from 0x47 collisions mostly
	}
	input := append(garbage, makePacket(100, true, 0xAA)...)
	input = append(input, makePacket(100, false, 0xBB)...)

	s := NewSplitter()
	got := s.Push(input)
	if len(got) != 2 {
		t.Fatalf("got %d packets, want 2", len(got))
	}
}

func TestParseHeaderAdaptationField(t *testing.T) {
	pkt := make([]byte, PacketSize)
	pkt[0] = syncByte
	pkt[1] = 0x41 // PUSI + PID high bits 0x01
	pkt[2] = 0x00
	pkt[3] = 0x30 // adaptation field + payload present
	pkt[4] = 1    // adaptation_field_length = 1
	pkt[5] = 0x80 // discontinuity_indicator
	copy(pkt[6:], bytes.Repeat([]byte{0xEE}, PacketSize-6))

	hdr, err := ParseHeader(pkt)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if hdr.PID != 0x100 {
		t.Fatalf("PID = 0x%X, want 0x100", hdr.PID)
	}
	if !hdr.PayloadUnitStartIndicator {
		t.Fatal("expected PUSI set")
	}
	if !hdr.DiscontinuityIndicator {
		t.Fatal("expected discontinuity indicator set")
	}
	if len(hdr.Payload) != PacketSize-6 {
		t.Fatalf("payload len = %d, want %d", len(hdr.Payload), PacketSize-6)
	}
}
