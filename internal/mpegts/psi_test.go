package mpegts

import "testing"

func withCRC(section []byte) []byte {
	crc := crc32MPEG2(section)
	return append(section, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

func buildPATSection(pmtPID uint16) []byte {
	section := []byte{
		tableIDPAT,
		0xB0, 0x0D, // section_syntax_indicator=1, section_length=13
		0x00, 0x01, // transport_stream_id
		0xC1,       // version=0, current_next=1
		0x00, 0x00, // section_number, last_section_number
		0x00, 0x01, // program_number = 1
		byte(0xE0 | (pmtPID >> 8)), byte(pmtPID),
	}
	return withCRC(section)
}

func buildPMTSection(entries []pmtEntry) []byte {
	var esLoop []byte
	for _, e := range entries {
		esLoop = append(esLoop, e.streamType, byte(0xE0|e.pid>>8), byte(e.pid), 0xF0, 0x00)
	}
	sectionLength := 9 + len(esLoop) + 4 // header-after-length + loop + CRC
	header := []byte{
		tableIDPMT,
		byte(0xB0 | (sectionLength>>8)&0x0F), byte(sectionLength),
		0x00, 0x01, // program_number
		0xC1,       // version, current_next=1
		0x00, 0x00, // section_number, last_section_number
		0xE1, 0x00, // PCR_PID
		0xF0, 0x00, // program_info_length = 0
	}
	return withCRC(append(header, esLoop...))
}

func TestParsePATSection(t *testing.T) {
	pmtPID, ok, err := parsePATSection(buildPATSection(0x100))
	if err != nil {
		t.Fatalf("parsePATSection: %v", err)
	}
	if !ok || pmtPID != 0x100 {
		t.Fatalf("pmtPID = %v (%v), want 0x100", pmtPID, ok)
	}
}

func TestParsePMTSectionRoleAssignment(t *testing.T) {
	entries, err := parsePMTSection(buildPMTSection([]pmtEntry{
		{pid: 0x101, streamType: StreamTypeH264},
		{pid: 0x102, streamType: StreamTypeAAC},
	}))
	if err != nil {
		t.Fatalf("parsePMTSection: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].pid != 0x101 || entries[0].streamType != StreamTypeH264 {
		t.Fatalf("entry 0 = %+v", entries[0])
	}
}

func TestParserPMTBeforePESBuffersAndReplays(t *testing.T) {
	p := NewParser(nil, ParserOptions{})

	// Five PES packets for the video PID arrive before any PMT.
	videoPID := uint16(0x101)
	var replayed []ParserEvent
	for i := 0; i < 5; i++ {
		pusi := true
		pkt := TsPacket{
			PID:                       videoPID,
			PayloadUnitStartIndicator: pusi,
			Payload:                   buildPESHeader(0xE0, nil, nil, []byte{byte(i)}),
		}
		replayed = append(replayed, p.Push(pkt)...)
	}
	if len(replayed) != 0 {
		t.Fatalf("expected no events before PMT, got %d", len(replayed))
	}

	// PAT, then PMT.
	p.Push(TsPacket{PID: 0, PayloadUnitStartIndicator: true, Payload: append([]byte{0x00}, buildPATSection(0x200)...)})
	events := p.Push(TsPacket{
		PID:                       0x200,
		PayloadUnitStartIndicator: true,
		Payload: append([]byte{0x00}, buildPMTSection([]pmtEntry{
			{pid: videoPID, streamType: StreamTypeH264},
		})...),
	})

	if len(events) == 0 || events[0].Metadata == nil {
		t.Fatalf("first event should be METADATA, got %+v", events)
	}
	if events[0].Metadata.Map.Video == nil || *events[0].Metadata.Map.Video != videoPID {
		t.Fatalf("video PID not assigned: %+v", events[0].Metadata.Map)
	}

	// Replaying 5 buffered PES each flush the previous on PUSI, so we
	// expect 4 PES events from the replay (the 5th stays buffered).
	var pesCount int
	for _, e := range events[1:] {
		if e.PES != nil {
			pesCount++
		}
	}
	if pesCount != 4 {
		t.Fatalf("replayed PES events = %d, want 4", pesCount)
	}
}

func TestParserIgnoresPMTWithCurrentNextZero(t *testing.T) {
	p := NewParser(nil, ParserOptions{})
	p.Push(TsPacket{PID: 0, PayloadUnitStartIndicator: true, Payload: append([]byte{0x00}, buildPATSection(0x200)...)})

	section := buildPMTSection([]pmtEntry{{pid: 0x101, streamType: StreamTypeH264}})
	section[5] &^= 0x01 // clear current_next_indicator
	section = withCRC(section[:len(section)-4])
	events := p.Push(TsPacket{PID: 0x200, PayloadUnitStartIndicator: true, Payload: append([]byte{0x00}, section...)})

	if len(events) != 0 {
		t.Fatalf("expected PMT with current_next=0 to be ignored, got %+v", events)
	}
	if p.ProgramMap() != nil {
		t.Fatal("program map should remain nil")
	}
}
