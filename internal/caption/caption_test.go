package caption

import "testing"

func TestNewExtractorPreallocatesChannelsAndServices(t *testing.T) {
	e := NewExtractor(nil)
	if len(e.cea608Decs) != 4 {
		t.Fatalf("expected 4 CEA-608 decoders, got %d", len(e.cea608Decs))
	}
	if len(e.cea708Svcs) != 6 {
		t.Fatalf("expected 6 CEA-708 services, got %d", len(e.cea708Svcs))
	}
}

func TestExtractSEIOnEmptyPayloadReturnsNothing(t *testing.T) {
	e := NewExtractor(nil)
	if cues := e.ExtractSEI(nil, 0); cues != nil {
		t.Fatalf("expected no cues from an empty SEI payload, got %v", cues)
	}
	if e.videoCount != 1 {
		t.Fatalf("expected the frame counter to advance even on a miss, got %d", e.videoCount)
	}
}

func TestDecode608SuppressesRepeatedControlPair(t *testing.T) {
	e := NewExtractor(nil)
	e.videoCount = 1

	if _, ok := e.decode608(0, 1, 0x14, 0x2C, 0); !ok {
		t.Fatalf("expected the first control pair to decode")
	}
	e.videoCount = 2
	if _, ok := e.decode608(0, 1, 0x14, 0x2C, 0); ok {
		t.Fatalf("expected the immediate repeat of a control pair to be suppressed")
	}
}

func TestDecode608AllowsControlPairOutsideDedupWindow(t *testing.T) {
	e := NewExtractor(nil)
	e.videoCount = 1
	e.decode608(0, 1, 0x14, 0x2C, 0)

	e.videoCount = 10
	if _, ok := e.decode608(0, 1, 0x14, 0x2C, 0); !ok {
		t.Fatalf("expected a control pair repeated well outside the dedup window to decode again")
	}
}

func TestResetClearsDedupAndDTVCCState(t *testing.T) {
	e := NewExtractor(nil)
	e.videoCount = 5
	e.lastCCWasCtrl[0] = true
	e.dtvccBuf = append(e.dtvccBuf, 0x01, 0x02)

	e.Reset()

	if e.videoCount != 0 {
		t.Fatalf("expected videoCount reset to 0, got %d", e.videoCount)
	}
	if e.lastCCWasCtrl[0] {
		t.Fatalf("expected control dedup state cleared")
	}
	if len(e.dtvccBuf) != 0 {
		t.Fatalf("expected DTVCC buffer cleared, got %d bytes", len(e.dtvccBuf))
	}
}

func TestDrainDTVCCOnEmptyBufferReturnsNothing(t *testing.T) {
	e := NewExtractor(nil)
	if cues := e.drainDTVCC(0); cues != nil {
		t.Fatalf("expected no cues when the DTVCC buffer is empty, got %v", cues)
	}
}
