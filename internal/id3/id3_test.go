package id3

import "testing"

func buildTag(bodySize uint32, body []byte) []byte {
	tag := []byte{'I', 'D', '3', 4, 0, 0,
		byte(bodySize >> 21 & 0x7F), byte(bodySize >> 14 & 0x7F), byte(bodySize >> 7 & 0x7F), byte(bodySize & 0x7F)}
	return append(tag, body...)
}

func TestExtractValidTag(t *testing.T) {
	body := []byte("TXXXpayload")
	payload := buildTag(uint32(len(body)), body)

	frame, ok := Extract(0x101, payload, 180000)
	if !ok {
		t.Fatalf("expected a valid ID3 tag to extract")
	}
	if frame.PID != 0x101 {
		t.Fatalf("PID = %d, want 0x101", frame.PID)
	}
	if frame.RawPTS != 180000 {
		t.Fatalf("RawPTS = %v, want 180000", frame.RawPTS)
	}
	if len(frame.Data) != len(payload) {
		t.Fatalf("Data length = %d, want %d", len(frame.Data), len(payload))
	}
}

func TestExtractRejectsMissingMagic(t *testing.T) {
	if _, ok := Extract(1, []byte("NOTID3TAGDATA"), 0); ok {
		t.Fatalf("expected no extraction without an ID3 magic prefix")
	}
}

func TestExtractRejectsTruncatedTag(t *testing.T) {
	payload := buildTag(1000, []byte("short"))
	if _, ok := Extract(1, payload, 0); ok {
		t.Fatalf("expected no extraction when the declared size runs past the payload")
	}
}

func TestExtractRejectsUnsupportedVersion(t *testing.T) {
	payload := buildTag(4, []byte("body"))
	payload[3] = 2
	if _, ok := Extract(1, payload, 0); ok {
		t.Fatalf("expected no extraction for an unsupported ID3 version")
	}
}
