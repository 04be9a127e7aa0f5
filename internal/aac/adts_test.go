package aac

import "testing"

func TestFrameDuration90kAt48k(t *testing.T) {
	got := FrameDuration90k(48000)
	if got != 1920 {
		t.Fatalf("FrameDuration90k(48000) = %d, want 1920", got)
	}
}

func TestFrameDuration90kRoundsUp(t *testing.T) {
	// 1024*90000/44100 = 2089.79..., must round up to 2090.
	got := FrameDuration90k(44100)
	if got != 2090 {
		t.Fatalf("FrameDuration90k(44100) = %d, want 2090", got)
	}
}

func TestSilenceFrameTableLookup(t *testing.T) {
	if _, ok := SilenceFrame(48000, 2); !ok {
		t.Fatalf("expected a tabulated silence frame for 48kHz stereo")
	}
	if _, ok := SilenceFrame(8000, 1); ok {
		t.Fatalf("expected no tabulated silence frame for 8kHz mono")
	}
}
