package aac

import (
	"testing"

	"github.com/vectrastream/transmux/internal/media"
)

func newAudioTrack() *media.Track {
	return &media.Track{Type: media.TrackAudio, SampleRate: 48000, ChannelCount: 2}
}

func frame(pts uint64, sr, ch int) media.AdtsFrame {
	return media.AdtsFrame{PID: 256, PTS: pts, DTS: pts, Data: []byte{0x21, 0x00, 0x49}, SampleRate: sr, ChannelCount: ch, SampleSize: 16}
}

func TestSegmenterEmitsBufferedFrames(t *testing.T) {
	s := NewSegmenter(newAudioTrack(), 2, nil)
	s.PushFrame(frame(0, 48000, 2))
	s.PushFrame(frame(1920, 48000, 2))

	res := s.Flush()
	if !res.Emitted {
		t.Fatalf("expected a segment")
	}
	if len(res.Part.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(res.Part.Samples))
	}
}

func TestSegmenterTrimsBeforeEarliestAllowedDts(t *testing.T) {
	s := NewSegmenter(newAudioTrack(), 2, nil)
	s.SetEarliestAllowedDts(2000)
	s.PushFrame(frame(0, 48000, 2))    // dropped
	s.PushFrame(frame(1000, 48000, 2)) // dropped
	s.PushFrame(frame(3000, 48000, 2)) // kept

	res := s.Flush()
	if !res.Emitted {
		t.Fatalf("expected a segment")
	}
	if len(res.Part.Samples) != 1 {
		t.Fatalf("expected exactly 1 sample surviving the trim, got %d", len(res.Part.Samples))
	}
}

func TestSegmenterNoFramesEmitsNothing(t *testing.T) {
	s := NewSegmenter(newAudioTrack(), 2, nil)
	s.SetEarliestAllowedDts(5000)
	s.PushFrame(frame(0, 48000, 2))

	res := s.Flush()
	if res.Emitted {
		t.Fatalf("expected no segment when every frame is trimmed away")
	}
}

// The silence-prefix law: when audioAppendStartTs is set and a gap
// exists that a tabulated silence frame can cover, filler frames precede
// the real data and the reported filled duration is nonzero.
func TestSegmenterFillsSilenceGap(t *testing.T) {
	s := NewSegmenter(newAudioTrack(), 2, nil)
	frameDur := FrameDuration90k(48000)
	s.SetAudioAppendStart(0)
	s.PushFrame(frame(frameDur*3, 48000, 2))

	res := s.Flush()
	if !res.Emitted {
		t.Fatalf("expected a segment")
	}
	if res.FilledSilenceDuration == 0 {
		t.Fatalf("expected nonzero filled silence duration")
	}
	if len(res.Part.Samples) <= 1 {
		t.Fatalf("expected filler samples prepended, got %d total samples", len(res.Part.Samples))
	}
}

func TestSegmenterSkipsSilenceForUntabulatedRate(t *testing.T) {
	s := NewSegmenter(newAudioTrack(), 2, nil)
	frameDur := FrameDuration90k(22050)
	s.SetAudioAppendStart(0)
	s.PushFrame(frame(frameDur*3, 22050, 2))

	res := s.Flush()
	if !res.Emitted {
		t.Fatalf("expected a segment")
	}
	if res.FilledSilenceDuration != 0 {
		t.Fatalf("expected no filling for an untabulated sample rate, got %d", res.FilledSilenceDuration)
	}
	if len(res.Part.Samples) != 1 {
		t.Fatalf("expected exactly the original sample with no filler, got %d", len(res.Part.Samples))
	}
}
