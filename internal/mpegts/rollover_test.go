package mpegts

import "testing"

func TestRolloverDetectsWrap(t *testing.T) {
	r := NewRollover()

	const maxPTS = uint64(1)<<33 - 1
	start := maxPTS - 90000 // one second before wrap, at 90kHz

	got1 := r.Extend(StreamVideo, start)
	if got1 != start {
		t.Fatalf("first extend = %d, want %d", got1, start)
	}

	wrapped := uint64(45000) // wrapped around past zero
	got2 := r.Extend(StreamVideo, wrapped)
	want2 := wrapped + wrapAdd
	if got2 != want2 {
		t.Fatalf("post-wrap extend = %d, want %d", got2, want2)
	}
	if got2 <= got1 {
		t.Fatalf("extended timestamps must be monotonic: %d then %d", got1, got2)
	}
}

func TestRolloverDiscontinuityPreservesOffsetAcceptsVerbatim(t *testing.T) {
	r := NewRollover()
	r.Extend(StreamAudio, uint64(1)<<33-1000)
	r.Extend(StreamAudio, 500) // wraps, offset becomes 2^33

	r.Discontinuity(StreamAudio)
	got := r.Extend(StreamAudio, 999999)
	want := uint64(999999) + wrapAdd // offset preserved, but no wrap check applied
	if got != want {
		t.Fatalf("post-discontinuity extend = %d, want %d", got, want)
	}
}

func TestRolloverIndependentPerStreamClass(t *testing.T) {
	r := NewRollover()
	r.Extend(StreamVideo, uint64(1)<<33-1000)
	r.Extend(StreamVideo, 500)

	got := r.Extend(StreamAudio, 500)
	if got != 500 {
		t.Fatalf("audio rollover should be independent of video: got %d", got)
	}
}
