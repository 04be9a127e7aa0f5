// Package media holds the data model shared by every stage downstream of
// PES reassembly: NAL units, access units, GOPs, ADTS frames, durable
// per-track state, and the segment/side-channel events surfaced to the
// host. Aggregates are modeled as explicit value-typed fields, never
// attached dynamically, per the "polymorphic group-with-aggregate"
// guidance for this design.
package media

// VideoClockRate is the TS 90 kHz clock all video and coalescer timing is
// expressed in.
const VideoClockRate = 90000

// TrackType distinguishes audio from video tracks.
type TrackType int

const (
	TrackVideo TrackType = iota
	TrackAudio
)

// TimelineStartInfo anchors a track to the shared output timeline. It is
// set on the first flush that produces data, from the earliest DTS/PTS
// observed, and cleared wholesale by setBaseMediaDecodeTime/reset.
type TimelineStartInfo struct {
	Set                bool
	Dts                uint64
	Pts                uint64
	BaseMediaDecodeTime uint64
}

// Track is durable per-output-track metadata: created on PMT, mutated by
// the segmenters, never destroyed until an explicit reset.
type Track struct {
	Type        TrackType
	PID         uint16
	Language    string
	Codec       string // "avc1.PPCCLL" or "mp4a.40.2"
	Timescale   uint32 // 90000 for video; sample rate for audio

	// Video-only.
	SPS, PPS       []byte
	Width, Height  int
	ProfileIDC     uint8
	ProfileCompat  uint8
	LevelIDC       uint8

	// Audio-only.
	SampleRate   int
	ChannelCount int

	TimelineStartInfo  TimelineStartInfo
	BaseMediaDecodeTime uint64
	SequenceNumber      uint32

	ObservedDtsMin *uint64 // accumulated between flushes, cleared after each
}

// ObserveDts folds dts into the running minimum used to derive
// baseMediaDecodeTime at the next flush.
func (t *Track) ObserveDts(dts uint64) {
	if t.ObservedDtsMin == nil || dts < *t.ObservedDtsMin {
		v := dts
		t.ObservedDtsMin = &v
	}
}

// ClearObservedDts resets the accumulator after a flush.
func (t *Track) ClearObservedDts() { t.ObservedDtsMin = nil }

// NalUnit is one H.264 Annex-B NAL unit attributed with the access unit's
// timestamps (every NAL in a frame shares the frame's PTS/DTS).
type NalUnit struct {
	Type byte // h264.NALUType value
	Data []byte
	PTS  uint64
	DTS  uint64
}

// Frame is one AUD-delimited access unit.
type Frame struct {
	NALUs      []NalUnit
	KeyFrame   bool
	PTS, DTS   uint64
	Duration   uint64
	ByteLength int
	NalCount   int
}

// Gop is a keyframe-rooted sequence of frames.
type Gop struct {
	Frames     []Frame
	PTS, DTS   uint64
	Duration   uint64
	ByteLength int
	NalCount   int
	SPS, PPS   []byte
}

// AdtsFrame is one decoded AAC ADTS frame.
type AdtsFrame struct {
	PID          uint16
	PTS, DTS     uint64
	Data         []byte
	SampleRate   int
	ChannelCount int
	SampleSize   int // bits per sample, fixed at 16 for ADTS-sourced AAC
}

// SegmentEventType distinguishes the three shapes a SegmentEvent's data
// can take.
type SegmentEventType int

const (
	SegmentVideo SegmentEventType = iota
	SegmentAudio
	SegmentCombined
)

// SegmentEvent is the primary output emitted to the host once per
// coalescer barrier.
type SegmentEvent struct {
	Type        SegmentEventType
	InitSegment []byte // non-nil only on the barrier's first emission
	Data        []byte // moof+mdat (or concatenated moof+mdat pairs when combined)
	Codec       string
	PID         uint16
	Info        TimingInfo
}

// TimingInfo carries the start/end of one segment in seconds, matching
// the `timingInfo`/`segmentTimingInfo` side events.
type TimingInfo struct {
	Start float64
	End   float64
}

// CaptionCue is one decoded CEA-608/708 caption. RawPTS is the raw 90 kHz
// tick the cue was extracted at; the coalescer converts it to a CueTime in
// seconds relative to the timeline start via MetadataTsToSeconds.
type CaptionCue struct {
	PID     uint16
	Channel int
	Text    string
	RawPTS  uint64
}

// ID3Frame is one decoded ID3-style timed-metadata frame. RawPTS is
// likewise converted to a CueTime by the coalescer at emission time.
type ID3Frame struct {
	PID    uint16
	RawPTS uint64
	Data   []byte
}

// AudioTsToVideoTs converts an audio-clock tick count to the 90 kHz video
// clock: floor(ts * 90000 / sr).
func AudioTsToVideoTs(ts uint64, sampleRate int) uint64 {
	return ts * VideoClockRate / uint64(sampleRate)
}

// VideoTsToAudioTs converts a 90 kHz tick count to the audio clock: floor(ts
// * sr / 90000).
func VideoTsToAudioTs(ts uint64, sampleRate int) uint64 {
	return ts * uint64(sampleRate) / VideoClockRate
}

// MetadataTsToSeconds converts a raw PTS to a cue time in seconds, either
// relative to start or, if keepOriginal, left on the original 90 kHz clock.
func MetadataTsToSeconds(pts, start uint64, keepOriginal bool) float64 {
	if keepOriginal {
		return float64(pts) / VideoClockRate
	}
	return float64(int64(pts)-int64(start)) / VideoClockRate
}

// DeriveBaseMediaDecodeTime computes a track's baseMediaDecodeTime in its
// 90 kHz clock; callers needing the audio timescale apply the samplerate
// conversion themselves afterward. Never negative; clamps to 0.
func DeriveBaseMediaDecodeTime(minDts uint64, startDts, startBaseMediaDecodeTime uint64, keepOriginalTimestamps bool) uint64 {
	var value int64
	if keepOriginalTimestamps {
		value = int64(minDts) - int64(startBaseMediaDecodeTime)
	} else {
		value = int64(minDts) - int64(startDts) + int64(startBaseMediaDecodeTime)
	}
	if value < 0 {
		return 0
	}
	return uint64(value)
}
