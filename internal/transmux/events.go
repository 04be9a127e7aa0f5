package transmux

import (
	"github.com/vectrastream/transmux/internal/media"
	"github.com/vectrastream/transmux/internal/scte35"
)

// EventType distinguishes which field of an Event is populated, matching
// the output event names a host observes.
type EventType int

const (
	EventTrackInfo EventType = iota
	EventData
	EventTimingInfo
	EventGopInfo
	EventCaption
	EventID3Frame
	EventSCTE35
	EventDone
	EventReset
	EventEndedTimeline
)

// AudioTrackInfo describes one advertised audio elementary stream.
type AudioTrackInfo struct {
	PID       uint16
	Codec     string
	Languages []string
}

// VideoTrackInfo describes the single advertised video elementary stream.
type VideoTrackInfo struct {
	PID   uint16
	Codec string
}

// SubtitleTrackInfo describes an advertised-only DVB subtitle/teletext PID
// (no segmenter consumes these).
type SubtitleTrackInfo struct {
	PID      uint16
	Kind     string
	Language string
}

// TrackInfo is the `trackinfo` event payload, emitted for every PMT
// section the parser accepts, whether or not its contents changed.
type TrackInfo struct {
	Audio     []AudioTrackInfo
	Video     *VideoTrackInfo
	Subtitles []SubtitleTrackInfo
}

// CaptionEvent carries one closed-caption cue with its time already
// rebased onto the shared timeline.
type CaptionEvent struct {
	PID     uint16
	Channel int
	Text    string
	CueTime float64
}

// ID3Event carries one timed-metadata frame with its time rebased onto
// the shared timeline.
type ID3Event struct {
	PID     uint16
	CueTime float64
	Data    []byte
}

// Event is the tagged union of everything the façade can emit from Push
// or Flush, in emission order. Exactly one payload field is non-nil,
// selected by Type.
type Event struct {
	Type EventType

	TrackInfo *TrackInfo
	Segment   *media.SegmentEvent
	Timing    *media.TimingInfo
	GopInfo   *media.Gop
	Caption   *CaptionEvent
	ID3       *ID3Event
	SCTE35    *scte35.Event
}
