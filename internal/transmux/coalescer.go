package transmux

import (
	"fmt"
	"sort"

	"github.com/vectrastream/transmux/internal/box"
	"github.com/vectrastream/transmux/internal/media"
)

// trackResult is one track's contribution to the current barrier: either a
// segmenter flush (Part set) or a "no data this segment" signal.
type trackResult struct {
	pid     uint16
	trackID int
	track   *media.Track
	result  *box.TrackPart // nil when this track signalled done-without-data
	timing  media.TimingInfo
	gop     *media.Gop // video only
}

// coalescer is a barrier across the registered tracks that buffers
// per-track flush results plus caption/id3
// side inputs, and emits segments once every registered track has reported
// in (remux mode) or as each result arrives (per-track mode).
type coalescer struct {
	remux bool

	registered map[uint16]bool // PID -> expected this barrier
	pending    map[uint16]trackResult

	pendingCaptions []media.CaptionCue
	pendingID3      []media.ID3Frame

	sequenceNumber uint32
}

func newCoalescer(remux bool) *coalescer {
	return &coalescer{
		remux:      remux,
		registered: make(map[uint16]bool),
		pending:    make(map[uint16]trackResult),
	}
}

func (c *coalescer) addTrack(pid uint16) {
	c.registered[pid] = true
}

func (c *coalescer) removeTrack(pid uint16) {
	delete(c.registered, pid)
	delete(c.pending, pid)
}

func (c *coalescer) reset() {
	c.pending = make(map[uint16]trackResult)
	c.pendingCaptions = nil
	c.pendingID3 = nil
	c.sequenceNumber = 0
}

func (c *coalescer) bufferCaption(cue media.CaptionCue) {
	c.pendingCaptions = append(c.pendingCaptions, cue)
}

func (c *coalescer) bufferID3(f media.ID3Frame) {
	c.pendingID3 = append(c.pendingID3, f)
}

// submit records one track's flush outcome for the current barrier. When
// the barrier is satisfied (remux mode: every registered track reported
// in; per-track mode: always, immediately) it drains and returns events.
func (c *coalescer) submit(tr trackResult, timelineStartPTS uint64, timelineStartSet bool, keepOriginalTimestamps bool, initTracks []*media.Track, initSent bool) ([]Event, bool, error) {
	if len(c.registered) == 0 {
		return nil, false, ErrInvariantViolation
	}
	c.pending[tr.pid] = tr

	if !c.remux {
		events, err := c.drainSingle(tr, timelineStartPTS, timelineStartSet, keepOriginalTimestamps, initTracks, initSent)
		return events, err == nil, err
	}

	if !c.barrierSatisfied() {
		return nil, false, nil
	}

	events, err := c.drainCombined(timelineStartPTS, timelineStartSet, keepOriginalTimestamps, initTracks, initSent)
	c.pending = make(map[uint16]trackResult)
	return events, true, err
}

func (c *coalescer) barrierSatisfied() bool {
	for pid := range c.registered {
		if _, ok := c.pending[pid]; !ok {
			return false
		}
	}
	return true
}

func (c *coalescer) drainSingle(tr trackResult, timelineStartPTS uint64, timelineStartSet bool, keepOriginalTimestamps bool, initTracks []*media.Track, initSent bool) ([]Event, error) {
	delete(c.pending, tr.pid)
	if tr.result == nil {
		return nil, nil
	}

	var events []Event
	if !initSent {
		init, err := box.InitSegment(initTracks)
		if err != nil {
			return nil, fmt.Errorf("transmux: build init segment: %w", err)
		}
		events = append(events, Event{Type: EventData, Segment: &media.SegmentEvent{
			Type:        segmentTypeFor(tr.track.Type),
			InitSegment: init,
			Codec:       tr.track.Codec,
			PID:         tr.pid,
		}})
	}

	c.sequenceNumber++
	data, err := box.MediaSegment(c.sequenceNumber, []box.TrackPart{*tr.result})
	if err != nil {
		return nil, fmt.Errorf("transmux: build media segment: %w", err)
	}
	events = append(events, Event{Type: EventData, Segment: &media.SegmentEvent{
		Type:  segmentTypeFor(tr.track.Type),
		Data:  data,
		Codec: tr.track.Codec,
		PID:   tr.pid,
		Info:  tr.timing,
	}})
	events = append(events, c.drainSideChannels(timelineStartPTS, timelineStartSet, keepOriginalTimestamps)...)
	return events, nil
}

func (c *coalescer) drainCombined(timelineStartPTS uint64, timelineStartSet bool, keepOriginalTimestamps bool, initTracks []*media.Track, initSent bool) ([]Event, error) {
	var events []Event
	if !initSent {
		init, err := box.InitSegment(initTracks)
		if err != nil {
			return nil, fmt.Errorf("transmux: build init segment: %w", err)
		}
		events = append(events, Event{Type: EventData, Segment: &media.SegmentEvent{
			Type:        media.SegmentCombined,
			InitSegment: init,
		}})
	}

	pids := make([]uint16, 0, len(c.pending))
	for pid := range c.pending {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool {
		return c.pending[pids[i]].trackID < c.pending[pids[j]].trackID
	})

	var parts []box.TrackPart
	var timing media.TimingInfo
	haveTiming := false
	for _, pid := range pids {
		tr := c.pending[pid]
		if tr.result == nil {
			continue
		}
		parts = append(parts, *tr.result)
		if !haveTiming {
			timing = tr.timing
			haveTiming = true
		} else {
			if tr.timing.Start < timing.Start {
				timing.Start = tr.timing.Start
			}
			if tr.timing.End > timing.End {
				timing.End = tr.timing.End
			}
		}
	}

	if len(parts) > 0 {
		c.sequenceNumber++
		data, err := box.MediaSegment(c.sequenceNumber, parts)
		if err != nil {
			return nil, fmt.Errorf("transmux: build media segment: %w", err)
		}
		events = append(events, Event{Type: EventData, Segment: &media.SegmentEvent{
			Type: media.SegmentCombined,
			Data: data,
			Info: timing,
		}})
	}

	events = append(events, c.drainSideChannels(timelineStartPTS, timelineStartSet, keepOriginalTimestamps)...)
	return events, nil
}

// drainSideChannels converts every buffered caption/id3 cue's raw PTS to a
// cue time relative to the timeline start, using whichever track's
// timelineStartInfo.pts the façade resolved as authoritative.
func (c *coalescer) drainSideChannels(timelineStartPTS uint64, timelineStartSet bool, keepOriginalTimestamps bool) []Event {
	if len(c.pendingCaptions) == 0 && len(c.pendingID3) == 0 {
		return nil
	}
	start := timelineStartPTS
	if !timelineStartSet {
		start = 0
	}

	var events []Event
	for _, cue := range c.pendingCaptions {
		events = append(events, Event{Type: EventCaption, Caption: &CaptionEvent{
			PID:     cue.PID,
			Channel: cue.Channel,
			Text:    cue.Text,
			CueTime: media.MetadataTsToSeconds(cue.RawPTS, start, keepOriginalTimestamps),
		}})
	}
	for _, f := range c.pendingID3 {
		events = append(events, Event{Type: EventID3Frame, ID3: &ID3Event{
			PID:     f.PID,
			CueTime: media.MetadataTsToSeconds(f.RawPTS, start, keepOriginalTimestamps),
			Data:    f.Data,
		}})
	}
	c.pendingCaptions = nil
	c.pendingID3 = nil
	return events
}

func segmentTypeFor(t media.TrackType) media.SegmentEventType {
	if t == media.TrackVideo {
		return media.SegmentVideo
	}
	return media.SegmentAudio
}
