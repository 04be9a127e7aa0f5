package video

import (
	"fmt"
	"log/slog"

	"github.com/vectrastream/transmux/internal/box"
	"github.com/vectrastream/transmux/internal/media"
)

// Segmenter buffers NAL units until Flush, groups them into AUD-delimited
// frames and keyframe-rooted GOPs, repairs a non-keyframe-leading first
// GOP by fusion or keyframe-pull, optionally trims for caller-supplied
// alignment, and builds the sample table handed to the box writer.
type Segmenter struct {
	log     *slog.Logger
	Track   *media.Track
	trackID int

	buffered        []media.NalUnit
	waitForKeyFrame bool
	cache           *gopCache
	sequenceNumber  uint32

	alignment  []uint64
	alignAtEnd bool

	keepOriginalTimestamps bool

	pendingGop *media.Gop // cached when alignment couldn't be satisfied
}

// NewSegmenter returns a Segmenter for track, starting in the
// waitForKeyFrame state required initially and after a reset.
// trackID is this track's 1-based ID in the init segment's track list.
func NewSegmenter(track *media.Track, trackID int, log *slog.Logger) *Segmenter {
	if log == nil {
		log = slog.Default()
	}
	return &Segmenter{
		log:                    log,
		Track:                  track,
		trackID:                trackID,
		waitForKeyFrame:        true,
		cache:                  newGopCache(),
		keepOriginalTimestamps: true,
	}
}

// PushNAL buffers one NAL unit for the next flush.
func (s *Segmenter) PushNAL(n media.NalUnit) {
	s.buffered = append(s.buffered, n)
}

// SetAlignment configures the alignGopsWith PTS list and direction.
func (s *Segmenter) SetAlignment(ptsList []uint64, atEnd bool) {
	s.alignment = ptsList
	s.alignAtEnd = atEnd
}

// SetKeepOriginalTimestamps controls the baseMediaDecodeTime derivation
// rule.
func (s *Segmenter) SetKeepOriginalTimestamps(v bool) { s.keepOriginalTimestamps = v }

// Discontinuity forces the next flush to wait for a fresh keyframe and
// drops the GOP fusion cache, matching setBaseMediaDecodeTime's effect on
// the video side.
func (s *Segmenter) Discontinuity() {
	s.waitForKeyFrame = true
	s.cache = newGopCache()
}

// Reset returns the segmenter to its initial state.
func (s *Segmenter) Reset() {
	s.buffered = nil
	s.waitForKeyFrame = true
	s.cache = newGopCache()
	s.sequenceNumber = 0
	s.pendingGop = nil
	s.Track.TimelineStartInfo = media.TimelineStartInfo{}
	s.Track.ClearObservedDts()
}

// FlushResult is what one Flush call produces.
type FlushResult struct {
	Emitted                  bool
	Part                     box.TrackPart
	PrependedContentDuration uint64
	GopInfo                  media.Gop
	TimingInfo               media.TimingInfo
}

// Flush groups buffered NALs into frames and GOPs, repairs a
// non-keyframe-leading GOP if needed, applies alignment, and builds the
// sample table for one media segment.
func (s *Segmenter) Flush() FlushResult {
	nalus := s.trimToAccessUnitBoundary()
	if nalus == nil {
		return FlushResult{}
	}

	if s.waitForKeyFrame {
		nalus = dropBeforeFirstAUD(nalus)
		if !hasIDRAfterFirstAUD(nalus) {
			// No segment this flush; retain the buffered NALs.
			s.buffered = append(nalus, s.buffered...)
			return FlushResult{}
		}
	} else {
		nalus = dropBeforeFirstAUD(nalus)
	}

	frames := groupFrames(nalus)
	gops := groupGops(frames)
	if len(gops) == 0 {
		return FlushResult{}
	}

	var prependedDuration uint64
	if len(gops[0].Frames) > 0 && !gops[0].Frames[0].KeyFrame {
		repaired, fused, ok := s.repairLeadingGop(gops)
		if !ok {
			// No keyframe anywhere in this flush's frames and no fusion
			// candidate either; retain the NALs for the next flush.
			s.buffered = append(nalus, s.buffered...)
			return FlushResult{}
		}
		gops = repaired
		prependedDuration = fused
	}

	gops = s.applyAlignment(gops)
	if gops == nil {
		return FlushResult{} // alignment impossible; last GOP cached for next flush
	}

	s.waitForKeyFrame = false

	samples, err := buildSampleTable(gops)
	if err != nil {
		s.log.Error("building video sample table", "error", err)
		return FlushResult{}
	}
	for _, g := range gops {
		s.cache.add(g)
	}

	minDts := gops[0].Frames[0].DTS
	for _, g := range gops {
		for _, f := range g.Frames {
			s.Track.ObserveDts(f.DTS)
			if f.DTS < minDts {
				minDts = f.DTS
			}
		}
	}
	if !s.Track.TimelineStartInfo.Set {
		s.Track.TimelineStartInfo = media.TimelineStartInfo{
			Set: true,
			Dts: minDts,
			Pts: gops[0].Frames[0].PTS,
		}
	}

	baseMediaDecodeTime := DeriveBaseMediaDecodeTime(s.Track, s.keepOriginalTimestamps)
	s.Track.BaseMediaDecodeTime = baseMediaDecodeTime
	s.Track.ClearObservedDts()

	part := box.TrackPart{
		TrackID:  s.trackID,
		BaseTime: baseMediaDecodeTime,
		Samples:  samples,
	}

	lastGop := gops[len(gops)-1]
	totalDuration := uint64(0)
	for _, g := range gops {
		totalDuration += g.Duration
	}

	s.sequenceNumber++
	return FlushResult{
		Emitted:                  true,
		Part:                     part,
		PrependedContentDuration: prependedDuration,
		GopInfo:                  lastGop,
		TimingInfo: media.TimingInfo{
			Start: float64(gops[0].Frames[0].PTS) / media.VideoClockRate,
			End:   float64(gops[0].Frames[0].PTS+totalDuration) / media.VideoClockRate,
		},
	}
}

// trimToAccessUnitBoundary finds the last AUD index, takes everything
// before it for this flush, and retains the rest.
func (s *Segmenter) trimToAccessUnitBoundary() []media.NalUnit {
	if len(s.buffered) == 0 {
		return nil
	}
	lastAUD := -1
	for i, n := range s.buffered {
		if n.Type == NALTypeAUD {
			lastAUD = i
		}
	}
	if lastAUD <= 0 {
		return nil // always keep at least one AUD's worth buffered
	}
	segment := s.buffered[:lastAUD]
	s.buffered = append([]media.NalUnit(nil), s.buffered[lastAUD:]...)
	return segment
}

func dropBeforeFirstAUD(nalus []media.NalUnit) []media.NalUnit {
	for i, n := range nalus {
		if n.Type == NALTypeAUD {
			return nalus[i:]
		}
	}
	return nil
}

func hasIDRAfterFirstAUD(nalus []media.NalUnit) bool {
	return IsKeyframe(nalus)
}

func groupFrames(nalus []media.NalUnit) []media.Frame {
	var frames []media.Frame
	var cur *media.Frame
	flush := func() {
		if cur != nil && len(cur.NALUs) > 0 {
			frames = append(frames, *cur)
		}
		cur = nil
	}
	for _, n := range nalus {
		if n.Type == NALTypeAUD {
			flush()
			cur = &media.Frame{PTS: n.PTS, DTS: n.DTS}
			continue
		}
		if cur == nil {
			cur = &media.Frame{PTS: n.PTS, DTS: n.DTS}
		}
		cur.NALUs = append(cur.NALUs, n)
		cur.ByteLength += len(n.Data)
		cur.NalCount++
		if n.Type == NALTypeIDR {
			cur.KeyFrame = true
		}
	}
	flush()

	for i := range frames {
		if i+1 < len(frames) {
			frames[i].Duration = frames[i+1].DTS - frames[i].DTS
		}
	}
	if len(frames) > 0 && frames[len(frames)-1].Duration == 0 && len(frames) > 1 {
		frames[len(frames)-1].Duration = frames[len(frames)-2].Duration
	}
	return frames
}

func groupGops(frames []media.Frame) []media.Gop {
	var gops []media.Gop
	var cur *media.Gop
	for _, f := range frames {
		if f.KeyFrame || cur == nil {
			if cur != nil {
				gops = append(gops, *cur)
			}
			cur = &media.Gop{PTS: f.PTS, DTS: f.DTS, SPS: spsOf(f), PPS: ppsOf(f)}
		}
		cur.Frames = append(cur.Frames, f)
		cur.ByteLength += f.ByteLength
		cur.NalCount += f.NalCount
		cur.Duration += f.Duration
	}
	if cur != nil {
		gops = append(gops, *cur)
	}
	return gops
}

func spsOf(f media.Frame) []byte {
	for _, n := range f.NALUs {
		if n.Type == NALTypeSPS {
			return n.Data
		}
	}
	return nil
}

func ppsOf(f media.Frame) []byte {
	for _, n := range f.NALUs {
		if n.Type == NALTypePPS {
			return n.Data
		}
	}
	return nil
}

// repairLeadingGop repairs the leading run of gops that precedes (or is)
// a non-keyframe-leading GOP: GOP fusion when a matching cached GOP is
// found within the distance window, else keyframe-pull across GOP
// boundaries (the leading run may itself be an incomplete fragment with
// no keyframe of its own). Returns ok=false only when neither repair is
// possible — no cached candidate and no keyframe anywhere in gops.
func (s *Segmenter) repairLeadingGop(gops []media.Gop) (repaired []media.Gop, prependedDuration uint64, ok bool) {
	head := gops[0]
	sps, pps := s.Track.SPS, s.Track.PPS
	if sps == nil {
		sps = head.SPS
	}
	if pps == nil {
		pps = head.PPS
	}

	if candidate, found := s.cache.bestFusionCandidate(sps, pps, head.DTS, s.Track.TimelineStartInfo.Dts, s.Track.TimelineStartInfo.Set); found {
		merged := candidate
		merged.Frames = append(append([]media.Frame(nil), candidate.Frames...), head.Frames...)
		merged.ByteLength += head.ByteLength
		merged.NalCount += head.NalCount
		merged.Duration += head.Duration
		gops[0] = merged
		return gops, candidate.Duration, true
	}

	// Keyframe-pull: find the first keyframe anywhere across gops, discard
	// everything before it, and extend its presentation backward over the
	// discarded span.
	for gi := range gops {
		for fi, f := range gops[gi].Frames {
			if !f.KeyFrame {
				continue
			}
			if gi == 0 && fi == 0 {
				return gops, 0, true // already keyframe-leading; nothing to do
			}

			var discardedDuration uint64
			for _, g := range gops[:gi] {
				discardedDuration += g.Duration
			}
			for _, d := range gops[gi].Frames[:fi] {
				discardedDuration += d.Duration
			}

			kept := append([]media.Frame(nil), gops[gi].Frames[fi:]...)
			earliestPTS := gops[0].Frames[0].PTS
			kept[0].Duration += discardedDuration
			kept[0].PTS = earliestPTS

			newGop := gops[gi]
			newGop.Frames = kept
			newGop.PTS = kept[0].PTS
			newGop.DTS = kept[0].DTS
			newGop.Duration = 0
			newGop.ByteLength = 0
			newGop.NalCount = 0
			for _, fr := range kept {
				newGop.Duration += fr.Duration
				newGop.ByteLength += fr.ByteLength
				newGop.NalCount += fr.NalCount
			}

			out := append([]media.Gop{newGop}, gops[gi+1:]...)
			return out, 0, true
		}
	}
	return nil, 0, false
}

// applyAlignment trims GOPs so the first (or last, if alignGopsAtEnd)
// retained GOP's PTS matches some alignment PTS. Returns nil if no
// alignment is possible; the last GOP is then added to the GOP fusion
// cache, where the next flush can fuse it.
func (s *Segmenter) applyAlignment(gops []media.Gop) []media.Gop {
	if len(s.alignment) == 0 {
		return gops
	}
	match := func(pts uint64) bool {
		for _, a := range s.alignment {
			if a == pts {
				return true
			}
		}
		return false
	}

	if !s.alignAtEnd {
		for i, g := range gops {
			if match(g.PTS) {
				return gops[i:]
			}
		}
	} else {
		for i := len(gops) - 1; i >= 0; i-- {
			if match(gops[i].PTS) {
				return gops[:i+1]
			}
		}
	}
	s.pendingGop = &gops[len(gops)-1]
	s.cache.add(gops[len(gops)-1])
	return nil
}

// buildSampleTable computes per-sample size/duration/composition-offset/
// flags, packing each access unit's NALs into the length-prefixed AVCC
// form fmp4 samples require.
func buildSampleTable(gops []media.Gop) ([]box.Sample, error) {
	var samples []box.Sample
	for _, g := range gops {
		for _, f := range g.Frames {
			nalus := make([][]byte, len(f.NALUs))
			for i, n := range f.NALUs {
				nalus[i] = n.Data
			}
			payload, err := AVCCMarshal(nalus)
			if err != nil {
				return nil, fmt.Errorf("video: marshal AVCC sample: %w", err)
			}
			samples = append(samples, box.Sample{
				Duration:        uint32(f.Duration),
				PTSOffset:       int32(int64(f.PTS) - int64(f.DTS)),
				IsNonSyncSample: !f.KeyFrame,
				Payload:         payload,
			})
		}
	}
	return samples, nil
}

// DeriveBaseMediaDecodeTime computes a video track's baseMediaDecodeTime
// (no timescale conversion; video already runs at 90 kHz).
func DeriveBaseMediaDecodeTime(track *media.Track, keepOriginalTimestamps bool) uint64 {
	if track.ObservedDtsMin == nil {
		return track.BaseMediaDecodeTime
	}
	return media.DeriveBaseMediaDecodeTime(*track.ObservedDtsMin, track.TimelineStartInfo.Dts, track.TimelineStartInfo.BaseMediaDecodeTime, keepOriginalTimestamps)
}
