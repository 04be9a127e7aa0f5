package aac

import (
	"log/slog"

	"github.com/vectrastream/transmux/internal/box"
	"github.com/vectrastream/transmux/internal/media"
)

// Segmenter implements per-PID audio segmentation: buffering, silence
// padding at append boundaries, and construction of the track's sample
// table (box.TrackPart); the coalescer turns that into moof+mdat.
type Segmenter struct {
	log     *slog.Logger
	Track   *media.Track
	trackID int

	buffered []media.AdtsFrame

	hasEarliestAllowedDts bool
	earliestAllowedDts    uint64

	hasAudioAppendStart bool
	audioAppendStartTs  uint64

	sequenceNumber         uint32
	keepOriginalTimestamps bool
}

// NewSegmenter returns a Segmenter for one audio PID's track. trackID is
// this track's 1-based ID in the init segment's track list.
func NewSegmenter(track *media.Track, trackID int, log *slog.Logger) *Segmenter {
	if log == nil {
		log = slog.Default()
	}
	return &Segmenter{log: log, Track: track, trackID: trackID, keepOriginalTimestamps: true}
}

// PushFrame buffers one decoded access unit for the next flush.
func (s *Segmenter) PushFrame(f media.AdtsFrame) {
	s.buffered = append(s.buffered, f)
}

// SetEarliestAllowedDts aligns this track's audio start with the video
// side's earliest DTS.
func (s *Segmenter) SetEarliestAllowedDts(dts uint64) {
	s.earliestAllowedDts = dts
	s.hasEarliestAllowedDts = true
}

// SetAudioAppendStart configures the continuation point silence padding
// is measured against.
func (s *Segmenter) SetAudioAppendStart(ts uint64) {
	s.audioAppendStartTs = ts
	s.hasAudioAppendStart = true
}

func (s *Segmenter) SetKeepOriginalTimestamps(v bool) { s.keepOriginalTimestamps = v }

// Reset returns the segmenter to its initial state.
func (s *Segmenter) Reset() {
	s.buffered = nil
	s.hasEarliestAllowedDts = false
	s.hasAudioAppendStart = false
	s.sequenceNumber = 0
	s.Track.TimelineStartInfo = media.TimelineStartInfo{}
	s.Track.ClearObservedDts()
}

// FlushResult is what one Flush call produces.
type FlushResult struct {
	Emitted               bool
	Part                  box.TrackPart
	FilledSilenceDuration uint64 // in 90 kHz video-clock units
	TimingInfo            media.TimingInfo
}

// Flush drains buffered frames into one media segment, padding with
// silence if audio append start trails the first buffered frame.
func (s *Segmenter) Flush() FlushResult {
	frames := s.trimLeading()
	if len(frames) == 0 {
		return FlushResult{}
	}

	var filledDuration uint64
	if s.hasAudioAppendStart && frames[0].DTS > s.audioAppendStartTs {
		gap := frames[0].DTS - s.audioAppendStartTs
		filler, filledSamples := s.buildSilenceFiller(gap, frames[0])
		frames = append(filler, frames...)
		filledDuration = filledSamples
	}

	minDts := frames[0].DTS
	for _, f := range frames {
		s.Track.ObserveDts(f.DTS)
		if f.DTS < minDts {
			minDts = f.DTS
		}
	}
	if !s.Track.TimelineStartInfo.Set {
		s.Track.TimelineStartInfo = media.TimelineStartInfo{
			Set: true,
			Dts: minDts,
			Pts: frames[0].PTS,
		}
	}

	baseMediaDecodeTime90k := media.DeriveBaseMediaDecodeTime(
		*s.Track.ObservedDtsMin,
		s.Track.TimelineStartInfo.Dts,
		s.Track.TimelineStartInfo.BaseMediaDecodeTime,
		s.keepOriginalTimestamps,
	)
	baseMediaDecodeTime := media.VideoTsToAudioTs(baseMediaDecodeTime90k, s.Track.SampleRate)
	s.Track.BaseMediaDecodeTime = baseMediaDecodeTime
	s.Track.ClearObservedDts()

	samples := make([]box.Sample, 0, len(frames))
	var totalDuration uint64
	for _, f := range frames {
		dur90k := FrameDuration90k(f.SampleRate)
		totalDuration += dur90k
		samples = append(samples, box.Sample{
			Duration:        uint32(media.VideoTsToAudioTs(dur90k, f.SampleRate)),
			IsNonSyncSample: false,
			Payload:         f.Data,
		})
	}

	s.sequenceNumber++
	return FlushResult{
		Emitted: true,
		Part: box.TrackPart{
			TrackID:  s.trackID,
			BaseTime: baseMediaDecodeTime,
			Samples:  samples,
		},
		FilledSilenceDuration: filledDuration,
		TimingInfo: media.TimingInfo{
			Start: float64(frames[0].PTS) / media.VideoClockRate,
			End:   float64(frames[0].PTS+totalDuration) / media.VideoClockRate,
		},
	}
}

// trimLeading drops frames preceding earliestAllowedDts.
func (s *Segmenter) trimLeading() []media.AdtsFrame {
	if !s.hasEarliestAllowedDts {
		out := s.buffered
		s.buffered = nil
		return out
	}
	i := 0
	for i < len(s.buffered) && s.buffered[i].DTS < s.earliestAllowedDts {
		i++
	}
	out := s.buffered[i:]
	s.buffered = nil
	return out
}

// buildSilenceFiller produces silent access units spanning gap (in 90
// kHz units) at ref's sample rate/channel count, returning the filler
// frames and the 90 kHz duration actually filled. If no silence table
// entry exists for the rate/channels, no filler is produced and the gap
// is reported as unfilled.
func (s *Segmenter) buildSilenceFiller(gap uint64, ref media.AdtsFrame) ([]media.AdtsFrame, uint64) {
	payload, ok := SilenceFrame(ref.SampleRate, ref.ChannelCount)
	if !ok {
		s.log.Warn("no silence table entry for sample rate/channels; audio gap left unfilled",
			"sampleRate", ref.SampleRate, "channelCount", ref.ChannelCount)
		return nil, 0
	}

	frameDuration90k := FrameDuration90k(ref.SampleRate)
	if frameDuration90k == 0 {
		return nil, 0
	}

	count := gap / frameDuration90k
	if count == 0 {
		return nil, 0
	}

	filler := make([]media.AdtsFrame, 0, count)
	dts := ref.DTS - gap
	for i := uint64(0); i < count; i++ {
		filler = append(filler, media.AdtsFrame{
			PID:          ref.PID,
			PTS:          dts,
			DTS:          dts,
			Data:         payload,
			SampleRate:   ref.SampleRate,
			ChannelCount: ref.ChannelCount,
			SampleSize:   ref.SampleSize,
		})
		dts += frameDuration90k
	}
	return filler, count * frameDuration90k
}
