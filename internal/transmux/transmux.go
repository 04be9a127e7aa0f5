// Package transmux implements the Transmuxer façade: it owns the packet
// splitter, PSI parser, PES reassembler, and timestamp rollover stages,
// wires a video/audio segmenter per track on first PMT, and drives them
// through the coalescer barrier stage. The whole chain is
// a direct, synchronous call graph — push(bytes) and flush() return the
// events produced by fully draining everything reachable from that call,
// with no goroutines or channels anywhere in the core path.
package transmux

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/vectrastream/transmux/internal/aac"
	"github.com/vectrastream/transmux/internal/caption"
	"github.com/vectrastream/transmux/internal/id3"
	"github.com/vectrastream/transmux/internal/media"
	"github.com/vectrastream/transmux/internal/mpegts"
	"github.com/vectrastream/transmux/internal/scte35"
	"github.com/vectrastream/transmux/internal/video"
)

// Options configures a Transmuxer at construction.
type Options struct {
	// BroadMode is passed to the PacketParser as ParserOptions.BroadMode.
	// It assigns no role to any stream type beyond 0x1B/0x0F: other
	// video/audio-family PIDs are not advertised, segmented or reported
	// as errors.
	BroadMode bool
	// Remux selects the Coalescer's barrier policy: true emits one
	// combined segment per barrier; false emits one segment per track as
	// each one's input arrives. The zero value is false, and New does not
	// change it.
	Remux bool
	// KeepOriginalTimestamps selects which baseMediaDecodeTime formula a
	// flush uses: true keeps tracks on their original wire clock, false
	// rebases each track's output to start at zero.
	KeepOriginalTimestamps bool
}

// Transmuxer is the public entry point: one instance per independent TS
// stream. Nothing is shared between instances.
type Transmuxer struct {
	log *slog.Logger
	opt Options

	splitter *mpegts.Splitter
	parser   *mpegts.Parser
	rollover *mpegts.Rollover
	captions *caption.Extractor

	programMap *mpegts.ProgramMap

	videoPID   *uint16
	videoTrack *media.Track
	videoSeg   *video.Segmenter

	audioPIDs  []uint16 // ascending, mirrors trackID assignment order
	audioTrack map[uint16]*media.Track
	audioSeg   map[uint16]*aac.Segmenter

	currentAudioPID *uint16

	coalescer *coalescer

	nextTrackID int
	trackIDs    map[uint16]int

	initSent bool
}

// New returns a Transmuxer ready to accept TS bytes. No tracks exist until
// the first PMT arrives.
func New(opt Options, log *slog.Logger) *Transmuxer {
	if log == nil {
		log = slog.Default()
	}
	t := &Transmuxer{
		log:        log,
		opt:        opt,
		splitter:   mpegts.NewSplitter(),
		parser:     mpegts.NewParser(log, mpegts.ParserOptions{BroadMode: opt.BroadMode}),
		rollover:   mpegts.NewRollover(),
		captions:   caption.NewExtractor(log),
		audioTrack: make(map[uint16]*media.Track),
		audioSeg:   make(map[uint16]*aac.Segmenter),
		trackIDs:   make(map[uint16]int),
		coalescer:  newCoalescer(opt.Remux),
	}
	return t
}

// Push feeds a chunk of TS bytes through the full pipeline, returning
// every event produced, in order. A panic inside any stage is recovered
// and surfaced as ErrInvariantViolation rather than crashing the caller;
// the instance must be Reset before further use.
func (t *Transmuxer) Push(data []byte) (events []Event, err error) {
	defer t.recoverInvariantViolation(&err)
	return t.push(data)
}

func (t *Transmuxer) push(data []byte) ([]Event, error) {
	var events []Event
	for _, raw := range t.splitter.Push(data) {
		pkt, err := mpegts.ParseHeader(raw)
		if err != nil {
			continue
		}
		for _, pe := range t.parser.Push(pkt) {
			ev, err := t.handleParserEvent(pe)
			if err != nil {
				return events, err
			}
			events = append(events, ev...)
		}
	}
	return events, nil
}

// Flush drains the splitter's residual packet, the parser's per-PID
// accumulators, and every segmenter, in a fixed order (video, then audio
// PIDs ascending), and finally signals EventDone.
func (t *Transmuxer) Flush() (events []Event, err error) {
	defer t.recoverInvariantViolation(&err)
	return t.flush()
}

func (t *Transmuxer) flush() ([]Event, error) {
	var events []Event
	for _, raw := range t.splitter.Flush() {
		pkt, err := mpegts.ParseHeader(raw)
		if err != nil {
			continue
		}
		for _, pe := range t.parser.Push(pkt) {
			ev, err := t.handleParserEvent(pe)
			if err != nil {
				return events, err
			}
			events = append(events, ev...)
		}
	}
	for _, pe := range t.parser.Flush() {
		ev, err := t.handleParserEvent(pe)
		if err != nil {
			return events, err
		}
		events = append(events, ev...)
	}

	if t.videoSeg != nil {
		ev, err := t.flushVideo()
		if err != nil {
			return events, err
		}
		events = append(events, ev...)
	}
	for _, pid := range t.audioPIDs {
		ev, err := t.flushAudio(pid)
		if err != nil {
			return events, err
		}
		events = append(events, ev...)
	}

	events = append(events, Event{Type: EventDone})
	return events, nil
}

// EndTimeline signals EventEndedTimeline without resetting any state, for
// a host that wants to mark a gap without discarding tracks.
func (t *Transmuxer) EndTimeline() []Event {
	return []Event{{Type: EventEndedTimeline}}
}

// Reset returns the façade to its initial state: no program map, no
// tracks, waitForKeyFrame on video, rollover and GOP caches cleared.
func (t *Transmuxer) Reset() []Event {
	t.splitter = mpegts.NewSplitter()
	t.parser = mpegts.NewParser(t.log, mpegts.ParserOptions{BroadMode: t.opt.BroadMode})
	t.rollover = mpegts.NewRollover()
	t.captions.Reset()
	t.programMap = nil
	t.videoPID = nil
	t.videoTrack = nil
	t.videoSeg = nil
	t.audioPIDs = nil
	t.audioTrack = make(map[uint16]*media.Track)
	t.audioSeg = make(map[uint16]*aac.Segmenter)
	t.currentAudioPID = nil
	t.nextTrackID = 0
	t.trackIDs = make(map[uint16]int)
	t.initSent = false
	t.coalescer = newCoalescer(t.opt.Remux)
	return []Event{{Type: EventReset}}
}

// ResetCaptions clears only caption/DTVCC reassembly state.
func (t *Transmuxer) ResetCaptions() {
	t.captions.Reset()
}

// SetBaseMediaDecodeTime rebases every track's timeline: clears
// timeline-start and observed-DTS on every track, signals a
// discontinuity to rollover, flushes the video GOP cache, and resets
// captions.
func (t *Transmuxer) SetBaseMediaDecodeTime(value uint64) {
	if t.videoTrack != nil {
		t.videoTrack.TimelineStartInfo = media.TimelineStartInfo{BaseMediaDecodeTime: value}
		t.videoTrack.ClearObservedDts()
		t.videoSeg.Discontinuity()
		t.rollover.Discontinuity(mpegts.StreamVideo)
	}
	for _, tr := range t.audioTrack {
		tr.TimelineStartInfo = media.TimelineStartInfo{BaseMediaDecodeTime: value}
		tr.ClearObservedDts()
		t.rollover.Discontinuity(mpegts.StreamAudio)
	}
	t.rollover.Discontinuity(mpegts.StreamTimedMetadata)
	t.captions.Reset()
}

// SetAudioAppendStart configures the silence-prefix gap-fill reference
// point on every currently-known audio track.
func (t *Transmuxer) SetAudioAppendStart(ts uint64) {
	for _, pid := range t.audioPIDs {
		t.audioSeg[pid].SetAudioAppendStart(ts)
	}
}

// SetRemux switches the Coalescer's barrier policy.
func (t *Transmuxer) SetRemux(remux bool) {
	t.opt.Remux = remux
	t.coalescer.remux = remux
}

// AlignGopsWith configures the VideoSegmenter's alignment list.
func (t *Transmuxer) AlignGopsWith(ptsList []uint64, atEnd bool) {
	if t.videoSeg != nil {
		t.videoSeg.SetAlignment(ptsList, atEnd)
	}
}

// SetAudioTrackFromPid records pid as the Transmuxer's currentAudioPID; a
// no-op if pid isn't registered. The Coalescer does not read it: every
// registered audio PID is still segmented and emitted.
func (t *Transmuxer) SetAudioTrackFromPid(pid uint16) {
	if _, ok := t.audioTrack[pid]; ok {
		t.currentAudioPID = &pid
	}
}

func (t *Transmuxer) handleParserEvent(pe mpegts.ParserEvent) ([]Event, error) {
	switch {
	case pe.Metadata != nil:
		return t.onMetadata(pe.Metadata.Map), nil
	case pe.PES != nil:
		return t.onPES(pe.PES)
	case pe.SCTE35 != nil:
		ev, err := scte35.Decode(pe.SCTE35.PID, pe.SCTE35.Data)
		if err != nil {
			t.log.Debug("transmux: discarding malformed SCTE-35 section", "pid", pe.SCTE35.PID, "error", err)
			return nil, nil
		}
		return []Event{{Type: EventSCTE35, SCTE35: &ev}}, nil
	}
	return nil, nil
}

// onMetadata wires segmenters for newly-registered tracks on a PMT swap
// and builds the `trackinfo` event. A PMT change after tracks already
// exist is treated as a no-op beyond updating trackinfo; reconciling an
// in-flight track's identity belongs to an explicit Reset.
func (t *Transmuxer) onMetadata(pm *mpegts.ProgramMap) []Event {
	t.programMap = pm

	if pm.Video != nil && t.videoPID == nil {
		pid := *pm.Video
		t.videoPID = &pid
		t.videoTrack = &media.Track{Type: media.TrackVideo, PID: pid, Timescale: media.VideoClockRate}
		t.nextTrackID++
		t.trackIDs[pid] = t.nextTrackID
		t.videoSeg = video.NewSegmenter(t.videoTrack, t.trackIDs[pid], t.log)
		t.videoSeg.SetKeepOriginalTimestamps(t.opt.KeepOriginalTimestamps)
		t.coalescer.addTrack(pid)
	}

	pids := make([]uint16, 0, len(pm.Audio))
	for pid := range pm.Audio {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	for _, pid := range pids {
		if _, ok := t.audioTrack[pid]; ok {
			continue
		}
		tr := &media.Track{Type: media.TrackAudio, PID: pid, Language: pm.Audio[pid]}
		t.audioTrack[pid] = tr
		t.nextTrackID++
		t.trackIDs[pid] = t.nextTrackID
		seg := aac.NewSegmenter(tr, t.trackIDs[pid], t.log)
		seg.SetKeepOriginalTimestamps(t.opt.KeepOriginalTimestamps)
		t.audioSeg[pid] = seg
		t.audioPIDs = append(t.audioPIDs, pid)
		t.coalescer.addTrack(pid)
		if t.currentAudioPID == nil {
			p := pid
			t.currentAudioPID = &p
		}
	}
	sort.Slice(t.audioPIDs, func(i, j int) bool { return t.audioPIDs[i] < t.audioPIDs[j] })

	return []Event{{Type: EventTrackInfo, TrackInfo: t.buildTrackInfo(pm)}}
}

func (t *Transmuxer) buildTrackInfo(pm *mpegts.ProgramMap) *TrackInfo {
	info := &TrackInfo{}
	if pm.Video != nil && t.videoTrack != nil {
		info.Video = &VideoTrackInfo{PID: *pm.Video, Codec: t.videoTrack.Codec}
	}
	pids := make([]uint16, 0, len(pm.Audio))
	for pid := range pm.Audio {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	for _, pid := range pids {
		var langs []string
		if lang := pm.Audio[pid]; lang != "" {
			langs = []string{lang}
		}
		codec := "mp4a.40.2"
		if tr, ok := t.audioTrack[pid]; ok && tr.Codec != "" {
			codec = tr.Codec
		}
		info.Audio = append(info.Audio, AudioTrackInfo{PID: pid, Codec: codec, Languages: langs})
	}
	for pid, pd := range pm.PrivateData {
		info.Subtitles = append(info.Subtitles, SubtitleTrackInfo{PID: pid, Kind: pd.SubtitleKind, Language: pd.Language})
	}
	sort.Slice(info.Subtitles, func(i, j int) bool { return info.Subtitles[i].PID < info.Subtitles[j].PID })
	return info
}

// recoverInvariantViolation converts a panic anywhere in the stage chain
// into ErrInvariantViolation, logging the original panic value at Error
// before doing so.
func (t *Transmuxer) recoverInvariantViolation(err *error) {
	if r := recover(); r != nil {
		t.log.Error("transmux: recovered panic, instance needs Reset", "panic", r)
		*err = fmt.Errorf("%w: %v", ErrInvariantViolation, r)
	}
}

func (t *Transmuxer) onPES(pes *mpegts.PesPacket) ([]Event, error) {
	if t.programMap == nil {
		return nil, nil
	}
	switch t.programMap.RoleOf(pes.PID) {
	case mpegts.RoleVideo:
		return t.onVideoPES(pes)
	case mpegts.RoleAudio:
		return t.onAudioPES(pes)
	case mpegts.RoleTimedMetadata:
		return t.onMetadataPES(pes)
	}
	return nil, nil
}

func (t *Transmuxer) onVideoPES(pes *mpegts.PesPacket) ([]Event, error) {
	if t.videoSeg == nil {
		return nil, nil
	}
	pts, dts := resolveTimestamps(pes)
	extPTS := t.rollover.Extend(mpegts.StreamVideo, pts)
	extDTS := t.rollover.Extend(mpegts.StreamVideo, dts)

	nalus, err := video.ParseAnnexB(pes.Data, extPTS, extDTS)
	if err != nil {
		t.log.Debug("transmux: discarding malformed video access unit", "pid", pes.PID, "error", err)
		return nil, nil
	}
	for _, n := range nalus {
		switch n.Type {
		case video.NALTypeSPS:
			if err := video.DecodeSPS(t.videoTrack, n.Data); err != nil {
				t.log.Debug("transmux: discarding malformed SPS", "error", err)
			}
		case video.NALTypeSEI:
			for _, cue := range t.captions.ExtractSEI(n.Data, n.PTS) {
				cue.PID = pes.PID
				t.coalescer.bufferCaption(cue)
			}
		}
		t.videoSeg.PushNAL(n)
	}
	return nil, nil
}

func (t *Transmuxer) onAudioPES(pes *mpegts.PesPacket) ([]Event, error) {
	seg := t.audioSeg[pes.PID]
	if seg == nil {
		return nil, nil
	}
	pts, dts := resolveTimestamps(pes)
	extPTS := t.rollover.Extend(mpegts.StreamAudio, pts)
	extDTS := t.rollover.Extend(mpegts.StreamAudio, dts)

	frames, err := aac.ParsePayload(pes.PID, pes.Data, extPTS, extDTS)
	if err != nil {
		t.log.Debug("transmux: discarding malformed ADTS payload", "pid", pes.PID, "error", err)
		return nil, nil
	}
	for _, f := range frames {
		tr := t.audioTrack[pes.PID]
		if tr.SampleRate == 0 {
			tr.SampleRate = f.SampleRate
			tr.ChannelCount = f.ChannelCount
			tr.Timescale = uint32(f.SampleRate)
			tr.Codec = "mp4a.40.2"
		}
		seg.PushFrame(f)
	}
	return nil, nil
}

func (t *Transmuxer) onMetadataPES(pes *mpegts.PesPacket) ([]Event, error) {
	pts, _ := resolveTimestamps(pes)
	extPTS := t.rollover.Extend(mpegts.StreamTimedMetadata, pts)
	if frame, ok := id3.Extract(pes.PID, pes.Data, extPTS); ok {
		t.coalescer.bufferID3(frame)
	}
	return nil, nil
}

func resolveTimestamps(pes *mpegts.PesPacket) (pts, dts uint64) {
	if pes.PTS != nil {
		pts = *pes.PTS
	}
	if pes.DTS != nil {
		dts = *pes.DTS
	} else {
		dts = pts
	}
	return pts, dts
}

func (t *Transmuxer) flushVideo() ([]Event, error) {
	res := t.videoSeg.Flush()
	if !res.Emitted {
		return nil, nil
	}
	events, _, err := t.coalescer.submit(trackResult{
		pid:     *t.videoPID,
		trackID: t.trackIDs[*t.videoPID],
		track:   t.videoTrack,
		result:  &res.Part,
		timing:  res.TimingInfo,
		gop:     &res.GopInfo,
	}, t.timelineStartPTS(), t.timelineStartSet(), t.opt.KeepOriginalTimestamps, t.initTracks(), t.initSent)
	if err != nil {
		return nil, fmt.Errorf("transmux: flush video: %w", err)
	}
	if len(events) > 0 {
		t.initSent = true
		events = append(events, Event{Type: EventGopInfo, GopInfo: &res.GopInfo})
	}
	return events, nil
}

func (t *Transmuxer) flushAudio(pid uint16) ([]Event, error) {
	seg := t.audioSeg[pid]
	res := seg.Flush()
	if !res.Emitted {
		return nil, nil
	}
	events, _, err := t.coalescer.submit(trackResult{
		pid:     pid,
		trackID: t.trackIDs[pid],
		track:   t.audioTrack[pid],
		result:  &res.Part,
		timing:  res.TimingInfo,
	}, t.timelineStartPTS(), t.timelineStartSet(), t.opt.KeepOriginalTimestamps, t.initTracks(), t.initSent)
	if err != nil {
		return nil, fmt.Errorf("transmux: flush audio pid %d: %w", pid, err)
	}
	if len(events) > 0 {
		t.initSent = true
	}
	return events, nil
}

// timelineStartPTS returns the video track's timelineStartInfo.pts if
// present, else the first audio track's.
func (t *Transmuxer) timelineStartPTS() uint64 {
	if t.videoTrack != nil && t.videoTrack.TimelineStartInfo.Set {
		return t.videoTrack.TimelineStartInfo.Pts
	}
	for _, pid := range t.audioPIDs {
		if tr := t.audioTrack[pid]; tr.TimelineStartInfo.Set {
			return tr.TimelineStartInfo.Pts
		}
	}
	return 0
}

func (t *Transmuxer) timelineStartSet() bool {
	if t.videoTrack != nil && t.videoTrack.TimelineStartInfo.Set {
		return true
	}
	for _, pid := range t.audioPIDs {
		if t.audioTrack[pid].TimelineStartInfo.Set {
			return true
		}
	}
	return false
}

func (t *Transmuxer) initTracks() []*media.Track {
	var tracks []*media.Track
	if t.videoTrack != nil {
		tracks = append(tracks, t.videoTrack)
	}
	for _, pid := range t.audioPIDs {
		tracks = append(tracks, t.audioTrack[pid])
	}
	return tracks
}
