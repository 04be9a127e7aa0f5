package mpegts

import (
	"log/slog"
	"sort"
)

// ParserOptions configures role-assignment behavior. BroadMode is
// accepted, but it assigns no role to any additional stream_type: a
// video/audio-family PID other than 0x1B/0x0F stays out of the program
// map, so it is not advertised in trackinfo, not routed and not segmented,
// and no error is raised for it.
type ParserOptions struct {
	BroadMode bool
}

// ParserEvent is the tagged-union output of the PacketParser + PES
// Reassembler stages. Exactly one field is non-nil per event.
type ParserEvent struct {
	Metadata *MetadataEvent
	PES      *PesPacket
	SCTE35   *SCTE35Section
}

// Parser handles PAT/PMT discovery and atomic program-map replacement,
// per-PID PES reassembly, and a PSI tap for SCTE-35 sections. It holds no
// goroutines and no channels; Push is a direct, synchronous call.
type Parser struct {
	log *slog.Logger
	opt ParserOptions

	pmtPID     *uint16
	programMap *ProgramMap

	patAcc psiAccumulator
	psiAcc map[uint16]*psiAccumulator
	pesAcc map[uint16]*pesAccumulator

	waiting []TsPacket
}

// NewParser returns a Parser with no program map yet; packets for
// not-yet-classified PIDs are buffered until the first PMT.
func NewParser(log *slog.Logger, opt ParserOptions) *Parser {
	if log == nil {
		log = slog.Default()
	}
	return &Parser{
		log:    log,
		opt:    opt,
		psiAcc: make(map[uint16]*psiAccumulator),
		pesAcc: make(map[uint16]*pesAccumulator),
	}
}

// ProgramMap returns the most recently swapped-in program map, or nil.
func (p *Parser) ProgramMap() *ProgramMap { return p.programMap }

// Push feeds one TS packet through PAT/PMT/PES routing and returns zero or
// more events, in emission order.
func (p *Parser) Push(pkt TsPacket) []ParserEvent {
	if pkt.TransportErrorIndicator {
		return nil
	}

	switch {
	case pkt.PID == 0x00:
		return p.pushPAT(pkt)
	case p.pmtPID != nil && pkt.PID == *p.pmtPID:
		return p.pushPMT(pkt)
	}

	if p.programMap == nil {
		p.waiting = append(p.waiting, pkt)
		return nil
	}

	return p.route(pkt)
}

// Flush drains any open accumulators; called once at end of input.
func (p *Parser) Flush() []ParserEvent {
	var events []ParserEvent
	if p.programMap == nil {
		return events
	}
	// Flush in a fixed, coalescer-observable order: video first, then
	// audio PIDs in ascending order, then timed metadata. Private-data
	// PIDs are never accumulated, so there is nothing of theirs to flush.
	if p.programMap.Video != nil {
		events = append(events, p.flushPID(*p.programMap.Video, RoleVideo)...)
	}
	audioPIDs := make([]uint16, 0, len(p.programMap.Audio))
	for pid := range p.programMap.Audio {
		audioPIDs = append(audioPIDs, pid)
	}
	sort.Slice(audioPIDs, func(i, j int) bool { return audioPIDs[i] < audioPIDs[j] })
	for _, pid := range audioPIDs {
		events = append(events, p.flushPID(pid, RoleAudio)...)
	}
	for pid := range p.programMap.TimedMetadata {
		events = append(events, p.flushPID(pid, RoleTimedMetadata)...)
	}
	return events
}

func (p *Parser) pushPAT(pkt TsPacket) []ParserEvent {
	p.patAcc.feed(pkt.Payload, pkt.PayloadUnitStartIndicator)
	for {
		section, ok := p.patAcc.completeSection()
		if !ok {
			return nil
		}
		if section[0] != tableIDPAT {
			continue
		}
		currentNext := section[5]&0x01 != 0
		if !currentNext {
			continue
		}
		pmtPID, found, err := parsePATSection(section)
		if err != nil {
			p.log.Debug("mpegts: discarding malformed PAT", "err", err)
			continue
		}
		if found {
			pid := pmtPID
			p.pmtPID = &pid
		}
	}
}

func (p *Parser) pushPMT(pkt TsPacket) []ParserEvent {
	acc := p.psiAcc[pkt.PID]
	if acc == nil {
		acc = &psiAccumulator{}
		p.psiAcc[pkt.PID] = acc
	}
	acc.feed(pkt.Payload, pkt.PayloadUnitStartIndicator)

	var events []ParserEvent
	for {
		section, ok := acc.completeSection()
		if !ok {
			return events
		}
		if section[0] != tableIDPMT {
			continue
		}
		currentNext := section[5]&0x01 != 0
		if !currentNext {
			continue // PMT with current_next_indicator = 0 is ignored
		}
		entries, err := parsePMTSection(section)
		if err != nil {
			p.log.Debug("mpegts: discarding malformed PMT", "err", err)
			continue
		}
		p.programMap = p.buildProgramMap(entries)
		events = append(events, ParserEvent{Metadata: &MetadataEvent{Map: p.programMap}})

		waiting := p.waiting
		p.waiting = nil
		for _, wp := range waiting {
			events = append(events, p.route(wp)...)
		}
	}
}

// buildProgramMap assigns roles to PIDs: the first video PID encountered
// wins, ties broken by descriptor order; audio/timed-metadata/
// private-data/SCTE-35 PIDs are all tracked.
func (p *Parser) buildProgramMap(entries []pmtEntry) *ProgramMap {
	pm := NewProgramMap()
	for _, e := range entries {
		switch {
		case e.streamType == StreamTypeH264 && pm.Video == nil:
			pid := e.pid
			pm.Video = &pid
			pm.VideoStreamType = e.streamType
		case e.streamType == StreamTypeAAC:
			pm.Audio[e.pid] = e.language
		case e.streamType == StreamTypeID3:
			pm.TimedMetadata[e.pid] = e.streamType
		case e.streamType == StreamTypeSCTE35:
			pm.SCTE35[e.pid] = true
		case e.streamType == 0x06 && e.subtitle != "":
			pm.PrivateData[e.pid] = PrivateDataInfo{SubtitleKind: e.subtitle, Language: e.language}
		case p.opt.BroadMode && (isVideoFamily(e.streamType) || isAudioFamily(e.streamType)):
			// No role is assigned: the PID is left out of the program map
			// and its packets are dropped by route as unclassified.
		}
	}
	return pm
}

func (p *Parser) route(pkt TsPacket) []ParserEvent {
	role := p.programMap.RoleOf(pkt.PID)
	switch role {
	case RoleVideo, RoleAudio, RoleTimedMetadata:
		return p.routePES(pkt, role)
	case RoleSCTE35:
		return p.routeSCTE35(pkt)
	default:
		return nil // private data (advertised-only) and unclassified PIDs
	}
}

func (p *Parser) routePES(pkt TsPacket, role StreamRole) []ParserEvent {
	acc := p.pesAcc[pkt.PID]
	if acc == nil {
		acc = &pesAccumulator{}
		p.pesAcc[pkt.PID] = acc
	}

	var events []ParserEvent
	if pkt.PayloadUnitStartIndicator {
		events = append(events, p.flushAccumulator(pkt.PID, acc, role)...)
		acc.reset()
	}
	acc.append(pkt.Payload)
	return events
}

func (p *Parser) flushPID(pid uint16, role StreamRole) []ParserEvent {
	acc := p.pesAcc[pid]
	if acc == nil || acc.size == 0 {
		return nil
	}
	events := p.flushAccumulator(pid, acc, role)
	acc.reset()
	return events
}

// flushAccumulator applies the completeness rule: video emits on every
// PUSI (packet_length is typically 0, meaning "until next start");
// audio/metadata only emit once the declared packet_length is fully
// buffered.
func (p *Parser) flushAccumulator(pid uint16, acc *pesAccumulator, role StreamRole) []ParserEvent {
	if acc.size < 9 {
		return nil
	}
	data := acc.concat()
	if !isPESPayload(data) {
		return nil
	}
	pes, err := parsePES(data)
	if err != nil {
		p.log.Debug("mpegts: discarding malformed PES", "pid", pid, "err", err)
		return nil
	}
	pes.PID = pid

	if role == RoleVideo {
		pes.StreamType = p.programMap.VideoStreamType
	} else if role == RoleAudio {
		pes.StreamType = StreamTypeAAC
	} else {
		pes.StreamType = StreamTypeID3
	}

	if role != RoleVideo && pes.PacketLength != 0 && int(pes.PacketLength)+6 > acc.size {
		return nil // incomplete; wait for the declared packet_length
	}

	pes.PayloadUnitStart = true
	return []ParserEvent{{PES: pes}}
}

func (p *Parser) routeSCTE35(pkt TsPacket) []ParserEvent {
	acc := p.psiAcc[pkt.PID]
	if acc == nil {
		acc = &psiAccumulator{}
		p.psiAcc[pkt.PID] = acc
	}
	acc.feed(pkt.Payload, pkt.PayloadUnitStartIndicator)

	var events []ParserEvent
	for {
		section, ok := acc.completeSection()
		if !ok {
			return events
		}
		events = append(events, ParserEvent{SCTE35: &SCTE35Section{PID: pkt.PID, Data: section}})
	}
}
