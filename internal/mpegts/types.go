// Package mpegts implements the core of the transmuxer: MPEG-2 Transport
// Stream packet resynchronization, PAT/PMT parsing, PES reassembly, and
// 33-bit PTS/DTS rollover correction. Every stage is push/flush shaped: it
// accepts records on Push, buffers internal state, and emits records
// synchronously; nothing here blocks or schedules work of its own.
package mpegts

const (
	PacketSize = 188
	syncByte   = 0x47
)

// Elementary stream types this transmuxer understands directly. Apart from
// subtitle private data (stream_type 0x06 with a subtitle descriptor),
// anything else gets no role: it is neither advertised in trackinfo nor
// segmented, with or without BroadMode.
const (
	StreamTypeH264   uint8 = 0x1B
	StreamTypeAAC    uint8 = 0x0F
	StreamTypeSCTE35 uint8 = 0x86
	StreamTypeID3    uint8 = 0x15 // ISO/IEC 13818-1 "metadata in PES" stream type
)

// TsPacket is a parsed 188-byte transport stream packet: header fields
// plus the payload remaining after the adaptation field, if any.
type TsPacket struct {
	PID                       uint16
	AdaptationFieldControl    uint8
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	DiscontinuityIndicator    bool
	ContinuityCounter         uint8
	Payload                   []byte
}

// StreamRole classifies a PID as assigned by the most recent PMT.
type StreamRole int

const (
	RoleNone StreamRole = iota
	RoleVideo
	RoleAudio
	RoleTimedMetadata
	RolePrivateData
	RoleSCTE35
	RoleUnsupported
)

// PrivateDataInfo describes a DVB subtitle/teletext private-data PID.
// Subtitle tracks are advertised-only: they surface in trackinfo so a host
// knows they exist, but no segmenter consumes PrivateData PIDs.
type PrivateDataInfo struct {
	SubtitleKind string
	Language     string
}

// ProgramMap is the atomic result of parsing one PMT. A PID has at most
// one role; the video PID (if any) is unique; replacing the map is always
// a full swap, never a partial merge.
type ProgramMap struct {
	Video           *uint16
	VideoStreamType uint8
	Audio           map[uint16]string // PID -> ISO-639 language code (may be "")
	TimedMetadata   map[uint16]uint8  // PID -> stream_type
	PrivateData     map[uint16]PrivateDataInfo
	SCTE35          map[uint16]bool
}

// NewProgramMap returns an empty, fully-initialized ProgramMap.
func NewProgramMap() *ProgramMap {
	return &ProgramMap{
		Audio:         make(map[uint16]string),
		TimedMetadata: make(map[uint16]uint8),
		PrivateData:   make(map[uint16]PrivateDataInfo),
		SCTE35:        make(map[uint16]bool),
	}
}

// RoleOf reports the role assigned to pid by this program map.
func (pm *ProgramMap) RoleOf(pid uint16) StreamRole {
	if pm.Video != nil && *pm.Video == pid {
		return RoleVideo
	}
	if _, ok := pm.Audio[pid]; ok {
		return RoleAudio
	}
	if _, ok := pm.TimedMetadata[pid]; ok {
		return RoleTimedMetadata
	}
	if _, ok := pm.PrivateData[pid]; ok {
		return RolePrivateData
	}
	if pm.SCTE35[pid] {
		return RoleSCTE35
	}
	return RoleNone
}

// PesPacket is a fully reassembled PES packet with decoded timestamps.
// PTS/DTS here are the raw 33-bit values as read off the wire; Rollover
// extends them to monotonic 64-bit values further down the pipeline.
type PesPacket struct {
	PID              uint16
	StreamType       uint8
	PayloadUnitStart bool
	PTS              *uint64
	DTS              *uint64
	DataAlignment    bool
	PacketLength     uint16
	Data             []byte
}

// Clone returns a deep copy safe to retain past the emitting call: a
// PesPacket handed to a caller transfers ownership of its buffers, which
// must not be mutated after emission.
func (p *PesPacket) Clone() *PesPacket {
	c := *p
	c.Data = append([]byte(nil), p.Data...)
	if p.PTS != nil {
		pts := *p.PTS
		c.PTS = &pts
	}
	if p.DTS != nil {
		dts := *p.DTS
		c.DTS = &dts
	}
	return &c
}

// MetadataEvent is emitted for every PMT section accepted (current_next
// set, well formed), each one an atomic swap of the program map, whether
// or not its contents differ from the previous map.
type MetadataEvent struct {
	Map *ProgramMap
}

// SCTE35Section is a pointer-stripped PSI section carrying an SCTE-35
// splice_info_section, handed to internal/scte35 for decoding. Its CRC32
// is not checked here; scte35.Decode verifies it.
type SCTE35Section struct {
	PID  uint16
	Data []byte
}
