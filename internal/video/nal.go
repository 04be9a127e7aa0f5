package video

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/vectrastream/transmux/internal/media"
)

// NAL unit type constants re-exported for readability at call sites; the
// external H.264 parser (mediacommon/v2/pkg/codecs/h264) is the authority
// on their numeric values.
const (
	NALTypeAUD = byte(h264.NALUTypeAccessUnitDelimiter)
	NALTypeSPS = byte(h264.NALUTypeSPS)
	NALTypePPS = byte(h264.NALUTypePPS)
	NALTypeIDR = byte(h264.NALUTypeIDR)
	NALTypeSEI = byte(h264.NALUTypeSEI)
)

// ParseAnnexB splits one Annex-B payload (one PES's worth of video data)
// into typed NAL units, all attributed with the access unit's PTS/DTS.
func ParseAnnexB(payload []byte, pts, dts uint64) ([]media.NalUnit, error) {
	raw, err := h264.AnnexBUnmarshal(payload)
	if err != nil {
		return nil, err
	}
	out := make([]media.NalUnit, 0, len(raw))
	for _, data := range raw {
		if len(data) == 0 {
			continue
		}
		out = append(out, media.NalUnit{
			Type: data[0] & 0x1F,
			Data: data,
			PTS:  pts,
			DTS:  dts,
		})
	}
	return out, nil
}

// AVCCMarshal packs NAL payloads into the length-prefixed AVCC form an
// fmp4 sample's payload must be in.
func AVCCMarshal(nalus [][]byte) ([]byte, error) {
	return h264.AVCCMarshal(nalus)
}

// IsKeyframe reports whether any NAL in the access unit is an IDR slice.
func IsKeyframe(nalus []media.NalUnit) bool {
	for _, n := range nalus {
		if n.Type == NALTypeIDR {
			return true
		}
	}
	return false
}
