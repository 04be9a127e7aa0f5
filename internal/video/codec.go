package video

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/vectrastream/transmux/internal/media"
)

// DecodeSPS parses an SPS NAL payload (the external H.264 parser's job)
// and fills in the track fields the rest of the pipeline and the codec
// string derivation need: width, height, profile, level.
func DecodeSPS(track *media.Track, sps []byte) error {
	var parsed h264.SPS
	if err := parsed.Unmarshal(sps); err != nil {
		return fmt.Errorf("video: decode SPS: %w", err)
	}

	track.Width = parsed.Width()
	track.Height = parsed.Height()
	track.ProfileIDC = parsed.ProfileIdc
	track.LevelIDC = parsed.LevelIdc
	track.ProfileCompat = constraintFlagsByte(parsed)
	track.Codec = CodecString(track.ProfileIDC, track.ProfileCompat, track.LevelIDC)
	return nil
}

// constraintFlagsByte packs the six constraint_set_flag bits (plus two
// reserved zero bits) into the profile_compatibility byte used by the
// avc1.PPCCLL codec string, per ISO14496-15 §5.3.
func constraintFlagsByte(sps h264.SPS) uint8 {
	var b uint8
	flags := [6]bool{
		sps.ConstraintSetFlags[0],
		sps.ConstraintSetFlags[1],
		sps.ConstraintSetFlags[2],
		sps.ConstraintSetFlags[3],
		sps.ConstraintSetFlags[4],
		sps.ConstraintSetFlags[5],
	}
	for i, set := range flags {
		if set {
			b |= 1 << (7 - i)
		}
	}
	return b
}

// CodecString derives `avc1.PPCCLL` deterministically from SPS fields, so
// the same SPS always yields the same codec string across a track's life.
func CodecString(profileIDC, profileCompat, levelIDC uint8) string {
	return fmt.Sprintf("avc1.%02X%02X%02X", profileIDC, profileCompat, levelIDC)
}
