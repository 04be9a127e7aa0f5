// Package box is the ISO BMFF box writer: it exposes initSegment(tracks)
// and moof+mdat (media segment) construction, backed by the real fmp4/mp4
// box marshaler rather than hand-built box bytes.
package box

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/vectrastream/transmux/internal/media"
)

// Sample is one track sample destined for a trun entry: size is implicit
// in len(Payload); Duration and PTSOffset are in the track's own
// timescale.
type Sample struct {
	Duration        uint32
	PTSOffset       int32
	IsNonSyncSample bool
	Payload         []byte
}

// TrackPart is one track's contribution to a media segment.
type TrackPart struct {
	TrackID  int
	BaseTime uint64 // tfdt base_media_decode_time, in the track's timescale
	Samples  []Sample
}

func mp4Codec(t *media.Track) (mp4.Codec, error) {
	switch t.Type {
	case media.TrackVideo:
		return &mp4.CodecH264{SPS: t.SPS, PPS: t.PPS}, nil
	case media.TrackAudio:
		return &mp4.CodecMPEG4Audio{
			Config: mpeg4audio.AudioSpecificConfig{
				Type:         mpeg4audio.ObjectTypeAACLC,
				SampleRate:   t.SampleRate,
				ChannelCount: t.ChannelCount,
			},
		}, nil
	default:
		return nil, fmt.Errorf("box: unknown track type %v", t.Type)
	}
}

// InitSegment builds the ftyp+moov init segment for the given tracks, in
// the order supplied (the coalescer supplies video first, then audio).
func InitSegment(tracks []*media.Track) ([]byte, error) {
	init := &fmp4.Init{}
	for i, t := range tracks {
		codec, err := mp4Codec(t)
		if err != nil {
			return nil, err
		}
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        i + 1,
			TimeScale: t.Timescale,
			Codec:     codec,
		})
	}

	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return nil, fmt.Errorf("box: marshal init segment: %w", err)
	}
	return buf.Bytes(), nil
}

// MediaSegment builds one moof+mdat pair covering all supplied track
// parts, with the given barrier sequence number.
func MediaSegment(sequenceNumber uint32, parts []TrackPart) ([]byte, error) {
	part := &fmp4.Part{SequenceNumber: sequenceNumber}
	for _, tp := range parts {
		pt := &fmp4.PartTrack{ID: tp.TrackID, BaseTime: tp.BaseTime}
		for _, s := range tp.Samples {
			pt.Samples = append(pt.Samples, &fmp4.Sample{
				Duration:        s.Duration,
				PTSOffset:       s.PTSOffset,
				IsNonSyncSample: s.IsNonSyncSample,
				Payload:         s.Payload,
			})
		}
		part.Tracks = append(part.Tracks, pt)
	}

	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return nil, fmt.Errorf("box: marshal media segment: %w", err)
	}
	return buf.Bytes(), nil
}
