// Package aac implements ADTS parsing and per-PID audio segmentation: ADTS
// framing is delegated to mediacommon's mpeg4audio decoder, this package
// owns access-unit timestamp assignment, silence padding, and
// sample-table (box.TrackPart) construction for each audio PID.
package aac

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"

	"github.com/vectrastream/transmux/internal/media"
)

const samplesPerAccessUnit = mpeg4audio.SamplesPerAccessUnit

// ParsePayload decodes one PES payload's worth of back-to-back ADTS
// frames into access units, assigning each its own PTS/DTS by advancing
// the PES's own timestamp (already in the 90 kHz clock) by the access
// unit duration at that frame's sample rate.
func ParsePayload(pid uint16, payload []byte, pts, dts uint64) ([]media.AdtsFrame, error) {
	var pkts mpeg4audio.ADTSPackets
	if err := pkts.Unmarshal(payload); err != nil {
		return nil, fmt.Errorf("aac: decode ADTS on pid %d: %w", pid, err)
	}

	out := make([]media.AdtsFrame, 0, len(pkts))
	for i, pkt := range pkts {
		step := media.AudioTsToVideoTs(uint64(i*samplesPerAccessUnit), pkt.SampleRate)
		out = append(out, media.AdtsFrame{
			PID:          pid,
			PTS:          pts + step,
			DTS:          dts + step,
			Data:         pkt.AU,
			SampleRate:   pkt.SampleRate,
			ChannelCount: pkt.ChannelCount,
			SampleSize:   16,
		})
	}
	return out, nil
}

// FrameDuration90k computes a frame's duration in the 90 kHz clock,
// rounded up: 1024 * 90000 / samplerate.
func FrameDuration90k(sampleRate int) uint64 {
	num := uint64(samplesPerAccessUnit) * media.VideoClockRate
	return (num + uint64(sampleRate) - 1) / uint64(sampleRate)
}
