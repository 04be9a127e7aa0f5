// Package id3 extracts ID3v2 timed-metadata tags carried in private PES
// payloads, stamping each with the access unit's presentation time. Tag
// bodies are passed through uninterpreted; no third-party ID3 decoder
// appears anywhere in the available stack, so header parsing is done by
// hand against the ID3v2.3/v2.4 synchsafe-size layout.
package id3

import (
	"github.com/vectrastream/transmux/internal/media"
)

// Extract decodes the ID3v2 header at the start of payload, if present,
// and returns the complete tag (header plus body) as one metadata frame
// timed at pts. It returns ok=false when payload does not begin with an
// "ID3" tag, or when the declared tag size runs past the payload.
func Extract(pid uint16, payload []byte, pts uint64) (media.ID3Frame, bool) {
	if len(payload) < 10 || payload[0] != 'I' || payload[1] != 'D' || payload[2] != '3' {
		return media.ID3Frame{}, false
	}
	ver := payload[3]
	if ver != 3 && ver != 4 {
		return media.ID3Frame{}, false
	}
	bodySize := synchsafe32(payload[6:10])
	total := 10 + int(bodySize)
	if total > len(payload) {
		return media.ID3Frame{}, false
	}
	return media.ID3Frame{
		PID:    pid,
		RawPTS: pts,
		Data:   append([]byte(nil), payload[:total]...),
	}, true
}

func synchsafe32(b []byte) uint32 {
	return (uint32(b[0]&0x7F) << 21) | (uint32(b[1]&0x7F) << 14) | (uint32(b[2]&0x7F) << 7) | uint32(b[3]&0x7F)
}
