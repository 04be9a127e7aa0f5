package aac

// silentFrames holds one pre-encoded AAC-LC raw_data_block (no ADTS
// header) per (sample rate, channel count) that decodes to digital
// silence, the same fixed-table approach segment-padding muxers commonly
// use instead of invoking a real encoder for a handful of zero samples.
// Only the sample rates this project has been asked to support in
// practice are listed; unlisted rates degrade to skipping the padding
// (see Segmenter.buildSilenceFiller).
var silentFrames = map[int]map[int][]byte{
	48000: {
		1: {0x01, 0x40, 0x22, 0x80, 0xa3, 0xfe, 0xfe, 0x00, 0x00, 0x00},
		2: {0x21, 0x00, 0x49, 0x90, 0x02, 0x19, 0x00, 0x23, 0x80},
	},
	44100: {
		1: {0x01, 0x40, 0x22, 0x80, 0xa3, 0xfe, 0xfe, 0x00, 0x00, 0x00},
		2: {0x21, 0x00, 0x49, 0x90, 0x02, 0x19, 0x00, 0x23, 0x80},
	},
}

// SilenceFrame returns a raw AAC-LC silent access unit for sampleRate and
// channelCount, or ok=false if no such frame is tabulated.
func SilenceFrame(sampleRate, channelCount int) (data []byte, ok bool) {
	byRate, found := silentFrames[sampleRate]
	if !found {
		return nil, false
	}
	data, found = byRate[channelCount]
	return data, found
}
