// Package caption extracts CEA-608/708 closed captions from H.264 SEI
// NAL units, delegating the bitstream decode to zsiec/ccx and owning
// only the duplicate-control-pair suppression and DTVCC reassembly state
// that sits above it.
package caption

import (
	"log/slog"

	"github.com/zsiec/ccx"

	"github.com/vectrastream/transmux/internal/media"
)

// Extractor holds the per-field and per-service decoder state for one
// video track's caption stream.
type Extractor struct {
	log *slog.Logger

	cea608Decs map[int]*ccx.CEA608Decoder
	cea708Svcs map[int]*ccx.CEA708Service

	videoCount      int64
	lastCCCtrl      [2][2]byte
	lastCCWasCtrl   [2]bool
	lastCCCtrlFrame [2]int64

	dtvccBuf []byte
}

// NewExtractor returns an Extractor ready to process SEI payloads, with
// CEA-608 channels 1-4 and CEA-708 services 1-6 pre-allocated (service N
// surfaces as caption channel N+6, matching CTA-708's channel numbering
// convention for non-primary services).
func NewExtractor(log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	e := &Extractor{
		log:        log,
		cea608Decs: make(map[int]*ccx.CEA608Decoder, 4),
		cea708Svcs: make(map[int]*ccx.CEA708Service, 6),
	}
	for ch := 1; ch <= 4; ch++ {
		e.cea608Decs[ch] = ccx.NewCEA608Decoder()
	}
	for svc := 1; svc <= 6; svc++ {
		e.cea708Svcs[svc] = ccx.NewCEA708Service()
	}
	return e
}

// Reset clears DTVCC reassembly and control-pair dedup state, used by
// resetCaptions on the façade.
func (e *Extractor) Reset() {
	e.videoCount = 0
	e.lastCCCtrl = [2][2]byte{}
	e.lastCCWasCtrl = [2]bool{}
	e.lastCCCtrlFrame = [2]int64{}
	e.dtvccBuf = e.dtvccBuf[:0]
	for ch := range e.cea608Decs {
		e.cea608Decs[ch] = ccx.NewCEA608Decoder()
	}
	for svc := range e.cea708Svcs {
		e.cea708Svcs[svc] = ccx.NewCEA708Service()
	}
}

// ExtractSEI decodes one access unit's worth of SEI payload, advancing
// the frame counter used for control-pair dedup, and returns any
// completed caption cues, timed at the access unit's PTS (90 kHz).
func (e *Extractor) ExtractSEI(seiData []byte, pts uint64) []media.CaptionCue {
	e.videoCount++

	cd := ccx.ExtractCaptions(seiData)
	if cd == nil {
		return nil
	}

	var cues []media.CaptionCue
	for _, pair := range cd.CC608Pairs {
		cc1, cc2 := pair.Data[0], pair.Data[1]
		if cue, ok := e.decode608(pair.Field, pair.Channel, cc1, cc2, pts); ok {
			cues = append(cues, cue)
		}
	}
	for _, t := range cd.DTVCC {
		if t.Start {
			cues = append(cues, e.drainDTVCC(pts)...)
			e.dtvccBuf = e.dtvccBuf[:0]
		}
		e.dtvccBuf = append(e.dtvccBuf, t.Data[0], t.Data[1])
	}
	return cues
}

func (e *Extractor) decode608(f, channel int, cc1, cc2 byte, pts uint64) (media.CaptionCue, bool) {
	isCtrl := cc1 >= 0x10 && cc1 <= 0x1F
	if isCtrl {
		cp := [2]byte{cc1, cc2}
		frameGap := e.videoCount - e.lastCCCtrlFrame[f]
		if e.lastCCWasCtrl[f] && e.lastCCCtrl[f] == cp && frameGap <= 2 {
			// Repeated control pair within the dedup window: CEA-608
			// requires control codes to be sent twice for reliability: the
			// second copy is a no-op, not a new caption event.
			e.lastCCWasCtrl[f] = false
			return media.CaptionCue{}, false
		}
		e.lastCCCtrl[f] = cp
		e.lastCCWasCtrl[f] = true
		e.lastCCCtrlFrame[f] = e.videoCount
	} else {
		e.lastCCWasCtrl[f] = false
	}

	dec := e.cea608Decs[channel]
	if dec == nil {
		return media.CaptionCue{}, false
	}
	text := dec.Decode(cc1, cc2)
	if text == "" {
		return media.CaptionCue{}, false
	}
	return media.CaptionCue{Channel: channel, Text: text, RawPTS: pts}, true
}

func (e *Extractor) drainDTVCC(pts uint64) []media.CaptionCue {
	if len(e.dtvccBuf) < 1 {
		return nil
	}
	packetSize := ccx.DTVCCPacketSize(e.dtvccBuf[0])
	if len(e.dtvccBuf) < packetSize {
		return nil
	}

	var cues []media.CaptionCue
	for _, block := range ccx.ParseDTVCCPacket(e.dtvccBuf[:packetSize]) {
		svc := e.cea708Svcs[block.ServiceNum]
		if svc == nil {
			continue
		}
		if !svc.ProcessBlock(block.Data) {
			continue
		}
		text := svc.DisplayText()
		if text == "" {
			continue
		}
		cues = append(cues, media.CaptionCue{
			Channel: block.ServiceNum + 6,
			Text:    text,
			RawPTS:  pts,
		})
	}
	return cues
}
