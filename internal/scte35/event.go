package scte35

import "fmt"

// Event is the decoded splice_info_section handed to the host, tagged
// with the PID it arrived on and a cue time: the splice PTS plus
// pts_adjustment, modulo 2^33, on the stream's own 90 kHz wire clock. It
// is neither rebased to the output timeline nor rollover-extended, and it
// is nil when the command carries no PTS that splicePTS extracts.
type Event struct {
	PID     uint16
	Section *SpliceInfoSection
	PTS     *uint64 // adjusted splice PTS, if the command carries one
}

// Decode parses one SCTE-35 section observed on pid into an Event. It is
// the entry point the PSI routing path (internal/mpegts's SCTE35Section)
// feeds into.
func Decode(pid uint16, data []byte) (Event, error) {
	sis, err := DecodeBytes(data)
	if err != nil {
		return Event{}, fmt.Errorf("scte35: pid %d: %w", pid, err)
	}

	ev := Event{PID: pid, Section: sis}
	if pts := splicePTS(sis); pts != nil {
		adjusted := (*pts + sis.PTSAdjustment) & 0x1FFFFFFFF
		ev.PTS = &adjusted
	}
	return ev, nil
}

// splicePTS extracts the raw splice PTS from a TimeSignal command. A
// SpliceInsert's pts_time (present in program-splice mode when
// splice_immediate_flag is clear) is not retained by this decoder, so
// SpliceInsert sections yield no PTS.
func splicePTS(sis *SpliceInfoSection) *uint64 {
	if ts, ok := sis.SpliceCommand.(*TimeSignal); ok {
		return ts.SpliceTime.PTSTime
	}
	return nil
}

// IsOut reports whether the event's splice_insert signals the start of an out-of-network
// break (ad break start), for callers that just want a boolean cue.
func (e Event) IsOut() bool {
	si, ok := e.Section.SpliceCommand.(*SpliceInsert)
	return ok && !si.SpliceEventCancelIndicator && si.OutOfNetworkIndicator
}

// SegmentationEvents returns the segmentation descriptors attached to
// this section, if any.
func (e Event) SegmentationEvents() []*SegmentationDescriptor {
	var out []*SegmentationDescriptor
	for _, d := range e.Section.SpliceDescriptors {
		if sd, ok := d.(*SegmentationDescriptor); ok {
			out = append(out, sd)
		}
	}
	return out
}
