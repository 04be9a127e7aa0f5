package mpegts

import "errors"

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02

	descTagISO639Language  = 0x0A
	descTagTeletext        = 0x56
	descTagSubtitling      = 0x59
)

// psiAccumulator buffers TS payload fragments for one PSI-shaped PID
// (PAT, PMT, or an SCTE-35 section carrier) until a full section,
// delimited by the pointer field and section_length, has arrived.
type psiAccumulator struct {
	buf []byte
}

func (a *psiAccumulator) reset() { a.buf = a.buf[:0] }

// feed appends a payload fragment to the buffer, stripping the pointer
// field and discarding any earlier buffered bytes on the first fragment of
// a new unit. It reports nothing itself; completeSection extracts the
// sections (a PSI payload may carry more than one back to back, followed
// by 0xFF stuffing).
func (a *psiAccumulator) feed(payload []byte, pusi bool) {
	if pusi {
		if len(payload) == 0 {
			return
		}
		pointer := int(payload[0])
		start := 1 + pointer
		if start > len(payload) {
			a.buf = nil
			return
		}
		a.buf = append([]byte(nil), payload[start:]...)
		return
	}
	a.buf = append(a.buf, payload...)
}

// completeSection reports whether a.buf now holds at least one complete
// PSI section, and returns it (including the leading table_id/section
// header). Whatever trails it stays buffered for the next call.
func (a *psiAccumulator) completeSection() ([]byte, bool) {
	if len(a.buf) == 0 || a.buf[0] == 0xFF {
		return nil, false
	}
	if len(a.buf) < 3 {
		return nil, false
	}
	sectionSyntax := a.buf[1]&0x80 != 0
	if !sectionSyntax {
		return nil, false
	}
	sectionLength := int(a.buf[1]&0x0F)<<8 | int(a.buf[2])
	total := 3 + sectionLength
	if len(a.buf) < total {
		return nil, false
	}
	section := a.buf[:total]
	a.buf = a.buf[total:]
	return section, true
}

// parsePATSection extracts PMT PIDs from a CRC-verified PAT section and
// returns the PMT PID of the first program (program_number != 0; entries
// with program_number == 0 are the network-information-table pointer and
// are skipped).
func parsePATSection(section []byte) (pmtPID uint16, ok bool, err error) {
	if len(section) < 8 || !verifyCRC32(section) {
		return 0, false, errors.New("mpegts: PAT CRC mismatch")
	}
	body := section[8 : len(section)-4]
	for i := 0; i+4 <= len(body); i += 4 {
		programNumber := uint16(body[i])<<8 | uint16(body[i+1])
		pid := uint16(body[i+2]&0x1F)<<8 | uint16(body[i+3])
		if programNumber == 0 {
			continue // network PID, not a program
		}
		return pid, true, nil
	}
	return 0, false, nil
}

type pmtEntry struct {
	pid        uint16
	streamType uint8
	language   string
	subtitle   string
}

// parsePMTSection extracts elementary-stream entries from a CRC-verified
// PMT section, scanning each ES descriptor loop for ISO-639 language and
// DVB subtitle/teletext descriptors.
func parsePMTSection(section []byte) ([]pmtEntry, error) {
	if len(section) < 12 || !verifyCRC32(section) {
		return nil, errors.New("mpegts: PMT CRC mismatch")
	}
	programInfoLength := int(section[10]&0x0F)<<8 | int(section[11])
	offset := 12 + programInfoLength
	end := len(section) - 4 // CRC trailer
	if offset > end {
		return nil, errors.New("mpegts: PMT program_info_length overruns section")
	}

	var entries []pmtEntry
	for offset+5 <= end {
		streamType := section[offset]
		pid := uint16(section[offset+1]&0x1F)<<8 | uint16(section[offset+2])
		esInfoLength := int(section[offset+3]&0x0F)<<8 | int(section[offset+4])
		descStart := offset + 5
		descEnd := descStart + esInfoLength
		if descEnd > end {
			return nil, errors.New("mpegts: PMT ES_info_length overruns section")
		}

		e := pmtEntry{pid: pid, streamType: streamType}
		for d := descStart; d+2 <= descEnd; {
			tag := section[d]
			length := int(section[d+1])
			dataStart := d + 2
			dataEnd := dataStart + length
			if dataEnd > descEnd {
				break
			}
			switch tag {
			case descTagISO639Language:
				if length >= 3 {
					e.language = string(section[dataStart : dataStart+3])
				}
			case descTagSubtitling:
				e.subtitle = "dvb-subtitle"
			case descTagTeletext:
				e.subtitle = "teletext"
			}
			d = dataEnd
		}
		entries = append(entries, e)
		offset = descEnd
	}
	return entries, nil
}

func isVideoFamily(streamType uint8) bool {
	switch streamType {
	case 0x01, 0x02, 0x10, 0x1B, 0x24:
		return true
	}
	return false
}

func isAudioFamily(streamType uint8) bool {
	switch streamType {
	case 0x03, 0x04, 0x0F, 0x11, 0x81:
		return true
	}
	return false
}
