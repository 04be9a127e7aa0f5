// Package scte35 decodes SCTE-35 splice_info_sections carried as PSI
// sections in the transport stream, per the ANSI/SCTE 35 specification.
// Only the command and descriptor types this project's cue events need
// are supported: SpliceNull, SpliceInsert, TimeSignal, and
// SegmentationDescriptor. There is no encoder — SCTE-35 only ever flows
// from the input stream out to host events, never the reverse.
package scte35

import "fmt"

const (
	tableID = 0xFC

	SpliceNullType   uint32 = 0x00
	SpliceInsertType uint32 = 0x05
	TimeSignalType   uint32 = 0x06
)

// SpliceCommand is the interface for splice command types.
type SpliceCommand interface {
	Type() uint32
	decode([]byte) error
	commandLength() int
}

// SpliceDescriptor is the interface for splice descriptor types.
type SpliceDescriptor interface {
	Tag() uint32
	decode([]byte) error
}

// SpliceDescriptors is a slice of SpliceDescriptor.
type SpliceDescriptors []SpliceDescriptor

// SpliceTime carries an optional PTS time.
type SpliceTime struct {
	PTSTime *uint64
}

// BreakDuration specifies the duration of a commercial break.
type BreakDuration struct {
	AutoReturn bool
	Duration   uint64
}

// SpliceInfoSection is the top-level SCTE-35 structure.
type SpliceInfoSection struct {
	SAPType           uint32
	PTSAdjustment     uint64
	Tier              uint32
	SpliceCommand     SpliceCommand
	SpliceDescriptors SpliceDescriptors
}

// DecodeBytes decodes a binary SCTE-35 splice_info_section.
func DecodeBytes(data []byte) (*SpliceInfoSection, error) {
	sis := &SpliceInfoSection{}
	if err := sis.decode(data); err != nil {
		return sis, err
	}
	return sis, nil
}

func (sis *SpliceInfoSection) decode(data []byte) error {
	if err := verifyCRC32(data); err != nil {
		return err
	}

	r := newBitReader(data)
	r.skip(8) // table_id
	r.skip(1) // section_syntax_indicator
	r.skip(1) // private_indicator
	sis.SAPType = r.readUint32(2)
	sectionLength := int(r.readUint32(12))

	r.skip(8) // protocol_version
	r.skip(1) // encrypted_packet
	r.skip(6) // encryption_algorithm
	sis.PTSAdjustment = r.readUint64(33)
	r.skip(8) // cw_index
	sis.Tier = r.readUint32(12)

	spliceCommandLength := int(r.readUint32(12))
	spliceCommandType := r.readUint32(8)

	if spliceCommandLength == 0xFFF {
		// Legacy encoders set splice_command_length to the reserved value
		// 0xFFF instead of the real length. Decode the command against
		// everything left in the section, then let its commandLength()
		// tell us where the descriptor loop actually starts.
		remaining := sectionLength - 11 // bytes after fixed header fields, CRC included
		allRemaining := r.readBytes(remaining - 4)
		cmd, err := decodeSpliceCommand(spliceCommandType, allRemaining)
		if err != nil {
			return fmt.Errorf("scte35: decoding command type 0x%02X: %w", spliceCommandType, err)
		}
		sis.SpliceCommand = cmd
		cmdLen := cmd.commandLength()
		if cmdLen < len(allRemaining)-2 {
			descData := allRemaining[cmdLen+2:] // skip descriptor_loop_length
			descLoopLen := int(allRemaining[cmdLen])<<8 | int(allRemaining[cmdLen+1])
			if descLoopLen > 0 && descLoopLen <= len(descData) {
				descs, derr := decodeSpliceDescriptors(descData[:descLoopLen])
				if derr != nil {
					return derr
				}
				sis.SpliceDescriptors = descs
			}
		}
	} else {
		cmdData := r.readBytes(spliceCommandLength)
		cmd, err := decodeSpliceCommand(spliceCommandType, cmdData)
		if err != nil {
			return fmt.Errorf("scte35: decoding command type 0x%02X: %w", spliceCommandType, err)
		}
		sis.SpliceCommand = cmd

		descriptorLoopLength := int(r.readUint32(16))
		if descriptorLoopLength > 0 {
			descData := r.readBytes(descriptorLoopLength)
			descs, derr := decodeSpliceDescriptors(descData)
			if derr != nil {
				return derr
			}
			sis.SpliceDescriptors = descs
		}
	}

	return nil
}

func decodeSpliceCommand(cmdType uint32, data []byte) (SpliceCommand, error) {
	var cmd SpliceCommand
	switch cmdType {
	case SpliceNullType:
		cmd = &SpliceNull{}
	case SpliceInsertType:
		cmd = &SpliceInsert{}
	case TimeSignalType:
		cmd = &TimeSignal{}
	default:
		// Unknown command — return a null-like command so we don't panic.
		cmd = &SpliceNull{}
		return cmd, nil
	}
	if err := cmd.decode(data); err != nil {
		return cmd, err
	}
	return cmd, nil
}

func decodeSpliceDescriptors(data []byte) ([]SpliceDescriptor, error) {
	var descs []SpliceDescriptor
	offset := 0
	for offset < len(data) {
		if offset+2 > len(data) {
			break
		}
		tag := uint32(data[offset])
		length := int(data[offset+1])
		end := offset + 2 + length
		if end > len(data) {
			break
		}

		// Check identifier (bytes 2-5 of the descriptor, the first four of its body).
		if length >= 4 {
			identifier := uint32(data[offset+2])<<24 | uint32(data[offset+3])<<16 |
				uint32(data[offset+4])<<8 | uint32(data[offset+5])
			if tag == SegmentationDescriptorTag && identifier == CUEIdentifier {
				sd := &SegmentationDescriptor{}
				if err := sd.decode(data[offset:end]); err != nil {
					return descs, err
				}
				descs = append(descs, sd)
			}
			// Skip unknown descriptor tags/identifiers silently.
		}
		offset = end
	}
	return descs, nil
}
