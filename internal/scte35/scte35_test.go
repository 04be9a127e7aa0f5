package scte35

import (
	"encoding/hex"
	"testing"
)

// Golden vectors, one hex-encoded section per segmentation/splice scenario
// this project cares about. The decoded field values a correct parse must
// produce are checked in the tests that use them.
var goldenVectors = map[string]string{
	"ProviderAdStart":       "fc302700000000000000fff00506fe000dbba00011020f43554549000000017fbf0000300101ee197d02",
	"DistributorAdStart":    "fc302c00000000000000fff00506fe000dbba00016021443554549000000027fff00002932e000003201031233f909",
	"DistributorAdEnd":      "fc302700000000000000fff00506fe000dbba00011020f43554549000000037fbf000033010352b10a71",
	"ProviderAdEnd":         "fc302700000000000000fff00506fe000dbba00011020f43554549000000047fbf0000310101de2663d0",
	"SpliceInsertOut":       "fc303200000000000000fff01005000000057fbf00fe007b98a0000101010011020f43554549000000057fbf00002201017f1add87",
	"SpliceInsertIn":        "fc302d00000000000000fff00b05000000067f1f00000101010011020f43554549000000067fbf0000230101c2262974",
	"ProgramStart":          "fc302700000000000000fff00506fe000dbba00011020f43554549000000077fbf0000100000ded1e682",
	"ContentID":             "fc302700000000000000fff00506fe000dbba00011020f43554549000000087fbf000001000090ab548a",
	"ChapterStart":          "fc302c00000000000000fff00506fe000dbba00016021443554549000000097fff00019bfcc00000200105bb3c1919",
	"ChapterEnd":            "fc302700000000000000fff00506fe000dbba00011020f435545490000000a7fbf0000210105d921d749",
	"NetworkStart":          "fc302700000000000000fff00506fe000dbba00011020f435545490000000b7fbf0000500000163074e3",
	"ProgramEnd":            "fc302700000000000000fff00506fe000dbba00011020f435545490000000c7fbf0000110000e767f265",
	"UnscheduledEventStart": "fc302700000000000000fff00506fe000dbba00011020f435545490000000d7fbf0000400000d6bf6b98",
	"UnscheduledEventEnd":   "fc302700000000000000fff00506fe000dbba00011020f435545490000000e7fbf00004100003b85a241",
	"ProviderPOStart":       "fc302c00000000000000fff00506fe000dbba000160214435545490000000f7fff00005265c0000034010288c9acbd",
	"ProviderPOEnd":         "fc302700000000000000fff00506fe000dbba00011020f43554549000000107fbf000035010213993e41",
}

func mustDecodeHex(t *testing.T, name string) []byte {
	t.Helper()
	data, err := hex.DecodeString(goldenVectors[name])
	if err != nil {
		t.Fatalf("%s: bad hex fixture: %v", name, err)
	}
	return data
}

func TestDecodeGoldenVectors(t *testing.T) {
	t.Parallel()
	for name := range goldenVectors {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			sis, err := DecodeBytes(mustDecodeHex(t, name))
			if err != nil {
				t.Fatalf("DecodeBytes failed: %v", err)
			}
			if sis.SpliceCommand == nil {
				t.Fatal("SpliceCommand is nil")
			}
		})
	}
}

func TestDecodeTimeSignalSegmentationDescriptor(t *testing.T) {
	t.Parallel()
	sis, err := DecodeBytes(mustDecodeHex(t, "DistributorAdStart"))
	if err != nil {
		t.Fatalf("DecodeBytes failed: %v", err)
	}

	ts, ok := sis.SpliceCommand.(*TimeSignal)
	if !ok {
		t.Fatalf("command = %T, want *TimeSignal", sis.SpliceCommand)
	}
	if ts.SpliceTime.PTSTime == nil {
		t.Fatal("PTSTime is nil")
	}

	if len(sis.SpliceDescriptors) != 1 {
		t.Fatalf("descriptor count = %d, want 1", len(sis.SpliceDescriptors))
	}
	sd, ok := sis.SpliceDescriptors[0].(*SegmentationDescriptor)
	if !ok {
		t.Fatalf("descriptor = %T, want *SegmentationDescriptor", sis.SpliceDescriptors[0])
	}
	if sd.SegmentationTypeID != SegmentationTypeDistributorAdStart {
		t.Errorf("SegmentationTypeID = 0x%02X, want 0x%02X", sd.SegmentationTypeID, SegmentationTypeDistributorAdStart)
	}
	if sd.SegmentationDuration == nil {
		t.Fatal("SegmentationDuration is nil")
	}
	if *sd.SegmentationDuration != 30*90000 {
		t.Errorf("SegmentationDuration = %d, want %d", *sd.SegmentationDuration, 30*90000)
	}
	if sd.SegmentsExpected != 3 {
		t.Errorf("SegmentsExpected = %d, want 3", sd.SegmentsExpected)
	}
}

func TestDecodeSpliceInsertBreak(t *testing.T) {
	t.Parallel()
	sis, err := DecodeBytes(mustDecodeHex(t, "SpliceInsertOut"))
	if err != nil {
		t.Fatalf("DecodeBytes failed: %v", err)
	}

	si, ok := sis.SpliceCommand.(*SpliceInsert)
	if !ok {
		t.Fatalf("command = %T, want *SpliceInsert", sis.SpliceCommand)
	}
	if !si.OutOfNetworkIndicator {
		t.Error("OutOfNetworkIndicator = false, want true")
	}
	if !si.SpliceImmediateFlag {
		t.Error("SpliceImmediateFlag = false, want true")
	}
	if si.BreakDuration == nil {
		t.Fatal("BreakDuration is nil")
	}
	if si.BreakDuration.Duration != 90*90000 {
		t.Errorf("BreakDuration.Duration = %d, want %d", si.BreakDuration.Duration, 90*90000)
	}
}

func TestDecodeCorruptedCRC(t *testing.T) {
	t.Parallel()
	data := mustDecodeHex(t, "ProviderAdStart")
	data[10] ^= 0xFF
	_, err := DecodeBytes(data)
	if err == nil {
		t.Error("expected CRC error on corrupted data")
	}
}

func TestDecodeUnknownCommandType(t *testing.T) {
	t.Parallel()
	// The command_type byte of a TimeSignal section sits at a fixed offset
	// once table_id, the flags/section_length header, and the fixed fields
	// through splice_command_length have all been consumed (byte 13 in
	// every vector above). Replacing it with an unassigned value exercises
	// decodeSpliceCommand's unknown-type fallback without needing an
	// encoder to build a fresh section from scratch.
	data := mustDecodeHex(t, "ProviderAdStart")
	data[13] = 0xFF
	crc := crc32MPEG2(data[:len(data)-4])
	data[len(data)-4] = byte(crc >> 24)
	data[len(data)-3] = byte(crc >> 16)
	data[len(data)-2] = byte(crc >> 8)
	data[len(data)-1] = byte(crc)

	sis, err := DecodeBytes(data)
	if err != nil {
		t.Fatalf("DecodeBytes failed on unknown command: %v", err)
	}
	if _, ok := sis.SpliceCommand.(*SpliceNull); !ok {
		t.Fatalf("command = %T, want *SpliceNull fallback", sis.SpliceCommand)
	}
}

func TestSegmentationDescriptorName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		typeID uint32
		want   string
	}{
		{SegmentationTypeProviderAdStart, "Provider Advertisement Start"},
		{SegmentationTypeDistributorAdEnd, "Distributor Advertisement End"},
		{SegmentationTypeBreakStart, "Break Start"},
		{SegmentationTypeProgramStart, "Program Start"},
		{SegmentationTypeNetworkStart, "Network Start"},
		{SegmentationTypeChapterStart, "Chapter Start"},
		{SegmentationTypeUnscheduledEventStart, "Unscheduled Event Start"},
		{SegmentationTypeProviderPOStart, "Provider Placement Opportunity Start"},
		{SegmentationTypeContentIdentification, "Content Identification"},
		{0xFE, "Unknown"},
	}
	for _, tc := range tests {
		sd := &SegmentationDescriptor{SegmentationTypeID: tc.typeID}
		if got := sd.Name(); got != tc.want {
			t.Errorf("Name() for 0x%02X = %q, want %q", tc.typeID, got, tc.want)
		}
	}
}
