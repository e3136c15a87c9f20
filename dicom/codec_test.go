package dicom

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/types"
)

// datasetDiff compares two datasets element by element, descending into
// sequence items.
func datasetDiff(want, got *Dataset) string {
	return cmp.Diff(want.Elements(), got.Elements(), cmp.AllowUnexported(Dataset{}))
}

func sampleDataset() *Dataset {
	ds := NewDataset()
	ds.AddString(TagPatientName, "DOE^JOHN")
	ds.AddString(TagPatientID, "PAT001")
	ds.AddString(TagStudyInstanceUID, "1.2.840.113619.2.1.1")
	ds.AddString(TagModality, "CT")
	ds.Add(TagRows, VRUnsignedShort, []byte{0x00, 0x02})
	return ds
}

func TestRoundTripTransferSyntaxes(t *testing.T) {
	tests := []struct {
		name string
		uid  string
	}{
		{"implicit VR little endian", types.ImplicitVRLittleEndian},
		{"explicit VR little endian", types.ExplicitVRLittleEndian},
		{"explicit VR big endian", types.ExplicitVRBigEndian},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := sampleDataset()
			encoded, err := Encode(want, tt.uid)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := Decode(encoded, tt.uid)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if diff := datasetDiff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRoundTripOddLengthValues(t *testing.T) {
	ds := NewDataset()
	ds.AddString(TagPatientName, "DOE")
	ds.AddString(TagSOPInstanceUID, "1.2.3")
	ds.Add(TagEncapsulatedDocument, VROtherByte, []byte{0xAA, 0xBB, 0xCC})

	encoded, err := Encode(ds, types.ExplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(encoded)%2 != 0 {
		t.Errorf("encoded stream has odd length %d", len(encoded))
	}

	got, err := Decode(encoded, types.ExplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if name := got.GetString(TagPatientName); name != "DOE" {
		t.Errorf("patient name = %q, want DOE", name)
	}
	if uid := got.GetString(TagSOPInstanceUID); uid != "1.2.3" {
		t.Errorf("SOP instance UID = %q, want 1.2.3", uid)
	}
	// Binary values keep their zero pad; the declared length grew by one.
	if doc := got.GetBytes(TagEncapsulatedDocument); !bytes.Equal(doc, []byte{0xAA, 0xBB, 0xCC, 0x00}) {
		t.Errorf("encapsulated document = %x", doc)
	}
}

func TestSequenceRoundTrip(t *testing.T) {
	item1 := NewDataset()
	item1.AddString(TagSeriesInstanceUID, "1.2.3.4.1")
	item1.AddString(TagModality, "MR")
	item2 := NewDataset()
	item2.AddString(TagSeriesInstanceUID, "1.2.3.4.2")

	want := NewDataset()
	want.AddString(TagStudyInstanceUID, "1.2.3.4")
	want.Add(TagReferencedSeriesSequence, VRSequence, []*Dataset{item1, item2})

	for _, uid := range []string{types.ImplicitVRLittleEndian, types.ExplicitVRLittleEndian} {
		encoded, err := Encode(want, uid)
		if err != nil {
			t.Fatalf("Encode(%s) error = %v", uid, err)
		}
		got, err := Decode(encoded, uid)
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", uid, err)
		}
		if diff := datasetDiff(want, got); diff != "" {
			t.Errorf("sequence round trip under %s (-want +got):\n%s", uid, diff)
		}
	}
}

// TestDecodeUndefinedLengthSequence hand-builds the delimiter-terminated
// encoding, which the encoder never produces but archives still send.
func TestDecodeUndefinedLengthSequence(t *testing.T) {
	inner := NewDataset()
	inner.AddString(TagModality, "US")
	content, err := Encode(inner, types.ImplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var buf []byte
	// (0008,1115) SQ, undefined length.
	buf = append(buf, 0x08, 0x00, 0x15, 0x11, 0xFF, 0xFF, 0xFF, 0xFF)
	// Item, undefined length.
	buf = append(buf, 0xFE, 0xFF, 0x00, 0xE0, 0xFF, 0xFF, 0xFF, 0xFF)
	buf = append(buf, content...)
	// Item delimitation item.
	buf = append(buf, 0xFE, 0xFF, 0x0D, 0xE0, 0x00, 0x00, 0x00, 0x00)
	// Sequence delimitation item.
	buf = append(buf, 0xFE, 0xFF, 0xDD, 0xE0, 0x00, 0x00, 0x00, 0x00)

	ds, err := Decode(buf, types.ImplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	items := ds.GetSequence(TagReferencedSeriesSequence)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if m := items[0].GetString(TagModality); m != "US" {
		t.Errorf("modality = %q, want US", m)
	}
}

func TestPrivateTagPreserved(t *testing.T) {
	private := Tag{0x0009, 0x0010}
	want := NewDataset()
	want.AddString(TagPatientID, "PAT002")
	want.Add(private, VRLongString, "ACME 1.0")

	encoded, err := Encode(want, types.ExplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(encoded, types.ExplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	elem, ok := got.Get(private)
	if !ok {
		t.Fatal("private element dropped")
	}
	if !elem.Tag.IsPrivate() {
		t.Error("IsPrivate() = false for odd group")
	}
	if diff := datasetDiff(want, got); diff != "" {
		t.Errorf("private tag round trip (-want +got):\n%s", diff)
	}
}

func TestDecodeTruncatedValue(t *testing.T) {
	ds := NewDataset()
	ds.AddString(TagPatientID, "PAT003")
	encoded, err := Encode(ds, types.ExplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	_, err = Decode(encoded[:len(encoded)-2], types.ExplicitVRLittleEndian)
	var malformed *dicomerr.MalformedElementError
	if !errors.As(err, &malformed) {
		t.Fatalf("Decode() error = %v, want MalformedElementError", err)
	}
	if malformed.Group != TagPatientID.Group || malformed.Element != TagPatientID.Element {
		t.Errorf("error names tag (%04X,%04X), want (0010,0020)", malformed.Group, malformed.Element)
	}
}

func TestDecodeSequenceOverrun(t *testing.T) {
	// Defined-length SQ whose declared length exceeds the buffer.
	buf := []byte{
		0x08, 0x00, 0x15, 0x11, // (0008,1115)
		'S', 'Q', 0x00, 0x00,
		0xFF, 0x00, 0x00, 0x00, // length 255, nothing follows
	}
	_, err := Decode(buf, types.ExplicitVRLittleEndian)
	var malformed *dicomerr.MalformedElementError
	if !errors.As(err, &malformed) {
		t.Fatalf("Decode() error = %v, want MalformedElementError", err)
	}
}

func TestEncodeShortFormOverflow(t *testing.T) {
	ds := NewDataset()
	ds.Add(TagPatientComments, VRLongText, string(make([]byte, 0x10000)))

	_, err := Encode(ds, types.ExplicitVRLittleEndian)
	var malformed *dicomerr.MalformedElementError
	if !errors.As(err, &malformed) {
		t.Fatalf("Encode() error = %v, want MalformedElementError", err)
	}
}

func TestNumericValuesDecodeAsBytes(t *testing.T) {
	ds := NewDataset()
	ds.Add(TagRows, VRUnsignedShort, uint16(512))
	ds.Add(Tag{0x0002, 0x0000}, VRUnsignedLong, uint32(0x01020304))

	for _, ts := range []string{types.ExplicitVRLittleEndian, types.ExplicitVRBigEndian} {
		encoded, err := Encode(ds, ts)
		if err != nil {
			t.Fatalf("Encode(%s) error = %v", ts, err)
		}
		got, err := Decode(encoded, ts)
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", ts, err)
		}

		rows, _ := got.Get(TagRows)
		raw, ok := rows.Value.([]byte)
		if !ok || len(raw) != 2 {
			t.Fatalf("rows value = %T % X, want 2 raw bytes", rows.Value, rows.Value)
		}

		length, _ := got.Get(Tag{0x0002, 0x0000})
		lraw, ok := length.Value.([]byte)
		if !ok || len(lraw) != 4 {
			t.Fatalf("length value = %T, want 4 raw bytes", length.Value)
		}
		if ts == types.ExplicitVRLittleEndian {
			if !bytes.Equal(lraw, []byte{0x04, 0x03, 0x02, 0x01}) {
				t.Errorf("little endian uint32 bytes = % X", lraw)
			}
		} else if !bytes.Equal(lraw, []byte{0x01, 0x02, 0x03, 0x04}) {
			t.Errorf("big endian uint32 bytes = % X", lraw)
		}
	}
}
