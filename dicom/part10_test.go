package dicom

import (
	"bytes"
	"errors"
	"testing"

	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/types"
)

func TestPart10RoundTrip(t *testing.T) {
	want := NewDataset()
	want.AddString(TagSOPClassUID, types.CTImageStorage)
	want.AddString(TagSOPInstanceUID, "1.2.840.113619.2.1.1.1")
	want.AddString(TagPatientName, "DOE^JANE")
	want.AddString(TagModality, "CT")

	for _, uid := range []string{types.ImplicitVRLittleEndian, types.ExplicitVRLittleEndian} {
		var buf bytes.Buffer
		if err := WritePart10(&buf, want, uid); err != nil {
			t.Fatalf("WritePart10(%s) error = %v", uid, err)
		}

		data := buf.Bytes()
		if !bytes.Equal(data[preambleLen:preambleLen+4], []byte("DICM")) {
			t.Fatal("missing DICM magic after preamble")
		}

		got, gotSyntax, err := ReadPart10(data)
		if err != nil {
			t.Fatalf("ReadPart10(%s) error = %v", uid, err)
		}
		if gotSyntax != uid {
			t.Errorf("transfer syntax = %s, want %s", gotSyntax, uid)
		}
		if diff := datasetDiff(want, got); diff != "" {
			t.Errorf("part 10 round trip under %s (-want +got):\n%s", uid, diff)
		}
	}
}

func TestWritePart10RequiresSOPInstance(t *testing.T) {
	ds := NewDataset()
	ds.AddString(TagSOPClassUID, types.CTImageStorage)

	var buf bytes.Buffer
	err := WritePart10(&buf, ds, types.ExplicitVRLittleEndian)
	var malformed *dicomerr.MalformedElementError
	if !errors.As(err, &malformed) {
		t.Fatalf("WritePart10() error = %v, want MalformedElementError", err)
	}
}

func TestReadPart10RejectsMissingMagic(t *testing.T) {
	data := make([]byte, preambleLen+4)
	copy(data[preambleLen:], "NOPE")

	_, _, err := ReadPart10(data)
	var malformed *dicomerr.MalformedElementError
	if !errors.As(err, &malformed) {
		t.Fatalf("ReadPart10() error = %v, want MalformedElementError", err)
	}
}
