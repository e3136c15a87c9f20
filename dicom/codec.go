package dicom

import (
	"encoding/binary"
	"fmt"

	dicomerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/types"
)

// syntax captures the two axes a transfer syntax controls for uncompressed
// data sets: VR explicitness and byte order.
type syntax struct {
	explicit bool
	order    binary.ByteOrder
}

// syntaxFor maps a transfer syntax UID onto its encoding rules. Unknown UIDs
// fall back to explicit VR little endian; the engine never negotiates a
// syntax it cannot decode, so the fallback only matters for Part 10 files
// produced elsewhere.
func syntaxFor(uid string) syntax {
	switch uid {
	case types.ImplicitVRLittleEndian:
		return syntax{explicit: false, order: binary.LittleEndian}
	case types.ExplicitVRBigEndian:
		return syntax{explicit: true, order: binary.BigEndian}
	default:
		return syntax{explicit: true, order: binary.LittleEndian}
	}
}

// Encode serializes the dataset under the given transfer syntax. Elements are
// written in ascending tag order with even-length values (PS3.5, Section 7.1).
func Encode(ds *Dataset, transferSyntax string) ([]byte, error) {
	if ds == nil {
		return nil, nil
	}
	sx := syntaxFor(transferSyntax)

	var buf []byte
	for _, elem := range ds.Elements() {
		var err error
		buf, err = appendElement(buf, elem, sx)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// Decode parses a dataset encoded under the given transfer syntax.
func Decode(data []byte, transferSyntax string) (*Dataset, error) {
	d := &decoder{data: data, sx: syntaxFor(transferSyntax)}
	ds := NewDataset()

	for d.off < len(d.data) {
		elem, err := d.element()
		if err != nil {
			return nil, err
		}
		ds.Add(elem.Tag, elem.VR, elem.Value)
	}
	return ds, nil
}

func appendElement(buf []byte, elem *Element, sx syntax) ([]byte, error) {
	value, err := encodeValue(elem, sx)
	if err != nil {
		return nil, err
	}

	buf = appendTag(buf, elem.Tag, sx)

	switch {
	case !sx.explicit:
		buf = appendUint32(buf, sx, uint32(len(value)))
	case isLongLengthVR(elem.VR):
		buf = append(buf, elem.VR[0], elem.VR[1], 0x00, 0x00)
		buf = appendUint32(buf, sx, uint32(len(value)))
	default:
		if len(value) > 0xFFFF {
			return nil, dicomerr.NewMalformedElement(elem.Tag.Group, elem.Tag.Element,
				fmt.Sprintf("value of %d bytes exceeds short-form length", len(value)))
		}
		buf = append(buf, elem.VR[0], elem.VR[1])
		buf = appendUint16(buf, sx, uint16(len(value)))
	}

	return append(buf, value...), nil
}

func encodeValue(elem *Element, sx syntax) ([]byte, error) {
	switch v := elem.Value.(type) {
	case nil:
		return nil, nil
	case string:
		return padText(v, elem.VR), nil
	case []string:
		joined := ""
		for i, s := range v {
			if i > 0 {
				joined += "\\"
			}
			joined += s
		}
		return padText(joined, elem.VR), nil
	case []byte:
		if len(v)%2 == 1 {
			padded := make([]byte, len(v)+1)
			copy(padded, v)
			return padded, nil
		}
		return v, nil
	case uint16:
		out := make([]byte, 2)
		sx.order.PutUint16(out, v)
		return out, nil
	case uint32:
		out := make([]byte, 4)
		sx.order.PutUint32(out, v)
		return out, nil
	case []*Dataset:
		return encodeItems(v, sx)
	default:
		return nil, dicomerr.NewMalformedElement(elem.Tag.Group, elem.Tag.Element,
			fmt.Sprintf("unsupported value type %T", elem.Value))
	}
}

// encodeItems serializes SQ items with defined lengths. The decoder also
// accepts the undefined-length delimiter style; the encoder always produces
// the defined form.
func encodeItems(items []*Dataset, sx syntax) ([]byte, error) {
	var buf []byte
	for _, item := range items {
		var content []byte
		for _, elem := range item.Elements() {
			var err error
			content, err = appendElement(content, elem, sx)
			if err != nil {
				return nil, err
			}
		}
		buf = appendTag(buf, tagItem, sx)
		buf = appendUint32(buf, sx, uint32(len(content)))
		buf = append(buf, content...)
	}
	return buf, nil
}

// padText pads character data to even length: UIDs with a null byte,
// everything else with a space.
func padText(s, vr string) []byte {
	if len(s)%2 == 0 {
		return []byte(s)
	}
	if vr == VRUniqueIdentifier {
		return append([]byte(s), 0x00)
	}
	return append([]byte(s), ' ')
}

func appendTag(buf []byte, tag Tag, sx syntax) []byte {
	buf = appendUint16(buf, sx, tag.Group)
	return appendUint16(buf, sx, tag.Element)
}

func appendUint16(buf []byte, sx syntax, v uint16) []byte {
	out := make([]byte, 2)
	sx.order.PutUint16(out, v)
	return append(buf, out...)
}

func appendUint32(buf []byte, sx syntax, v uint32) []byte {
	out := make([]byte, 4)
	sx.order.PutUint32(out, v)
	return append(buf, out...)
}

// decoder walks a serialized dataset. Sequence items recurse through the
// same cursor so undefined-length termination works at any nesting depth.
type decoder struct {
	data []byte
	off  int
	sx   syntax
}

func (d *decoder) remaining() int { return len(d.data) - d.off }

func (d *decoder) malformed(tag Tag, msg string) error {
	return dicomerr.NewMalformedElement(tag.Group, tag.Element, msg)
}

func (d *decoder) readTag() (Tag, error) {
	if d.remaining() < 4 {
		return Tag{}, dicomerr.NewMalformedElement(0, 0, "truncated tag")
	}
	tag := Tag{
		Group:   d.sx.order.Uint16(d.data[d.off : d.off+2]),
		Element: d.sx.order.Uint16(d.data[d.off+2 : d.off+4]),
	}
	d.off += 4
	return tag, nil
}

func (d *decoder) readUint32(tag Tag) (uint32, error) {
	if d.remaining() < 4 {
		return 0, d.malformed(tag, "truncated length field")
	}
	v := d.sx.order.Uint32(d.data[d.off : d.off+4])
	d.off += 4
	return v, nil
}

// element decodes one data element at the cursor.
func (d *decoder) element() (*Element, error) {
	tag, err := d.readTag()
	if err != nil {
		return nil, err
	}

	var vr string
	var length uint32

	if d.sx.explicit {
		if d.remaining() < 2 {
			return nil, d.malformed(tag, "truncated VR field")
		}
		vr = string(d.data[d.off : d.off+2])
		d.off += 2

		if isLongLengthVR(vr) {
			d.off += 2 // reserved
			if length, err = d.readUint32(tag); err != nil {
				return nil, err
			}
		} else {
			if d.remaining() < 2 {
				return nil, d.malformed(tag, "truncated length field")
			}
			length = uint32(d.sx.order.Uint16(d.data[d.off : d.off+2]))
			d.off += 2
		}
	} else {
		vr = VRFor(tag)
		if length, err = d.readUint32(tag); err != nil {
			return nil, err
		}
	}

	// Sequences nest recursively. An undefined length on a non-SQ VR can
	// only mean a sequence encoded as UN under implicit VR.
	if vr == VRSequence || length == undefinedLength {
		items, err := d.sequence(tag, length)
		if err != nil {
			return nil, err
		}
		return &Element{Tag: tag, VR: VRSequence, Value: items}, nil
	}

	if int(length) > d.remaining() {
		return nil, d.malformed(tag,
			fmt.Sprintf("declared length %d exceeds %d remaining bytes", length, d.remaining()))
	}

	raw := d.data[d.off : d.off+int(length)]
	d.off += int(length)

	return &Element{Tag: tag, VR: vr, Value: decodeValue(vr, raw)}, nil
}

// sequence decodes SQ items, handling both defined lengths and the
// delimiter-terminated undefined form.
func (d *decoder) sequence(tag Tag, length uint32) ([]*Dataset, error) {
	items := []*Dataset{}

	if length != undefinedLength {
		end := d.off + int(length)
		if int(length) > d.remaining() {
			return nil, d.malformed(tag,
				fmt.Sprintf("sequence length %d exceeds %d remaining bytes", length, d.remaining()))
		}
		for d.off < end {
			item, err := d.item(tag)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if d.off != end {
			return nil, d.malformed(tag, "sequence items overran declared length")
		}
		return items, nil
	}

	for {
		next, err := d.readTag()
		if err != nil {
			return nil, err
		}
		if next == tagSequenceDelimiter {
			if _, err := d.readUint32(tag); err != nil {
				return nil, err
			}
			return items, nil
		}
		d.off -= 4
		item, err := d.item(tag)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

// item decodes one sequence item, defined or delimiter-terminated.
func (d *decoder) item(seqTag Tag) (*Dataset, error) {
	tag, err := d.readTag()
	if err != nil {
		return nil, err
	}
	if tag != tagItem {
		return nil, d.malformed(seqTag, fmt.Sprintf("expected item tag, found %s", tag))
	}

	length, err := d.readUint32(tag)
	if err != nil {
		return nil, err
	}

	ds := NewDataset()

	if length != undefinedLength {
		end := d.off + int(length)
		if int(length) > d.remaining() {
			return nil, d.malformed(seqTag,
				fmt.Sprintf("item length %d exceeds %d remaining bytes", length, d.remaining()))
		}
		for d.off < end {
			elem, err := d.element()
			if err != nil {
				return nil, err
			}
			ds.Add(elem.Tag, elem.VR, elem.Value)
		}
		if d.off != end {
			return nil, d.malformed(seqTag, "item elements overran declared length")
		}
		return ds, nil
	}

	for {
		next, err := d.readTag()
		if err != nil {
			return nil, err
		}
		if next == tagItemDelimiter {
			if _, err := d.readUint32(next); err != nil {
				return nil, err
			}
			return ds, nil
		}
		d.off -= 4
		elem, err := d.element()
		if err != nil {
			return nil, err
		}
		ds.Add(elem.Tag, elem.VR, elem.Value)
	}
}

// decodeValue converts raw bytes into the element's Go value. Text VRs trim
// the even-length padding; everything else, private tags included, keeps the
// raw bytes untouched.
func decodeValue(vr string, raw []byte) interface{} {
	if isTextVR(vr) {
		s := string(raw)
		for len(s) > 0 && (s[len(s)-1] == 0x00 || s[len(s)-1] == ' ') {
			s = s[:len(s)-1]
		}
		return s
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}
