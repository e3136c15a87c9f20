// Package dicom implements the data set codec: DICOM data elements encoded
// and decoded under the explicit and implicit VR transfer syntaxes (PS3.5).
package dicom

import (
	"fmt"
	"sort"
	"strings"
)

// Tag identifies a data element by (group, element) pair.
type Tag struct {
	Group   uint16
	Element uint16
}

// String renders the tag in the conventional (GGGG,EEEE) form.
func (t Tag) String() string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// Less orders tags ascending by group, then element.
func (t Tag) Less(o Tag) bool {
	if t.Group != o.Group {
		return t.Group < o.Group
	}
	return t.Element < o.Element
}

// IsPrivate reports whether the tag belongs to a private (odd) group.
func (t Tag) IsPrivate() bool {
	return t.Group%2 == 1
}

// Commonly used tags.
var (
	TagSpecificCharacterSet           = Tag{0x0008, 0x0005}
	TagSOPClassUID                    = Tag{0x0008, 0x0016}
	TagSOPInstanceUID                 = Tag{0x0008, 0x0018}
	TagStudyDate                      = Tag{0x0008, 0x0020}
	TagStudyTime                      = Tag{0x0008, 0x0030}
	TagAccessionNumber                = Tag{0x0008, 0x0050}
	TagQueryRetrieveLevel             = Tag{0x0008, 0x0052}
	TagRetrieveAETitle                = Tag{0x0008, 0x0054}
	TagModality                       = Tag{0x0008, 0x0060}
	TagModalitiesInStudy              = Tag{0x0008, 0x0061}
	TagReferringPhysicianName         = Tag{0x0008, 0x0090}
	TagStudyDescription               = Tag{0x0008, 0x1030}
	TagSeriesDescription              = Tag{0x0008, 0x103E}
	TagReferencedSeriesSequence       = Tag{0x0008, 0x1115}
	TagPatientName                    = Tag{0x0010, 0x0010}
	TagPatientID                      = Tag{0x0010, 0x0020}
	TagPatientBirthDate               = Tag{0x0010, 0x0030}
	TagPatientSex                     = Tag{0x0010, 0x0040}
	TagPatientComments                = Tag{0x0010, 0x4000}
	TagBodyPartExamined               = Tag{0x0018, 0x0015}
	TagStudyInstanceUID               = Tag{0x0020, 0x000D}
	TagSeriesInstanceUID              = Tag{0x0020, 0x000E}
	TagStudyID                        = Tag{0x0020, 0x0010}
	TagSeriesNumber                   = Tag{0x0020, 0x0011}
	TagInstanceNumber                 = Tag{0x0020, 0x0013}
	TagNumberOfStudyRelatedSeries     = Tag{0x0020, 0x1206}
	TagNumberOfStudyRelatedInstances  = Tag{0x0020, 0x1208}
	TagNumberOfSeriesRelatedInstances = Tag{0x0020, 0x1209}
	TagNumberOfFrames                 = Tag{0x0028, 0x0008}
	TagRows                           = Tag{0x0028, 0x0010}
	TagColumns                        = Tag{0x0028, 0x0011}
	TagEncapsulatedDocument           = Tag{0x0042, 0x0011}
)

// Sequence delimitation tags (PS3.5, Section 7.5).
var (
	tagItem              = Tag{0xFFFE, 0xE000}
	tagItemDelimiter     = Tag{0xFFFE, 0xE00D}
	tagSequenceDelimiter = Tag{0xFFFE, 0xE0DD}
)

// undefinedLength marks sequences and items terminated by a delimiter rather
// than a byte count.
const undefinedLength = 0xFFFFFFFF

// Element is a single data element. Value holds a string for text VRs, a
// []byte for binary and unknown VRs, or []*Dataset for SQ. Those are the
// canonical forms the decoder produces; the encoder additionally takes
// []string (backslash-joined) and uint16/uint32 (written in the transfer
// syntax's byte order), which come back as []byte after a round trip.
type Element struct {
	Tag   Tag
	VR    string
	Value interface{}
}

// Dataset is an ordered mapping of tag to element. Tags are unique and
// iterate ascending by group, then element.
type Dataset struct {
	elements map[Tag]*Element
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{elements: make(map[Tag]*Element)}
}

// Add inserts or replaces an element.
func (d *Dataset) Add(tag Tag, vr string, value interface{}) {
	d.elements[tag] = &Element{Tag: tag, VR: vr, Value: value}
}

// AddString inserts a text element, resolving the VR from the dictionary.
func (d *Dataset) AddString(tag Tag, value string) {
	d.Add(tag, VRFor(tag), value)
}

// Get returns the element for tag, if present.
func (d *Dataset) Get(tag Tag) (*Element, bool) {
	e, ok := d.elements[tag]
	return e, ok
}

// Len returns the number of elements.
func (d *Dataset) Len() int {
	return len(d.elements)
}

// Tags returns all tags in ascending order.
func (d *Dataset) Tags() []Tag {
	tags := make([]Tag, 0, len(d.elements))
	for tag := range d.elements {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Less(tags[j]) })
	return tags
}

// Elements returns all elements in tag order.
func (d *Dataset) Elements() []*Element {
	tags := d.Tags()
	out := make([]*Element, len(tags))
	for i, tag := range tags {
		out[i] = d.elements[tag]
	}
	return out
}

// GetString returns the trimmed string value for tag, or "" when absent or
// not a text element.
func (d *Dataset) GetString(tag Tag) string {
	e, ok := d.elements[tag]
	if !ok {
		return ""
	}
	if s, ok := e.Value.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// GetStrings splits a multi-valued text element on the DICOM value separator.
func (d *Dataset) GetStrings(tag Tag) []string {
	s := d.GetString(tag)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "\\")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// GetBytes returns the raw byte value for tag, or nil.
func (d *Dataset) GetBytes(tag Tag) []byte {
	e, ok := d.elements[tag]
	if !ok {
		return nil
	}
	if b, ok := e.Value.([]byte); ok {
		return b
	}
	return nil
}

// GetSequence returns the nested item datasets of an SQ element, or nil.
func (d *Dataset) GetSequence(tag Tag) []*Dataset {
	e, ok := d.elements[tag]
	if !ok {
		return nil
	}
	if items, ok := e.Value.([]*Dataset); ok {
		return items
	}
	return nil
}
