package dicom

// VR constants for the value representations the engine handles directly.
const (
	VRApplicationEntity = "AE"
	VRAgeString         = "AS"
	VRCodeString        = "CS"
	VRDate              = "DA"
	VRDecimalString     = "DS"
	VRDateTime          = "DT"
	VRIntegerString     = "IS"
	VRLongString        = "LO"
	VRLongText          = "LT"
	VROtherByte         = "OB"
	VROtherWord         = "OW"
	VRPersonName        = "PN"
	VRShortString       = "SH"
	VRSequence          = "SQ"
	VRShortText         = "ST"
	VRTime              = "TM"
	VRUniqueIdentifier  = "UI"
	VRUnsignedLong      = "UL"
	VRUnknown           = "UN"
	VRUnsignedShort     = "US"
	VRUnlimitedText     = "UT"
)

// longLengthVRs are the VRs encoded with a 4-byte length (after 2 reserved
// bytes) under explicit VR syntaxes. Everything else uses a 2-byte length.
var longLengthVRs = map[string]bool{
	"OB": true, "OD": true, "OF": true, "OL": true, "OV": true,
	"OW": true, "SQ": true, "SV": true, "UC": true, "UN": true,
	"UR": true, "UT": true, "UV": true,
}

// textVRs hold character data and decode to Go strings.
var textVRs = map[string]bool{
	"AE": true, "AS": true, "CS": true, "DA": true, "DS": true,
	"DT": true, "IS": true, "LO": true, "LT": true, "PN": true,
	"SH": true, "ST": true, "TM": true, "UC": true, "UI": true,
	"UR": true, "UT": true,
}

// tagVRs resolves VRs for implicit VR data sets. Keyed by the fixed
// (group, element) pair; tags outside the table decode as UN.
var tagVRs = map[Tag]string{
	TagSpecificCharacterSet:           VRCodeString,
	{0x0008, 0x0008}:                  VRCodeString, // Image Type
	TagSOPClassUID:                    VRUniqueIdentifier,
	TagSOPInstanceUID:                 VRUniqueIdentifier,
	TagStudyDate:                      VRDate,
	{0x0008, 0x0021}:                  VRDate, // Series Date
	{0x0008, 0x0023}:                  VRDate, // Content Date
	TagStudyTime:                      VRTime,
	{0x0008, 0x0031}:                  VRTime, // Series Time
	{0x0008, 0x0033}:                  VRTime, // Content Time
	TagAccessionNumber:                VRShortString,
	TagQueryRetrieveLevel:             VRCodeString,
	TagRetrieveAETitle:                VRApplicationEntity,
	TagModality:                       VRCodeString,
	TagModalitiesInStudy:              VRCodeString,
	{0x0008, 0x0070}:                  VRLongString, // Manufacturer
	{0x0008, 0x0080}:                  VRLongString, // Institution Name
	TagReferringPhysicianName:         VRPersonName,
	TagStudyDescription:               VRLongString,
	TagSeriesDescription:              VRLongString,
	{0x0008, 0x1050}:                  VRPersonName, // Performing Physician's Name
	{0x0008, 0x1060}:                  VRPersonName, // Name of Physician(s) Reading Study
	{0x0008, 0x1090}:                  VRLongString, // Manufacturer's Model Name
	TagPatientName:                    VRPersonName,
	TagPatientID:                      VRLongString,
	TagPatientBirthDate:               VRDate,
	TagPatientSex:                     VRCodeString,
	{0x0010, 0x1010}:                  VRAgeString,     // Patient's Age
	{0x0010, 0x1030}:                  VRDecimalString, // Patient's Weight
	TagPatientComments:                VRLongText,
	TagBodyPartExamined:               VRCodeString,
	{0x0018, 0x1030}:                  VRLongString, // Protocol Name
	TagStudyInstanceUID:               VRUniqueIdentifier,
	TagSeriesInstanceUID:              VRUniqueIdentifier,
	TagStudyID:                        VRShortString,
	TagSeriesNumber:                   VRIntegerString,
	TagInstanceNumber:                 VRIntegerString,
	TagNumberOfStudyRelatedSeries:     VRIntegerString,
	TagNumberOfStudyRelatedInstances:  VRIntegerString,
	TagNumberOfSeriesRelatedInstances: VRIntegerString,
	TagNumberOfFrames:                 VRIntegerString,
	TagRows:                           VRUnsignedShort,
	TagColumns:                        VRUnsignedShort,
	{0x0040, 0x0244}:                  VRDate,       // Performed Procedure Step Start Date
	{0x0040, 0x0254}:                  VRLongString, // Performed Procedure Step Description
	{0x0042, 0x0010}:                  VRShortText,  // Document Title
	TagEncapsulatedDocument:           VROtherByte,
	{0x0042, 0x0012}:                  VRLongString, // MIME Type of Encapsulated Document
	{0x0008, 0x1110}:                  VRSequence,   // Referenced Study Sequence
	TagReferencedSeriesSequence:       VRSequence,
	{0x0008, 0x1199}:                  VRSequence, // Referenced SOP Sequence
	{0x0040, 0x0275}:                  VRSequence, // Request Attributes Sequence
}

// VRFor resolves a tag's VR from the static dictionary. Unknown tags,
// private tags included, resolve to UN and keep their raw bytes.
func VRFor(tag Tag) string {
	if vr, ok := tagVRs[tag]; ok {
		return vr
	}
	return VRUnknown
}

// isLongLengthVR reports whether vr uses the 4-byte length form under
// explicit VR syntaxes.
func isLongLengthVR(vr string) bool {
	return longLengthVRs[vr]
}

// isTextVR reports whether vr carries character data.
func isTextVR(vr string) bool {
	return textVRs[vr]
}
