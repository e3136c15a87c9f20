// Package types holds the DICOM identifiers and message structures shared by
// the codec, association, and service layers.
package types

import "strings"

// ApplicationContextUID names the DICOM application context proposed in every
// A-ASSOCIATE-RQ (PS3.7, Annex A).
const ApplicationContextUID = "1.2.840.10008.3.1.1.1"

// Transfer syntax UIDs (PS3.5, Chapter 10 / PS3.6, Annex A).
const (
	// ImplicitVRLittleEndian is the default transfer syntax every
	// conformant implementation must support.
	ImplicitVRLittleEndian = "1.2.840.10008.1.2"

	// ExplicitVRLittleEndian is preferred on the wire when available.
	ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"

	// ExplicitVRBigEndian is retired but still emitted by older archives.
	ExplicitVRBigEndian = "1.2.840.10008.1.2.2"

	// DeflatedExplicitVRLittleEndian wraps explicit VR in a deflate stream.
	DeflatedExplicitVRLittleEndian = "1.2.840.10008.1.2.1.99"
)

// Verification service.
const VerificationSOPClass = "1.2.840.10008.1.1"

// Implementation identification sent in the user information item and in
// the file meta information of written instances.
const (
	ImplementationClassUID    = "1.2.826.0.1.3680043.10.1427.1"
	ImplementationVersionName = "DICOMQR-0.1"
)

// Query/Retrieve information model SOP classes (PS3.4, Annex C).
const (
	PatientRootQueryRetrieveFind = "1.2.840.10008.5.1.4.1.2.1.1"
	PatientRootQueryRetrieveMove = "1.2.840.10008.5.1.4.1.2.1.2"
	PatientRootQueryRetrieveGet  = "1.2.840.10008.5.1.4.1.2.1.3"
	StudyRootQueryRetrieveFind   = "1.2.840.10008.5.1.4.1.2.2.1"
	StudyRootQueryRetrieveMove   = "1.2.840.10008.5.1.4.1.2.2.2"
	StudyRootQueryRetrieveGet    = "1.2.840.10008.5.1.4.1.2.2.3"
)

// Storage SOP classes the engine proposes when it may receive or push
// composite objects. The list is not exhaustive; IsStorageSOPClass covers the
// rest of the storage family by prefix.
const (
	ComputedRadiographyImageStorage = "1.2.840.10008.5.1.4.1.1.1"
	CTImageStorage                  = "1.2.840.10008.5.1.4.1.1.2"
	EnhancedCTImageStorage          = "1.2.840.10008.5.1.4.1.1.2.1"
	MRImageStorage                  = "1.2.840.10008.5.1.4.1.1.4"
	EnhancedMRImageStorage          = "1.2.840.10008.5.1.4.1.1.4.1"
	UltrasoundImageStorage          = "1.2.840.10008.5.1.4.1.1.6.1"
	SecondaryCaptureImageStorage    = "1.2.840.10008.5.1.4.1.1.7"
	XRayAngiographicImageStorage    = "1.2.840.10008.5.1.4.1.1.12.1"
	NuclearMedicineImageStorage     = "1.2.840.10008.5.1.4.1.1.20"
	EncapsulatedPDFStorage          = "1.2.840.10008.5.1.4.1.1.104.1"
	EncapsulatedCDAStorage          = "1.2.840.10008.5.1.4.1.1.104.2"
	PETImageStorage                 = "1.2.840.10008.5.1.4.1.1.128"
	RTImageStorage                  = "1.2.840.10008.5.1.4.1.1.481.1"
	RTDoseStorage                   = "1.2.840.10008.5.1.4.1.1.481.2"
	RTStructureSetStorage           = "1.2.840.10008.5.1.4.1.1.481.3"
	RTPlanStorage                   = "1.2.840.10008.5.1.4.1.1.481.5"
)

// StorageSOPClasses enumerates the storage classes offered as presentation
// contexts when acting as a store receiver (C-MOVE destination or C-GET).
var StorageSOPClasses = []string{
	ComputedRadiographyImageStorage,
	CTImageStorage,
	EnhancedCTImageStorage,
	MRImageStorage,
	EnhancedMRImageStorage,
	UltrasoundImageStorage,
	SecondaryCaptureImageStorage,
	XRayAngiographicImageStorage,
	NuclearMedicineImageStorage,
	EncapsulatedPDFStorage,
	EncapsulatedCDAStorage,
	PETImageStorage,
	RTImageStorage,
	RTDoseStorage,
	RTStructureSetStorage,
	RTPlanStorage,
}

// storageSOPClassPrefix covers the composite object storage family
// (1.2.840.10008.5.1.4.1.1.*).
const storageSOPClassPrefix = "1.2.840.10008.5.1.4.1.1."

// IsStorageSOPClass reports whether uid names a composite object storage SOP
// class, including ones not listed explicitly above.
func IsStorageSOPClass(uid string) bool {
	return strings.HasPrefix(uid, storageSOPClassPrefix)
}

// TrimUID strips the trailing null and space padding DICOM allows on UID
// strings as transmitted.
func TrimUID(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00 ")
}
