package types

// QueryLevel is the value of the QueryRetrieveLevel (0008,0052) attribute.
type QueryLevel string

const (
	QueryLevelPatient QueryLevel = "PATIENT"
	QueryLevelStudy   QueryLevel = "STUDY"
	QueryLevelSeries  QueryLevel = "SERIES"
	QueryLevelImage   QueryLevel = "IMAGE"
)

// FindSOPClass returns the study-root C-FIND information model for the level.
// Patient-level queries use the patient root; everything else goes through the
// study root, matching what mainstream archives accept.
func (l QueryLevel) FindSOPClass() string {
	if l == QueryLevelPatient {
		return PatientRootQueryRetrieveFind
	}
	return StudyRootQueryRetrieveFind
}

// MoveSOPClass returns the C-MOVE information model for the level.
func (l QueryLevel) MoveSOPClass() string {
	if l == QueryLevelPatient {
		return PatientRootQueryRetrieveMove
	}
	return StudyRootQueryRetrieveMove
}

// GetSOPClass returns the C-GET information model for the level.
func (l QueryLevel) GetSOPClass() string {
	if l == QueryLevelPatient {
		return PatientRootQueryRetrieveGet
	}
	return StudyRootQueryRetrieveGet
}
