package query

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pacsops/dicomqr/dicom"
	"github.com/pacsops/dicomqr/types"
)

func identifierStrings(t *testing.T, ds *dicom.Dataset) map[dicom.Tag]string {
	t.Helper()
	out := make(map[dicom.Tag]string)
	for _, tag := range ds.Tags() {
		out[tag] = ds.GetString(tag)
	}
	return out
}

func TestBuildStudyStandard(t *testing.T) {
	ds, err := New(types.QueryLevelStudy).
		Match(dicom.TagPatientID, "PAT001").
		Match(dicom.TagStudyDate, "20240101-20240131").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := map[dicom.Tag]string{
		dicom.TagQueryRetrieveLevel: "STUDY",
		dicom.TagPatientID:          "PAT001",
		dicom.TagStudyDate:          "20240101-20240131",
		dicom.TagStudyInstanceUID:   "",
		dicom.TagStudyDescription:   "",
		dicom.TagPatientName:        "",
		dicom.TagStudyTime:          "",
		dicom.TagAccessionNumber:    "",
		dicom.TagModalitiesInStudy:  "",
		dicom.TagStudyID:            "",
	}
	if diff := cmp.Diff(want, identifierStrings(t, ds)); diff != "" {
		t.Errorf("identifier mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildMinimalPresetOmitsStandardKeys(t *testing.T) {
	ds, err := New(types.QueryLevelStudy).
		WithPreset(PresetMinimal).
		Match(dicom.TagStudyInstanceUID, "1.2.3").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, ok := ds.Get(dicom.TagAccessionNumber); ok {
		t.Error("minimal preset should not request AccessionNumber")
	}
	if got := ds.GetString(dicom.TagStudyInstanceUID); got != "1.2.3" {
		t.Errorf("StudyInstanceUID = %q, want 1.2.3", got)
	}
	if _, ok := ds.Get(dicom.TagStudyDate); !ok {
		t.Error("minimal preset should still request StudyDate")
	}
}

func TestBuildExtendedPresetAddsCounts(t *testing.T) {
	ds, err := New(types.QueryLevelStudy).WithPreset(PresetExtended).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, tag := range []dicom.Tag{
		dicom.TagNumberOfStudyRelatedSeries,
		dicom.TagNumberOfStudyRelatedInstances,
		dicom.TagReferringPhysicianName,
		dicom.TagAccessionNumber,
	} {
		if _, ok := ds.Get(tag); !ok {
			t.Errorf("extended preset missing return key %s", tag)
		}
	}
}

func TestBuildIncludeAndExclude(t *testing.T) {
	ds, err := New(types.QueryLevelSeries).
		Include(dicom.TagBodyPartExamined).
		Exclude(dicom.TagSeriesDescription).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, ok := ds.Get(dicom.TagBodyPartExamined); !ok {
		t.Error("included key missing from identifier")
	}
	if _, ok := ds.Get(dicom.TagSeriesDescription); ok {
		t.Error("excluded key still present in identifier")
	}
}

func TestBuildEmptyMatchValuesIgnored(t *testing.T) {
	ds, err := New(types.QueryLevelPatient).
		WithPreset(PresetMinimal).
		Match(dicom.TagPatientSex, "").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := ds.Get(dicom.TagPatientSex); ok {
		t.Error("empty match value should not produce a key")
	}
}

func TestBuildUnknownLevel(t *testing.T) {
	if _, err := New(types.QueryLevel("VOLUME")).Build(); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestBuildUnknownPreset(t *testing.T) {
	if _, err := New(types.QueryLevelStudy).WithPreset(Preset("huge")).Build(); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}

func TestFindSOPClassPerLevel(t *testing.T) {
	if got := New(types.QueryLevelPatient).FindSOPClass(); got != types.PatientRootQueryRetrieveFind {
		t.Errorf("patient level FindSOPClass = %s", got)
	}
	if got := New(types.QueryLevelSeries).FindSOPClass(); got != types.StudyRootQueryRetrieveFind {
		t.Errorf("series level FindSOPClass = %s", got)
	}
}
