package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacsops/dicomqr/dicom"
	"github.com/pacsops/dicomqr/query"
	"github.com/pacsops/dicomqr/types"
)

type queryFlags struct {
	patientID   string
	patientName string
	birthDate   string
	accession   string
	studyUID    string
	seriesUID   string
	sopUID      string
	modality    string
	studyDate   string
	preset      string
}

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "C-FIND the active node",
	}
	cmd.AddCommand(newQueryLevelCmd("patient", types.QueryLevelPatient))
	cmd.AddCommand(newQueryLevelCmd("study", types.QueryLevelStudy))
	cmd.AddCommand(newQueryLevelCmd("series", types.QueryLevelSeries))
	cmd.AddCommand(newQueryLevelCmd("instance", types.QueryLevelImage))
	return cmd
}

func newQueryLevelCmd(name string, level types.QueryLevel) *cobra.Command {
	flags := &queryFlags{}

	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Query at the %s level", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, level, flags)
		},
	}

	cmd.Flags().StringVar(&flags.patientID, "patient-id", "", "Patient ID match key")
	cmd.Flags().StringVar(&flags.patientName, "patient-name", "", "Patient Name match key (wildcards allowed)")
	cmd.Flags().StringVar(&flags.birthDate, "birth-date", "", "Patient Birth Date match key (YYYYMMDD)")
	cmd.Flags().StringVar(&flags.accession, "accession", "", "Accession Number match key")
	cmd.Flags().StringVar(&flags.studyUID, "study-uid", "", "Study Instance UID match key")
	cmd.Flags().StringVar(&flags.seriesUID, "series-uid", "", "Series Instance UID match key")
	cmd.Flags().StringVar(&flags.sopUID, "sop-uid", "", "SOP Instance UID match key")
	cmd.Flags().StringVar(&flags.modality, "modality", "", "Modality match key")
	cmd.Flags().StringVar(&flags.studyDate, "study-date", "", "Study Date match key (YYYYMMDD or range)")
	cmd.Flags().StringVar(&flags.preset, "preset", "standard", "return key preset: minimal, standard, extended")

	return cmd
}

func runQuery(cmd *cobra.Command, level types.QueryLevel, flags *queryFlags) error {
	identifier, err := query.New(level).
		WithPreset(query.Preset(flags.preset)).
		Match(dicom.TagPatientID, flags.patientID).
		Match(dicom.TagPatientName, flags.patientName).
		Match(dicom.TagPatientBirthDate, flags.birthDate).
		Match(dicom.TagAccessionNumber, flags.accession).
		Match(dicom.TagStudyInstanceUID, flags.studyUID).
		Match(dicom.TagSeriesInstanceUID, flags.seriesUID).
		Match(dicom.TagSOPInstanceUID, flags.sopUID).
		Match(dicom.TagModality, flags.modality).
		Match(dicom.TagStudyDate, flags.studyDate).
		Build()
	if err != nil {
		return err
	}

	reg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}

	sopClass := level.FindSOPClass()
	assoc, err := openCurrent(cmd, reg, []string{sopClass})
	if err != nil {
		return err
	}
	defer assoc.Release()

	it, err := assoc.Find(sopClass, identifier)
	if err != nil {
		return err
	}

	count := 0
	for it.Next() {
		count++
		fmt.Printf("match %d:\n", count)
		printDataset(it.Dataset())
	}
	if err := it.Err(); err != nil {
		return err
	}

	fmt.Printf("%d match(es)\n", count)
	return nil
}

func printDataset(ds *dicom.Dataset) {
	for _, tag := range ds.Tags() {
		if val := ds.GetString(tag); val != "" {
			fmt.Printf("  %s  %s\n", tag, val)
		}
	}
}
