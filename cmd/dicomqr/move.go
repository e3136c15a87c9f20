package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacsops/dicomqr/client"
	"github.com/pacsops/dicomqr/dicom"
	"github.com/pacsops/dicomqr/types"
)

type moveFlags struct {
	destination string
	studyUID    string
	seriesUID   string
	sopUID      string
}

func newMoveCmd() *cobra.Command {
	flags := &moveFlags{}

	cmd := &cobra.Command{
		Use:   "move",
		Short: "C-MOVE instances to another AE title",
		Long: `Ask the active node to send matching instances to a destination AE title
the node already knows. Use download instead to receive instances here.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMove(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.destination, "destination", "", "destination AE title (required)")
	cmd.Flags().StringVar(&flags.studyUID, "study-uid", "", "Study Instance UID to retrieve")
	cmd.Flags().StringVar(&flags.seriesUID, "series-uid", "", "Series Instance UID to retrieve")
	cmd.Flags().StringVar(&flags.sopUID, "sop-uid", "", "SOP Instance UID to retrieve")
	cmd.MarkFlagRequired("destination")

	return cmd
}

func runMove(cmd *cobra.Command, flags *moveFlags) error {
	level, uidTag, uid, err := retrieveTarget(flags.studyUID, flags.seriesUID, flags.sopUID)
	if err != nil {
		return err
	}

	reg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}

	sopClass := level.MoveSOPClass()
	assoc, err := openCurrent(cmd, reg, []string{sopClass})
	if err != nil {
		return err
	}
	defer assoc.Release()

	identifier := dicom.NewDataset()
	identifier.AddString(dicom.TagQueryRetrieveLevel, string(level))
	identifier.AddString(uidTag, uid)

	result, err := assoc.Move(cmd.Context(), sopClass, flags.destination, identifier, func(s client.SubOperations) {
		fmt.Printf("\r%d remaining, %d completed, %d failed", s.Remaining, s.Completed, s.Failed)
	})
	fmt.Println()
	if err != nil {
		return err
	}

	fmt.Printf("move done: %d completed, %d failed, %d warning\n",
		result.SubOperations.Completed, result.SubOperations.Failed, result.SubOperations.Warning)
	return nil
}

// retrieveTarget maps exactly one of the UID flags onto its query level.
func retrieveTarget(studyUID, seriesUID, sopUID string) (types.QueryLevel, dicom.Tag, string, error) {
	set := 0
	for _, uid := range []string{studyUID, seriesUID, sopUID} {
		if uid != "" {
			set++
		}
	}
	if set != 1 {
		return "", dicom.Tag{}, "", fmt.Errorf("exactly one of --study-uid, --series-uid, --sop-uid is required")
	}
	switch {
	case studyUID != "":
		return types.QueryLevelStudy, dicom.TagStudyInstanceUID, studyUID, nil
	case seriesUID != "":
		return types.QueryLevelSeries, dicom.TagSeriesInstanceUID, seriesUID, nil
	default:
		return types.QueryLevelImage, dicom.TagSOPInstanceUID, sopUID, nil
	}
}
