package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacsops/dicomqr/client"
	"github.com/pacsops/dicomqr/download"
	dcerr "github.com/pacsops/dicomqr/errors"
	"github.com/pacsops/dicomqr/registry"
)

type downloadFlags struct {
	studyUIDs  []string
	seriesUIDs []string
	sopUIDs    []string
	out        string
	method     string
	listen     string
	moveAET    string
}

func newDownloadCmd() *cobra.Command {
	flags := &downloadFlags{}

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Retrieve instances from the active node to a local directory",
		Long: `Retrieve whole studies, series, or single instances into
{out}/{StudyUID}/{SeriesUID}/{SOPInstanceUID}.dcm.

The default method is C-MOVE: a store SCP is started on --listen and the node
is told to send there, so the node must have our AE title registered against
that address. Nodes that support C-GET can skip the listener with
--method get.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.studyUIDs, "study-uid", nil, "Study Instance UID(s) to download")
	cmd.Flags().StringSliceVar(&flags.seriesUIDs, "series-uid", nil, "Series Instance UID(s) to download")
	cmd.Flags().StringSliceVar(&flags.sopUIDs, "sop-uid", nil, "SOP Instance UID(s) to download")
	cmd.Flags().StringVar(&flags.out, "out", "", "download root (default $DICOMQR_DOWNLOAD_ROOT or ./downloads)")
	cmd.Flags().StringVar(&flags.method, "method", "move", "retrieve method: move or get")
	cmd.Flags().StringVar(&flags.listen, "listen", ":11113", "store SCP listen address for C-MOVE")
	cmd.Flags().StringVar(&flags.moveAET, "move-aet", "", "AE title the node sends to (default the calling AE title)")

	return cmd
}

func runDownload(cmd *cobra.Command, flags *downloadFlags) error {
	if len(flags.studyUIDs)+len(flags.seriesUIDs)+len(flags.sopUIDs) == 0 {
		return fmt.Errorf("nothing to download: pass --study-uid, --series-uid, or --sop-uid")
	}

	reg, err := loadRegistry(cmd)
	if err != nil {
		return err
	}

	root := flags.out
	if root == "" {
		overrides, err := registry.OverridesFromEnv()
		if err != nil {
			return err
		}
		root = overrides.DownloadRoot
	}

	_, node := reg.Current()
	_, callingAET := reg.CurrentCallingAET()
	d := download.New(download.Config{
		Address:         node.Address(),
		CalledAETitle:   node.AETitle,
		CallingAETitle:  callingAET,
		MoveDestination: flags.moveAET,
		ListenAddress:   flags.listen,
		Root:            root,
		Method:          download.Method(flags.method),
		Logger:          setupLogging(cmd),
		OnProgress: func(s client.SubOperations) {
			fmt.Printf("\r%d remaining, %d completed, %d failed", s.Remaining, s.Completed, s.Failed)
		},
	})

	ctx := cmd.Context()
	total := &download.Result{}
	var firstErr error
	for _, batch := range []struct {
		uids []string
		run  func() (*download.Result, error)
	}{
		{flags.studyUIDs, func() (*download.Result, error) { return d.Studies(ctx, flags.studyUIDs) }},
		{flags.seriesUIDs, func() (*download.Result, error) { return d.Series(ctx, flags.seriesUIDs) }},
		{flags.sopUIDs, func() (*download.Result, error) { return d.Instances(ctx, flags.sopUIDs) }},
	} {
		if len(batch.uids) == 0 {
			continue
		}
		result, err := batch.run()
		fmt.Println()
		if result != nil {
			total.Paths = append(total.Paths, result.Paths...)
			total.Failed = append(total.Failed, result.Failed...)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, path := range total.Paths {
		fmt.Println(path)
	}
	for _, failure := range total.Failed {
		fmt.Printf("failed %s: %v\n", failure.SOPInstanceUID, failure.Err)
	}

	var partial *dcerr.PartialDownloadError
	if errors.As(firstErr, &partial) {
		fmt.Printf("downloaded %d instance(s), %d failed\n", len(total.Paths), len(total.Failed))
		return firstErr
	}
	if firstErr != nil {
		return firstErr
	}
	fmt.Printf("downloaded %d instance(s)\n", len(total.Paths))
	return nil
}
