package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pacsops/dicomqr/download"
	"github.com/pacsops/dicomqr/server"
	"github.com/pacsops/dicomqr/services"
	"github.com/pacsops/dicomqr/types"
)

type scpFlags struct {
	listen  string
	aeTitle string
	out     string
}

func newSCPCmd() *cobra.Command {
	flags := &scpFlags{}

	cmd := &cobra.Command{
		Use:   "scp",
		Short: "Run a standalone store SCP",
		Long: `Listen for inbound associations and write every received instance under
the output directory as a Part 10 file. Answers C-ECHO as well. Runs until
interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSCP(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.listen, "listen", ":11112", "listen address")
	cmd.Flags().StringVar(&flags.aeTitle, "aet", "DICOMQR", "AE title to answer to")
	cmd.Flags().StringVar(&flags.out, "out", "downloads", "directory instances are written under")

	return cmd
}

func runSCP(cmd *cobra.Command, flags *scpFlags) error {
	logger := setupLogging(cmd)

	sink := func(sopClassUID, sopInstanceUID, transferSyntax string, data []byte) uint16 {
		path, err := download.WriteInstance(flags.out, transferSyntax, data)
		if err != nil {
			logger.Error("store failed", "sop_instance_uid", sopInstanceUID, "error", err)
			return types.StatusUnableToProcess
		}
		fmt.Println(path)
		return types.StatusSuccess
	}

	handlers := services.NewRegistry(logger)
	handlers.Register(types.CEchoRQ, services.NewEchoService(logger))
	handlers.Register(types.CStoreRQ, services.NewStoreService(sink, logger))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("store SCP listening", "address", flags.listen, "ae_title", flags.aeTitle)
	err := server.ListenAndServe(ctx, flags.listen, flags.aeTitle, handlers, server.WithLogger(logger))
	if ctx.Err() != nil {
		return nil
	}
	return err
}
