package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacsops/dicomqr/types"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "C-ECHO the active node",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(cmd)
			if err != nil {
				return err
			}

			assoc, err := openCurrent(cmd, reg, []string{types.VerificationSOPClass})
			if err != nil {
				return err
			}
			defer assoc.Release()

			if err := assoc.Echo(); err != nil {
				return err
			}

			name, node := reg.Current()
			fmt.Printf("%s (%s at %s) answered C-ECHO\n", name, node.AETitle, node.Address())
			return nil
		},
	}
}
