package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Inspect and switch configured nodes",
	}
	cmd.AddCommand(newNodeListCmd())
	cmd.AddCommand(newNodeCurrentCmd())
	cmd.AddCommand(newNodeSwitchCmd())
	cmd.AddCommand(newNodeSwitchAETCmd())
	return cmd
}

func newNodeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured nodes and calling AE titles",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(cmd)
			if err != nil {
				return err
			}

			currentNode, _ := reg.Current()
			fmt.Println("nodes:")
			for _, name := range reg.Nodes() {
				node, _ := reg.Node(name)
				marker := " "
				if name == currentNode {
					marker = "*"
				}
				fmt.Printf("%s %-16s %s (%s)", marker, name, node.Address(), node.AETitle)
				if node.Description != "" {
					fmt.Printf("  %s", node.Description)
				}
				fmt.Println()
			}

			currentAET, _ := reg.CurrentCallingAET()
			fmt.Println("calling AE titles:")
			for _, name := range reg.CallingAETs() {
				marker := " "
				if name == currentAET {
					marker = "*"
				}
				fmt.Printf("%s %s\n", marker, name)
			}
			return nil
		},
	}
}

func newNodeCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show the active node and calling AE title",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			name, node := reg.Current()
			aetName, aet := reg.CurrentCallingAET()
			fmt.Printf("node: %s (%s at %s)\n", name, node.AETitle, node.Address())
			fmt.Printf("calling AE title: %s (%s)\n", aetName, aet)
			return nil
		},
	}
}

func newNodeSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <name>",
		Short: "Make a configured node the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			if err := reg.SwitchNode(args[0]); err != nil {
				return err
			}
			fmt.Printf("switched to node %s\n", args[0])
			return nil
		},
	}
}

func newNodeSwitchAETCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch-aet <name>",
		Short: "Make a configured calling AE title the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			if err := reg.SwitchCallingAET(args[0]); err != nil {
				return err
			}
			fmt.Printf("switched to calling AE title %s\n", args[0])
			return nil
		},
	}
}
