package main

import (
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/commands"
	"github.com/spf13/cobra"
)

// NewApplyCommand creates the 'apply' command for the CLI.
func NewApplyCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "apply <device>",
		Short: "Apply a transfer list to a partition.",
		Long: `Executes a transfer list against a block device or image file.

Progress is checkpointed after every command, so an interrupted update can be
resumed by running the same command again with --retry. Once the update is
complete its stashes are removed and a marker is left that lets a later retry
skip the partition.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options(args[0])
			if err != nil {
				return err
			}
			_, err = commands.Apply(cmd.Context(), opts)
			return err
		},
	}

	flags.register(cmd)
	return cmd
}
