package main

import (
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/commands"
	"github.com/spf13/cobra"
)

// NewVerifyCommand creates the 'verify' command for the CLI.
func NewVerifyCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "verify <device>",
		Short: "Check that a transfer list can be applied or resumed.",
		Long: `Runs a transfer list without writing to the device. Every source the
update needs must still be present, either on the device or in a stash.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options(args[0])
			if err != nil {
				return err
			}
			_, err = commands.Verify(cmd.Context(), opts)
			return err
		},
	}

	flags.register(cmd)
	return cmd
}
