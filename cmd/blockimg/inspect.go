package main

import (
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/commands"
	"github.com/spf13/cobra"
)

// NewInspectCommand creates the 'inspect' command for the CLI.
func NewInspectCommand() *cobra.Command {
	var opts commands.InspectOptions

	cmd := &cobra.Command{
		Use:   "inspect [transfer-list]",
		Short: "Summarize a transfer list.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.TransferList = args[0]
			}
			_, err := commands.Inspect(opts)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Package, "package", "", "OTA zip to read the transfer list from")
	cmd.Flags().StringVarP(&opts.Partition, "partition", "p", "", "Partition name inside the package")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the report as JSON")
	_ = cmd.RegisterFlagCompletionFunc("partition", partitionCompletions)

	return cmd
}
