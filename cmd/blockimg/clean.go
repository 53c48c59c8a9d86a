package main

import (
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/commands"
	"github.com/spf13/cobra"
)

func NewCleanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean <device>",
		Short: "Remove stashes, checkpoint and updated marker of a device.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return commands.Clean(cfg, args[0])
		},
	}
	return cmd
}
