package main

import (
	"fmt"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/commands"
	"github.com/spf13/cobra"
)

func NewRangeSha1Command() *cobra.Command {
	var blockSize uint64

	cmd := &cobra.Command{
		Use:   "range-sha1 <device> <ranges>",
		Short: "Print the SHA-1 of a range set of blocks.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if blockSize == 0 {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				blockSize = cfg.BlockSize
			}
			hash, err := commands.RangeHash(args[0], args[1], blockSize)
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&blockSize, "block-size", 0, "Block size in bytes (default from config, 4096)")
	return cmd
}
