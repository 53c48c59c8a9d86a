package main

import (
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/commands"
	"github.com/spf13/cobra"
)

// runFlags are the update inputs shared by apply and verify.
type runFlags struct {
	partition    string
	pkg          string
	transferList string
	newData      string
	patchData    string
	blockSize    uint64
	retry        bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.partition, "partition", "p", "", "Partition name inside the package (defaults to the device's base name)")
	cmd.Flags().StringVar(&f.pkg, "package", "", "OTA zip holding <partition>.transfer.list, .new.dat[.br|.gz|.xz] and .patch.dat")
	cmd.Flags().StringVarP(&f.transferList, "transfer-list", "t", "", "Transfer list file")
	cmd.Flags().StringVarP(&f.newData, "new-data", "n", "", "New data file, optionally .br, .gz or .xz compressed")
	cmd.Flags().StringVar(&f.patchData, "patch-data", "", "Patch data file")
	cmd.Flags().Uint64Var(&f.blockSize, "block-size", 0, "Block size in bytes (default from config, 4096)")
	cmd.Flags().BoolVar(&f.retry, "retry", false, "This run retries a failed attempt")

	cmd.MarkFlagsMutuallyExclusive("package", "transfer-list")
	cmd.MarkFlagsOneRequired("package", "transfer-list")
	_ = cmd.RegisterFlagCompletionFunc("partition", partitionCompletions)
}

func (f *runFlags) options(device string) (commands.RunOptions, error) {
	cfg, err := loadConfig()
	if err != nil {
		return commands.RunOptions{}, err
	}
	if f.blockSize != 0 {
		cfg.BlockSize = f.blockSize
	}
	return commands.RunOptions{
		Config:       cfg,
		Device:       device,
		Partition:    f.partition,
		Package:      f.pkg,
		TransferList: f.transferList,
		NewData:      f.newData,
		PatchData:    f.patchData,
		Retry:        f.retry,
	}, nil
}
