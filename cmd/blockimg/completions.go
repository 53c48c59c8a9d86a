package main

import (
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/lib"
	"github.com/spf13/cobra"
)

// partitionCompletions suggests the partitions of the package named by the
// --package flag.
func partitionCompletions(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	pkgPath, err := cmd.Flags().GetString("package")
	if err != nil || pkgPath == "" {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	pkg, err := lib.OpenPackage(pkgPath)
	if err != nil {
		// Don't return an error, just fail to complete.
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer pkg.Close()

	return pkg.Partitions(), cobra.ShellCompDirectiveNoFileComp
}
