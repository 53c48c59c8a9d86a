package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/lib"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/types"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	workDir    string
	logLevel   string
	verbose    bool
}

var global globalFlags

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig() (types.Config, error) {
	cfg, err := lib.LoadConfig(global.configPath)
	if err != nil {
		return types.Config{}, err
	}
	if global.workDir != "" {
		cfg.WorkDir = global.workDir
	}
	if global.logLevel != "" {
		cfg.LogLevel = global.logLevel
	}
	if global.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func main() {
	var rootCmd = &cobra.Command{
		Use:          "blockimg",
		Short:        "Apply block-based OTA transfer lists to partitions.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&global.configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&global.workDir, "work-dir", "w", "", "Directory for stashes and checkpoints (default \".blockimg\")")
	rootCmd.PersistentFlags().StringVar(&global.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&global.verbose, "verbose", "v", false, "Shorthand for --log-level debug")

	// Add commands
	rootCmd.AddCommand(NewApplyCommand())
	rootCmd.AddCommand(NewVerifyCommand())
	rootCmd.AddCommand(NewInspectCommand())
	rootCmd.AddCommand(NewCleanCommand())
	rootCmd.AddCommand(NewRangeSha1Command())
	rootCmd.AddCommand(NewCompletionCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}
