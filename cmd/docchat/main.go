package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// options are the flags shared by every subcommand.
type options struct {
	// ConfigRoot is the directory holding config/setting.ini.
	ConfigRoot string
	// Model overrides the configured model for one run.
	Model string
	// Loopback answers from the built-in echo model instead of a model server.
	Loopback bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// newRootCommand wires every subcommand under the docchat root.
func newRootCommand() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:          "docchat",
		Short:        "Summarise, question and quiz yourself on PDF and text documents",
		SilenceUsage: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.ConfigRoot, "config-root", ".", "Directory containing config/setting.ini")
	flags.StringVar(&opts.Model, "model", "", "Model for this run")
	flags.BoolVar(&opts.Loopback, "loopback", false, "Use the built-in echo model")

	rootCmd.AddCommand(initCommand())
	rootCmd.AddCommand(extractCommand())
	rootCmd.AddCommand(summaryCommand(opts))
	rootCmd.AddCommand(askCommand(opts))
	rootCmd.AddCommand(challengeCommand(opts))
	rootCmd.AddCommand(modelsCommand(opts))
	rootCmd.AddCommand(versionCommand())
	return rootCmd
}
