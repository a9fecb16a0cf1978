// Apophis CLI - runs hybrid programs, exotic source and the servers
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	apophis "github.com/djlacavera21/Apophis"
	"github.com/djlacavera21/Apophis/config"
)

var (
	configPath string
	verbosity  int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "apophis",
		Short:   "Run programs that mix two scripting dialects with exotic VM code",
		Version: apophis.Version,
		Long: `Apophis runs hybrid programs. Lines starting with ':' are primary
script, ';' secondary script, '#' comments; every other non-blank line is
exotic VM source.`,
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default: apophis.toml found from the working directory up)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")

	rootCmd.AddCommand(
		newRunCmd(),
		newExecCmd(),
		newEncodeCmd(),
		newCryptCmd(),
		newParseCmd(),
		newCheckCmd(),
		newReplCmd(),
		newLspCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// loadConfig reads the settings file and configures logging. Without a
// file the defaults apply.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}

	level := cfg.Log.Verbosity + verbosity
	var path *string
	if cfg.Log.File != "" {
		path = &cfg.Log.File
	}
	commonlog.Configure(level, path)
	return cfg, nil
}

// fail prints err and returns an error that makes cobra exit non-zero
// without printing it again.
func fail(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	cmd.SilenceErrors = true
	cmd.Root().SilenceErrors = true
	return err
}
