package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/drpcorg/scenesync"
	"github.com/drpcorg/scenesync/repl"
	"github.com/drpcorg/scenesync/utils"
	"github.com/spf13/cobra"
)

var (
	configPath string
	storePath  string
	assetDir   string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "scenesync",
	Short: "Collaborative scene editing session tools",
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Run a session with two simulated users",
	Long: `Run an in-process session server with two editors, alice and bob,
and read commands from the console. Type help for the command list.`,
	Args: cobra.NoArgs,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(checksumCmd)

	replCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML options file")
	replCmd.Flags().StringVar(&storePath, "store", "", "Pebble directory to persist the session to")
	replCmd.Flags().StringVar(&assetDir, "assets", "", "Directory of saved assets")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Debug logging")
}

func logger() utils.Logger {
	if debug {
		return utils.NewDefaultLogger(slog.LevelDebug)
	}
	return utils.NewDefaultLogger(slog.LevelWarn)
}

func runREPL(cmd *cobra.Command, args []string) error {
	var opts scenesync.Options
	if configPath != "" {
		var err error
		if opts, err = scenesync.LoadOptions(configPath); err != nil {
			return err
		}
	}
	if storePath != "" {
		opts.StorePath = storePath
	}
	if assetDir != "" {
		opts.AssetDir = assetDir
	}
	opts.LogDebug = opts.LogDebug || debug

	r, err := repl.New(opts, logger(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err = r.Open(); err != nil {
		_ = r.Close()
		return err
	}
	err = r.Run()
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
