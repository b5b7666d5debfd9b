package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mhollis/skiff/internal/client"
	"github.com/mhollis/skiff/internal/config"
	"github.com/mhollis/skiff/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	password  string
	serverURL string

	cfg    *config.Config
	core   *client.Client
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "skiff",
	Short: "Remote file browser and upload tool",
	Long: `Skiff browses, organizes and uploads files on a remote file server.

Configuration is read from skiff.yaml (current directory,
~/.config/skiff or ~/.skiff) and SKIFF_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		if serverURL != "" {
			cfg.Backend.BaseURL = serverURL
		}
		if password != "" {
			cfg.Backend.Password = password
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}

		logger = logging.New(&cfg.Log)

		core, err = client.New(cfg, logger)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if core != nil {
			return core.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file path (default: skiff.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "",
		"Backend server URL (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "",
		"Backend password (overrides config, prompts if needed)")
}

// requireBackend ensures a configured connection, prompting for a
// password on a terminal when the URL is set but the password is not.
func requireBackend() error {
	if core.Configured() {
		return nil
	}

	if cfg.Backend.BaseURL != "" && cfg.Backend.Password == "" && term.IsTerminal(int(syscall.Stdin)) {
		fmt.Fprint(os.Stderr, "Password: ")
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		cfg.Backend.Password = string(pw)
		var rebuildErr error
		core, rebuildErr = client.New(cfg, logger)
		if rebuildErr != nil {
			return rebuildErr
		}
		if core.Configured() {
			return nil
		}
	}

	return fmt.Errorf("no backend configured; set backend.base_url in skiff.yaml or pass --server")
}
