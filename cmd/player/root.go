package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/logger"
	"github.com/stemsi/exstem-player/internal/store"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	backendURL string
	apiKey     string
	storePath  string
	logFile    string
	logLevel   string
	policyFile string
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "exstem-player",
		Short:         "Terminal player for proctored ExStem quizzes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.backendURL, "backend", cfg.QuizBackendURL, "quiz backend base URL")
	cmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", cfg.QuizAPIKey, "quiz backend API key")
	cmd.PersistentFlags().StringVar(&opts.storePath, "store", defaultStorePath(), "device store file (replay locks, access leases)")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", defaultPath("player.log"), "log destination")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", cfg.LogLevel, "log level")
	cmd.PersistentFlags().StringVar(&opts.policyFile, "policy", cfg.IntegrityPolicyFile, "integrity policy YAML")

	cmd.AddCommand(newPlayCmd(opts, cfg))
	cmd.AddCommand(newEncodeKeyCmd())
	cmd.AddCommand(newUnlockCmd(opts))
	return cmd
}

func defaultPath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return name
	}
	return filepath.Join(dir, "exstem-player", name)
}

func defaultStorePath() string {
	return defaultPath("player.db")
}

func (o *options) openLog() (zerolog.Logger, func() error, error) {
	return logger.OpenFile(o.logFile, o.logLevel)
}

func (o *options) openStore() (*store.SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(o.storePath), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return store.NewSQLite(o.storePath)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
