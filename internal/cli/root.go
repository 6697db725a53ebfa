// Package cli implements the mentorgraph command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mentorgraph/internal/config"
)

const defaultEnvFile = ".env"

// NewRootCmd returns the mentorgraph command tree.
func NewRootCmd() *cobra.Command {
	v := config.New()
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "mentorgraph",
		Short: "MentorGraph - mentorship matching on an entity ledger",
		Long: `MentorGraph matches mentors and learners. Profiles, asks, offers, sessions,
feedback and trust edges are stored as signed, expiring ledger entities.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(envFile, cmd.Flags().Changed("env-file"))
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file to load before reading the environment")
	flags.String("store", "", "store backend: memory, sqlite or dynamodb")
	flags.String("space", "", "space id every record is scoped to")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	bindFlag(v, config.KeyStoreBackend, rootCmd, "store")
	bindFlag(v, config.KeySpaceID, rootCmd, "space")
	bindFlag(v, config.KeyLogLevel, rootCmd, "log-level")

	rootCmd.AddCommand(newServeCmd(v), newSeedCmd(v))
	return rootCmd
}

func bindFlag(v *viper.Viper, key string, cmd *cobra.Command, name string) {
	f := cmd.PersistentFlags().Lookup(name)
	if f == nil {
		f = cmd.Flags().Lookup(name)
	}
	// an unset flag falls through to the environment and defaults
	_ = v.BindPFlag(key, f)
}

// loadEnvFile loads path into the environment without overriding variables
// already set. A missing default file is fine; a missing explicit one is not.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

func loadConfig(v *viper.Viper, stderr io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
