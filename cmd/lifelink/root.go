package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lifelink-community/lifelink/internal/config"
	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/logging"
	"github.com/lifelink-community/lifelink/internal/output"
	"github.com/lifelink-community/lifelink/internal/scoring"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// v resolves configuration from flags, env, dotenv and config file.
var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "lifelink",
	Short: "Rank blood donors against open requests.",
	Long: `LifeLink scores request urgency and donor readiness, screens donor/request
pairs with CEL rules and ranks the compatible ones.

Run "lifelink serve" for the HTTP API, or use the score, compat and rank
commands to compute results locally.`,
	Version:       Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML or JSON config file")
	flags.String("env-file", ".env", "Optional dotenv file")
	flags.StringP("output", "o", string(output.FormatTable), "Output format: table, json or csv")
	flags.Int("precision", 2, "Decimal precision for scores")
	flags.String("now", "", "Evaluate as of this RFC3339 time instead of the system clock")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: json or console")

	mustBind("logging.level", flags.Lookup("log-level"))
	mustBind("logging.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(serveCmd, scoreCmd, compatCmd, rankCmd, versionCmd)
}

func mustBind(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag for %s: %v", key, err))
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves the configuration for cmd and installs the global
// logger. The returned func flushes the logger.
func loadConfig(cmd *cobra.Command) (*domain.Config, func(), error) {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.LoadWith(v, config.Options{File: configFile, EnvFile: envFile})
	if err != nil {
		return nil, nil, err
	}

	sync, err := logging.Install(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	zap.L().Debug("configuration loaded",
		zap.String("tier", string(cfg.Tier)),
		zap.String("repository", cfg.Repository.Driver),
		zap.String("cache", cfg.Cache.Type),
		zap.String("eventbus", cfg.EventBus.Type),
	)
	return cfg, sync, nil
}

// newWriter builds the output writer from the global flags.
func newWriter(cmd *cobra.Command) (*output.Writer, error) {
	raw, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(raw)
	if err != nil {
		return nil, err
	}
	precision, _ := cmd.Flags().GetInt("precision")
	return output.NewWriter(cmd.OutOrStdout(), format, precision), nil
}

// newScorer returns a scorer on the --now clock, or the system clock.
func newScorer(cmd *cobra.Command) (*scoring.Scorer, error) {
	raw, _ := cmd.Flags().GetString("now")
	if raw == "" {
		return scoring.NewScorer(nil), nil
	}
	now, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --now: %w", err)
	}
	return scoring.NewScorer(scoring.FixedClock(now)), nil
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
