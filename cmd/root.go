package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sparkify/internal/config"
	"sparkify/internal/observability"
	"sparkify/internal/ui"
	"sparkify/pkg/errors"
)

var (
	settings *config.Settings
	logger   = observability.NewNopLogger()
	quiet    bool
	noColor  bool

	rootCmd = &cobra.Command{
		Use:   "sparkify",
		Short: "Load Sparkify song-play logs into a Redshift star schema",
		Long: `Sparkify stages the raw song catalog and listening logs from S3 into
Redshift with COPY, then builds the songplays fact table and the users,
songs, artists and time dimensions from the staging tables.

Cluster, IAM role and S3 locations are read from dwh.cfg. Runtime options come
from flags, SPARKIFY_* environment variables or an optional sparkify.yaml.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadSettings,
	}
)

// Execute runs the root command. SIGINT and SIGTERM cancel the running
// statement.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.Output = os.Stderr
		ui.ShowError(err)
		ui.ShowInfo(failureSummary(err))
		stop()
		os.Exit(1)
	}
}

// failureSummary names the phase a failed command stopped in
func failureSummary(err error) string {
	switch {
	case errors.IsConfigError(err):
		return "Nothing was executed: the configuration could not be read"
	case errors.IsConnectionError(err):
		return "Nothing was executed: the warehouse could not be reached"
	case errors.IsStatementError(err):
		return "The run stopped at the failing statement; earlier statements stay committed unless --atomic was set"
	}
	return "The command failed"
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", config.DefaultConfigFile, "path to the dwh.cfg cluster configuration")
	flags.String("target", config.TargetRedshift, "warehouse to load: redshift or sqlite")
	flags.String("sqlite-path", "sparkify.db", "database file for --target sqlite")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", observability.FormatText, "log format: text or json")
	flags.BoolVarP(&quiet, "quiet", "q", false, "only print errors")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")

	bindFlags(rootCmd, map[string]string{
		"config":      "config",
		"target":      "target",
		"sqlite-path": "sqlite.path",
		"log-level":   "log.level",
		"log-format":  "log.format",
	})
}

func initConfig() {
	viper.SetConfigName("sparkify")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	home, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(filepath.Join(home, ".sparkify"))
	}

	viper.SetEnvPrefix("sparkify")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	// The settings file is optional
	_ = viper.ReadInConfig()
}

// bindFlags binds persistent or local flags of cmd to viper keys
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		var f *pflag.Flag
		if f = cmd.PersistentFlags().Lookup(flag); f == nil {
			f = cmd.Flags().Lookup(flag)
		}
		if f == nil {
			panic(fmt.Sprintf("flag --%s is not defined on %s", flag, cmd.Name()))
		}
		_ = viper.BindPFlag(key, f)
	}
}

func loadSettings(cmd *cobra.Command, _ []string) error {
	s, err := config.LoadSettings(viper.GetViper())
	if err != nil {
		return err
	}
	format, err := observability.ParseFormat(s.LogFormat)
	if err != nil {
		return err
	}

	settings = s
	logger = observability.NewLogger(observability.LoggerConfig{
		Level:   observability.LogLevelFromString(s.LogLevel),
		Output:  cmd.ErrOrStderr(),
		Format:  format,
		Service: "sparkify",
		Version: Version,
	})

	ui.Output = cmd.OutOrStdout()
	if noColor {
		ui.DisableColor()
	}
	return nil
}
