package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	"github.com/gep-landslides/slidepanel/internal/config"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version of slidepanel
const Version = "0.3.0"

var (
	cfgFile string
	envFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "slidepanel",
	Short: "Landslide mortality panel pipeline",
	Long: `slidepanel prepares InVEST sediment delivery inputs, runs the SDR model per
year and land cover scenario, extracts zonal statistics per administrative
unit and assembles them with EM-DAT landslide deaths into a unit-year panel
that is fitted with fixed effects and Poisson models.

Stages can be run one by one or all in order with "slidepanel run".`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. SIGINT cancels the running stage.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "slidepanel v%s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./slidepanel.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "file with SLIDEPANEL_* environment overrides")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

// newLogger writes step logs to stderr
func newLogger(cmd *cobra.Command) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(cmd.ErrOrStderr())
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableQuote: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// loadConfig reads the .env file, then the config file, then the
// environment
func loadConfig(log logrus.FieldLogger) (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("slidepanel")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		log.WithField("config", used).Debug("Using config file")
	} else {
		log.Debug("No config file found, using defaults")
	}
	return cfg, nil
}

// setup prepares logger and configuration of a stage command
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	log := newLogger(cmd)
	cfg, err := loadConfig(log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
