package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/psantana5/perfee/pkg/config"
	"github.com/psantana5/perfee/pkg/logging"
)

var (
	cfgFile  string
	logLevel string
	logJSON  bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "perfee-bench",
	Short: "Load generator for the perfee timing engine",
	Long: `perfee-bench drives a perfee engine with concurrent synthetic operations
and prints the resulting report, group aggregates and Prometheus metrics.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.perfee/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "info", "diagnostics log level: debug, info, warn, error")
	flags.BoolVar(&logJSON, "log-json", false, "write diagnostics as JSON lines")

	flags.Duration("threshold", 0, "minimum duration for an entry to be reported (0 reports everything)")
	flags.String("strategy", string(config.StrategyOnDemand), "log strategy: on_demand, auto_flush, auto_flush_keep")
	flags.Bool("show-group-entries", false, "append individual durations to group lines")
	flags.Bool("first-group-entry", true, "report the first entry of every group as a single entry")

	bind := map[string]string{
		config.KeyThreshold:                  "threshold",
		config.KeyStrategy:                   "strategy",
		config.KeyShowGroupIndividualEntries: "show-group-entries",
		config.KeyFirstGroupEntryAsLogEntry:  "first-group-entry",
	}
	for key, flag := range bind {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	viper.SetEnvPrefix("PERFEE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".perfee"))
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		}
	}
}

// loadConfig builds the engine configuration from flags, environment and
// config file
func loadConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}

func newLogger() *logging.Logger {
	return logging.NewLogger(logging.ParseLevel(logLevel), logJSON)
}
