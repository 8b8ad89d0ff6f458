// Package cmd provides the wisp command-line interface.
//
// Configuration is read, in order of precedence, from command-line flags,
// WISP_<SECTION>_<OPTION> environment variables, and the config file: the
// --config flag, then WISP_CONFIG_FILE, then .wisp.yml in the working
// directory.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/wisp/internal/config"
	"github.com/conneroisu/wisp/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wisp",
	Short: "Reactive HTML components with templates and declarative events",
	Long: `wisp renders custom elements from component definitions. Each component
owns observable data, a template with <% %> statements and <%= %> output
tags, optional include() partials, and on:event attributes bound to its
methods.

Quick Start:
  wisp init                         Create .wisp.yml and a sample component
  wisp render card.wisp.yml         Render a component to HTML
  wisp validate components/         Check definitions and templates
  wisp serve                        Live preview with hot reload`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .wisp.yml, can also use WISP_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig points viper at the config file: --config first, then
// WISP_CONFIG_FILE, then .wisp.yml when it exists.
func initConfig(cmd *cobra.Command, args []string) error {
	file := cfgFile
	if file == "" {
		file = os.Getenv("WISP_CONFIG_FILE")
	}
	return config.Init(viper.GetViper(), file)
}

// loadConfig decodes and validates the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// newLogger builds the CLI logger from the log section.
func newLogger(cfg *config.Config) logging.Logger {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(cfg.Log.Level)
	lc.Format = cfg.Log.Format
	return logging.NewLogger(lc)
}
