// Package cmd provides the command-line interface for fiddle with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --port, etc.) - highest priority
//	2. FIDDLE_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (FIDDLE_SERVER_PORT, etc.)
//	4. Configuration files (.fiddle.yml) - lowest priority
//
// Environment Variables:
//
//	FIDDLE_CONFIG_FILE: Path to custom configuration file
//	FIDDLE_SERVER_PORT: Override server port
//	FIDDLE_SERVER_HOST: Override server host
//	FIDDLE_SHARE_COMPACT: Default share links to the compact format
//	And more following the FIDDLE_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fiddle",
	Short: "A live HTML/CSS/JS playground with shareable links",
	Long: `Fiddle is a local playground for HTML, CSS, and JavaScript snippets.
It serves three editors and a sandboxed live preview in the browser, and
encodes the whole workspace into a URL anyone can open.

Key Features:
  • Three independent buffers composed into one preview document
  • Live preview over WebSocket as you type
  • Share links carrying the full snippet (classic or compact format)
  • Named starter templates with hot reload
  • Read-only highlighted view of shared code

Quick Start:
  fiddle serve                    Start the playground server
  fiddle share --html index.html  Encode files into a share link
  fiddle decode "<url>"           Recover files from a share link
  fiddle templates                List starter templates
  fiddle doctor                   Check configuration and environment

Command Aliases (for faster typing):
  serve (s), share (enc), decode (dec), templates (t)

Documentation: https://github.com/conneroisu/fiddle`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .fiddle.yml, can also use FIDDLE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig initializes the configuration system with support for multiple config sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. FIDDLE_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .fiddle.yml in current directory
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("FIDDLE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".fiddle")
	}

	// Enable automatic environment variable binding with FIDDLE_ prefix
	// Examples: FIDDLE_SERVER_PORT, FIDDLE_SERVER_HOST, FIDDLE_SHARE_COMPACT
	viper.SetEnvPrefix("FIDDLE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// If the file doesn't exist or has errors, Viper falls back to
	// defaults without failing; doctor reports the details.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
