package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fivetwenty-io/sapcommissions/cmd/sapcom/commands"
	"github.com/fivetwenty-io/sapcommissions/internal/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sapcom",
		Short: "Incentive compensation API CLI",
		Long: `A command-line interface for the incentive compensation REST API.

Read and write compensation resources, and run and monitor calculation
and import pipelines.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sapcom/config.yml)")
	rootCmd.PersistentFlags().String("url", "", "tenant API URL")
	rootCmd.PersistentFlags().String("username", "", "API username")
	rootCmd.PersistentFlags().String("password", "", "API password (prompted when unset)")
	rootCmd.PersistentFlags().StringP("output", "o", constants.FormatTable, "output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().Duration("timeout", constants.DefaultHTTPTimeout, "timeout of a single HTTP exchange")

	for _, name := range []string{"url", "username", "password", "output", "verbose", "timeout"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddCommand(commands.NewVersionCommand(version, commit, date))
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(commands.NewTypesCommand())
	rootCmd.AddCommand(commands.NewListCommand())
	rootCmd.AddCommand(commands.NewGetCommand())
	rootCmd.AddCommand(commands.NewDeleteCommand())
	rootCmd.AddCommand(commands.NewApplyCommand())
	rootCmd.AddCommand(commands.NewPipelineCommand())

	err := rootCmd.Execute()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".sapcom")
		_ = os.MkdirAll(configDir, constants.ConfigDirPerm)

		viper.AddConfigPath(configDir)
		viper.SetConfigType("yml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("SAPCOM")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}
