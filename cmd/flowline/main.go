package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flowline/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "flowline",
	Short: "Workflow orchestration for ticketing systems",
	Long: `Flowline turns inbound tickets into role-routed tasks.

Workflows are authored as step graphs, frozen into immutable versions on
activation, and matched against ticket attributes. Assignments rotate
round-robin through role members and every state change is audit logged.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./flowline.yaml)")
	rootCmd.PersistentFlags().String("database", "flowline.db", "SQLite database path")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	_ = viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	serveCmd.Flags().Int("api-port", 8585, "HTTP API port")
	serveCmd.Flags().Bool("nats-embedded", true, "run an embedded NATS server")
	serveCmd.Flags().String("nats-url", "", "external NATS server URL")
	_ = viper.BindPFlag("api_port", serveCmd.Flags().Lookup("api-port"))
	_ = viper.BindPFlag("nats_embedded", serveCmd.Flags().Lookup("nats-embedded"))
	_ = viper.BindPFlag("nats_url", serveCmd.Flags().Lookup("nats-url"))

	loadCmd.Flags().String("dir", "./workflows", "directory of *.workflow.yaml files")
	_ = viper.BindPFlag("workflows_dir", loadCmd.Flags().Lookup("dir"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	config.SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("flowline")
	}

	viper.SetEnvPrefix("FLOWLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Printf("Using config file: %s\n", viper.ConfigFileUsed())
	}
}
