package main

import (
	"fmt"
	"os"

	"github.com/talemachine/talemachine/internal/config"
	"github.com/talemachine/talemachine/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "talemachine",
	Short: "TaleMachine storytelling service",
	Long:  `TaleMachine is an interactive storytelling service with human-approved chapter commits and a per-story knowledge graph.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return err
		}

		logger.Setup(cfg.Server.LogLevel)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.talemachine/config.yaml)")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int("server.port", config.DefaultServerPort, "server port")
	rootCmd.PersistentFlags().Bool("postgres.in_memory", false, "use the in-memory store instead of Postgres")
	rootCmd.PersistentFlags().Bool("graph.disabled", false, "run without a Neo4j backend")
}
