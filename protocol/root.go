package protocol

import (
	"context"
	"fmt"

	"github.com/datazip-inc/sqlstream/telemetry"
	"github.com/datazip-inc/sqlstream/utils/logger"
	"github.com/datazip-inc/sqlstream/utils/safego"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	once       bool

	config  *Config
	log     zerolog.Logger
	metrics *telemetry.Metrics

	commands = []*cobra.Command{}
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "sqlstream",
	Short: "incremental SQL extraction and batched SQL import",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if configPath == "" {
			return fmt.Errorf("--config is required")
		}

		var err error
		config, err = LoadConfig(configPath)
		if err != nil {
			return err
		}
		log, err = logger.New(config.Log)
		if err != nil {
			return err
		}

		metrics = telemetry.New()
		if config.MetricsAddr != "" {
			serveMetrics(cmd.Context(), config.MetricsAddr)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

func serveMetrics(ctx context.Context, addr string) {
	safego.Run(log, func() {
		if err := metrics.Serve(ctx, addr, log); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	})
}

// CreateRootCommand wires every sub command to the root command.
func CreateRootCommand() *cobra.Command {
	RootCmd.AddCommand(commands...)
	return RootCmd
}

func init() {
	commands = append(commands, sourceCmd, sinkCmd, checkCmd)
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "(Required) path to the configuration file")
	sourceCmd.Flags().BoolVarP(&once, "once", "", false, "(Optional) run a single poll cycle and exit")
	// Disable Cobra CLI's built-in usage and error handling
	RootCmd.SilenceUsage = true
	RootCmd.SilenceErrors = true
}
