// Package app provides the entry point for the spacegate command-line
// application.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spacegate/spacegate/pkg/api"
	"github.com/spacegate/spacegate/pkg/config"
	"github.com/spacegate/spacegate/pkg/gradio"
	"github.com/spacegate/spacegate/pkg/hub"
	"github.com/spacegate/spacegate/pkg/logger"
	"github.com/spacegate/spacegate/pkg/server"
	"github.com/spacegate/spacegate/pkg/tools"
	"github.com/spacegate/spacegate/pkg/transport"
	"github.com/spacegate/spacegate/pkg/transport/stateless"
	"github.com/spacegate/spacegate/pkg/transport/streamable"
)

var rootCmd = &cobra.Command{
	Use:               "spacegate",
	DisableAutoGenTag: true,
	Short:             "MCP gateway for hosted AI Spaces",
	Long: `Spacegate is an MCP (Model Context Protocol) gateway that exposes the Hub's
built-in tools and user-selected Gradio spaces through a single endpoint. It provides:

- Streamable HTTP and stateless JSON transports
- Per-request tool selection via bouquets, mixes, and user settings
- Dynamic Gradio space discovery with cached metadata and schemas
- Upstream proxying with progress relay and result post-processing
- A management API for sessions, configuration, and metrics`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the spacegate CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	if err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newValidateCmd())

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}

// newServeCmd creates the serve command for starting the gateway
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the spacegate gateway",
		Long: `Start the spacegate gateway and listen for MCP client connections.

Configuration is read from SPACEGATE_* environment variables with documented
defaults. The --transport flag selects between the stateful streamable-HTTP
transport and the stateless JSON transport.`,
		RunE: runServe,
	}

	cmd.Flags().String("transport", "streamable", "Transport to serve: streamable or stateless")
	if err := viper.BindPFlag("transport", cmd.Flags().Lookup("transport")); err != nil {
		logger.Errorf("Error binding transport flag: %v", err)
	}

	return cmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Display version information for spacegate",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("spacegate version: %s", getVersion())
		},
	}
}

// newValidateCmd creates the validate command for checking configuration
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the environment configuration",
		Long: `Load configuration from SPACEGATE_* environment variables, apply defaults,
and report the effective values. Fails when a value would misbehave at runtime.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				logger.Errorf("Configuration validation failed: %v", err)
				return fmt.Errorf("validation failed: %w", err)
			}

			logger.Infof("✓ Configuration is valid")
			logger.Infof("  Bind: %s:%d", cfg.Host, cfg.Port)
			logger.Infof("  Hub: %s", cfg.HubBaseURL)
			logger.Infof("  Metadata TTL: %s, Schema TTL: %s", cfg.SpaceMetadataTTL, cfg.SchemaTTL)
			logger.Infof("  Discovery concurrency: %d", cfg.DiscoveryConcurrency)
			logger.Infof("  Ping: enabled=%t interval=%s threshold=%d",
				cfg.PingEnabled, cfg.PingInterval, cfg.PingFailureThreshold)
			logger.Infof("  Strict compliance: %t, Analytics: %t", cfg.StrictCompliance, cfg.Analytics)
			return nil
		},
	}
}

// version is replaced at build time via ldflags.
var version = "dev"

// getVersion returns the version string
func getVersion() string {
	return version
}

// runServe implements the serve command logic
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("Failed to load configuration: %v", err)
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	logger.Infof("Configuration loaded, Hub at %s", cfg.HubBaseURL)

	hubClient := hub.NewClient(cfg.HubBaseURL)

	discoverer := gradio.NewDiscoverer(hubClient, gradio.DiscoveryConfig{
		MetadataTTL:      cfg.SpaceMetadataTTL,
		SchemaTTL:        cfg.SchemaTTL,
		Concurrency:      cfg.DiscoveryConcurrency,
		SpaceInfoTimeout: cfg.SpaceInfoTimeout,
		SchemaTimeout:    cfg.SchemaTimeout,
	})

	factory := server.NewFactory(server.Deps{
		Validator:  hubClient,
		Settings:   hubClient,
		Runner:     tools.NewHubRunner(hubClient),
		Discoverer: discoverer,
		Caller:     gradio.NewUpstreamCaller(),
		Config:     cfg,
		Version:    getVersion(),
	})

	var tr transport.Transport
	switch name := viper.GetString("transport"); name {
	case "streamable":
		tr = streamable.New(factory, cfg)
	case "stateless":
		tr = stateless.New(factory, cfg)
	default:
		return fmt.Errorf("unknown transport %q, expected streamable or stateless", name)
	}

	logger.Infof("Starting spacegate (%s transport) at %s:%d",
		viper.GetString("transport"), cfg.Host, cfg.Port)

	// Serve blocks until the signal context is cancelled, then drains.
	return api.NewServer(cfg, tr, getVersion()).Serve(ctx)
}
