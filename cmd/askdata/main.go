package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"askdata/internal/catalog"
	"askdata/internal/config"
	"askdata/internal/observability"
)

var (
	cfgPath string
	cfg     *config.Config
	logger  *zap.Logger

	flagUser     string
	flagPassword string
	flagToken    string
)

var rootCmd = &cobra.Command{
	Use:   "askdata",
	Short: "Natural-language questions over a Denodo data layer",
	Long: `askdata answers natural-language questions against a Denodo
virtualization layer: it retrieves relevant view schemas from a vector
index, generates a VQL query with an LLM, lints and repairs it, executes
it through the Data Catalog and renders the result as an answer.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		logger, err = observability.NewLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "askdata.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", os.Getenv("DATA_CATALOG_USER"), "Data Catalog username")
	rootCmd.PersistentFlags().StringVar(&flagPassword, "password", os.Getenv("DATA_CATALOG_PASSWORD"), "Data Catalog password")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("DATA_CATALOG_TOKEN"), "Data Catalog OAuth token")
	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// credentials resolves the Data Catalog credentials from flags. A token
// wins over basic credentials when both are set.
func credentials() catalog.Credentials {
	if flagToken != "" {
		return catalog.Credentials{Token: flagToken}
	}
	return catalog.Credentials{Username: flagUser, Password: flagPassword}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
