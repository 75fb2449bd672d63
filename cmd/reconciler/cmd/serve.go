package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"ledger-reconciliation-service/cmd/reconciler/config"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/server"
	"ledger-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reconciliations over HTTP",
	Long: `Serve starts an HTTP API that reconciles uploaded ledgers and manages
remembered column mappings.

  POST /api/v1/reconcile            multipart: ours, theirs (repeatable), config (JSON)
  GET  /api/v1/preferences/:file    remembered mapping of a file name
  PUT  /api/v1/preferences/:file    remember a mapping
  GET  /health`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("address", "", "listen address (default :8080)")
	serveCmd.Flags().Float64("rate-limit", 0, "sustained requests per second (default 10)")

	viper.BindPFlag("server.address", serveCmd.Flags().Lookup("address"))
	viper.BindPFlag("server.rate_limit", serveCmd.Flags().Lookup("rate-limit"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger().WithComponent("cli")

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	defaults := server.DefaultConfig()
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaults.Address
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = defaults.RateLimit
	}

	prefs := openPreferences(cfg, log)
	if prefs != nil {
		defer prefs.Close()
	}

	srv, err := server.New(&cfg.Server, reconciler.NewService(), prefs, &cfg.Input)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
