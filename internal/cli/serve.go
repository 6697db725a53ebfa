package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mentorgraph/handler"
	"mentorgraph/internal/config"
	"mentorgraph/internal/ledger"
	"mentorgraph/internal/server"
	"mentorgraph/internal/sweeper"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, v, cmd)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8080)")
	bindFlag(v, config.KeyHTTPAddr, cmd, "addr")
	return cmd
}

func runServe(ctx context.Context, v *viper.Viper, cmd *cobra.Command) error {
	cfg, logger, err := loadConfig(v, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a, err := wireApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if sw, ok := a.store.(ledger.Sweeper); ok && cfg.SweepSchedule != "" {
		s, err := sweeper.New(sw, cfg.SweepSchedule, logger)
		if err != nil {
			return err
		}
		s.Start(ctx)
		defer s.Stop()
	}

	h, err := handler.NewHandler(a.service)
	if err != nil {
		return err
	}
	h.WithLogger(logger)

	srv, err := server.New(h, server.Options{
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	logger.Info("mentorgraph starting", "store", cfg.StoreBackend, "space", cfg.SpaceID, "signer", a.signer.Address())
	return srv.ListenAndServe(ctx, cfg.HTTPAddr)
}
