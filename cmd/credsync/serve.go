package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/credsync/internal/web"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only report API and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.connect(ctx); err != nil {
				a.logFailure(err)
				return exitError{code: 1}
			}

			server := web.NewServer(a.cfg.Server, web.Deps{
				Refreshes:     a.ingestor(),
				OpenValidator: a.openValidator,
				Metrics:       a.metrics,
				MaxSessions:   a.cfg.Database.MaxConns - 1,
			})

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start(a.cfg.Server.Addr())
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			slog.Info("shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "error", err)
				return err
			}
			return nil
		},
	}
}
