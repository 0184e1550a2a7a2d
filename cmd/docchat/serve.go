package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-docchat-backend/internal/app"
	"github.com/tbourn/go-docchat-backend/internal/observability"
)

var (
	skipRecover     bool
	shutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the background workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, Version)
		if err != nil {
			return err
		}

		a, err := app.New(ctx, cfg, app.Deps{})
		if err != nil {
			return err
		}
		if !skipRecover {
			if err := a.Recover(ctx); err != nil {
				log.Error().Err(err).Msg("startup recovery failed")
			}
		}

		mctx, stopMaintenance := context.WithCancel(ctx)
		defer stopMaintenance()
		go a.RunMaintenance(mctx)

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           a.Engine,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
			// Stream followers end with the signal context; Shutdown alone
			// would wait for them.
			BaseContext: func(net.Listener) context.Context { return ctx },
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", srv.Addr).Str("version", Version).Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			log.Info().Msg("shutting down")
		}

		stopMaintenance()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Producers still running are drained by the queue; their fragments
		// stay in the log for followers that reconnect.
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
		if err := a.Close(sctx); err != nil {
			log.Warn().Err(err).Msg("worker shutdown")
		}
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipRecover, "skip-recover", false, "do not reschedule pending units or recover open streams at startup")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for in-flight requests and jobs")
}
