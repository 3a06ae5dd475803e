package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/adsrocket/adsrocket/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const (
	defaultServeAddr = ":8080"
	shutdownTimeout  = 30 * time.Second
)

type serveOptions struct {
	Addr      string
	AccountID string
	ChatID    string
	Window    string
	Limit     int
}

func NewServeCommand(runtime Runtime) *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the Telegram webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			s, err := newServices(ctx, runtime, cmd.ErrOrStderr(), reg)
			if err != nil {
				return writeCommandError(cmd, runtime, "adsrocket serve", err)
			}
			defer s.Close()

			srv, err := buildServer(ctx, s, opts, reg)
			if err != nil {
				return writeCommandError(cmd, runtime, "adsrocket serve", err)
			}
			if err := serveUntilDone(ctx, srv, s); err != nil {
				return writeCommandError(cmd, runtime, "adsrocket serve", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", defaultServeAddr, "Listen address")
	cmd.Flags().StringVar(&opts.AccountID, "account-id", "", "Ad account for scheduled reports, default from profile")
	cmd.Flags().StringVar(&opts.ChatID, "chat-id", "", "Telegram chat id, default from profile")
	cmd.Flags().StringVar(&opts.Window, "window", "", "Default window for reads and reports")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Number of ads in reports, default from config")
	return cmd
}

// buildServer wires the router. Report routes and the webhook stay disabled
// when the profile has no Telegram token or chat.
func buildServer(ctx context.Context, s *services, opts serveOptions, gatherer prometheus.Gatherer) (*http.Server, error) {
	defaultWindow, err := s.window(opts.Window)
	if err != nil {
		return nil, err
	}
	serverOpts := server.Options{
		Performance:   s.fetcher(),
		Marketing:     s.marketing(),
		Creds:         s.Creds,
		DefaultWindow: defaultWindow,
		WebhookSecret: s.Profile.Profile.Telegram.WebhookSecret,
		Logger:        s.Logger,
		Metrics:       s.Metrics,
		Gatherer:      gatherer,
	}

	history, err := s.history(ctx)
	if err != nil {
		return nil, err
	}
	if history != nil {
		serverOpts.History = history
	}

	if s.Profile.TelegramToken != "" {
		job, err := s.reportJob(ctx, reportOptions{
			AccountID: opts.AccountID,
			ChatID:    opts.ChatID,
			Window:    opts.Window,
			Limit:     opts.Limit,
		})
		if err != nil {
			return nil, err
		}
		serverOpts.Reports = job
		if serverOpts.WebhookSecret == "" {
			s.Logger.Warn("telegram webhook secret not configured; webhook route disabled")
		}
	} else {
		s.Logger.Info("telegram token not configured; report routes disabled")
	}

	addr := opts.Addr
	if addr == "" {
		addr = defaultServeAddr
	}
	return &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(server.NewHandler(serverOpts)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      server.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

func serveUntilDone(ctx context.Context, srv *http.Server, s *services) error {
	errCh := make(chan error, 1)
	go func() {
		s.Logger.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
