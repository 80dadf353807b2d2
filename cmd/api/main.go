package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/solwager/custody/internal/alert"
	"github.com/solwager/custody/internal/api"
	"github.com/solwager/custody/internal/infra/logging"
	"github.com/solwager/custody/internal/infra/pgutils"
	"github.com/solwager/custody/internal/ledger"
	"github.com/solwager/custody/internal/services/custody"
	"github.com/solwager/custody/internal/services/reaper"
	"github.com/solwager/custody/internal/services/recovery"
	"github.com/solwager/custody/pkg/envconf"
	"github.com/solwager/custody/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running custody api: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	dbConns, err := pgutils.OpenDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	ledgerClient := ledger.NewHTTPClient(cfg.LedgerGatewayURL, cfg.LedgerTimeout)

	notifier := buildNotifier(cfg)

	coordinator := custody.New(dbConns, ledgerClient, notifier, custody.Config{
		LedgerTimeout:        cfg.LedgerTimeout,
		PayoutRetryAttempts:  cfg.PayoutRetryAttempts,
		PayoutRetryBaseDelay: cfg.PayoutRetryBaseDelay,
		PayoutRetryMaxDelay:  cfg.PayoutRetryMaxDelay,
	})

	// --- Background workers ---
	go reaper.New(dbConns, reaper.Config{
		SweepInterval: cfg.ReaperSweepInterval,
		PendingMaxAge: cfg.ReaperPendingMaxAge,
		PurgeInterval: cfg.ReaperPurgeInterval,
		Retention:     cfg.ReaperRetention,
	}).Run(ctx)

	go recovery.New(dbConns, ledgerClient, notifier, recovery.Config{
		PollInterval: cfg.RecoveryPollInterval,
		BaseDelay:    cfg.RecoveryBaseDelay,
		MaxDelay:     cfg.RecoveryMaxDelay,
		MaxRetries:   cfg.RecoveryMaxRetries,
		CallTimeout:  cfg.LedgerTimeout,
	}).Run(ctx)

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, coordinator)

	shutdownqueue.Add(func(c context.Context) error {
		slog.Info("shutting down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("custody API started", "port", cfg.Port)

	select {
	case <-ctx.Done():
		// graceful path; deferred shutdownqueue.Shutdown will run
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

func buildNotifier(cfg *apiConfig) alert.Notifier {
	if cfg.AlertKafkaBrokers == "" {
		return alert.SlogNotifier{}
	}

	kn := alert.NewKafkaNotifier(strings.Split(cfg.AlertKafkaBrokers, ","), cfg.AlertKafkaTopic)

	shutdownqueue.Add(func(context.Context) error {
		return kn.Close()
	})

	return kn
}
