package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wrale/oauth2-device-client/internal/clock"
	"github.com/wrale/oauth2-device-client/internal/config"
	"github.com/wrale/oauth2-device-client/internal/deviceflow"
	"github.com/wrale/oauth2-device-client/internal/httpwire"
	"github.com/wrale/oauth2-device-client/internal/logging"
	"github.com/wrale/oauth2-device-client/internal/status"
	"github.com/wrale/oauth2-device-client/internal/transport"
)

// Version is set by the build process
var Version = "dev"

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("Error loading configuration")
	}

	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		boot.Fatal().Err(err).Msg("Error creating logger")
	}
	log = log.With().Str("version", Version).Logger()

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("Device authorization stopped")
		os.Exit(1)
	}
	log.Info().Msg("Shutting down")
}

// run wires the client from cfg and blocks until interrupted or the flow
// fails permanently
func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s credential store: %w", cfg.StoreBackend, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing credential store")
		}
	}()

	clk := clock.NewSystem()
	dialer := &transport.TLSDialer{DialTimeout: cfg.DialTimeout}
	ex := httpwire.NewExchanger(dialer,
		httpwire.WithClock(clk),
		httpwire.WithReadTimeout(cfg.ReadTimeout),
		httpwire.WithLogger(log),
	)
	client := deviceflow.NewClient(ex,
		deviceflow.WithClock(clk),
		deviceflow.WithAuthEndpoint(deviceflow.Endpoint{Host: cfg.AuthHost, Port: cfg.AuthPort, Path: cfg.AuthPath}),
		deviceflow.WithTokenEndpoint(deviceflow.Endpoint{Host: cfg.TokenHost, Port: cfg.TokenPort, Path: cfg.TokenPath}),
		deviceflow.WithGrantType(cfg.GrantType),
		deviceflow.WithLogger(log),
	)

	tracker := status.NewTracker()
	if cfg.StatusAddr != "" {
		health := status.New(tracker).WithVersion(Version)
		if store.health != nil {
			health.WithCheck("store", store.health)
		}
		srv := &http.Server{
			Addr:              cfg.StatusAddr,
			Handler:           status.NewRouter(health),
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.StatusAddr).Msg("Status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Status server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Error shutting down status server")
			}
		}()
	}

	a := &agent{
		client:  client,
		creds:   deviceflow.NewCredentials(cfg.ClientID, cfg.ClientSecret),
		store:   store,
		offset:  cfg.StoreOffset,
		scope:   cfg.Scope,
		tracker: tracker,
		log:     log,
		sleep:   sleepContext,
	}

	if err := a.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
