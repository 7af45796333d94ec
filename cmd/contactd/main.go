package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"contact-guard/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := config.SetupLogging(cfg.Log)

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("contactd stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server exited")
}

func run(cfg config.Config, logger zerolog.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(rootCtx, cfg, logger)
	defer a.close()

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: a.handler}
	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		logger.Info().Str("store", a.limiter.Backend()).Msgf("listening %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// shuts the server down on a signal or when ListenAndServe fails
	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
