package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/ismp-relayer/internal/api"
	"github.com/scalarorg/ismp-relayer/internal/relayer"
	"github.com/scalarorg/ismp-relayer/pkg/db"
	"github.com/scalarorg/ismp-relayer/pkg/events"
	"github.com/scalarorg/ismp-relayer/pkg/metrics"
	"github.com/scalarorg/ismp-relayer/pkg/tracing"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Track registered requests and serve the http api",
	RunE:  serve,
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("[Serve] failed to shutdown tracing")
		}
	}()

	dbAdapter, err := db.NewDatabaseAdapter(cfg.Database.URL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create database adapter")
		return err
	}
	defer dbAdapter.Close()

	hyperbridge, spokes, err := connectClients(ctx, cfg)
	if err != nil {
		return err
	}
	eventBus := events.NewEventBus(&cfg.EventBus)
	relayerMetrics := metrics.NewMetrics()
	service, err := relayer.NewService(&cfg.Tracker, hyperbridge, spokes, dbAdapter, eventBus, relayerMetrics)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create relayer service")
		return err
	}
	server := api.NewServer(&cfg.Api, service, eventBus, relayerMetrics)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(groupCtx)
	})
	group.Go(func() error {
		if err := service.Start(groupCtx); err != nil {
			return err
		}
		<-groupCtx.Done()
		log.Info().Msg("Shutting down relayer...")
		service.Stop()
		return nil
	})
	return group.Wait()
}
