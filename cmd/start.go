package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TheClusterFlux/replay-hub/config"
	"github.com/TheClusterFlux/replay-hub/database"
	"github.com/TheClusterFlux/replay-hub/models"
	"github.com/TheClusterFlux/replay-hub/server"
	"github.com/TheClusterFlux/replay-hub/services"
	"github.com/TheClusterFlux/replay-hub/transcoder"
)

const (
	logFormatJSON = "json"
	logFormatText = "text"

	connectTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second

	// Whole-file uploads can take a while over slow links, so the write
	// timeout stays generous.
	readTimeout  = 30 * time.Minute
	writeTimeout = 30 * time.Minute
)

func getStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the replay-hub API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logLvl, err := zerolog.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			zerolog.SetGlobalLevel(logLvl)

			if cfg.LogFormat == logFormatText {
				log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
			}

			for _, dir := range []string{cfg.UploadDir, cfg.SessionDir, cfg.StateDir} {
				if err := os.MkdirAll(dir, os.ModePerm); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
			cancel()
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(context.Background()); err != nil {
					log.Error().Err(err).Msg("mongodb disconnect failed")
				}
			}()

			ds, err := database.NewDs(cfg.StateDir)
			if err != nil {
				return err
			}
			defer ds.Close()

			reaper := services.NewReaper()

			staging, err := services.NewStaging(cfg.UploadDir)
			if err != nil {
				return err
			}

			sessions, err := services.NewSessionManager(ds, cfg.SessionDir, cfg.UploadDir, reaper, cfg.SessionRetention)
			if err != nil {
				return err
			}

			prober := transcoder.NewProber(cfg.ProbeTimeout)
			engine := transcoder.NewEngine(prober, cfg.ConversionTimeout)
			storage := services.NewStorage(cfg)
			videos := models.NewVideoStore(db)
			assembler := services.NewAssembler(videos)

			opts := transcoder.Options{
				Lossless: cfg.LosslessMode,
				CRF:      cfg.ConversionCRF,
				Preset:   cfg.ConversionPreset,
			}
			coordinator := services.NewCoordinator(engine, storage, videos, reaper, opts, cfg.OriginalGrace, cfg.LocalRetention)

			ingestor := services.NewIngestor(cfg, prober, engine, storage, assembler, videos, db, coordinator, reaper)
			fetcher := services.NewFetcher(staging, cfg.FetchTimeout)

			router := mux.NewRouter()
			c := cors.New(cors.Options{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"*"},
			})

			server.RegisterRoutes(router, server.Deps{
				Cfg:      cfg,
				Staging:  staging,
				Fetcher:  fetcher,
				Sessions: sessions,
				Ingestor: ingestor,
				Videos:   videos,
				DB:       db,
			})

			srv := &http.Server{
				Handler:      c.Handler(router),
				Addr:         cfg.ListenAddr,
				ReadTimeout:  readTimeout,
				WriteTimeout: writeTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("address", cfg.ListenAddr).Msg("starting API server...")
				errCh <- srv.ListenAndServe()
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-quit:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
			}

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("server shutdown failed")
			}

			coordinator.Shutdown(false)
			reaper.Shutdown(false)

			return nil
		},
	}
}
