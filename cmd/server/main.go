package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fundamental/crawler/config"
	"fundamental/crawler/internal/api"
	"fundamental/crawler/internal/crawl"
	"fundamental/crawler/internal/database"
	"fundamental/crawler/internal/discovery"
	"fundamental/crawler/internal/dispatch"
	"fundamental/crawler/internal/extractor"
	"fundamental/crawler/internal/fetch"
	"fundamental/crawler/internal/geocoding"
	"fundamental/crawler/internal/processor"
	"fundamental/crawler/internal/queue"
	"fundamental/crawler/internal/scheduler"
)

// queueSink feeds crawler batches straight into the ingest queue, bypassing
// the HTTP hop when crawls run inside the server process.
type queueSink struct {
	q *queue.BatchQueue
}

func (s queueSink) Send(b dispatch.Batch) error {
	return s.q.Push(queue.Batch{
		Properties: b.Properties,
		Source:     b.Source,
		ReceivedAt: time.Now().UTC(),
	})
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.Database.Path, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	geocoder, err := geocoding.NewGeocoder(".geocode_cache", logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to set up geocoder")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ingest := queue.New(cfg.BatchProcessing.QueueSize, logger)
	proc := processor.New(db, ingest, cfg.BatchProcessing.ProcessorCount,
		cfg.BatchProcessing.MaxRetries,
		time.Duration(cfg.BatchProcessing.RetryDelay)*time.Second, logger)
	proc.Start(ctx)

	checkpoints, err := crawl.NewCheckpointStore(cfg.Crawler.StateDir)
	if err != nil {
		logger.WithError(err).Fatal("failed to open checkpoint store")
	}

	runCrawl := func(ctx context.Context, place string, mode crawl.Mode) error {
		client := fetch.NewClient(
			time.Duration(cfg.Crawler.DownloadDelay)*time.Second,
			time.Duration(cfg.Crawler.DownloadTimeout)*time.Second, logger)
		dispatcher := dispatch.New(queueSink{ingest}, "funda_"+string(mode),
			cfg.Crawler.BatchSize, cfg.BatchProcessing.MaxRetries,
			time.Duration(cfg.BatchProcessing.RetryDelay)*time.Second, logger)
		runner := crawl.NewRunner(client, discovery.New(logger),
			extractor.New(place, logger), dispatcher, db, checkpoints, logger,
			crawl.Options{
				Place:              config.NormalizeCity(place),
				Mode:               mode,
				MaxEmptyPages:      cfg.Crawler.MaxEmptyPages,
				MaxPagesWithoutNew: cfg.Crawler.MaxPagesWithoutNew,
				ConcurrentRequests: cfg.Crawler.ConcurrentRequests,
				Resume:             true,
			})
		summary, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		// Delisting detection needs a full enumeration; a run cut short by
		// the no-new rule or a block has not seen every live listing.
		if mode == crawl.ModeActive && summary.StopReason == crawl.StopEmptyPages {
			if _, err := db.MarkInactive(place, summary.SeenURLs); err != nil {
				return err
			}
		}
		return nil
	}
	refresh := func(context.Context) error {
		_, err := db.UpdateMissingCoordinates(geocoder, 50)
		return err
	}

	sched := scheduler.New(runCrawl, refresh, config.GetCityNames(), time.Hour, logger)
	sched.Start(ctx)

	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.NewHandler(db, ingest, geocoder, cfg.BatchProcessing.MaxBatchSize, logger))

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	sched.Stop()
	ingest.Close()
	proc.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("forced shutdown")
	}
}
