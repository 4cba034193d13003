package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"fundamental/crawler/config"
	"fundamental/crawler/internal/crawl"
	"fundamental/crawler/internal/database"
	"fundamental/crawler/internal/discovery"
	"fundamental/crawler/internal/dispatch"
	"fundamental/crawler/internal/extractor"
	"fundamental/crawler/internal/fetch"
)

func main() {
	var (
		place    = flag.String("place", "amsterdam", "place to crawl")
		mode     = flag.String("mode", "active", "crawl mode: active or sold")
		maxPages = flag.Int("max-pages", 0, "page budget, 0 for unbounded")
		resume   = flag.Bool("resume", false, "resume from the last checkpoint")
		server   = flag.String("server", "", "ingest endpoint; empty writes to the local database")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}

	crawlMode := crawl.Mode(*mode)
	if crawlMode != crawl.ModeActive && crawlMode != crawl.ModeSold {
		logger.WithField("mode", *mode).Fatal("mode must be active or sold")
	}

	var (
		sink  dispatch.Sink
		known crawl.KnownURLSource
	)
	if *server != "" {
		sink = dispatch.NewHTTPSink(*server, time.Duration(cfg.Crawler.DownloadTimeout)*time.Second)
	} else {
		db, err := database.NewDatabase(cfg.Database.Path, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to open database")
		}
		defer db.Close()
		sink = dispatch.NewStoreSink(db)
		known = db
	}

	checkpoints, err := crawl.NewCheckpointStore(cfg.Crawler.StateDir)
	if err != nil {
		logger.WithError(err).Fatal("failed to open checkpoint store")
	}

	client := fetch.NewClient(
		time.Duration(cfg.Crawler.DownloadDelay)*time.Second,
		time.Duration(cfg.Crawler.DownloadTimeout)*time.Second,
		logger)
	dispatcher := dispatch.New(sink, "funda_"+*mode, cfg.Crawler.BatchSize,
		cfg.BatchProcessing.MaxRetries,
		time.Duration(cfg.BatchProcessing.RetryDelay)*time.Second, logger)

	runner := crawl.NewRunner(client, discovery.New(logger),
		extractor.New(*place, logger), dispatcher, known, checkpoints, logger,
		crawl.Options{
			Place:              config.NormalizeCity(*place),
			Mode:               crawlMode,
			MaxPages:           *maxPages,
			MaxEmptyPages:      cfg.Crawler.MaxEmptyPages,
			MaxPagesWithoutNew: cfg.Crawler.MaxPagesWithoutNew,
			ConcurrentRequests: cfg.Crawler.ConcurrentRequests,
			Resume:             *resume,
		})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runner.Run(ctx)
	if err != nil {
		logger.WithError(err).Fatal("crawl failed")
	}
	logger.WithFields(logrus.Fields{
		"place":       summary.Place,
		"mode":        summary.Mode,
		"pages":       summary.PagesCrawled,
		"listings":    summary.ListingsSeen,
		"new":         summary.NewListings,
		"scraped":     summary.ItemsScraped,
		"dispatched":  summary.ItemsDispatched,
		"stop_reason": summary.StopReason,
		"duration":    summary.Duration.String(),
	}).Info("crawl finished")
}
