package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fundamental/crawler/internal/crawl"
)

// CrawlFunc runs one crawl for a place. The scheduler does not care how the
// run is wired, only when it happens.
type CrawlFunc func(ctx context.Context, place string, mode crawl.Mode) error

// RefreshFunc runs a maintenance pass (geocoding missing coordinates).
type RefreshFunc func(ctx context.Context) error

// Scheduler runs recurring crawls: active listings every interval, sold
// listings once a day after midnight, and a coordinate refresh after each
// sold sweep.
type Scheduler struct {
	crawlFn   CrawlFunc
	refreshFn RefreshFunc
	places    []string
	interval  time.Duration
	logger    *logrus.Logger

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

func New(crawlFn CrawlFunc, refreshFn RefreshFunc, places []string, interval time.Duration, logger *logrus.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		crawlFn:   crawlFn,
		refreshFn: refreshFn,
		places:    places,
		interval:  interval,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// Start launches the recurring loops. An immediate active sweep runs first
// so a fresh deployment has data before the first tick.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)
	go s.activeLoop(ctx)
	go s.soldLoop(ctx)
}

// Stop halts the loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Scheduler) activeLoop(ctx context.Context) {
	defer s.wg.Done()

	s.sweep(ctx, crawl.ModeActive)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx, crawl.ModeActive)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) soldLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-time.After(untilNextMidnight(time.Now())):
			s.sweep(ctx, crawl.ModeSold)
			if s.refreshFn != nil {
				if err := s.refreshFn(ctx); err != nil {
					s.logger.WithError(err).Warn("coordinate refresh failed")
				}
			}
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context, mode crawl.Mode) {
	for _, place := range s.places {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.logger.WithFields(logrus.Fields{
			"place": place,
			"mode":  mode,
		}).Info("starting scheduled crawl")
		if err := s.crawlFn(ctx, place, mode); err != nil {
			s.logger.WithFields(logrus.Fields{
				"place": place,
				"mode":  mode,
				"error": err,
			}).Error("scheduled crawl failed")
		}
	}
}

func untilNextMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return next.Sub(now)
}
