package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fundamental/crawler/internal/discovery"
	"fundamental/crawler/internal/extractor"
	"fundamental/crawler/internal/models"
	"fundamental/crawler/internal/page"
)

// Mode selects which side of the market a run covers.
type Mode string

const (
	ModeActive Mode = "active"
	ModeSold   Mode = "sold"
)

// Fetcher fetches and parses one page.
type Fetcher interface {
	Get(ctx context.Context, url string) (*page.Page, error)
}

// Dispatcher receives extracted properties. Close flushes anything buffered.
type Dispatcher interface {
	Dispatch(p *models.Property) error
	Close() error
}

// KnownURLSource exposes the stored URL sets used to skip detail pages.
type KnownURLSource interface {
	URLsWithStatus(statuses ...string) (map[string]bool, error)
}

// Options configure one crawl run.
type Options struct {
	Place    string
	Mode     Mode
	MaxPages int // 0 means unbounded

	MaxEmptyPages      int
	MaxPagesWithoutNew int
	ConcurrentRequests int

	Resume bool
}

// Summary reports how a run went.
type Summary struct {
	Place           string        `json:"place"`
	Mode            Mode          `json:"mode"`
	PagesCrawled    int           `json:"pages_crawled"`
	ListingsSeen    int           `json:"listings_seen"`
	NewListings     int           `json:"new_listings"`
	ItemsScraped    int           `json:"items_scraped"`
	ItemsDispatched int           `json:"items_dispatched"`
	StopReason      StopReason    `json:"stop_reason"`
	Duration        time.Duration `json:"duration"`

	// SeenURLs is every listing URL that appeared on a search page this
	// run, including ones skipped as already known. Callers use it to spot
	// delisted properties after a complete sweep.
	SeenURLs map[string]bool `json:"-"`
}

// Runner drives one crawl: walk search pages, discover listings, fetch and
// extract the new ones, dispatch the results, checkpoint after every page.
type Runner struct {
	fetcher     Fetcher
	discoverer  *discovery.Discoverer
	extractor   *extractor.Extractor
	dispatcher  Dispatcher
	known       KnownURLSource
	checkpoints *CheckpointStore
	logger      *logrus.Logger
	opts        Options
}

func NewRunner(fetcher Fetcher, disc *discovery.Discoverer, ext *extractor.Extractor,
	dispatcher Dispatcher, known KnownURLSource, checkpoints *CheckpointStore,
	logger *logrus.Logger, opts Options) *Runner {
	return &Runner{
		fetcher:     fetcher,
		discoverer:  disc,
		extractor:   ext,
		dispatcher:  dispatcher,
		known:       known,
		checkpoints: checkpoints,
		logger:      logger,
		opts:        opts,
	}
}

func (r *Runner) spiderName() string {
	return "funda_" + string(r.opts.Mode)
}

func (r *Runner) availability() string {
	if r.opts.Mode == ModeSold {
		return discovery.AvailabilityUnavailable
	}
	return ""
}

func (r *Runner) observedStatus() string {
	if r.opts.Mode == ModeSold {
		return models.StatusSold
	}
	return models.StatusActive
}

// knownURLs returns the stored URLs this run may skip. A sold crawl only
// skips listings already recorded as sold; everything else must be refetched
// so the sale is recorded. An active crawl skips anything already tracked.
func (r *Runner) knownURLs() (map[string]bool, error) {
	if r.known == nil {
		return map[string]bool{}, nil
	}
	if r.opts.Mode == ModeSold {
		return r.known.URLsWithStatus(models.StatusSold)
	}
	return r.known.URLsWithStatus(models.StatusActive, models.StatusInactive, models.StatusRepublished)
}

// Run executes the crawl until a stop rule fires or the context is
// cancelled. The dispatcher is closed (and therefore flushed) before Run
// returns.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()

	var state *RunState
	if r.opts.Resume && r.checkpoints != nil {
		loaded, err := r.checkpoints.Load(r.spiderName(), r.opts.Place)
		if err != nil {
			return nil, err
		}
		if loaded != nil {
			state = loaded
			r.logger.WithFields(logrus.Fields{
				"place": r.opts.Place,
				"page":  state.PageCount,
			}).Info("resuming from checkpoint")
		}
	}
	tracker := NewTracker(state, r.opts.MaxEmptyPages, r.opts.MaxPagesWithoutNew)

	known, err := r.knownURLs()
	if err != nil {
		return nil, fmt.Errorf("loading known urls: %w", err)
	}

	dispatched := 0
	listingsSeen := 0
	reason := StopNone
	seen := map[string]bool{}
	pageURL := discovery.SearchURL(r.opts.Place, r.availability(), tracker.State().PageCount+1)

	for {
		if stopReason, stop := tracker.ShouldStop(r.opts.MaxPages); stop {
			reason = stopReason
			break
		}
		if err := ctx.Err(); err != nil {
			r.flush()
			return nil, err
		}

		searchPage, err := r.fetcher.Get(ctx, pageURL)
		if err != nil {
			r.flush()
			return nil, fmt.Errorf("fetching search page: %w", err)
		}
		listings, err := r.discoverer.Listings(searchPage)
		if errors.Is(err, page.ErrBlocked) {
			reason = StopBlocked
			r.logger.WithField("url", pageURL).Warn("search page blocked, stopping")
			break
		}
		if err != nil {
			r.flush()
			return nil, err
		}

		for _, u := range listings {
			seen[u] = true
		}
		listingsSeen += len(listings)
		fresh := tracker.FilterNew(listings, known)
		blocked, count := r.processListings(ctx, fresh)
		dispatched += count

		tracker.RecordPage(len(listings), len(fresh), count)
		if r.checkpoints != nil {
			if err := r.checkpoints.Save(r.spiderName(), r.opts.Place, tracker.State()); err != nil {
				r.logger.WithError(err).Warn("failed to save checkpoint")
			}
		}

		r.logger.WithFields(logrus.Fields{
			"place":    r.opts.Place,
			"mode":     r.opts.Mode,
			"page":     tracker.State().PageCount,
			"listings": len(listings),
			"new":      len(fresh),
		}).Info("crawled search page")

		if blocked {
			reason = StopBlocked
			break
		}
		next, ok := r.discoverer.NextPage(searchPage, r.opts.Place, r.availability(), tracker.State().PageCount)
		if !ok {
			reason = StopBlocked
			break
		}
		pageURL = next
	}

	if err := r.flush(); err != nil {
		return nil, fmt.Errorf("flushing dispatcher: %w", err)
	}
	if reason != StopBlocked && r.checkpoints != nil {
		if err := r.checkpoints.Clear(r.spiderName(), r.opts.Place); err != nil {
			r.logger.WithError(err).Warn("failed to clear checkpoint")
		}
	}

	return &Summary{
		Place:           r.opts.Place,
		Mode:            r.opts.Mode,
		PagesCrawled:    tracker.State().PageCount,
		ListingsSeen:    listingsSeen,
		NewListings:     tracker.State().NewItemsFound,
		ItemsScraped:    tracker.State().TotalItemsScraped,
		ItemsDispatched: dispatched,
		StopReason:      reason,
		Duration:        time.Since(started),
		SeenURLs:        seen,
	}, nil
}

// processListings fetches and extracts detail pages with bounded
// concurrency. The page is only checkpointed after every listing on it has
// been handled, so the join happens here. Returns whether a block was hit
// and how many properties were dispatched.
func (r *Runner) processListings(ctx context.Context, urls []string) (blocked bool, dispatched int) {
	if len(urls) == 0 {
		return false, 0
	}

	limit := r.opts.ConcurrentRequests
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, u := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(detailURL string) {
			defer wg.Done()
			defer func() { <-sem }()

			wasBlocked, ok := r.processOne(ctx, detailURL)
			mu.Lock()
			if wasBlocked {
				blocked = true
			}
			if ok {
				dispatched++
			}
			mu.Unlock()
		}(u)
	}
	wg.Wait()
	return blocked, dispatched
}

func (r *Runner) processOne(ctx context.Context, detailURL string) (wasBlocked, ok bool) {
	detail, err := r.fetcher.Get(ctx, detailURL)
	if err != nil {
		r.logger.WithFields(logrus.Fields{"url": detailURL, "error": err}).Warn("failed to fetch listing")
		return false, false
	}
	prop, _, err := r.extractor.Extract(detail, r.observedStatus())
	if errors.Is(err, page.ErrBlocked) {
		r.logger.WithField("url", detailURL).Warn("listing page blocked")
		return true, false
	}
	if err != nil {
		r.logger.WithFields(logrus.Fields{"url": detailURL, "error": err}).Warn("failed to extract listing")
		return false, false
	}
	if err := r.dispatcher.Dispatch(prop); err != nil {
		r.logger.WithFields(logrus.Fields{"url": detailURL, "error": err}).Error("failed to dispatch property")
		return false, false
	}
	return false, true
}

func (r *Runner) flush() error {
	return r.dispatcher.Close()
}
