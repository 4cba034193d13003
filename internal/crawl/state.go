package crawl

// StopReason records why a crawl ended.
type StopReason string

const (
	StopNone          StopReason = ""
	StopMaxPages      StopReason = "max_pages"
	StopEmptyPages    StopReason = "empty_pages"
	StopNoNewListings StopReason = "no_new_listings"
	StopBlocked       StopReason = "blocked"
)

// RunState is the resumable progress of one crawl, keyed by (spider, place).
// ProcessedURLs holds every detail URL already handled this run so a resumed
// crawl never refetches them.
type RunState struct {
	PageCount                  int
	TotalItemsScraped          int
	NewItemsFound              int
	ConsecutiveEmptyPages      int
	ConsecutivePagesWithoutNew int
	ProcessedURLs              map[string]bool
}

func NewRunState() *RunState {
	return &RunState{ProcessedURLs: map[string]bool{}}
}

// Tracker applies the stop rules to a run in progress.
type Tracker struct {
	state              *RunState
	maxEmptyPages      int
	maxPagesWithoutNew int
}

func NewTracker(state *RunState, maxEmptyPages, maxPagesWithoutNew int) *Tracker {
	if state == nil {
		state = NewRunState()
	}
	if state.ProcessedURLs == nil {
		state.ProcessedURLs = map[string]bool{}
	}
	return &Tracker{
		state:              state,
		maxEmptyPages:      maxEmptyPages,
		maxPagesWithoutNew: maxPagesWithoutNew,
	}
}

func (t *Tracker) State() *RunState {
	return t.state
}

// FilterNew returns the URLs not yet processed this run and not in the known
// set, and marks them processed.
func (t *Tracker) FilterNew(urls []string, known map[string]bool) []string {
	var fresh []string
	for _, u := range urls {
		if t.state.ProcessedURLs[u] || known[u] {
			continue
		}
		t.state.ProcessedURLs[u] = true
		fresh = append(fresh, u)
	}
	return fresh
}

// RecordPage updates the counters after one search page. A page with any
// listings resets the empty-page streak; a page with any new listings resets
// the no-new streak. Only successfully scraped detail items count toward
// TotalItemsScraped; listings skipped as already known do not.
func (t *Tracker) RecordPage(found, fresh, scraped int) {
	t.state.PageCount++
	t.state.TotalItemsScraped += scraped
	t.state.NewItemsFound += fresh

	if found == 0 {
		t.state.ConsecutiveEmptyPages++
	} else {
		t.state.ConsecutiveEmptyPages = 0
	}
	if fresh == 0 {
		t.state.ConsecutivePagesWithoutNew++
	} else {
		t.state.ConsecutivePagesWithoutNew = 0
	}
}

// ShouldStop evaluates the stop rules. The page budget always wins over the
// streak rules; maxPages <= 0 means no budget.
func (t *Tracker) ShouldStop(maxPages int) (StopReason, bool) {
	if maxPages > 0 && t.state.PageCount >= maxPages {
		return StopMaxPages, true
	}
	if t.state.ConsecutiveEmptyPages >= t.maxEmptyPages {
		return StopEmptyPages, true
	}
	if t.state.ConsecutivePagesWithoutNew >= t.maxPagesWithoutNew {
		return StopNoNewListings, true
	}
	return StopNone, false
}
