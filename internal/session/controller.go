package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/offersplus/backend/internal/h1b"
	"github.com/offersplus/backend/internal/logger"
)

// Defaults for a live view.
const (
	DefaultDebounce      = 300 * time.Millisecond
	DefaultStatsInterval = 30 * time.Second
)

// Fetcher loads pages; *service.Service satisfies it.
type Fetcher interface {
	GetFilteredApplications(ctx context.Context, f h1b.Filters, p h1b.Pagination) (h1b.PaginatedResult[h1b.Record], error)
}

// HitRater is implemented by fetchers that can report the cache hit rate.
type HitRater interface {
	HitRate() float64
}

// FilterPatch changes some filters. Nil fields are left alone; an empty
// string or a non-positive salary clears that filter.
type FilterPatch struct {
	Employer   *string  `json:"employer,omitempty"`
	Status     *string  `json:"status,omitempty"`
	JobTitle   *string  `json:"jobTitle,omitempty"`
	SearchTerm *string  `json:"searchTerm,omitempty"`
	MinSalary  *float64 `json:"minSalary,omitempty"`
	MaxSalary  *float64 `json:"maxSalary,omitempty"`
}

// Apply returns f with the patch applied.
func (p FilterPatch) Apply(f h1b.Filters) h1b.Filters {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&f.Employer, p.Employer)
	set(&f.Status, p.Status)
	set(&f.JobTitle, p.JobTitle)
	set(&f.SearchTerm, p.SearchTerm)
	if p.MinSalary != nil {
		f.MinSalary = p.MinSalary
	}
	if p.MaxSalary != nil {
		f.MaxSalary = p.MaxSalary
	}
	return f.Normalize()
}

// State is a snapshot of a live view.
type State struct {
	Filters      h1b.Filters                      `json:"filters"`
	Pagination   h1b.Pagination                   `json:"pagination"`
	Data         *h1b.PaginatedResult[h1b.Record] `json:"data,omitempty"`
	Loading      bool                             `json:"loading"`
	Error        string                           `json:"error,omitempty"`
	CacheHitRate float64                          `json:"cacheHitRate"`
}

// Options tune a Controller.
type Options struct {
	Debounce time.Duration
	// StatsInterval is how often the hit rate is refreshed; negative
	// disables the refresh.
	StatsInterval time.Duration
	Pagination    h1b.Pagination
}

// Controller owns one live view. Filter edits are debounced, page changes
// fetch immediately, and only the newest request may publish its result.
type Controller struct {
	fetcher  Fetcher
	opts     Options
	log      *slog.Logger
	debounce Debouncer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	generation  uint64
	cancelFetch context.CancelFunc
	listeners   map[int]func(State)
	nextID      int
	closed      bool

	pubMu sync.Mutex
}

// NewController starts a view with no filters on the first page. Nothing
// is fetched until Refresh or a change.
func NewController(ctx context.Context, f Fetcher, opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.StatsInterval == 0 {
		opts.StatsInterval = DefaultStatsInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		fetcher:   f,
		opts:      opts,
		log:       logger.WithComponent("session"),
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[int]func(State)),
	}
	c.state.Pagination = opts.Pagination.Clamp()
	c.state.CacheHitRate = c.hitRate()
	if _, ok := f.(HitRater); ok && opts.StatsInterval > 0 {
		c.wg.Add(1)
		go c.refreshStats()
	}
	return c
}

// OnChange registers fn for every published state and returns a function
// that removes it. fn runs synchronously and must not call back into the
// Controller.
func (c *Controller) OnChange(fn func(State)) (remove func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UpdateFilters applies patch, returns to the first page and fetches once
// the edits settle.
func (c *Controller) UpdateFilters(patch FilterPatch) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state.Filters = patch.Apply(c.state.Filters)
	c.state.Pagination.Page = 1
	c.mu.Unlock()
	c.publish()
	c.debounce.Schedule(c.opts.Debounce, c.load)
}

// ClearFilters drops every filter and fetches the first page now.
func (c *Controller) ClearFilters() {
	c.change(func(s *State) {
		s.Filters = h1b.Filters{}
		s.Pagination.Page = 1
	})
}

// SetPage moves to page n immediately.
func (c *Controller) SetPage(n int) {
	c.change(func(s *State) { s.Pagination.Page = n })
}

// SetPageSize changes the page size and returns to the first page.
func (c *Controller) SetPageSize(n int) {
	c.change(func(s *State) {
		s.Pagination.PageSize = n
		s.Pagination.Page = 1
	})
}

// SetSort orders results by column and direction.
func (c *Controller) SetSort(column, order string) {
	c.change(func(s *State) {
		s.Pagination.SortBy = column
		s.Pagination.SortOrder = order
		s.Pagination.Page = 1
	})
}

// Refresh refetches the current view.
func (c *Controller) Refresh() { c.change(func(*State) {}) }

func (c *Controller) change(fn func(*State)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fn(&c.state)
	c.state.Pagination = c.state.Pagination.Clamp()
	c.mu.Unlock()
	c.debounce.Cancel()
	c.load()
}

// load starts a fetch for the current filters and page. A newer load
// supersedes it: the older result is dropped and its context canceled.
func (c *Controller) load() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.generation++
	gen := c.generation
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelFetch = cancel
	filters, page := c.state.Filters, c.state.Pagination
	c.state.Loading = true
	c.state.Error = ""
	c.wg.Add(1)
	c.mu.Unlock()
	c.publish()

	go func() {
		defer c.wg.Done()
		defer cancel()
		res, err := c.fetcher.GetFilteredApplications(ctx, filters, page)

		c.mu.Lock()
		if gen != c.generation || c.closed {
			c.mu.Unlock()
			return
		}
		c.state.Loading = false
		if err != nil {
			c.state.Error = err.Error()
			c.log.WarnContext(ctx, "live view fetch failed", "error", err)
		} else {
			c.state.Data = &res
			c.state.Pagination.PageSize = res.PageSize
			c.state.Pagination.Page = res.CurrentPage
		}
		c.state.CacheHitRate = c.hitRate()
		c.mu.Unlock()
		c.publish()
	}()
}

func (c *Controller) hitRate() float64 {
	if hr, ok := c.fetcher.(HitRater); ok {
		return hr.HitRate()
	}
	return 0
}

func (c *Controller) refreshStats() {
	defer c.wg.Done()
	t := time.NewTicker(c.opts.StatsInterval)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			rate := c.hitRate()
			c.mu.Lock()
			changed := !c.closed && rate != c.state.CacheHitRate
			c.state.CacheHitRate = rate
			c.mu.Unlock()
			if changed {
				c.publish()
			}
		}
	}
}

// publish delivers the current state to listeners, one publish at a time
// so listeners observe states in order.
func (c *Controller) publish() {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	st := c.state
	fns := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// Close stops pending work and waits for in-flight fetches to return.
// Nothing is published after Close.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.debounce.Cancel()
	c.cancel()
	c.wg.Wait()
}
