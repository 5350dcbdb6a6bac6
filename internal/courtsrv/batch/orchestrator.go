// Package batch runs the availability probes of one search in bounded,
// sequential groups and folds the parsed results into a single map.
package batch

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/courtcheck/courtcheck/internal/courtsrv/availability"
	"github.com/courtcheck/courtcheck/internal/courtsrv/cache"
	"github.com/courtcheck/courtcheck/internal/courtsrv/markup"
	"github.com/courtcheck/courtcheck/internal/courtsrv/upstream"
)

// Prober fetches the raw availability response of a single slot.
type Prober interface {
	ProbeSlot(ctx context.Context, venue, date, at string, s upstream.Session) (string, error)
}

// Request is one client search.
type Request struct {
	Venue     string
	Date      string
	TimeSlots []string
	Session   upstream.Session
}

// CacheKey returns the key the run is cached under.
func (r Request) CacheKey() string {
	return cache.Key(r.Venue, r.Date)
}

// EmitFunc receives the events of a run in order. It is called from the
// goroutine running the batch, never concurrently.
type EmitFunc func(Event)

// Options tunes an Orchestrator.
type Options struct {
	GroupSize  int           // probes in flight at once
	GroupDelay time.Duration // pause between groups
	TTL        time.Duration // lifetime of cached runs
}

// Outcome is the result of a search, either freshly probed or cached.
type Outcome struct {
	Results  availability.Results
	Cached   bool
	CachedAt time.Time
}

// Orchestrator runs searches: it checks the cache, probes the time slots in
// sequential groups and stores complete runs. It is safe for concurrent use.
type Orchestrator struct {
	prober Prober
	store  cache.Store
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

// New returns an Orchestrator. Zero options fall back to groups of 3 and a
// 600s cache lifetime. A nil store disables caching.
func New(prober Prober, store cache.Store, opts Options) *Orchestrator {
	if opts.GroupSize <= 0 {
		opts.GroupSize = 3
	}
	if opts.TTL <= 0 {
		opts.TTL = 600 * time.Second
	}
	if store == nil {
		store = cache.Noop{}
	}
	return &Orchestrator{
		prober: prober,
		store:  store,
		opts:   opts,
		sleep:  sleepCtx,
	}
}

// Store returns the cache the orchestrator reads and writes.
func (o *Orchestrator) Store() cache.Store {
	return o.store
}

// Lookup returns the cached run for req. Cache failures count as a miss.
func (o *Orchestrator) Lookup(ctx context.Context, req Request) (cache.Entry, bool) {
	key := req.CacheKey()
	entry, ok, err := o.store.Get(ctx, key)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache lookup failed")
		return cache.Entry{}, false
	}
	log.Ctx(ctx).Debug().Str("key", key).Bool("hit", ok).Msg("cache lookup")
	return entry, ok
}

// Search answers req from the cache when possible and runs the batch
// otherwise. A cache hit emits a single complete event.
func (o *Orchestrator) Search(ctx context.Context, req Request, emit EmitFunc) (Outcome, error) {
	if entry, ok := o.Lookup(ctx, req); ok {
		if emit != nil {
			emit(Event{Type: EventComplete, Venue: req.Venue, Date: req.Date, Results: entry.Results, Cached: true})
		}
		return Outcome{Results: entry.Results, Cached: true, CachedAt: entry.CachedAt}, nil
	}
	results, err := o.Run(ctx, req, emit)
	return Outcome{Results: results}, err
}

// Run probes every time slot of req, group by group. Slots within a group are
// probed concurrently and emitted in request order once the whole group has
// settled. The next group starts after the configured delay.
//
// A failed probe is recorded as an error result for its slot. The returned
// map has one entry per distinct requested slot. A completed run is written
// to the cache whatever its error count. When ctx is cancelled the remaining
// slots are recorded as errors, the run is not cached and ctx's error is
// returned.
func (o *Orchestrator) Run(ctx context.Context, req Request, emit EmitFunc) (availability.Results, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	logger := log.Ctx(ctx).With().Str("venue", req.Venue).Str("date", req.Date).Logger()

	slots := distinct(req.TimeSlots)
	results := make(availability.Results, len(slots))
	groups := partition(slots, o.opts.GroupSize)

	var cancelled error
	for gi, group := range groups {
		if gi > 0 {
			if err := o.sleep(ctx, o.opts.GroupDelay); err != nil {
				cancelled = err
			}
		}
		if cancelled == nil {
			cancelled = ctx.Err()
		}
		if cancelled != nil {
			for _, g := range groups[gi:] {
				for _, at := range g {
					results[at] = availability.ErrorResult("search cancelled: " + cancelled.Error())
				}
			}
			break
		}

		logger.Debug().Int("group", gi).Strs("slots", group).Msg("probing group")
		groupResults := o.probeGroup(ctx, req, group)
		for i, at := range group {
			results[at] = groupResults[i]
			emit(Event{Type: EventResult, TimeSlot: at, Result: groupResults[i]})
		}
		logger.Debug().Int("group", gi).Msg("group settled")
	}
	if cancelled == nil {
		cancelled = ctx.Err()
	}

	if cancelled != nil {
		logger.Info().Err(cancelled).Msg("search cancelled, result not cached")
		emit(Event{Type: EventError, Error: "search cancelled"})
		return results, cancelled
	}

	if err := o.store.Put(ctx, req.CacheKey(), results, o.opts.TTL); err != nil {
		logger.Warn().Err(err).Msg("unable to cache search results")
	}
	emit(Event{Type: EventComplete, Venue: req.Venue, Date: req.Date, Results: results})
	return results, nil
}

func (o *Orchestrator) probeGroup(ctx context.Context, req Request, group []string) []availability.Result {
	out := make([]availability.Result, len(group))
	var g errgroup.Group
	for i, at := range group {
		g.Go(func() error {
			out[i] = o.probe(ctx, req, at)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (o *Orchestrator) probe(ctx context.Context, req Request, at string) availability.Result {
	raw, err := o.prober.ProbeSlot(ctx, req.Venue, req.Date, at, req.Session)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("venue", req.Venue).Str("date", req.Date).Str("slot", at).Msg("probe failed")
		return availability.ErrorResult(err.Error())
	}
	return markup.ParseAvailability(raw)
}

// Stream runs Search in its own goroutine and returns its events. The channel
// is closed after the terminal event. Cancelling ctx stops the run and drains
// nothing: events not yet received are dropped.
func (o *Orchestrator) Stream(ctx context.Context, req Request) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		_, _ = o.Search(ctx, req, func(e Event) {
			select {
			case ch <- e:
			case <-ctx.Done():
			}
		})
	}()
	return ch
}

func partition(slots []string, size int) [][]string {
	var groups [][]string
	for chunk := range slices.Chunk(slots, size) {
		groups = append(groups, chunk)
	}
	return groups
}

func distinct(slots []string) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
