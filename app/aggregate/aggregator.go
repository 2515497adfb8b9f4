package aggregate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lysyi3m/newsdeck/app/feed"
	"github.com/lysyi3m/newsdeck/app/source"
	"github.com/lysyi3m/newsdeck/app/story"
)

// Notifier receives the final merged story list of one aggregation
// run. It is invoked exactly once per completed run and never for a
// superseded run.
type Notifier func(stories []story.Story)

// Aggregator drives aggregation runs: one concurrent fetch+parse task
// per source, results merged into per-run state, completion delivered
// through the run's Notifier. Starting a new run cancels the previous
// one; a cancelled run never notifies and its late results are
// discarded.
type Aggregator struct {
	fetcher Fetcher

	mu      sync.Mutex
	current *run
}

func NewAggregator(fetcher Fetcher) *Aggregator {
	return &Aggregator{fetcher: fetcher}
}

// Refresh starts an aggregation run over the given sources and returns
// its run ID without blocking. An outstanding previous run is
// cancelled first. An empty source list completes immediately with an
// empty story list and no fetches.
func (a *Aggregator) Refresh(sources []source.Source, notify Notifier) string {
	a.mu.Lock()
	if a.current != nil {
		a.current.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:      uuid.NewString(),
		ctx:     ctx,
		cancel:  cancel,
		seen:    make(map[string]struct{}),
		pending: len(sources),
		notify:  notify,
	}
	a.current = r
	a.mu.Unlock()

	slog.Info("Aggregation run started", "run_id", r.id, "sources", len(sources))

	if len(sources) == 0 {
		r.complete()
		return r.id
	}

	for _, src := range sources {
		go a.collect(r, src)
	}

	return r.id
}

// Stop cancels the outstanding run, if any.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		a.current.cancel()
		a.current = nil
	}
}

// collect is the per-source task: fetch, parse with a fresh scanner,
// merge. Any fetch failure degrades to zero items from this source;
// the source still counts toward run completion.
func (a *Aggregator) collect(r *run, src source.Source) {
	var items []story.Story

	data, err := a.fetcher.Fetch(r.ctx, src.URL)
	if err != nil {
		slog.Warn("Source fetch failed", "run_id", r.id, "source", src.Name, "error", err)
	} else {
		items = feed.Parse(data, src.Label)
		slog.Debug("Source parsed", "run_id", r.id, "source", src.Name, "items", len(items))
	}

	r.merge(items)
}

// run holds the shared state of one aggregation run. All mutation goes
// through merge, which serializes concurrent source completions.
type run struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	notify Notifier

	mu      sync.Mutex
	merged  []story.Story
	seen    map[string]struct{}
	pending int
	done    bool
}

// merge folds one source's items into the run state and decrements the
// pending count. Duplicate links are discarded, first seen wins. When
// the last pending source completes, the notifier fires with the final
// list.
func (r *run) merge(items []story.Story) {
	r.mu.Lock()

	// Closes the race between cancellation and a result already in
	// transit: a superseded run's items must never be merged.
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		return
	}

	for _, item := range items {
		if _, dup := r.seen[item.Link]; dup {
			continue
		}
		r.seen[item.Link] = struct{}{}
		r.merged = append(r.merged, item)
	}

	r.pending--

	var snapshot []story.Story
	finished := r.pending == 0 && !r.done
	if finished {
		r.done = true
		snapshot = make([]story.Story, len(r.merged))
		copy(snapshot, r.merged)
	}
	r.mu.Unlock()

	if finished {
		slog.Info("Aggregation run completed", "run_id", r.id, "stories", len(snapshot))
		r.notify(snapshot)
	}
}

// complete finishes a run that dispatched no sources.
func (r *run) complete() {
	r.mu.Lock()
	r.done = true
	r.mu.Unlock()

	slog.Info("Aggregation run completed", "run_id", r.id, "stories", 0)
	r.notify([]story.Story{})
}
