package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/newsdeck/app/aggregate"
	"github.com/lysyi3m/newsdeck/app/database"
	"github.com/lysyi3m/newsdeck/app/source"
	"github.com/lysyi3m/newsdeck/app/story"
)

// Scheduler issues an aggregation run per interval with the registry's
// current enabled sources and persists each completed run's result.
// A manually triggered refresh supersedes a scheduled run in flight,
// and vice versa; the aggregator guarantees only the newest run
// notifies.
type Scheduler struct {
	registry   *source.Registry
	aggregator *aggregate.Aggregator
	storyRepo  database.StoryRepository
	interval   time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu        sync.Mutex
	lastRunID string
	lastRunAt *time.Time
}

func NewScheduler(registry *source.Registry, aggregator *aggregate.Aggregator,
	storyRepo database.StoryRepository, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		registry:   registry,
		aggregator: aggregator,
		storyRepo:  storyRepo,
		interval:   interval,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.TriggerRefresh()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.TriggerRefresh()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.aggregator.Stop()
}

// TriggerRefresh starts an aggregation run over the currently enabled
// sources and returns its run ID. The run's result is persisted by the
// completion notifier; a run superseded before completion stores
// nothing.
func (s *Scheduler) TriggerRefresh() string {
	sources := s.registry.GetEnabled()

	runID := s.aggregator.Refresh(sources, func(stories []story.Story) {
		if err := s.storyRepo.ReplaceAll(stories); err != nil {
			slog.Error("Failed to store aggregation result", "error", err)
			return
		}

		now := time.Now().UTC()
		s.mu.Lock()
		s.lastRunAt = &now
		s.mu.Unlock()

		slog.Info("Aggregation result stored", "stories", len(stories))
	})

	s.mu.Lock()
	s.lastRunID = runID
	s.mu.Unlock()

	return runID
}

// LastRun reports the most recently started run ID and the completion
// time of the last run whose result was stored.
func (s *Scheduler) LastRun() (string, *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunID, s.lastRunAt
}
