package api

import (
	"net/http"
	"time"

	"github.com/lysyi3m/newsdeck/app/database"
	"github.com/lysyi3m/newsdeck/app/source"
)

// Refresher triggers aggregation runs on demand and reports run state.
// Implemented by tasks.Scheduler.
type Refresher interface {
	TriggerRefresh() string
	LastRun() (string, *time.Time)
}

type Handler struct {
	registry   *source.Registry
	storyRepo  database.StoryRepository
	refresher  Refresher
	httpClient *http.Client
	userAgent  string
	version    string
}
