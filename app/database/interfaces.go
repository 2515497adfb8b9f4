package database

import (
	"github.com/lysyi3m/newsdeck/app/story"
)

// StoryRepository persists the merged result of an aggregation run.
// Each completed run replaces the stored snapshot in full.
type StoryRepository interface {
	ReplaceAll(stories []story.Story) error
	GetAll() ([]story.Story, error)
	GetStoryCount() (int, error)
}
