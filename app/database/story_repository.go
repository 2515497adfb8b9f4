package database

import (
	"fmt"

	"github.com/lysyi3m/newsdeck/app/story"
)

var _ StoryRepository = (*SQLStoryRepository)(nil)

type SQLStoryRepository struct {
	db *DB
}

func NewStoryRepository(db *DB) *SQLStoryRepository {
	return &SQLStoryRepository{db: db}
}

// ReplaceAll swaps the stored snapshot for the given run result in one
// transaction, preserving merge order through the position column.
func (r *SQLStoryRepository) ReplaceAll(stories []story.Story) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM stories"); err != nil {
		return fmt.Errorf("failed to clear stories: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO stories (position, title, body, link, image_url, source_label)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, s := range stories {
		if _, err := stmt.Exec(i, s.Title, s.Body, s.Link, s.ImageURL, s.SourceLabel); err != nil {
			return fmt.Errorf("failed to insert story %s: %w", s.Link, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetAll returns the stored snapshot in merge order.
func (r *SQLStoryRepository) GetAll() ([]story.Story, error) {
	rows, err := r.db.Query(`
		SELECT title, body, link, image_url, source_label
		FROM stories
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get stories: %w", err)
	}
	defer rows.Close()

	stories := []story.Story{}
	for rows.Next() {
		var s story.Story
		if err := rows.Scan(&s.Title, &s.Body, &s.Link, &s.ImageURL, &s.SourceLabel); err != nil {
			return nil, fmt.Errorf("failed to scan story row: %w", err)
		}
		stories = append(stories, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating story rows: %w", err)
	}

	return stories, nil
}

func (r *SQLStoryRepository) GetStoryCount() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM stories").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get story count: %w", err)
	}
	return count, nil
}
