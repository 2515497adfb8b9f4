package source

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mmcdole/gofeed"
)

// Probe fetches a source once and reports its channel metadata. Used
// to validate a configured source without running an aggregation.
func Probe(ctx context.Context, client *http.Client, userAgent, feedURL string) (*Info, error) {
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent

	parsed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to probe source: %w", err)
	}

	info := &Info{
		Title:       parsed.Title,
		Description: parsed.Description,
		ItemCount:   len(parsed.Items),
	}

	if parsed.Image != nil {
		info.ImageURL = parsed.Image.URL
	}

	return info, nil
}
