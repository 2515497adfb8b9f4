package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/newsdeck/app/source"
	"github.com/lysyi3m/newsdeck/app/story"
)

// feedXML builds a minimal RSS document with one item per link.
func feedXML(links ...string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Test</title>`)
	for _, link := range links {
		fmt.Fprintf(&b, `<item><title>Story %s</title><link>%s</link><description>Description for %s</description></item>`, link, link, link)
	}
	b.WriteString(`</channel></rss>`)
	return []byte(b.String())
}

type stubFetcher struct {
	mu        sync.Mutex
	responses map[string][]byte
	errs      map[string]error
	blocking  map[string]bool
	calls     int
}

// Fetch returns the configured response for the URL. A blocking URL
// waits for cancellation and then still returns its payload, modeling
// a result already in transit when the run is superseded.
func (f *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	data := f.responses[url]
	err := f.errs[url]
	blocking := f.blocking[url]
	f.mu.Unlock()

	if blocking {
		<-ctx.Done()
		return data, nil
	}

	if err != nil {
		return nil, err
	}
	return data, nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitForResult(t *testing.T, results chan []story.Story) []story.Story {
	t.Helper()

	select {
	case stories := <-results:
		return stories
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for run completion")
		return nil
	}
}

func linkSet(stories []story.Story) map[string]bool {
	set := make(map[string]bool, len(stories))
	for _, s := range stories {
		set[s.Link] = true
	}
	return set
}

func TestRefreshMergesAllSources(t *testing.T) {
	fetcher := &stubFetcher{
		responses: map[string][]byte{
			"https://one.example.com/rss": feedXML("https://one.example.com/a", "https://one.example.com/b"),
			"https://two.example.com/rss": feedXML("https://two.example.com/c"),
		},
	}
	aggregator := NewAggregator(fetcher)

	results := make(chan []story.Story, 1)
	aggregator.Refresh([]source.Source{
		{Name: "one", URL: "https://one.example.com/rss", Label: "One"},
		{Name: "two", URL: "https://two.example.com/rss", Label: "Two"},
	}, func(stories []story.Story) {
		results <- stories
	})

	stories := waitForResult(t, results)

	if len(stories) != 3 {
		t.Fatalf("Expected 3 stories, got: %d", len(stories))
	}

	set := linkSet(stories)
	for _, link := range []string{"https://one.example.com/a", "https://one.example.com/b", "https://two.example.com/c"} {
		if !set[link] {
			t.Errorf("Expected link %s in merged result", link)
		}
	}
}

func TestRefreshPreservesWithinSourceOrder(t *testing.T) {
	fetcher := &stubFetcher{
		responses: map[string][]byte{
			"https://one.example.com/rss": feedXML("https://one.example.com/c", "https://one.example.com/a", "https://one.example.com/b"),
		},
	}
	aggregator := NewAggregator(fetcher)

	results := make(chan []story.Story, 1)
	aggregator.Refresh([]source.Source{
		{Name: "one", URL: "https://one.example.com/rss"},
	}, func(stories []story.Story) {
		results <- stories
	})

	stories := waitForResult(t, results)

	expected := []string{"https://one.example.com/c", "https://one.example.com/a", "https://one.example.com/b"}
	if len(stories) != len(expected) {
		t.Fatalf("Expected %d stories, got: %d", len(expected), len(stories))
	}
	for i, link := range expected {
		if stories[i].Link != link {
			t.Errorf("Expected link %s at position %d, got: %s", link, i, stories[i].Link)
		}
	}
}

func TestRefreshDeduplicatesAcrossSources(t *testing.T) {
	fetcher := &stubFetcher{
		responses: map[string][]byte{
			"https://one.example.com/rss": feedXML("https://shared.example.com/a", "https://shared.example.com/b"),
			"https://two.example.com/rss": feedXML("https://shared.example.com/b", "https://shared.example.com/c"),
		},
	}
	aggregator := NewAggregator(fetcher)

	results := make(chan []story.Story, 1)
	aggregator.Refresh([]source.Source{
		{Name: "one", URL: "https://one.example.com/rss"},
		{Name: "two", URL: "https://two.example.com/rss"},
	}, func(stories []story.Story) {
		results <- stories
	})

	stories := waitForResult(t, results)

	if len(stories) != 3 {
		t.Fatalf("Expected 3 stories after dedup, got: %d", len(stories))
	}

	set := linkSet(stories)
	if len(set) != len(stories) {
		t.Errorf("Expected all links distinct, got %d links for %d stories", len(set), len(stories))
	}
	for _, link := range []string{"https://shared.example.com/a", "https://shared.example.com/b", "https://shared.example.com/c"} {
		if !set[link] {
			t.Errorf("Expected link %s in merged result", link)
		}
	}
}

func TestRefreshDeduplicatesWithinSource(t *testing.T) {
	fetcher := &stubFetcher{
		responses: map[string][]byte{
			"https://one.example.com/rss": feedXML("https://one.example.com/a", "https://one.example.com/a", "https://one.example.com/b"),
		},
	}
	aggregator := NewAggregator(fetcher)

	results := make(chan []story.Story, 1)
	aggregator.Refresh([]source.Source{
		{Name: "one", URL: "https://one.example.com/rss"},
	}, func(stories []story.Story) {
		results <- stories
	})

	stories := waitForResult(t, results)

	if len(stories) != 2 {
		t.Fatalf("Expected 2 stories, got: %d", len(stories))
	}
}

func TestRefreshEmptySourceList(t *testing.T) {
	fetcher := &stubFetcher{}
	aggregator := NewAggregator(fetcher)

	results := make(chan []story.Story, 1)
	aggregator.Refresh(nil, func(stories []story.Story) {
		results <- stories
	})

	stories := waitForResult(t, results)

	if len(stories) != 0 {
		t.Errorf("Expected empty result, got %d stories", len(stories))
	}
	if fetcher.callCount() != 0 {
		t.Errorf("Expected no fetches for empty source list, got: %d", fetcher.callCount())
	}
}

func TestRefreshAbsorbsSourceFailure(t *testing.T) {
	fetcher := &stubFetcher{
		responses: map[string][]byte{
			"https://one.example.com/rss":   feedXML("https://one.example.com/a"),
			"https://three.example.com/rss": feedXML("https://three.example.com/c"),
		},
		errs: map[string]error{
			"https://two.example.com/rss": errors.New("connection refused"),
		},
	}
	aggregator := NewAggregator(fetcher)

	results := make(chan []story.Story, 1)
	aggregator.Refresh([]source.Source{
		{Name: "one", URL: "https://one.example.com/rss"},
		{Name: "two", URL: "https://two.example.com/rss"},
		{Name: "three", URL: "https://three.example.com/rss"},
	}, func(stories []story.Story) {
		results <- stories
	})

	stories := waitForResult(t, results)

	if len(stories) != 2 {
		t.Fatalf("Expected 2 stories from surviving sources, got: %d", len(stories))
	}

	set := linkSet(stories)
	if !set["https://one.example.com/a"] || !set["https://three.example.com/c"] {
		t.Errorf("Expected stories from sources one and three, got: %v", set)
	}
}

func TestRefreshAbsorbsMalformedSource(t *testing.T) {
	fetcher := &stubFetcher{
		responses: map[string][]byte{
			"https://one.example.com/rss": []byte("definitely not xml"),
			"https://two.example.com/rss": feedXML("https://two.example.com/a"),
		},
	}
	aggregator := NewAggregator(fetcher)

	results := make(chan []story.Story, 1)
	aggregator.Refresh([]source.Source{
		{Name: "one", URL: "https://one.example.com/rss"},
		{Name: "two", URL: "https://two.example.com/rss"},
	}, func(stories []story.Story) {
		results <- stories
	})

	stories := waitForResult(t, results)

	if len(stories) != 1 {
		t.Fatalf("Expected 1 story, got: %d", len(stories))
	}
	if stories[0].Link != "https://two.example.com/a" {
		t.Errorf("Expected story from source two, got: %s", stories[0].Link)
	}
}

func TestRefreshSupersedesOutstandingRun(t *testing.T) {
	// Source one blocks until cancelled and then still delivers its
	// payload, so the superseded run has a result in transit when the
	// new run starts. The merge-side guard must discard it.
	fetcher := &stubFetcher{
		responses: map[string][]byte{
			"https://one.example.com/rss": feedXML("https://one.example.com/stale"),
			"https://two.example.com/rss": feedXML("https://two.example.com/fresh"),
		},
		blocking: map[string]bool{
			"https://one.example.com/rss": true,
		},
	}
	aggregator := NewAggregator(fetcher)

	firstResults := make(chan []story.Story, 1)
	aggregator.Refresh([]source.Source{
		{Name: "one", URL: "https://one.example.com/rss"},
	}, func(stories []story.Story) {
		firstResults <- stories
	})

	// Wait until the first run's fetch is actually in flight.
	deadline := time.Now().Add(2 * time.Second)
	for fetcher.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("First run's fetch never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	secondResults := make(chan []story.Story, 1)
	aggregator.Refresh([]source.Source{
		{Name: "two", URL: "https://two.example.com/rss"},
	}, func(stories []story.Story) {
		secondResults <- stories
	})

	stories := waitForResult(t, secondResults)

	if len(stories) != 1 {
		t.Fatalf("Expected 1 story from second run, got: %d", len(stories))
	}
	if stories[0].Link != "https://two.example.com/fresh" {
		t.Errorf("Expected only the second run's story, got: %s", stories[0].Link)
	}

	// The superseded run must never notify, even after its in-flight
	// fetch unblocks.
	select {
	case stale := <-firstResults:
		t.Errorf("Superseded run notified with %d stories", len(stale))
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStopCancelsOutstandingRun(t *testing.T) {
	fetcher := &stubFetcher{
		responses: map[string][]byte{
			"https://one.example.com/rss": feedXML("https://one.example.com/a"),
		},
		blocking: map[string]bool{
			"https://one.example.com/rss": true,
		},
	}
	aggregator := NewAggregator(fetcher)

	results := make(chan []story.Story, 1)
	aggregator.Refresh([]source.Source{
		{Name: "one", URL: "https://one.example.com/rss"},
	}, func(stories []story.Story) {
		results <- stories
	})

	deadline := time.Now().Add(2 * time.Second)
	for fetcher.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Fetch never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	aggregator.Stop()

	select {
	case stories := <-results:
		t.Errorf("Cancelled run notified with %d stories", len(stories))
	case <-time.After(200 * time.Millisecond):
	}
}
