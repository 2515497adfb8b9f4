package story

import (
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrEmptyTitle  = errors.New("story title is empty")
	ErrEmptyBody   = errors.New("story body is empty")
	ErrInvalidLink = errors.New("story link is not a valid http(s) URL")
)

// Story is a validated, immutable news item. Two stories are the same
// item iff their Link values are equal.
type Story struct {
	Title       string
	Body        string
	Link        string
	ImageURL    string
	SourceLabel string
}

// New validates and sanitizes raw feed entry fields into a Story.
// The body is stripped of markup, the link is normalized and must use
// an http(s) scheme. An invalid image URL is dropped, not an error.
// Safe for concurrent use: pure function over its arguments.
func New(title, body, link, imageURL, sourceLabel string) (*Story, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	body = stripMarkup(body)
	if body == "" {
		return nil, ErrEmptyBody
	}

	link, ok := normalizeLink(link)
	if !ok {
		return nil, ErrInvalidLink
	}

	if imageURL != "" {
		if normalized, ok := normalizeLink(imageURL); ok {
			imageURL = normalized
		} else {
			imageURL = ""
		}
	}

	return &Story{
		Title:       title,
		Body:        body,
		Link:        link,
		ImageURL:    imageURL,
		SourceLabel: strings.TrimSpace(sourceLabel),
	}, nil
}

// stripMarkup reduces an HTML fragment to its plain text content with
// collapsed whitespace.
func stripMarkup(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return strings.Join(strings.Fields(body), " ")
	}

	return strings.Join(strings.Fields(doc.Text()), " ")
}

// normalizeLink validates the URL scheme and strips fragments and
// common tracking parameters, so the same article shared through
// different channels dedups to one link.
func normalizeLink(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" {
		return "", false
	}

	u.Fragment = ""

	q := u.Query()
	for k := range q {
		if isTrackingParam(k) {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), true
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)

	if strings.HasPrefix(key, "utm_") || strings.HasPrefix(key, "mc_") {
		return true
	}

	switch key {
	case "fbclid", "gclid", "yclid", "igshid", "ref":
		return true
	}

	return false
}
