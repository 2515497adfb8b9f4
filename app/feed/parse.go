package feed

import (
	"bytes"
	"encoding/xml"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/lysyi3m/newsdeck/app/story"
)

// Parse converts one feed's raw bytes into zero or more stories,
// labeling each with sourceLabel. Every call runs on a fresh scanner,
// so concurrent parses of different sources share no state.
//
// Parsing is best-effort: a malformed byte stream yields the entries
// scanned before the first error, never a failure. Entries rejected by
// the story constructor are dropped individually.
func Parse(data []byte, sourceLabel string) []story.Story {
	s := &scanner{sourceLabel: sourceLabel}
	return s.run(data)
}

// scanner holds the scratch state of one parse call. It is never
// reused across calls.
type scanner struct {
	sourceLabel string

	inEntry bool
	field   string
	title   strings.Builder
	body    strings.Builder
	link    strings.Builder
	image   string

	stories []story.Story
}

func (s *scanner) run(data []byte) []story.Story {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = charset.NewReaderLabel
	decoder.Strict = false

	for {
		token, err := decoder.Token()
		if err != nil {
			// Truncated or malformed trailing bytes must not lose the
			// entries already scanned.
			break
		}

		switch t := token.(type) {
		case xml.StartElement:
			s.startElement(t)
		case xml.CharData:
			s.charData(t)
		case xml.EndElement:
			s.endElement(t)
		}
	}

	if s.stories == nil {
		return []story.Story{}
	}
	return s.stories
}

func (s *scanner) startElement(t xml.StartElement) {
	name := t.Name.Local

	if !s.inEntry {
		if name == "item" || name == "entry" {
			s.inEntry = true
			s.field = ""
			s.title.Reset()
			s.body.Reset()
			s.link.Reset()
			s.image = ""
		}
		return
	}

	switch name {
	case "title":
		s.field = "title"
	case "description", "summary":
		s.field = "body"
	case "link":
		s.field = "link"
		// Atom carries the target in an href attribute instead of text
		if href := attr(t, "href"); href != "" && s.link.Len() == 0 {
			s.link.WriteString(href)
		}
	case "thumbnail", "enclosure", "content":
		// media:thumbnail, enclosure and media:content markers; only
		// the first non-empty image reference per entry is kept
		if s.image == "" {
			s.image = attr(t, "url")
		}
	}
}

func (s *scanner) charData(t xml.CharData) {
	if !s.inEntry {
		return
	}

	switch s.field {
	case "title":
		s.title.Write(t)
	case "body":
		s.body.Write(t)
	case "link":
		s.link.Write(t)
	}
}

func (s *scanner) endElement(t xml.EndElement) {
	name := t.Name.Local

	if s.inEntry && (name == "item" || name == "entry") {
		s.finishEntry()
		s.inEntry = false
		s.field = ""
		return
	}

	s.field = ""
}

// finishEntry hands the accumulated entry fields to the story
// constructor. A rejected entry is dropped without affecting siblings.
func (s *scanner) finishEntry() {
	link := firstLine(s.link.String())
	image := strings.TrimSpace(s.image)

	item, err := story.New(s.title.String(), s.body.String(), link, image, s.sourceLabel)
	if err != nil {
		return
	}

	s.stories = append(s.stories, *item)
}

// firstLine trims an identifier field to its first non-empty line.
// Feed producers sometimes inject stray whitespace and newlines into
// link elements.
func firstLine(value string) string {
	for _, line := range strings.Split(value, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func attr(t xml.StartElement, name string) string {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}
