// Package notes turns an unstructured text note into a draft post payload.
//
// A note is a header of "Key: value" lines, a line consisting of "---", and a
// body:
//
//	Title: Hello
//	Slug: hello
//	Tags: go, notes
//	Cover: https://cdn.example/hello.png
//	---
//	Body text.
//
// Keys are matched case-insensitively and the first matching line wins. When
// the delimiter is present only lines above it are read as metadata. Without a
// delimiter the whole text is both the metadata source and the body, so a body
// line that starts with a known key is read as metadata.
package notes

import (
	"strings"

	"github.com/Sabina940/atlas/internal/util"
)

const (
	DefaultTitle = "Untitled"
	Delimiter    = "---"
)

// Note is the normalized parser output. Slug may be empty; callers reject that
// before persisting.
type Note struct {
	Title    string   `json:"title"`
	Slug     string   `json:"slug"`
	Tags     []string `json:"tags"`
	CoverURL *string  `json:"cover_url"`
	Content  string   `json:"content"`
}

type state int

const (
	// stateHeader reads "Key: value" lines while looking for the delimiter.
	stateHeader state = iota
	// stateBody collects everything after the delimiter verbatim.
	stateBody
)

var keys = []string{"title", "slug", "tags", "cover"}

// Parse never fails; missing fields fall back to their defaults.
func Parse(raw string) Note {
	var (
		st   = stateHeader
		meta = make(map[string]string, len(keys))
		body []string
	)
	for i, line := range strings.Split(raw, "\n") {
		switch st {
		case stateHeader:
			clean := strings.TrimRight(line, "\r")
			if i > 0 && clean == Delimiter {
				st = stateBody
				continue
			}
			if key, value, ok := splitMeta(clean); ok {
				if _, seen := meta[key]; !seen {
					meta[key] = value
				}
			}
		case stateBody:
			body = append(body, line)
		}
	}

	content := raw
	if st == stateBody {
		content = strings.TrimSpace(strings.Join(body, "\n"))
	}

	return Note{
		Title:    util.FirstNonBlank(meta["title"], DefaultTitle),
		Slug:     meta["slug"],
		Tags:     util.SplitTags(meta["tags"]),
		CoverURL: util.StringPtr(meta["cover"]),
		Content:  content,
	}
}

func splitMeta(line string) (string, string, bool) {
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return "", "", false
	}
	key := strings.ToLower(line[:colon])
	for _, known := range keys {
		if key == known {
			return key, strings.TrimSpace(line[colon+1:]), true
		}
	}
	return "", "", false
}
