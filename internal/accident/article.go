// Package accident holds the domain types shared by every pipeline stage.
package accident

import (
	"strings"
	"time"
)

// RawArticle is one crawled news article before extraction.
type RawArticle struct {
	URL         string
	PublishedAt *time.Time
	Source      string
	Text        string
	Title       string
}

// PublishDate returns the calendar date of the article as YYYY-MM-DD, or ""
// when the publish time is unknown.
func (a RawArticle) PublishDate() string {
	if a.PublishedAt == nil {
		return ""
	}
	return a.PublishedAt.Format(DateLayout)
}

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

// URLSet is a set of article URLs.
type URLSet map[string]struct{}

// NewURLSet builds a set from the given URLs.
func NewURLSet(urls ...string) URLSet {
	s := make(URLSet, len(urls))
	for _, u := range urls {
		s.Add(u)
	}
	return s
}

// Has reports whether u (or its www-less form) is in the set.
func (s URLSet) Has(u string) bool {
	if _, ok := s[u]; ok {
		return true
	}
	_, ok := s[StripWWW(u)]
	return ok
}

// Add inserts u, and its www-less form, into the set.
func (s URLSet) Add(u string) {
	if u == "" {
		return
	}
	s[u] = struct{}{}
	s[StripWWW(u)] = struct{}{}
}

// Clone returns a copy of the set.
func (s URLSet) Clone() URLSet {
	c := make(URLSet, len(s))
	for u := range s {
		c[u] = struct{}{}
	}
	return c
}

// StripWWW removes the "www." host prefix publishers use inconsistently.
func StripWWW(u string) string {
	return strings.Replace(u, "www.", "", 1)
}
