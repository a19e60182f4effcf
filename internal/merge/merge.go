// Package merge combines crawler output into one ordered batch of relevant,
// distinct articles ready for extraction.
package merge

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
)

const (
	DefaultThreshold = 0.9
	DefaultMaxBucket = 2000
)

// ErrResourceLimit is returned when a date bucket is too large to compare
// pairwise.
var ErrResourceLimit = errors.New("similarity bucket exceeds resource limit")

// DefaultKeywords is the relevance gate. Matching is a case-insensitive
// substring test.
var DefaultKeywords = []string{
	"road accident", "accident", "accidents", "traffic", "capsize", "overturned",
	"slam", "hit", "ran over", "run over", "collided", "road accidents",
	"collision", "crashed", "collisions", "train crash",
	"road and railway accidents", "railway accidents", "crashes", "crash",
}

// Options configures the merger.
type Options struct {
	Keywords  []string
	Threshold float64
	// MaxBucket caps the number of articles compared within one date.
	MaxBucket int
}

// Stats counts what each merge step removed.
type Stats struct {
	Input          int
	URLDuplicates  int
	Irrelevant     int
	NearDuplicates int
	Output         int
}

// Merger runs the merge steps with fixed options.
type Merger struct {
	opts Options
}

// New creates a merger, filling unset options with defaults.
func New(opts Options) *Merger {
	if len(opts.Keywords) == 0 {
		opts.Keywords = DefaultKeywords
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.MaxBucket <= 0 {
		opts.MaxBucket = DefaultMaxBucket
	}
	return &Merger{opts: opts}
}

// Process merges batches, filters for relevance and removes near-duplicates.
func (m *Merger) Process(known accident.URLSet, batches ...[]accident.RawArticle) ([]accident.RawArticle, Stats, error) {
	var st Stats
	for _, b := range batches {
		st.Input += len(b)
	}

	merged := Merge(known, batches...)
	st.URLDuplicates = st.Input - len(merged)

	relevant := FilterRelevant(merged, m.opts.Keywords)
	st.Irrelevant = len(merged) - len(relevant)

	kept, err := RemoveNearDuplicates(relevant, m.opts.Threshold, m.opts.MaxBucket)
	if err != nil {
		return nil, st, err
	}
	st.NearDuplicates = len(relevant) - len(kept)
	st.Output = len(kept)

	log.Printf("Merged %d articles: %d URL duplicates, %d irrelevant, %d near-duplicates, %d kept",
		st.Input, st.URLDuplicates, st.Irrelevant, st.NearDuplicates, st.Output)
	return kept, st, nil
}

// Merge concatenates batches, keeps the first occurrence of every URL, drops
// URLs already in known and sorts by publish time with unknown times last.
func Merge(known accident.URLSet, batches ...[]accident.RawArticle) []accident.RawArticle {
	seen := accident.NewURLSet()
	var out []accident.RawArticle
	for _, batch := range batches {
		for _, a := range batch {
			if a.URL == "" || seen.Has(a.URL) || known.Has(a.URL) {
				continue
			}
			seen.Add(a.URL)
			out = append(out, a)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].PublishedAt, out[j].PublishedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return out
}

// FilterRelevant keeps articles whose text contains at least one keyword.
func FilterRelevant(articles []accident.RawArticle, keywords []string) []accident.RawArticle {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}

	var out []accident.RawArticle
	for _, a := range articles {
		text := strings.ToLower(a.Text)
		for _, k := range lowered {
			if k != "" && strings.Contains(text, k) {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// RemoveNearDuplicates compares the articles of each publish date pairwise and
// drops the later article of every pair whose similarity exceeds threshold.
// Articles without a publish date are never compared.
func RemoveNearDuplicates(articles []accident.RawArticle, threshold float64, maxBucket int) ([]accident.RawArticle, error) {
	buckets := make(map[string][]int)
	for i, a := range articles {
		if d := a.PublishDate(); d != "" {
			buckets[d] = append(buckets[d], i)
		}
	}

	dropped := make([]bool, len(articles))
	for date, idx := range buckets {
		if len(idx) < 2 {
			continue
		}
		if maxBucket > 0 && len(idx) > maxBucket {
			return nil, fmt.Errorf("%d articles on %s: %w", len(idx), date, ErrResourceLimit)
		}
		texts := make([]string, len(idx))
		for k, i := range idx {
			texts[k] = articles[i].Text
		}
		sim := CosineMatrix(texts)
		n := len(idx)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if sim[condensedIndex(n, i, j)] > threshold {
					dropped[idx[j]] = true
				}
			}
		}
	}

	out := make([]accident.RawArticle, 0, len(articles))
	for i, a := range articles {
		if !dropped[i] {
			out = append(out, a)
		}
	}
	return out, nil
}
