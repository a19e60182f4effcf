// Package extract turns crawled articles into structured accident records by
// prompting an LLM and normalising the fenced JSON it answers with.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
	"github.com/TobiSchelling/accidentwatch/internal/llm"
)

// ErrNotConfigured is returned when no LLM provider is available.
var ErrNotConfigured = errors.New("LLM provider not configured")

const (
	DefaultMaxTokens   = 4000
	DefaultConcurrency = 4
)

// Options tunes an Extractor.
type Options struct {
	MaxTokens   int
	Concurrency int
}

// Stats counts what happened while parsing replies.
type Stats struct {
	Articles  int
	Failed    int
	Blocks    int
	Malformed int
	Unknown   int // fields outside the declared schema
	Dropped   int // objects whose category is not kept
	Records   int
}

func (s *Stats) add(o Stats) {
	s.Articles += o.Articles
	s.Failed += o.Failed
	s.Blocks += o.Blocks
	s.Malformed += o.Malformed
	s.Unknown += o.Unknown
	s.Dropped += o.Dropped
	s.Records += o.Records
}

// Extractor prompts a provider once per article.
type Extractor struct {
	provider llm.Provider
	opts     Options
}

// New creates an extractor. provider may be nil, in which case every call
// returns ErrNotConfigured.
func New(provider llm.Provider, opts Options) *Extractor {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Extractor{provider: provider, opts: opts}
}

// Configured reports whether extraction can run.
func (e *Extractor) Configured() bool {
	return e.provider != nil
}

// Extract prompts the provider for one article and parses its reply. index is
// the article's position in the run.
func (e *Extractor) Extract(ctx context.Context, a accident.RawArticle, index int) ([]accident.Record, Stats, error) {
	if e.provider == nil {
		return nil, Stats{}, ErrNotConfigured
	}
	reply, err := e.provider.Complete(ctx, Messages(a), e.opts.MaxTokens)
	if err != nil {
		return nil, Stats{Articles: 1, Failed: 1}, fmt.Errorf("extracting %s: %w", a.URL, err)
	}
	records, stats := ParseReply(reply, a, index)
	stats.Articles = 1
	return records, stats, nil
}

// ExtractAll extracts every article with bounded concurrency. Records come
// back in article order. A failed article is logged and counted, and does not
// abort the others. stopped, when non-nil, is polled before each article.
func (e *Extractor) ExtractAll(ctx context.Context, articles []accident.RawArticle, stopped func() bool) ([]accident.Record, Stats, error) {
	if e.provider == nil {
		return nil, Stats{}, ErrNotConfigured
	}

	perArticle := make([][]accident.Record, len(articles))
	perStats := make([]Stats, len(articles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, a := range articles {
		if stopped != nil && stopped() {
			log.Printf("Extraction stopped after %d of %d articles", i, len(articles))
			break
		}
		g.Go(func() error {
			records, stats, err := e.Extract(gctx, a, i)
			if err != nil {
				log.Printf("Error extracting article %d (%s): %v", i, a.URL, err)
			} else {
				log.Printf("Extracted %d records from %s", len(records), a.URL)
			}
			perArticle[i] = records
			perStats[i] = stats
			return nil
		})
	}
	g.Wait()

	var (
		out   []accident.Record
		total Stats
	)
	for i := range articles {
		out = append(out, perArticle[i]...)
		total.add(perStats[i])
	}
	if err := ctx.Err(); err != nil {
		return out, total, err
	}
	log.Printf("Extraction complete: %d articles, %d records, %d failed, %d malformed blocks",
		total.Articles, total.Records, total.Failed, total.Malformed)
	return out, total, nil
}

// ParseReply turns a model reply into records. Each fenced block may hold one
// object or an array of objects; blocks that are not valid JSON are skipped.
func ParseReply(reply string, a accident.RawArticle, index int) ([]accident.Record, Stats) {
	var (
		records []accident.Record
		stats   Stats
	)
	for _, block := range llm.FencedJSONBlocks(reply) {
		stats.Blocks++
		objects, err := decodeObjects(block)
		if err != nil {
			stats.Malformed++
			log.Printf("Skipping malformed JSON block from %s: %v", a.URL, err)
			continue
		}
		for _, obj := range objects {
			r, unknown := recordFromObject(obj)
			stats.Unknown += unknown
			if !accident.KeptCategory(r.NewsCategory) {
				stats.Dropped++
				continue
			}
			r.PublishedAt = a.PublishedAt
			r.SourceURL = a.URL
			r.SourceName = a.Source
			r.ArticleIndex = index
			r.ArticleTitle = a.Title
			r.ArticleText = a.Text
			r.RawResponse = reply
			records = append(records, r)
		}
	}
	stats.Records = len(records)
	return records, stats
}

func decodeObjects(block string) ([]map[string]any, error) {
	block = strings.TrimSpace(block)
	if strings.HasPrefix(block, "[") {
		var arr []map[string]any
		if err := json.Unmarshal([]byte(block), &arr); err != nil {
			return nil, err
		}
		return arr, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(block), &obj); err != nil {
		return nil, err
	}
	return []map[string]any{obj}, nil
}

// orderedKeys sorts aliases before canonical keys, so a canonical key wins
// when both are present.
func orderedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := isCanonical[FieldKey(keys[i])], isCanonical[FieldKey(keys[j])]
		if ci != cj {
			return cj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func recordFromObject(obj map[string]any) (accident.Record, int) {
	var (
		r       accident.Record
		unknown int
	)
	for _, k := range orderedKeys(obj) {
		v := obj[k]
		key := FieldKey(k)
		if set, ok := renames[key]; ok {
			set(&r, v)
			continue
		}
		if key == "" {
			continue
		}
		unknown++
		log.Printf("Unknown extraction field %q kept as extra", k)
		if r.Extra == nil {
			r.Extra = make(map[string]string)
		}
		s := stringValue(v)
		if accident.IsUnknown(s) {
			s = ""
		}
		r.Extra[key] = s
	}
	return r, unknown
}
