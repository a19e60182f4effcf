package collect

import (
	"context"
	"log"
	"time"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
)

// Request carries what crawlers need to know about already stored data.
type Request struct {
	// Known holds URLs that are already stored.
	Known accident.URLSet
	// Exclude holds URLs produced by other crawlers during this run.
	Exclude accident.URLSet
	// LatestAlert is the newest stored alert publish time, nil when none.
	LatestAlert *time.Time
	// Stopped is polled between articles.
	Stopped func() bool
}

func (r Request) stopped() bool {
	return r.Stopped != nil && r.Stopped()
}

// Result holds the results of a collection run.
type Result struct {
	Batches    [][]accident.RawArticle
	TotalFound int
	Sources    map[string]int
	Errors     []error
}

// Collector runs the listing crawlers and then the alert feed.
type Collector struct {
	listings []Crawler
	alerts   Crawler
}

// NewCollector creates a collector. alerts may be nil.
func NewCollector(listings []Crawler, alerts Crawler) *Collector {
	return &Collector{listings: listings, alerts: alerts}
}

// Len returns the number of configured crawlers.
func (c *Collector) Len() int {
	n := len(c.listings)
	if c.alerts != nil {
		n++
	}
	return n
}

// Collect runs every crawler. A failing crawler contributes whatever it found
// before failing and its error; it never stops the others.
func (c *Collector) Collect(ctx context.Context, req Request) *Result {
	r := &Result{Sources: make(map[string]int)}
	if req.Known == nil {
		req.Known = accident.NewURLSet()
	}
	exclude := accident.NewURLSet()

	for _, crawler := range c.listings {
		log.Printf("Collecting from %s...", crawler.Name())
		articles, err := crawler.Crawl(ctx, req)
		if err != nil {
			log.Printf("Crawler %s failed: %v", crawler.Name(), err)
			r.Errors = append(r.Errors, err)
		}
		for _, a := range articles {
			exclude.Add(a.URL)
		}
		r.add(crawler.Name(), articles)
		if req.stopped() {
			return r
		}
	}

	if c.alerts != nil {
		log.Printf("Collecting from %s...", c.alerts.Name())
		req.Exclude = exclude
		articles, err := c.alerts.Crawl(ctx, req)
		if err != nil {
			log.Printf("Crawler %s failed: %v", c.alerts.Name(), err)
			r.Errors = append(r.Errors, err)
		}
		r.add(c.alerts.Name(), articles)
	}

	log.Printf("Collection complete: %d articles from %d sources, %d crawler errors", r.TotalFound, len(r.Sources), len(r.Errors))
	return r
}

func (r *Result) add(source string, articles []accident.RawArticle) {
	r.Batches = append(r.Batches, articles)
	r.TotalFound += len(articles)
	r.Sources[source] += len(articles)
}
