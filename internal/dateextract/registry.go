// Package dateextract recovers article publish times from publisher-specific
// page markup when generic extraction finds none.
package dateextract

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrNoDate is returned by strategies that cannot find their date element.
var ErrNoDate = errors.New("date element not found")

// Page is a fetched HTML page handed to strategies. The parsed document is
// built once on first use.
type Page struct {
	URL  *url.URL
	HTML string

	once sync.Once
	doc  *goquery.Document
	err  error
}

// NewPage wraps an already fetched page body.
func NewPage(u *url.URL, body string) *Page {
	return &Page{URL: u, HTML: body}
}

// Doc returns the goquery document for the page.
func (p *Page) Doc() (*goquery.Document, error) {
	p.once.Do(func() {
		p.doc, p.err = goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	})
	return p.doc, p.err
}

// Node returns the root html node of the page for XPath queries.
func (p *Page) Node() (*html.Node, error) {
	doc, err := p.Doc()
	if err != nil {
		return nil, err
	}
	if len(doc.Nodes) == 0 {
		return nil, ErrNoDate
	}
	return doc.Nodes[0], nil
}

// Text returns the visible text of the whole page.
func (p *Page) Text() string {
	doc, err := p.Doc()
	if err != nil {
		return ""
	}
	return doc.Text()
}

// Strategy extracts the publish time from a page.
type Strategy func(p *Page) (time.Time, error)

// Matcher decides whether a strategy applies to a URL.
type Matcher func(u *url.URL) bool

// HostSuffix matches the domain itself and any of its subdomains, ignoring
// a leading "www.".
func HostSuffix(domain string) Matcher {
	return func(u *url.URL) bool {
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		return host == domain || strings.HasSuffix(host, "."+domain)
	}
}

// HostIs matches exactly one host, ignoring a leading "www.".
func HostIs(host string) Matcher {
	return func(u *url.URL) bool {
		return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.") == host
	}
}

// URLContains matches when the www-less URL contains sub.
func URLContains(sub string) Matcher {
	return func(u *url.URL) bool {
		return strings.Contains(strings.Replace(u.String(), "www.", "", 1), sub)
	}
}

type entry struct {
	name     string
	match    Matcher
	strategy Strategy
}

// Registry maps URL matchers to date strategies. The first registered match
// wins, so narrower matchers must be registered before broader ones.
type Registry struct {
	entries []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a strategy under name.
func (r *Registry) Register(name string, m Matcher, s Strategy) {
	r.entries = append(r.entries, entry{name: name, match: m, strategy: s})
}

// Lookup finds the strategy for u.
func (r *Registry) Lookup(u *url.URL) (string, Strategy, bool) {
	if u == nil {
		return "", nil, false
	}
	for _, e := range r.entries {
		if e.match(u) {
			return e.name, e.strategy, true
		}
	}
	return "", nil, false
}

// Names lists registered strategies in match order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Extract runs the matching strategy against the page. It returns nil with no
// error when no strategy is registered for the page's host.
func (r *Registry) Extract(p *Page) (t *time.Time, err error) {
	name, strategy, ok := r.Lookup(p.URL)
	if !ok {
		return nil, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			t, err = nil, fmt.Errorf("%s date strategy panicked: %v", name, rec)
		}
	}()
	ts, err := strategy(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &ts, nil
}
