package collect

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
	"github.com/TobiSchelling/accidentwatch/internal/fetch"
)

const (
	NewAgeListURL    = "https://www.newagebd.net/tags/Road%20accident"
	DailyStarListURL = "https://www.thedailystar.net/news/bangladesh/accidents-fires"
)

// Crawler produces new raw articles not already present in known.
type Crawler interface {
	Name() string
	Crawl(ctx context.Context, req Request) ([]accident.RawArticle, error)
}

// ListingSpec describes a paginated listing site.
type ListingSpec struct {
	Source   string
	MaxPages int
	// PageURL returns the listing URL for a zero-based page number.
	PageURL func(page int) string
	// Links returns the raw hrefs of article links on one listing page.
	Links func(doc *goquery.Document, page int) []string
	// Keep decides whether a fetched article is worth returning.
	Keep func(a accident.RawArticle) bool
}

// ListingCrawler walks a paginated listing until a page brings nothing new,
// a page links to an already known article, or MaxPages is reached.
type ListingCrawler struct {
	spec    ListingSpec
	client  *fetch.Client
	fetcher *fetch.Fetcher
}

// NewListingCrawler creates a crawler for spec.
func NewListingCrawler(spec ListingSpec, client *fetch.Client, fetcher *fetch.Fetcher) *ListingCrawler {
	if spec.MaxPages <= 0 {
		spec.MaxPages = 1
	}
	if spec.Keep == nil {
		spec.Keep = hasText
	}
	return &ListingCrawler{spec: spec, client: client, fetcher: fetcher}
}

// Name returns the source name stamped on crawled articles.
func (c *ListingCrawler) Name() string { return c.spec.Source }

// Crawl walks the listing. A page fetch failure ends this crawler and is
// returned together with the articles gathered so far.
func (c *ListingCrawler) Crawl(ctx context.Context, req Request) ([]accident.RawArticle, error) {
	known := req.Known.Clone()
	var out []accident.RawArticle

	for page := 0; page < c.spec.MaxPages; page++ {
		pageURL := c.spec.PageURL(page)
		log.Printf("[%s] Processing page %d: %s", c.spec.Source, page, pageURL)

		body, err := c.client.GetPage(ctx, pageURL)
		if err != nil {
			return out, fmt.Errorf("%s listing page %d: %w", c.spec.Source, page, err)
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return out, fmt.Errorf("%s listing page %d: %w", c.spec.Source, page, err)
		}
		base, _ := url.Parse(pageURL)

		fresh, sawKnown := 0, false
		onPage := make(map[string]struct{})
		for _, href := range c.spec.Links(doc, page) {
			link := resolve(base, href)
			if link == "" {
				continue
			}
			if _, dup := onPage[link]; dup {
				continue
			}
			onPage[link] = struct{}{}
			if known.Has(link) {
				sawKnown = true
				continue
			}
			known.Add(link)
			fresh++

			if req.stopped() {
				log.Printf("[%s] Stop requested, ending crawl", c.spec.Source)
				return out, nil
			}
			fetched := c.fetcher.Fetch(ctx, link)
			a := accident.RawArticle{
				URL:         link,
				PublishedAt: fetched.PublishedAt,
				Source:      c.spec.Source,
				Text:        fetched.Text,
				Title:       fetched.Title,
			}
			if c.spec.Keep(a) {
				out = append(out, a)
			}
		}

		// Listings are newest first, so a known link means every later page is
		// older. The rest of the current page is still fetched.
		if fresh == 0 || sawKnown {
			log.Printf("[%s] Page %d had %d new links (known link seen: %v), stopping", c.spec.Source, page, fresh, sawKnown)
			break
		}
	}

	log.Printf("[%s] Crawled %d articles", c.spec.Source, len(out))
	return out, nil
}

// NewAge crawls the New Age "Road accident" tag listing. Pages are offset by
// ten articles and only articles with both text and a publish time are kept.
func NewAge(listURL string, maxPages int, client *fetch.Client, fetcher *fetch.Fetcher) *ListingCrawler {
	if listURL == "" {
		listURL = NewAgeListURL
	}
	listURL = strings.TrimSuffix(listURL, "/")
	return NewListingCrawler(ListingSpec{
		Source:   "newagebd",
		MaxPages: maxPages,
		PageURL: func(page int) string {
			return fmt.Sprintf("%s/%d", listURL, page*10)
		},
		Links: func(doc *goquery.Document, _ int) []string {
			return hrefs(doc.Find("li h3 a"))
		},
		Keep: func(a accident.RawArticle) bool {
			return a.Text != "" && a.PublishedAt != nil
		},
	}, client, fetcher)
}

// DailyStar crawls The Daily Star accidents and fires section. The first
// page carries a lead block of stories above the load-more list.
func DailyStar(listURL string, maxPages int, client *fetch.Client, fetcher *fetch.Fetcher) *ListingCrawler {
	if listURL == "" {
		listURL = DailyStarListURL
	}
	return NewListingCrawler(ListingSpec{
		Source:   "dailystar",
		MaxPages: maxPages,
		PageURL: func(page int) string {
			if page == 0 {
				return listURL
			}
			return fmt.Sprintf("%s?page=%d", listURL, page)
		},
		Links: func(doc *goquery.Document, page int) []string {
			var links []string
			if page == 0 {
				links = append(links, cardLinks(doc.Find("div.panel-pane.pane-category-news.no-title.block").First())...)
			}
			return append(links, cardLinks(doc.Find("div.panel-pane.pane-category-load-more.no-title.block").First())...)
		},
		Keep: hasText,
	}, client, fetcher)
}

func cardLinks(container *goquery.Selection) []string {
	var links []string
	container.Find("div.card").Each(func(_ int, card *goquery.Selection) {
		if href, ok := card.Find("a[href]").First().Attr("href"); ok {
			links = append(links, strings.TrimSpace(href))
		}
	})
	return links
}

func hrefs(sel *goquery.Selection) []string {
	var links []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			links = append(links, strings.TrimSpace(href))
		}
	})
	return links
}

func resolve(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func hasText(a accident.RawArticle) bool {
	return strings.TrimSpace(a.Text) != ""
}
