package fetch

import (
	"bytes"
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
	"github.com/TobiSchelling/accidentwatch/internal/dateextract"
)

// Article is what the fetcher recovers from one URL. Every field may be
// empty: fetch failures are logged, never returned.
type Article struct {
	URL         string
	Text        string
	Title       string
	PublishedAt *time.Time
}

// Fetcher downloads articles and extracts their text, title and publish time.
type Fetcher struct {
	client   *Client
	registry *dateextract.Registry
}

// New creates a fetcher. A nil registry disables the per-publisher date
// fallback.
func New(client *Client, registry *dateextract.Registry) *Fetcher {
	if registry == nil {
		registry = dateextract.NewRegistry()
	}
	return &Fetcher{client: client, registry: registry}
}

// Fetch retrieves one article. It never fails: on any error the returned
// Article carries only the URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) Article {
	target := accident.StripWWW(rawURL)
	out := Article{URL: target}

	u, err := url.Parse(target)
	if err != nil {
		log.Printf("Skipping unparsable URL %s: %v", rawURL, err)
		return out
	}

	body, err := f.client.GetPage(ctx, target)
	if err != nil {
		log.Printf("Error fetching %s: %v", target, err)
		return out
	}

	page := dateextract.NewPage(u, string(body))
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	if strings.Contains(host, "probashirdiganta") {
		return f.probashiDiganta(page, out)
	}

	parsed, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		log.Printf("Readability failed for %s: %v", target, err)
		return fallbackContent(page, host, out)
	}
	out.Text = strings.TrimSpace(parsed.TextContent)
	out.Title = strings.TrimSpace(parsed.Title)
	out.PublishedAt = parsed.PublishedTime

	if strings.Contains(host, "newagebd") {
		out.PublishedAt = nil
	}
	if out.PublishedAt == nil {
		out.PublishedAt = f.publisherDate(page)
	}

	switch {
	case strings.Contains(host, "bdnews24"):
		if desc := metaDescription(page); desc != "" {
			out.Text = desc + "\n" + out.Text
		}
	case strings.Contains(host, "prothomalo"):
		if text := joinParagraphs(page, "div.story-content p"); text != "" {
			out.Text = text
		}
	}
	return out
}

func (f *Fetcher) publisherDate(page *dateextract.Page) *time.Time {
	t, err := f.registry.Extract(page)
	if err != nil {
		log.Printf("No publish date for %s: %v", page.URL, err)
		return nil
	}
	return t
}

func (f *Fetcher) probashiDiganta(page *dateextract.Page, out Article) Article {
	doc, err := page.Doc()
	if err != nil {
		log.Printf("Error parsing %s: %v", out.URL, err)
		return out
	}
	out.Text = strings.TrimSpace(doc.Find("div.post-details").First().Text())
	out.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	if t, err := dateextract.ProbashiDiganta(page); err == nil {
		out.PublishedAt = &t
	} else {
		log.Printf("No publish date for %s: %v", out.URL, err)
	}
	return out
}

// fallbackContent covers publishers whose markup readability cannot parse.
func fallbackContent(page *dateextract.Page, host string, out Article) Article {
	doc, err := page.Doc()
	if err != nil {
		return out
	}
	switch {
	case strings.Contains(host, "dhakatribune"):
		out.Title = strings.TrimSpace(doc.Find(`h1[itemprop="headline"]`).First().Text())
		out.Text = joinParagraphs(page, "div.jw_article_body p")
	case strings.Contains(page.URL.String(), "jagonews24.com/en"):
		out.Text = strings.TrimSpace(doc.Find("div.content-details").First().Text())
	}
	return out
}

func metaDescription(page *dateextract.Page) string {
	doc, err := page.Doc()
	if err != nil {
		return ""
	}
	desc, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	return strings.TrimSpace(desc)
}

func joinParagraphs(page *dateextract.Page, selector string) string {
	doc, err := page.Doc()
	if err != nil {
		return ""
	}
	var parts []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}
