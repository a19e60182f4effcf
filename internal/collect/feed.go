package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/jszwec/csvutil"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
	"github.com/TobiSchelling/accidentwatch/internal/fetch"
)

// AlertSource is the source name stamped on alert feed articles.
const AlertSource = "google alerts"

// Alert feed formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatAtom = "atom"
)

const alertTimeLayout = "2006-01-02T15:04:05.999999999Z"

// AlertRow is one row of the aggregated alert feed.
type AlertRow struct {
	Time *time.Time
	URL  string
}

type csvAlertRow struct {
	DateTime string `csv:"Date & Time"`
	URL      string `csv:"URL"`
}

// AlertOptions configures an AlertFeed.
type AlertOptions struct {
	URL    string
	Format string
	// Slack is subtracted from the newest stored alert time to form the cutoff.
	Slack time.Duration
	// Offset shifts feed timestamps into local publishing time.
	Offset time.Duration
}

// AlertFeed reads the pre-aggregated alert feed and fetches the articles it
// points to.
type AlertFeed struct {
	opts    AlertOptions
	client  *fetch.Client
	fetcher *fetch.Fetcher
}

// NewAlertFeed creates an alert feed reader. The format defaults to json, the
// slack to two days and the offset to twelve hours.
func NewAlertFeed(opts AlertOptions, client *fetch.Client, fetcher *fetch.Fetcher) *AlertFeed {
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	if opts.Slack == 0 {
		opts.Slack = 48 * time.Hour
	}
	if opts.Offset == 0 {
		opts.Offset = 12 * time.Hour
	}
	return &AlertFeed{opts: opts, client: client, fetcher: fetcher}
}

// Name returns the source name.
func (f *AlertFeed) Name() string { return AlertSource }

// Rows downloads and decodes the feed. Rows with repeated URLs are dropped,
// keeping the first.
func (f *AlertFeed) Rows(ctx context.Context) ([]AlertRow, error) {
	body, err := f.client.GetPage(ctx, f.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching alert feed: %w", err)
	}

	var rows []AlertRow
	switch f.opts.Format {
	case FormatJSON:
		rows, err = decodeJSONRows(body)
	case FormatCSV:
		rows, err = decodeCSVRows(body)
	case FormatAtom:
		rows, err = decodeAtomRows(body)
	default:
		err = fmt.Errorf("unknown alert feed format %q", f.opts.Format)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		if r.URL == "" {
			continue
		}
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}
		if r.Time != nil {
			t := r.Time.Add(f.opts.Offset)
			r.Time = &t
		}
		out = append(out, r)
	}
	return out, nil
}

// Crawl fetches the articles of alert rows newer than the cutoff whose URLs
// are not in req.Known or req.Exclude. An article without its own publish
// time inherits the row time.
func (f *AlertFeed) Crawl(ctx context.Context, req Request) ([]accident.RawArticle, error) {
	rows, err := f.Rows(ctx)
	if err != nil {
		return nil, err
	}

	var cutoff *time.Time
	if req.LatestAlert != nil {
		c := req.LatestAlert.Add(-f.opts.Slack)
		cutoff = &c
		log.Printf("[%s] Cutoff %s", AlertSource, c.Format(time.RFC3339))
	}

	var out []accident.RawArticle
	for _, r := range rows {
		if cutoff != nil && (r.Time == nil || r.Time.Before(*cutoff)) {
			continue
		}
		if req.Known.Has(r.URL) || req.Exclude.Has(r.URL) {
			continue
		}
		if req.stopped() {
			log.Printf("[%s] Stop requested, ending crawl", AlertSource)
			break
		}
		fetched := f.fetcher.Fetch(ctx, r.URL)
		if strings.TrimSpace(fetched.Text) == "" {
			continue
		}
		published := fetched.PublishedAt
		if published == nil {
			published = r.Time
		}
		out = append(out, accident.RawArticle{
			URL:         r.URL,
			PublishedAt: published,
			Source:      AlertSource,
			Text:        fetched.Text,
			Title:       fetched.Title,
		})
	}
	log.Printf("[%s] Crawled %d articles from %d rows", AlertSource, len(out), len(rows))
	return out, nil
}

// decodeJSONRows reads an array of rows whose first row holds column names.
func decodeJSONRows(body []byte) ([]AlertRow, error) {
	var table [][]any
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, fmt.Errorf("decoding alert feed: %w", err)
	}
	if len(table) == 0 {
		return nil, nil
	}
	timeCol, urlCol := -1, -1
	for i, h := range table[0] {
		switch strings.TrimSpace(fmt.Sprint(h)) {
		case "Date & Time":
			timeCol = i
		case "URL":
			urlCol = i
		}
	}
	if timeCol < 0 || urlCol < 0 {
		return nil, fmt.Errorf("alert feed header %v lacks Date & Time or URL", table[0])
	}

	rows := make([]AlertRow, 0, len(table)-1)
	for _, rec := range table[1:] {
		if len(rec) <= timeCol || len(rec) <= urlCol {
			continue
		}
		rows = append(rows, AlertRow{
			Time: parseAlertTime(cell(rec[timeCol])),
			URL:  cell(rec[urlCol]),
		})
	}
	return rows, nil
}

func decodeCSVRows(body []byte) ([]AlertRow, error) {
	var recs []csvAlertRow
	if err := csvutil.Unmarshal(body, &recs); err != nil {
		return nil, fmt.Errorf("decoding alert csv: %w", err)
	}
	rows := make([]AlertRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, AlertRow{Time: parseAlertTime(r.DateTime), URL: strings.TrimSpace(r.URL)})
	}
	return rows, nil
}

func decodeAtomRows(body []byte) ([]AlertRow, error) {
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing alert feed: %w", err)
	}
	rows := make([]AlertRow, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := item.Link
		if link == "" {
			link = item.GUID
		}
		var ts *time.Time
		switch {
		case item.PublishedParsed != nil:
			t := item.PublishedParsed.UTC()
			ts = &t
		case item.UpdatedParsed != nil:
			t := item.UpdatedParsed.UTC()
			ts = &t
		}
		rows = append(rows, AlertRow{Time: ts, URL: unwrapRedirect(link)})
	}
	return rows, nil
}

// unwrapRedirect returns the target of a google.com/url redirect link.
func unwrapRedirect(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return link
	}
	if strings.HasSuffix(u.Hostname(), "google.com") && u.Path == "/url" {
		if target := u.Query().Get("url"); target != "" {
			return target
		}
	}
	return u.String()
}

func parseAlertTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(alertTimeLayout, s)
	if err != nil {
		if t, err = dateparse.ParseAny(s); err != nil {
			log.Printf("Error processing alert date %q: %v", s, err)
			return nil
		}
	}
	t = t.UTC()
	return &t
}

func cell(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
