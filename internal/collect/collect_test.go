package collect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
	"github.com/TobiSchelling/accidentwatch/internal/dateextract"
	"github.com/TobiSchelling/accidentwatch/internal/fetch"
)

const storyTemplate = `<!DOCTYPE html><html><head><title>Story %[1]s</title></head><body><article>
<h1>Story %[1]s</h1>
<p>Three people were killed when a bus collided with a truck on the Dhaka-Aricha highway in Manikganj on Sunday, police said. Story number %[1]s.</p>
<p>The accident happened early in the morning as the bus was overtaking another vehicle, according to the officer in charge of the local highway police station.</p>
<p>Several passengers were injured and taken to the district hospital for treatment. The bodies have been sent for autopsy while police seized both vehicles.</p>
</article></body></html>`

var storyDate = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// site serves listing pages from a map and article pages under /a/.
type site struct {
	mu        sync.Mutex
	requested []string
	pages     map[string]string
	failing   map[string]bool
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requested = append(s.requested, r.URL.RequestURI())
	s.mu.Unlock()

	if s.failing[r.URL.Path] {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if id, ok := strings.CutPrefix(r.URL.Path, "/a/"); ok {
		fmt.Fprintf(w, storyTemplate, id)
		return
	}
	body, ok := s.pages[r.URL.RequestURI()]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write([]byte(body))
}

func (s *site) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requested...)
}

func newSite(t *testing.T, pages map[string]string) (*site, *httptest.Server) {
	t.Helper()
	s := &site{pages: pages, failing: map[string]bool{}}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

func clientAndFetcher() (*fetch.Client, *fetch.Fetcher) {
	client := fetch.NewClient(fetch.Options{Timeout: 2 * time.Second, Retries: 2, Backoff: time.Millisecond})
	reg := dateextract.NewRegistry()
	reg.Register("test", dateextract.HostIs("127.0.0.1"), func(*dateextract.Page) (time.Time, error) {
		return storyDate, nil
	})
	return client, fetch.New(client, reg)
}

func newAgePage(ids ...int) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<li><h3><a href="/a/%d">Story %d</a></h3></li>`, id, id)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func TestListingStopsOnPageWithoutNewLinks(t *testing.T) {
	s, srv := newSite(t, map[string]string{
		"/tags/0":  newAgePage(1, 2),
		"/tags/10": newAgePage(3, 4),
		"/tags/20": newAgePage(),
		"/tags/30": newAgePage(5),
	})
	client, fetcher := clientAndFetcher()

	c := NewAge(srv.URL+"/tags", 10, client, fetcher)
	articles, err := c.Crawl(context.Background(), Request{Known: accident.NewURLSet()})
	require.NoError(t, err)

	assert.Len(t, articles, 4)
	assert.Contains(t, s.requests(), "/tags/20")
	assert.NotContains(t, s.requests(), "/tags/30")
	for _, a := range articles {
		assert.Equal(t, "newagebd", a.Source)
		require.NotNil(t, a.PublishedAt)
		assert.Contains(t, a.Text, "collided with a truck")
	}
}

func TestListingStopsAfterPageWithKnownLink(t *testing.T) {
	s, srv := newSite(t, map[string]string{
		"/tags/0":  newAgePage(1, 2),
		"/tags/10": newAgePage(3),
	})
	client, fetcher := clientAndFetcher()

	known := accident.NewURLSet(srv.URL + "/a/2")
	articles, err := NewAge(srv.URL+"/tags", 10, client, fetcher).Crawl(context.Background(), Request{Known: known})
	require.NoError(t, err)

	require.Len(t, articles, 1)
	assert.Equal(t, srv.URL+"/a/1", articles[0].URL)
	assert.NotContains(t, s.requests(), "/tags/10")
	assert.NotContains(t, s.requests(), "/a/2")
}

func TestListingFinishesPageAfterKnownLink(t *testing.T) {
	s, srv := newSite(t, map[string]string{
		"/tags/0":  newAgePage(5, 4, 6),
		"/tags/10": newAgePage(3),
	})
	client, fetcher := clientAndFetcher()

	known := accident.NewURLSet(srv.URL + "/a/4")
	articles, err := NewAge(srv.URL+"/tags", 10, client, fetcher).Crawl(context.Background(), Request{Known: known})
	require.NoError(t, err)

	require.Len(t, articles, 2)
	assert.Equal(t, srv.URL+"/a/5", articles[0].URL)
	assert.Equal(t, srv.URL+"/a/6", articles[1].URL)
	assert.NotContains(t, s.requests(), "/tags/10")
}

func TestListingHonoursMaxPages(t *testing.T) {
	s, srv := newSite(t, map[string]string{
		"/tags/0":  newAgePage(1),
		"/tags/10": newAgePage(2),
		"/tags/20": newAgePage(3),
	})
	client, fetcher := clientAndFetcher()

	articles, err := NewAge(srv.URL+"/tags", 2, client, fetcher).Crawl(context.Background(), Request{Known: accident.NewURLSet()})
	require.NoError(t, err)
	assert.Len(t, articles, 2)
	assert.NotContains(t, s.requests(), "/tags/20")
}

func TestListingPageFailureReturnsPartialResults(t *testing.T) {
	s, srv := newSite(t, map[string]string{
		"/tags/0": newAgePage(1),
	})
	s.failing["/tags/10"] = true
	client, fetcher := clientAndFetcher()

	articles, err := NewAge(srv.URL+"/tags", 5, client, fetcher).Crawl(context.Background(), Request{Known: accident.NewURLSet()})
	assert.Error(t, err)
	assert.Len(t, articles, 1)
}

func TestListingStopFlag(t *testing.T) {
	_, srv := newSite(t, map[string]string{
		"/tags/0": newAgePage(1, 2, 3),
	})
	client, fetcher := clientAndFetcher()

	articles, err := NewAge(srv.URL+"/tags", 5, client, fetcher).Crawl(context.Background(), Request{
		Known:   accident.NewURLSet(),
		Stopped: func() bool { return true },
	})
	require.NoError(t, err)
	assert.Empty(t, articles)
}

func TestDailyStarReadsLeadBlockOnFirstPageOnly(t *testing.T) {
	lead := `<div class="panel-pane pane-category-news no-title block">
<div class="card"><a href="/a/1">one</a><a href="/a/1">one again</a></div>
</div>`
	more := func(id int) string {
		return fmt.Sprintf(`<div class="panel-pane pane-category-load-more no-title block">
<div class="card"><a href="/a/%d">story</a></div></div>`, id)
	}
	s, srv := newSite(t, map[string]string{
		"/news":        "<html><body>" + lead + more(2) + "</body></html>",
		"/news?page=1": "<html><body>" + lead + more(3) + "</body></html>",
		"/news?page=2": "<html><body>" + more(4) + "</body></html>",
	})
	client, fetcher := clientAndFetcher()

	articles, err := DailyStar(srv.URL+"/news", 2, client, fetcher).Crawl(context.Background(), Request{Known: accident.NewURLSet()})
	require.NoError(t, err)

	var urls []string
	for _, a := range articles {
		urls = append(urls, strings.TrimPrefix(a.URL, srv.URL))
		assert.Equal(t, "dailystar", a.Source)
	}
	assert.Equal(t, []string{"/a/1", "/a/2", "/a/3"}, urls)
	assert.NotContains(t, s.requests(), "/news?page=2")
}

func TestAlertFeedJSON(t *testing.T) {
	_, srv := newSite(t, nil)
	feed := fmt.Sprintf(`[
		["Date & Time", "Title", "URL"],
		["2024-03-01T02:00:00.000Z", "old", "%[1]s/a/1"],
		["2024-03-04T02:00:00.000Z", "new", "%[1]s/a/2"],
		["2024-03-04T03:00:00.000Z", "dup", "%[1]s/a/2"],
		["2024-03-05T02:00:00.000Z", "listed", "%[1]s/a/3"],
		["2024-03-05T04:00:00.000Z", "stored", "%[1]s/a/4"]
	]`, srv.URL)
	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feed))
	}))
	defer feedSrv.Close()

	client := fetch.NewClient(fetch.Options{Timeout: 2 * time.Second, Retries: 1})
	f := NewAlertFeed(AlertOptions{URL: feedSrv.URL}, client, fetch.New(client, nil))

	rows, err := f.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC), *rows[1].Time)

	latest := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	articles, err := f.Crawl(context.Background(), Request{
		Known:       accident.NewURLSet(srv.URL + "/a/4"),
		Exclude:     accident.NewURLSet(srv.URL + "/a/3"),
		LatestAlert: &latest,
	})
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, srv.URL+"/a/2", articles[0].URL)
	assert.Equal(t, AlertSource, articles[0].Source)
	require.NotNil(t, articles[0].PublishedAt)
	assert.Equal(t, "2024-03-04", articles[0].PublishedAt.Format("2006-01-02"))
}

func TestDecodeCSVRows(t *testing.T) {
	rows, err := decodeCSVRows([]byte("Date & Time,Title,URL\n2024-03-04T02:00:00.000Z,t,https://example.com/x\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "https://example.com/x", rows[0].URL)
	assert.Equal(t, time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC), *rows[0].Time)
}

func TestDecodeAtomRowsUnwrapsRedirects(t *testing.T) {
	atom := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Google Alert - road accident</title>
  <entry>
    <id>tag:google.com,2013:googlealerts/feed:1</id>
    <title>Bus accident</title>
    <link href="https://www.google.com/url?rct=j&amp;sa=t&amp;url=https://www.thedailystar.net/news/x&amp;ct=ga"/>
    <published>2024-03-04T02:00:00Z</published>
    <updated>2024-03-04T02:00:00Z</updated>
  </entry>
</feed>`
	rows, err := decodeAtomRows([]byte(atom))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "https://www.thedailystar.net/news/x", rows[0].URL)
	require.NotNil(t, rows[0].Time)
}

type fakeCrawler struct {
	name     string
	articles []accident.RawArticle
	err      error
	got      Request
}

func (f *fakeCrawler) Name() string { return f.name }

func (f *fakeCrawler) Crawl(_ context.Context, req Request) ([]accident.RawArticle, error) {
	f.got = req
	return f.articles, f.err
}

func TestCollectorIsolatesFailures(t *testing.T) {
	broken := &fakeCrawler{name: "broken", err: errors.New("listing down"),
		articles: []accident.RawArticle{{URL: "https://a/1", Text: "x"}}}
	ok := &fakeCrawler{name: "ok", articles: []accident.RawArticle{{URL: "https://b/1", Text: "y"}}}
	alerts := &fakeCrawler{name: AlertSource}

	r := NewCollector([]Crawler{broken, ok}, alerts).Collect(context.Background(), Request{})
	assert.Equal(t, 2, r.TotalFound)
	assert.Len(t, r.Errors, 1)
	assert.Len(t, r.Batches, 3)
	assert.True(t, alerts.got.Exclude.Has("https://a/1"))
	assert.True(t, alerts.got.Exclude.Has("https://b/1"))
}
