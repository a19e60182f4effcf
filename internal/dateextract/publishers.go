package dateextract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/araddon/dateparse"
)

var (
	newAgePublished   = regexp.MustCompile(`Published: (\d{2}:\d{2}), (\w+ \d{2},\d{4})`)
	justNewsTime      = regexp.MustCompile(`(\d{2} \w+ \d{4}, \d{2}:\d{2})`)
	dhakaTribuneTime  = regexp.MustCompile(`Publish\s*:\s*(\d{1,2}\s\w{3}\s\d{4}),\s*(\d{1,2}:\d{2}\s\w{2})`)
	monitorDate       = regexp.MustCompile(`\bDate: (\d{2} \w+, \d{4})\b`)
	publishedPrefix   = regexp.MustCompile(`^Published:\s*`)
	unbPublish        = regexp.MustCompile(`(?s)Publish-.*?>(.*?)</li>`)
	tags              = regexp.MustCompile(`<[^>]+>`)
	bdPostPublished   = regexp.MustCompile(`Published\s*:\s*(\d{1,2} \w{3} \d{4} \d{1,2}:\d{2} [APM]{2})`)
	dailyStarDate     = regexp.MustCompile(`(\w+ \w+ \d+, \d{4} \d{2}:\d{2} [APM]{2})`)
	dailyStarUpdated  = regexp.MustCompile(`Last update on: (\w+ \w+ \d+, \d{4} \d{2}:\d{2} [APM]{2})`)
	rtvReporterPrefix = regexp.MustCompile(`^.*?\|\s+`)
)

// Default returns the registry of known Bangladeshi publishers.
func Default() *Registry {
	r := NewRegistry()
	r.Register("newagebd", HostSuffix("newagebd.net"), newAge)
	r.Register("justnewsbd", HostSuffix("justnewsbd.com"), selectorLayout("div.publish-time", justNewsTime, "2 January 2006, 15:04"))
	r.Register("dhakatribune", HostSuffix("dhakatribune.com"), dhakaTribune)
	r.Register("bangladeshmonitor", HostSuffix("bangladeshmonitor.com.bd"), textLayout(monitorDate, "2 January, 2006"))
	r.Register("risingbd", HostSuffix("risingbd.com"), risingBD)
	r.Register("dailyindustry", HostSuffix("dailyindustry.news"), selectorLayout("span.bdaia-current-time", nil, "January 2, 2006"))
	r.Register("unb", HostSuffix("unb.com.bd"), unb)
	r.Register("prothomalo", HostIs("en.prothomalo.com"), attrAny("time", "datetime"))
	r.Register("jagonews24", URLContains("jagonews24.com/en"),
		xpathLayout(`//i[contains(@class,'fa-clock-o') and contains(@class,'text-danger')]/following-sibling::text()[1]`, nil, "2 January 2006, 3:04 PM"))
	r.Register("bangladeshpost", HostSuffix("bangladeshpost.net"),
		xpathLayout(`//div[contains(@style,'margin-left:10px')]`, bdPostPublished, "2 Jan 2006 3:04 PM"))
	r.Register("financialexpress-today", HostIs("today.thefinancialexpress.com.bd"),
		xpathLayout(`//i[contains(@class,'fa-clock-o')]/following-sibling::text()[1]`, nil, "January 2, 2006 15:04:05"))
	r.Register("financialexpress", HostIs("thefinancialexpress.com.bd"),
		selectorLayout("time", nil, "Jan 2, 2006 15:04", "January 2, 2006 15:04", "January 2, 2006 3:04 PM"))
	r.Register("dailystar", HostSuffix("thedailystar.net"), dailyStar)
	r.Register("rtvonline", HostSuffix("rtvonline.com"), rtv)
	r.Register("ittefaq", HostIs("en.ittefaq.com.bd"), attrAny("span.tts_time", "content"))
	r.Register("dailycountrytoday", HostSuffix("dailycountrytodaybd.com"),
		xpathLayout(`//a[contains(@href,'date')]`, nil, "January 2, 2006"))
	r.Register("bssnews", HostSuffix("bssnews.net"), selectorLayout("div.entry_update", nil, "2 January 2006, 15:04", "2 Jan 2006, 15:04"))
	r.Register("bdnews24", HostSuffix("bdnews24.com"), bdnews24)
	r.Register("businesspostbd", HostSuffix("businesspostbd.com"), businessPost)
	r.Register("dailyasianage", HostSuffix("dailyasianage.com"), asianAge)
	r.Register("probashirdiganta", HostSuffix("probashirdiganta.com"), ProbashiDiganta)
	return r
}

// parseLayouts tries each layout against the whitespace-collapsed value.
func parseLayouts(value string, layouts ...string) (time.Time, error) {
	value = strings.Join(strings.Fields(value), " ")
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", value)
}

func selectorText(p *Page, selector string) (string, error) {
	doc, err := p.Doc()
	if err != nil {
		return "", err
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", ErrNoDate
	}
	return strings.TrimSpace(sel.Text()), nil
}

func submatch(re *regexp.Regexp, s string) (string, error) {
	if re == nil {
		return s, nil
	}
	m := re.FindStringSubmatch(s)
	if m == nil {
		return "", ErrNoDate
	}
	return strings.Join(m[1:], " "), nil
}

func selectorLayout(selector string, re *regexp.Regexp, layouts ...string) Strategy {
	return func(p *Page) (time.Time, error) {
		text, err := selectorText(p, selector)
		if err != nil {
			return time.Time{}, err
		}
		if text, err = submatch(re, text); err != nil {
			return time.Time{}, err
		}
		return parseLayouts(text, layouts...)
	}
}

func textLayout(re *regexp.Regexp, layouts ...string) Strategy {
	return func(p *Page) (time.Time, error) {
		text, err := submatch(re, p.Text())
		if err != nil {
			return time.Time{}, err
		}
		return parseLayouts(text, layouts...)
	}
}

func xpathLayout(expr string, re *regexp.Regexp, layouts ...string) Strategy {
	return func(p *Page) (time.Time, error) {
		root, err := p.Node()
		if err != nil {
			return time.Time{}, err
		}
		n, err := htmlquery.Query(root, expr)
		if err != nil {
			return time.Time{}, err
		}
		if n == nil {
			return time.Time{}, ErrNoDate
		}
		text, err := submatch(re, strings.TrimSpace(htmlquery.InnerText(n)))
		if err != nil {
			return time.Time{}, err
		}
		return parseLayouts(text, layouts...)
	}
}

// attrAny reads an ISO-like timestamp from an attribute.
func attrAny(selector, attr string) Strategy {
	return func(p *Page) (time.Time, error) {
		doc, err := p.Doc()
		if err != nil {
			return time.Time{}, err
		}
		val, ok := doc.Find(selector).First().Attr(attr)
		if !ok || strings.TrimSpace(val) == "" {
			return time.Time{}, ErrNoDate
		}
		return dateparse.ParseAny(strings.TrimSpace(val))
	}
}

func newAge(p *Page) (time.Time, error) {
	m := newAgePublished.FindStringSubmatch(p.Text())
	if m == nil {
		return time.Time{}, ErrNoDate
	}
	return parseLayouts(m[2]+" "+m[1], "Jan 2,2006 15:04", "January 2,2006 15:04")
}

func dhakaTribune(p *Page) (time.Time, error) {
	m := dhakaTribuneTime.FindStringSubmatch(p.Text())
	if m == nil {
		return time.Time{}, ErrNoDate
	}
	return parseLayouts(m[1]+", "+m[2], "2 Jan 2006, 3:04 PM")
}

func risingBD(p *Page) (time.Time, error) {
	text, err := selectorText(p, "div.DPublishTime span.Ptime")
	if err != nil {
		return time.Time{}, err
	}
	text = strings.TrimSpace(strings.Split(text, "Update:")[0])
	text = publishedPrefix.ReplaceAllString(text, "")
	return parseLayouts(text, "15:04, 2 January 2006")
}

func unb(p *Page) (time.Time, error) {
	m := unbPublish.FindStringSubmatch(p.HTML)
	if m == nil {
		return time.Time{}, ErrNoDate
	}
	return parseLayouts(tags.ReplaceAllString(m[1], ""), "January 2, 2006, 3:04 PM")
}

func dailyStar(p *Page) (time.Time, error) {
	text, err := selectorText(p, "div.date")
	if err != nil {
		return time.Time{}, err
	}
	m := dailyStarDate.FindStringSubmatch(text)
	if m == nil {
		m = dailyStarUpdated.FindStringSubmatch(text)
	}
	if m == nil {
		return time.Time{}, ErrNoDate
	}
	return parseLayouts(m[1], "Mon Jan 2, 2006 03:04 PM", "Monday Jan 2, 2006 03:04 PM")
}

func rtv(p *Page) (time.Time, error) {
	text, err := selectorText(p, "div.rpt_info_section")
	if err != nil {
		return time.Time{}, err
	}
	text = rtvReporterPrefix.ReplaceAllString(strings.Join(strings.Fields(text), " "), "")
	return parseLayouts(text, "2 January 2006, 15:04", "2 Jan 2006, 15:04")
}

func bdnews24(p *Page) (time.Time, error) {
	text, err := selectorText(p, "div.wBeSy.W-N65")
	if err != nil {
		return time.Time{}, err
	}
	text = strings.TrimSpace(strings.Replace(text, "Published :", "", 1))
	return parseLayouts(text, "2 January 2006, 3:04 PM", "2 Jan 2006, 3:04 PM")
}

func businessPost(p *Page) (time.Time, error) {
	text, err := selectorText(p, "span.w3-text-gray")
	if err != nil {
		return time.Time{}, err
	}
	text = strings.TrimSpace(strings.Split(text, "|")[0])
	return parseLayouts(text, "2 January 2006, 15:04", "2 Jan 2006, 15:04")
}

func asianAge(p *Page) (time.Time, error) {
	text, err := selectorText(p, "div.col-md-12.P_time p")
	if err != nil {
		return time.Time{}, err
	}
	text = strings.TrimSpace(strings.Replace(text, "Published:", "", 1))
	return parseLayouts(text, "3:04 PM, 2 January 2006")
}

// ProbashiDiganta reads the "Published:" span of probashirdiganta.com posts.
func ProbashiDiganta(p *Page) (time.Time, error) {
	doc, err := p.Doc()
	if err != nil {
		return time.Time{}, err
	}
	var text string
	doc.Find("div.post-time span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := s.Text(); strings.Contains(t, "Published:") {
			text = strings.TrimSpace(strings.Replace(t, "Published:", "", 1))
			return false
		}
		return true
	})
	if text == "" {
		return time.Time{}, ErrNoDate
	}
	return parseLayouts(text, "2 Jan 2006, 3:04 PM", "2 January 2006, 3:04 PM")
}
