// Package summary recomputes the yearly accident statistics from the stored
// non-duplicate daily records.
package summary

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
)

// DailyWindow is the length of the per-year daily series.
const DailyWindow = 30

// Included reports whether a record feeds the summary: a Bangladesh daily
// report with a known date that is not flagged as a duplicate.
func Included(r accident.Record) bool {
	if r.Duplicate || !r.IsDaily() || !r.InBangladesh() {
		return false
	}
	_, ok := r.AccidentDate()
	return ok
}

type counter struct {
	counts map[string]int
	order  []string
}

func (c *counter) add(key string, n int) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key] += n
}

// top returns the key with the highest count, the first one seen on ties.
func (c *counter) top() string {
	best, bestN := "", 0
	for _, k := range c.order {
		if n := c.counts[k]; n > bestN {
			best, bestN = k, n
		}
	}
	return best
}

type yearAcc struct {
	summary accident.YearlySummary
	hotspot counter
}

// Aggregate builds one summary per year from records, sorted by year. Records
// are expected newest first, as the store returns them; hotspot ties go to
// the district seen first. Records that Included rejects are ignored. now
// anchors the daily window of the current year.
func Aggregate(records []accident.Record, now time.Time) []accident.YearlySummary {
	years := make(map[int]*yearAcc)
	cutoff := now.AddDate(0, 0, -DailyWindow)

	for _, r := range records {
		if !Included(r) {
			continue
		}
		t := *r.PublishedAt
		year := t.Year()
		acc, ok := years[year]
		if !ok {
			acc = &yearAcc{summary: newSummary(year)}
			years[year] = acc
		}
		s := &acc.summary

		if inDailyWindow(t, now, cutoff) {
			day := t.Format(accident.DateLayout)
			s.DailyDeaths[day] += r.Killed
			s.DailyInjured[day] += r.Injured
		}

		month := t.Format(accident.MonthLayout)
		s.MonthlyDeaths[month] += r.Killed
		s.MonthlyInjured[month] += r.Injured
		s.TotalKilled += r.Killed
		s.TotalInjured += r.Injured
		s.TotalAccidents += r.AccidentsOccurred

		if r.District != "" {
			acc.hotspot.add(r.District, 1)
			s.AccidentsByDistrict[DistrictKey(r.District)]++
		}

		for _, v := range Vehicles(r) {
			s.VehiclesInvolved[v]++
		}
	}

	out := make([]accident.YearlySummary, 0, len(years))
	for _, acc := range years {
		acc.summary.AccidentHotspot = acc.hotspot.top()
		out = append(out, acc.summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

func newSummary(year int) accident.YearlySummary {
	return accident.YearlySummary{
		Year:                year,
		DailyDeaths:         map[string]int{},
		DailyInjured:        map[string]int{},
		MonthlyDeaths:       map[string]int{},
		MonthlyInjured:      map[string]int{},
		VehiclesInvolved:    map[string]int{},
		AccidentsByDistrict: map[string]int{},
	}
}

// inDailyWindow reports whether t falls in the last DailyWindow days of its
// year: counted back from now for the current year, from December 31 for
// earlier ones.
func inDailyWindow(t, now, cutoff time.Time) bool {
	if t.Year() == now.Year() {
		return !t.Before(cutoff)
	}
	yearEnd := time.Date(t.Year(), time.December, 31, 0, 0, 0, 0, t.Location())
	days := math.Floor(yearEnd.Sub(t).Hours() / 24)
	return days < DailyWindow
}

// DistrictKey folds the spellings of districts that are reported under two
// names into the histogram key.
func DistrictKey(district string) string {
	lower := strings.ToLower(district)
	switch {
	case strings.Contains(lower, "cox"):
		return "Cox's Bazar"
	case strings.Contains(lower, "cumilla"):
		return "Comilla"
	}
	return district
}

// Vehicles lists every vehicle a record mentions: the three slots and the
// comma separated additional vehicles.
func Vehicles(r accident.Record) []string {
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v != "" && v != "None" {
			out = append(out, v)
		}
	}
	add(r.PrimaryVehicle)
	add(r.SecondaryVehicle)
	add(r.TertiaryVehicle)
	for _, v := range strings.Split(r.AdditionalVehicles, ",") {
		add(v)
	}
	return out
}
