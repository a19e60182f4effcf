// Package report renders yearly summaries and run history as a markdown
// digest.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
	"github.com/TobiSchelling/accidentwatch/internal/database"
)

// TopN is the number of districts and vehicles listed per year.
const TopN = 5

// Compose builds the digest. Years are listed newest first.
func Compose(summaries []accident.YearlySummary, runs []database.Run) string {
	var b strings.Builder
	b.WriteString("# Road Accident Digest\n\n")

	if len(summaries) == 0 {
		b.WriteString("- No accident data summarised yet.\n")
	} else {
		years := append([]accident.YearlySummary(nil), summaries...)
		sort.Slice(years, func(i, j int) bool { return years[i].Year > years[j].Year })

		b.WriteString(tldr(years))
		for _, s := range years {
			b.WriteString("\n\n---\n\n")
			b.WriteString(yearSection(s))
		}
	}

	if len(runs) > 0 {
		b.WriteString("\n\n---\n\n")
		b.WriteString(runSection(runs))
	}
	b.WriteString("\n")
	return b.String()
}

func tldr(years []accident.YearlySummary) string {
	var bullets []string
	for _, s := range years {
		line := fmt.Sprintf("- **%d**: %d killed, %d injured in %d reported accidents", s.Year, s.TotalKilled, s.TotalInjured, s.TotalAccidents)
		if s.AccidentHotspot != "" {
			line += fmt.Sprintf("; hotspot %s", s.AccidentHotspot)
		}
		bullets = append(bullets, line)
	}
	return strings.Join(bullets, "\n")
}

func yearSection(s accident.YearlySummary) string {
	sections := []string{fmt.Sprintf("## %d", s.Year)}

	if len(s.DailyDeaths) > 0 {
		var rows []string
		for _, day := range sortedKeys(s.DailyDeaths) {
			rows = append(rows, fmt.Sprintf("| %s | %d | %d |", day, s.DailyDeaths[day], s.DailyInjured[day]))
		}
		sections = append(sections, "### Last 30 days\n\n| Date | Killed | Injured |\n|---|---|---|\n"+strings.Join(rows, "\n"))
	}

	if len(s.MonthlyDeaths) > 0 {
		var rows []string
		for _, month := range sortedKeys(s.MonthlyDeaths) {
			rows = append(rows, fmt.Sprintf("| %s | %d | %d |", month, s.MonthlyDeaths[month], s.MonthlyInjured[month]))
		}
		sections = append(sections, "### By month\n\n| Month | Killed | Injured |\n|---|---|---|\n"+strings.Join(rows, "\n"))
	}

	if districts := ranked(s.AccidentsByDistrict); len(districts) > 0 {
		sections = append(sections, "### Districts\n\n"+districts)
	}
	if vehicles := ranked(s.VehiclesInvolved); len(vehicles) > 0 {
		sections = append(sections, "### Vehicles\n\n"+vehicles)
	}
	if !s.LastUpdated.IsZero() {
		sections = append(sections, fmt.Sprintf("_Last updated %s_", s.LastUpdated.Format(time.DateTime)))
	}
	return strings.Join(sections, "\n\n")
}

// ranked lists the TopN entries of m by count, ties by name.
func ranked(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > TopN {
		keys = keys[:TopN]
	}
	var lines []string
	for i, k := range keys {
		lines = append(lines, fmt.Sprintf("%d. %s (%d)", i+1, k, m[k]))
	}
	return strings.Join(lines, "\n")
}

func runSection(runs []database.Run) string {
	var lines []string
	for _, r := range runs {
		line := fmt.Sprintf("- %s: ", r.StartedAt.Format(time.DateTime))
		if r.FinishedAt == nil {
			line += "running"
		} else {
			line += fmt.Sprintf("%s, %d records (%d duplicates)", r.Outcome, r.Records, r.Duplicates)
		}
		if r.Message != "" && r.Message != "Success" {
			line += ". " + r.Message
		}
		lines = append(lines, line)
	}
	return "## Recent runs\n\n" + strings.Join(lines, "\n")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
