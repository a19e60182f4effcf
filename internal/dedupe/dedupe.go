// Package dedupe flags extracted accident records that describe an accident
// already on record. Records are flagged, never removed.
package dedupe

import (
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
)

// MinSignals is the number of secondary signals a pair must share.
const MinSignals = 2

type replacement struct {
	re   *regexp.Regexp
	with string
}

// Applied in order, as substring rewrites on each location field.
var replacements = []replacement{
	{regexp.MustCompile(`Chittagong`), "Chattogram"},
	{regexp.MustCompile(`Jhalokati`), "Jhalokathi"},
	{regexp.MustCompile(`Jhalkati`), "Jhalokathi"},
	{regexp.MustCompile(`Jhalkathi`), "Jhalokathi"},
	{regexp.MustCompile(`Chapainababganj`), "Chapainawabganj"},
	{regexp.MustCompile(`Netrakona`), "Netrokona"},
	{regexp.MustCompile(`Joipurhat`), "Joypurhat"},
	{regexp.MustCompile(`Jaipurhat`), "Joypurhat"},
	{regexp.MustCompile(`Shambhuganj`), "Shambhugonj"},
	{regexp.MustCompile(`Laxmipur`), "Lakshmipur"},
	{regexp.MustCompile(`Bagura`), "Bogura"},
	{regexp.MustCompile(`Bogra`), "Bogura"},
	{regexp.MustCompile(`Jessore`), "Jashore"},
	{regexp.MustCompile(`Barisal`), "Barishal"},
	{regexp.MustCompile(`Dagonbhuiya`), "Daganbhuiyan"},
	{regexp.MustCompile(`Upazila`), ""},
	{regexp.MustCompile(` Bazar`), ""},
	{regexp.MustCompile(` bazar`), ""},
	{regexp.MustCompile(`upazila`), ""},
	{regexp.MustCompile(`Upazilla`), ""},
	{regexp.MustCompile(`area`), ""},
	{regexp.MustCompile(`Comilla`), "Cumilla"},
	{regexp.MustCompile(`Coxs\s*Bazar`), "Cox's Bazar"},
}

// NormalizeName rewrites alternate romanisations of administrative names to
// one spelling and strips generic suffixes such as "Upazila".
func NormalizeName(s string) string {
	for _, r := range replacements {
		s = r.re.ReplaceAllString(s, r.with)
	}
	return strings.TrimSpace(s)
}

// Normalize returns a copy of r with its location fields normalised.
func Normalize(r accident.Record) accident.Record {
	r.ExactLocation = NormalizeName(r.ExactLocation)
	r.Area = NormalizeName(r.Area)
	r.Division = NormalizeName(r.Division)
	r.District = NormalizeName(r.District)
	r.Subdistrict = NormalizeName(r.Subdistrict)
	return r
}

// IsDuplicate reports whether candidate describes the same accident as prior.
// The rule is not symmetric: the candidate's vehicles are looked up among the
// prior's.
func IsDuplicate(candidate, prior accident.Record) bool {
	if candidate.Division != prior.Division ||
		candidate.District != prior.District ||
		candidate.AccidentType != prior.AccidentType ||
		candidate.Killed != prior.Killed {
		return false
	}
	if candidate.DayOfWeek != "" && prior.DayOfWeek != "" && candidate.DayOfWeek != prior.DayOfWeek {
		return false
	}

	secondaryMatch := vehicleAmong(candidate.SecondaryVehicle, prior)
	if !vehicleAmong(candidate.PrimaryVehicle, prior) && !secondaryMatch {
		return false
	}

	signals := locationSignals(candidate, prior)
	if secondaryMatch {
		signals++
	}
	if candidate.Injured == prior.Injured {
		signals++
	}
	return signals >= MinSignals
}

func vehicleAmong(v string, r accident.Record) bool {
	if v == "" {
		return false
	}
	return v == r.PrimaryVehicle || v == r.SecondaryVehicle
}

// locationSignals counts location fields whose descriptions share a token. Any
// overlap is worth one extra signal on top.
func locationSignals(a, b accident.Record) int {
	n := 0
	for _, pair := range [][2]string{
		{a.ExactLocation, b.ExactLocation},
		{a.Area, b.Area},
		{a.Subdistrict, b.Subdistrict},
	} {
		if tokensOverlap(pair[0], pair[1]) {
			n++
		}
	}
	if n > 0 {
		n++
	}
	return n
}

func tokensOverlap(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	for _, tok := range strings.Fields(a) {
		if strings.Contains(b, tok) {
			return true
		}
	}
	for _, tok := range strings.Fields(b) {
		if strings.Contains(a, tok) {
			return true
		}
	}
	return false
}

// Resolve normalises candidates and existing records, then flags each
// candidate that duplicates an earlier record within one day of it. Earlier
// means stored records first, then candidates in the order given. The result
// has the same length and order as candidates.
func Resolve(candidates, existing []accident.Record) []accident.Record {
	combined := make([]accident.Record, 0, len(existing)+len(candidates))
	for _, r := range existing {
		combined = append(combined, Normalize(r))
	}
	offset := len(combined)
	for _, r := range candidates {
		r = Normalize(r)
		r.Duplicate = false
		combined = append(combined, r)
	}

	flagged := 0
	for i := offset; i < len(combined); i++ {
		day, ok := combined[i].AccidentDate()
		if !ok {
			continue
		}
		for j := 0; j < i; j++ {
			other, ok := combined[j].AccidentDate()
			if !ok || !withinOneDay(day, other) {
				continue
			}
			if IsDuplicate(combined[i], combined[j]) {
				combined[i].Duplicate = true
				flagged++
				break
			}
		}
	}
	if flagged > 0 {
		log.Printf("Flagged %d of %d new records as duplicates", flagged, len(candidates))
	}
	return combined[offset:]
}

func withinOneDay(a, b time.Time) bool {
	d := a.Sub(b)
	return d >= -24*time.Hour && d <= 24*time.Hour
}
