package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
)

func at(day int) *time.Time {
	t := time.Date(2024, 5, day, 10, 0, 0, 0, time.UTC)
	return &t
}

func cumillaBus(day int) accident.Record {
	return accident.Record{
		NewsCategory:     accident.CategoryDailyReport,
		Frequency:        accident.FrequencyDaily,
		Country:          accident.CountryBangladesh,
		PublishedAt:      at(day),
		DayOfWeek:        "Monday",
		ExactLocation:    "Dhaka-Chattogram highway near Chauddagram",
		Area:             "Chauddagram",
		Division:         "Chattogram",
		District:         "Cumilla",
		Subdistrict:      "Chauddagram",
		AccidentType:     accident.TypeRoad,
		Killed:           3,
		Injured:          5,
		PrimaryVehicle:   "Bus",
		SecondaryVehicle: "Truck",
	}
}

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"Comilla":              "Cumilla",
		"Chittagong":           "Chattogram",
		"Bogra":                "Bogura",
		"CoxsBazar":            "Cox's Bazar",
		"Coxs Bazar":           "Coxs",
		"Savar Upazila":        "Savar",
		"Karwan Bazar":         "Karwan",
		"Jatrabari area":       "Jatrabari",
		"Jhalkathi":            "Jhalokathi",
		"  Dhaka  ":            "Dhaka",
		"Daganbhuiyan":         "Daganbhuiyan",
		"Dagonbhuiya Upazilla": "Daganbhuiyan",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeName(in), "NormalizeName(%q)", in)
	}
}

func TestIsDuplicateSameAccident(t *testing.T) {
	a := cumillaBus(6)
	b := cumillaBus(6)
	b.ExactLocation = "Chauddagram upazila"
	assert.True(t, IsDuplicate(b, a))
}

func TestIsDuplicateRequiresCoreFields(t *testing.T) {
	base := cumillaBus(6)

	for name, mutate := range map[string]func(r *accident.Record){
		"district":      func(r *accident.Record) { r.District = "Feni" },
		"division":      func(r *accident.Record) { r.Division = "Dhaka" },
		"accident type": func(r *accident.Record) { r.AccidentType = accident.TypeTrain },
		"killed":        func(r *accident.Record) { r.Killed = 4 },
		"weekday":       func(r *accident.Record) { r.DayOfWeek = "Tuesday" },
		"vehicles": func(r *accident.Record) {
			r.PrimaryVehicle = "Motorcycle"
			r.SecondaryVehicle = "CNG"
		},
	} {
		c := cumillaBus(6)
		mutate(&c)
		assert.False(t, IsDuplicate(c, base), name)
	}
}

func TestIsDuplicateBlankWeekdayIsWildcard(t *testing.T) {
	a := cumillaBus(6)
	b := cumillaBus(6)
	b.DayOfWeek = ""
	assert.True(t, IsDuplicate(b, a))
	assert.True(t, IsDuplicate(a, b))
}

func TestIsDuplicateNeedsTwoSignals(t *testing.T) {
	a := cumillaBus(6)

	// vehicle overlap only through the primary, no location overlap, different
	// injured count: zero signals
	b := cumillaBus(6)
	b.SecondaryVehicle = "Pickup"
	b.ExactLocation, b.Area, b.Subdistrict = "", "", ""
	b.Injured = 1
	assert.False(t, IsDuplicate(b, a))

	// equal injured count alone is one signal
	b.Injured = a.Injured
	assert.False(t, IsDuplicate(b, a))

	// one overlapping location field counts twice
	c := cumillaBus(6)
	c.SecondaryVehicle = "Pickup"
	c.Injured = 1
	c.ExactLocation, c.Subdistrict = "", ""
	assert.True(t, IsDuplicate(c, a))

	// secondary vehicle overlap plus equal injured
	d := cumillaBus(6)
	d.ExactLocation, d.Area, d.Subdistrict = "", "", ""
	assert.True(t, IsDuplicate(d, a))
}

func TestResolveOnlyComparesPriors(t *testing.T) {
	first := cumillaBus(6)
	first.Headline = "first"
	second := cumillaBus(6)
	second.Headline = "second"

	out := Resolve([]accident.Record{second}, []accident.Record{first})
	require.Len(t, out, 1)
	assert.True(t, out[0].Duplicate)
	assert.Equal(t, "second", out[0].Headline)

	// reversed storage order flags the other record
	out = Resolve([]accident.Record{first}, []accident.Record{second})
	require.Len(t, out, 1)
	assert.True(t, out[0].Duplicate)
	assert.Equal(t, "first", out[0].Headline)
}

func TestResolveWithinBatch(t *testing.T) {
	a := cumillaBus(6)
	b := cumillaBus(7)
	out := Resolve([]accident.Record{a, b}, nil)
	require.Len(t, out, 2)
	assert.False(t, out[0].Duplicate, "first of the batch has no prior")
	assert.True(t, out[1].Duplicate)
}

func TestResolveDateWindow(t *testing.T) {
	stored := cumillaBus(6)
	out := Resolve([]accident.Record{cumillaBus(8), cumillaBus(5)}, []accident.Record{stored})
	require.Len(t, out, 2)
	assert.False(t, out[0].Duplicate, "two days apart")
	assert.True(t, out[1].Duplicate, "one day apart")
}

func TestResolveSkipsUndatedRecords(t *testing.T) {
	a := cumillaBus(6)
	b := cumillaBus(6)
	b.PublishedAt = nil
	out := Resolve([]accident.Record{b}, []accident.Record{a})
	assert.False(t, out[0].Duplicate)

	out = Resolve([]accident.Record{a}, []accident.Record{b})
	assert.False(t, out[0].Duplicate)
}

func TestResolveNormalisesSpellings(t *testing.T) {
	stored := cumillaBus(6)
	candidate := cumillaBus(6)
	candidate.District = "Comilla"
	candidate.Division = "Chittagong"

	out := Resolve([]accident.Record{candidate}, []accident.Record{stored})
	require.Len(t, out, 1)
	assert.True(t, out[0].Duplicate)
	assert.Equal(t, "Cumilla", out[0].District)
	assert.Equal(t, "Chattogram", out[0].Division)
}

func TestResolveResetsStaleFlag(t *testing.T) {
	r := cumillaBus(6)
	r.Duplicate = true
	out := Resolve([]accident.Record{r}, nil)
	assert.False(t, out[0].Duplicate)
}
