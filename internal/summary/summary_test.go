package summary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
)

func ts(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 8, 0, 0, 0, time.UTC)
	return &t
}

func daily(when *time.Time, district string, killed, injured int) accident.Record {
	return accident.Record{
		NewsCategory:      accident.CategoryDailyReport,
		Frequency:         accident.FrequencyDaily,
		Country:           accident.CountryBangladesh,
		PublishedAt:       when,
		District:          district,
		AccidentsOccurred: 1,
		Killed:            killed,
		Injured:           injured,
		PrimaryVehicle:    "Bus",
	}
}

func TestAggregateDhaka2024(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []accident.Record{
		daily(ts(2024, 12, 20), "Dhaka", 2, 1),
		daily(ts(2024, 3, 15), "Dhaka", 1, 4),
		daily(ts(2024, 3, 2), "Feni", 3, 0),
	}

	out := Aggregate(records, now)
	require.Len(t, out, 1)
	s := out[0]
	assert.Equal(t, 2024, s.Year)
	assert.Equal(t, 3, s.TotalAccidents)
	assert.Equal(t, 6, s.TotalKilled)
	assert.Equal(t, 5, s.TotalInjured)
	assert.Equal(t, "Dhaka", s.AccidentHotspot)
	assert.Equal(t, map[string]int{"2024-12": 2, "2024-03": 4}, s.MonthlyDeaths)
	assert.Equal(t, map[string]int{"2024-12": 1, "2024-03": 4}, s.MonthlyInjured)
	assert.Equal(t, map[string]int{"2024-12-20": 2}, s.DailyDeaths, "only the last 30 days of the year")
	assert.Equal(t, map[string]int{"2024-12-20": 1}, s.DailyInjured)
	assert.Equal(t, map[string]int{"Dhaka": 2, "Feni": 1}, s.AccidentsByDistrict)
	assert.Equal(t, map[string]int{"Bus": 3}, s.VehiclesInvolved)
}

func TestAggregateFiltersRecords(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dup := daily(ts(2024, 5, 20), "Dhaka", 5, 5)
	dup.Duplicate = true
	abroad := daily(ts(2024, 5, 20), "Kolkata", 5, 5)
	abroad.Country = accident.CountryOther
	monthly := daily(ts(2024, 5, 20), "", 500, 900)
	monthly.Frequency = "Monthly (May)(2024)(Road Safety Foundation)"
	undated := daily(nil, "Dhaka", 5, 5)
	kept := daily(ts(2024, 5, 20), "Sylhet", 1, 2)

	out := Aggregate([]accident.Record{dup, abroad, monthly, undated, kept}, now)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].TotalKilled)
	assert.Equal(t, 2, out[0].TotalInjured)
	assert.Equal(t, "Sylhet", out[0].AccidentHotspot)
}

func TestAggregateCurrentYearWindow(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	records := []accident.Record{
		daily(ts(2024, 6, 29), "Dhaka", 1, 0),
		daily(ts(2024, 5, 31), "Dhaka", 2, 0), // 30 days and 4 hours back
		daily(ts(2024, 6, 1), "Dhaka", 4, 0),
	}
	out := Aggregate(records, now)
	require.Len(t, out, 1)
	assert.Equal(t, map[string]int{"2024-06-29": 1, "2024-06-01": 4}, out[0].DailyDeaths)
	assert.Equal(t, 7, out[0].TotalKilled)
}

func TestAggregatePastYearWindow(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	records := []accident.Record{
		daily(ts(2023, 12, 2), "Dhaka", 1, 0),
		daily(ts(2023, 12, 1), "Dhaka", 2, 0),
		daily(ts(2023, 11, 30), "Dhaka", 4, 0),
	}
	out := Aggregate(records, now)
	require.Len(t, out, 1)
	assert.Equal(t, map[string]int{"2023-12-02": 1, "2023-12-01": 2}, out[0].DailyDeaths)
}

func TestAggregateHotspotTieFirstSeen(t *testing.T) {
	now := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	records := []accident.Record{
		daily(ts(2024, 4, 3), "Rajshahi", 1, 0),
		daily(ts(2024, 4, 2), "Khulna", 1, 0),
		daily(ts(2024, 4, 1), "Khulna", 1, 0),
		daily(ts(2024, 3, 1), "Rajshahi", 1, 0),
	}
	out := Aggregate(records, now)
	require.Len(t, out, 1)
	assert.Equal(t, "Rajshahi", out[0].AccidentHotspot)
}

func TestAggregateDistrictKeys(t *testing.T) {
	now := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	records := []accident.Record{
		daily(ts(2024, 4, 3), "Coxs Bazar", 1, 0),
		daily(ts(2024, 4, 2), "Cox's Bazar", 1, 0),
		daily(ts(2024, 4, 1), "Cumilla", 1, 0),
	}
	out := Aggregate(records, now)
	require.Len(t, out, 1)
	assert.Equal(t, map[string]int{"Cox's Bazar": 2, "Comilla": 1}, out[0].AccidentsByDistrict)
	assert.Equal(t, "Coxs Bazar", out[0].AccidentHotspot, "hotspot uses the raw name")
}

func TestAggregateSeparatesYears(t *testing.T) {
	now := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	out := Aggregate([]accident.Record{
		daily(ts(2024, 1, 5), "Dhaka", 1, 0),
		daily(ts(2022, 1, 5), "Dhaka", 2, 0),
		daily(ts(2023, 1, 5), "Dhaka", 3, 0),
	}, now)
	require.Len(t, out, 3)
	assert.Equal(t, []int{2022, 2023, 2024}, []int{out[0].Year, out[1].Year, out[2].Year})
	assert.Equal(t, 2, out[0].TotalKilled)
}

func TestAggregateIdempotent(t *testing.T) {
	now := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	records := []accident.Record{
		daily(ts(2024, 12, 20), "Dhaka", 2, 1),
		daily(ts(2024, 3, 15), "Feni", 1, 4),
	}
	assert.Equal(t, Aggregate(records, now), Aggregate(records, now))
}

func TestAggregateEmpty(t *testing.T) {
	assert.Empty(t, Aggregate(nil, time.Now()))
}

func TestVehicles(t *testing.T) {
	r := accident.Record{
		PrimaryVehicle:     "Bus",
		SecondaryVehicle:   "None",
		TertiaryVehicle:    "",
		AdditionalVehicles: "Truck, CNG,,Pickup",
	}
	assert.Equal(t, []string{"Bus", "Truck", "CNG", "Pickup"}, Vehicles(r))
	assert.Empty(t, Vehicles(accident.Record{}))
}
