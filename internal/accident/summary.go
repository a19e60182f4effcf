package accident

import "time"

// YearlySummary is the materialised per-year view over non-duplicate daily
// records. Map keys are YYYY-MM-DD for daily series and YYYY-MM for monthly.
type YearlySummary struct {
	Year                int            `json:"year"`
	TotalAccidents      int            `json:"total_accidents"`
	TotalKilled         int            `json:"total_killed"`
	TotalInjured        int            `json:"total_injured"`
	DailyDeaths         map[string]int `json:"daily_deaths"`
	DailyInjured        map[string]int `json:"daily_injured"`
	MonthlyDeaths       map[string]int `json:"monthly_deaths"`
	MonthlyInjured      map[string]int `json:"monthly_injured"`
	AccidentHotspot     string         `json:"accident_hotspot"`
	VehiclesInvolved    map[string]int `json:"vehicles_involved"`
	AccidentsByDistrict map[string]int `json:"accidents_by_district"`
	LastUpdated         time.Time      `json:"last_updated"`
}
