package accident

import (
	"strings"
	"time"
)

// News categories the extractor may assign. Only the first three survive
// extraction.
const (
	CategoryDailyReport     = "Daily Accident Report"
	CategoryPeriodicReport  = "Organizational Report on Periodic Accidents"
	CategoryPreviousUpdate  = "Previous Accidents News Update"
	CategoryEditorial       = "Editorial or Opinion piece"
	CategoryCourt           = "Court Article"
	CategoryFeature         = "News Feature Article"
	CategoryUnrelated       = "Not a related article"
	CountryBangladesh       = "Bangladesh"
	CountryOther            = "other country"
	FrequencyDaily          = "daily"
	FrequencyPreviousUpdate = "previous accident update"
)

// Accident types.
const (
	TypeRoad      = "road"
	TypeTrain     = "train"
	TypeWaterways = "waterways"
	TypePlane     = "plane"
	TypeUnlisted  = "unlisted"
)

// Place types.
const (
	PlaceHighway    = "highway"
	PlaceExpressway = "expressway"
	PlaceWater      = "water"
	PlaceRoad       = "road"
	PlaceRail       = "rail"
	PlaceOther      = "other"
)

// Record is one structured accident fact, or one periodic aggregate report,
// extracted from a single article. Empty strings stand for unknown values.
type Record struct {
	ID int64 `json:"id"`

	NewsCategory      string `json:"news_category"`
	LocalID           string `json:"local_id"` // discriminates accidents within one article
	AccidentsOccurred int    `json:"accidents_occurred"`
	Frequency         string `json:"frequency"`

	PublishedAt *time.Time `json:"published_at"` // publish time of the source article
	DayOfWeek   string     `json:"day_of_week"`

	ExactLocation string `json:"exact_location"`
	Area          string `json:"area"`
	Division      string `json:"division"`
	District      string `json:"district"`
	Subdistrict   string `json:"subdistrict"`
	PlaceType     string `json:"place_type"`
	Country       string `json:"country"`

	AccidentType string `json:"accident_type"`
	Killed       int    `json:"killed"`
	Injured      int    `json:"injured"`
	Cause        string `json:"cause"`

	PrimaryVehicle     string `json:"primary_vehicle"`
	SecondaryVehicle   string `json:"secondary_vehicle"`
	TertiaryVehicle    string `json:"tertiary_vehicle"`
	AdditionalVehicles string `json:"additional_vehicles"`
	DeceasedAges       string `json:"deceased_ages"`

	Headline string `json:"headline"`
	Summary  string `json:"summary"`

	SourceURL    string `json:"source_url"`
	SourceName   string `json:"source_name"`
	ArticleIndex int    `json:"article_index"`
	ArticleTitle string `json:"article_title"`
	ArticleText  string `json:"article_text,omitempty"`
	RawResponse  string `json:"raw_response,omitempty"`

	Duplicate bool `json:"duplicate"`

	// Extra holds extraction fields outside the declared schema, keyed by the
	// field name the model used.
	Extra map[string]string `json:"extra,omitempty"`
}

// AccidentDate is the calendar day derived from the publish time. ok is false
// when the publish time is unknown.
func (r Record) AccidentDate() (d time.Time, ok bool) {
	if r.PublishedAt == nil {
		return time.Time{}, false
	}
	t := *r.PublishedAt
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

// IsDaily reports whether the record describes a daily accident report.
func (r Record) IsDaily() bool {
	return strings.EqualFold(strings.TrimSpace(r.Frequency), FrequencyDaily)
}

// InBangladesh reports whether the record is located in Bangladesh.
func (r Record) InBangladesh() bool {
	return strings.EqualFold(strings.TrimSpace(r.Country), CountryBangladesh)
}

// KeptCategory reports whether a news category survives extraction.
func KeptCategory(category string) bool {
	switch NormalizeCategory(category) {
	case CategoryDailyReport, CategoryPeriodicReport, CategoryPreviousUpdate:
		return true
	}
	return false
}

// NormalizeCategory maps the spellings models produce onto the canonical
// category names. Unrecognised values are returned trimmed.
func NormalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	switch {
	case c == "":
		return ""
	case strings.Contains(c, "daily accident"):
		return CategoryDailyReport
	case strings.Contains(c, "periodic"):
		return CategoryPeriodicReport
	case strings.Contains(c, "previous accident"):
		return CategoryPreviousUpdate
	case strings.Contains(c, "editorial"), strings.Contains(c, "opinion"):
		return CategoryEditorial
	case strings.Contains(c, "court"):
		return CategoryCourt
	case strings.Contains(c, "feature"):
		return CategoryFeature
	case strings.Contains(c, "not a related"), strings.Contains(c, "unrelated"):
		return CategoryUnrelated
	}
	return strings.TrimSpace(category)
}
