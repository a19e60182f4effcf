package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/jszwec/csvutil"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
)

type csvRow struct {
	ID                 int64  `csv:"id"`
	NewsCategory       string `csv:"news_category"`
	LocalID            string `csv:"local_id"`
	AccidentsOccurred  int    `csv:"accidents_occurred"`
	Frequency          string `csv:"frequency"`
	PublishedAt        string `csv:"published_at"`
	DayOfWeek          string `csv:"day_of_week"`
	ExactLocation      string `csv:"exact_location"`
	Area               string `csv:"area"`
	Division           string `csv:"division"`
	District           string `csv:"district"`
	Subdistrict        string `csv:"subdistrict"`
	PlaceType          string `csv:"place_type"`
	Country            string `csv:"country"`
	AccidentType       string `csv:"accident_type"`
	Killed             int    `csv:"killed"`
	Injured            int    `csv:"injured"`
	Cause              string `csv:"cause"`
	PrimaryVehicle     string `csv:"primary_vehicle"`
	SecondaryVehicle   string `csv:"secondary_vehicle"`
	TertiaryVehicle    string `csv:"tertiary_vehicle"`
	AdditionalVehicles string `csv:"additional_vehicles"`
	DeceasedAges       string `csv:"deceased_ages"`
	Headline           string `csv:"headline"`
	Summary            string `csv:"summary"`
	SourceURL          string `csv:"source_url"`
	SourceName         string `csv:"source_name"`
	ArticleTitle       string `csv:"article_title"`
	Duplicate          bool   `csv:"is_duplicate"`
}

// WriteCSV writes records as CSV with a header row. Extra fields are not
// exported.
func WriteCSV(w io.Writer, records []accident.Record) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(csvRow{}); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, r := range records {
		row := csvRow{
			ID:                 r.ID,
			NewsCategory:       r.NewsCategory,
			LocalID:            r.LocalID,
			AccidentsOccurred:  r.AccidentsOccurred,
			Frequency:          r.Frequency,
			DayOfWeek:          r.DayOfWeek,
			ExactLocation:      r.ExactLocation,
			Area:               r.Area,
			Division:           r.Division,
			District:           r.District,
			Subdistrict:        r.Subdistrict,
			PlaceType:          r.PlaceType,
			Country:            r.Country,
			AccidentType:       r.AccidentType,
			Killed:             r.Killed,
			Injured:            r.Injured,
			Cause:              r.Cause,
			PrimaryVehicle:     r.PrimaryVehicle,
			SecondaryVehicle:   r.SecondaryVehicle,
			TertiaryVehicle:    r.TertiaryVehicle,
			AdditionalVehicles: r.AdditionalVehicles,
			DeceasedAges:       r.DeceasedAges,
			Headline:           r.Headline,
			Summary:            r.Summary,
			SourceURL:          r.SourceURL,
			SourceName:         r.SourceName,
			ArticleTitle:       r.ArticleTitle,
			Duplicate:          r.Duplicate,
		}
		if r.PublishedAt != nil {
			row.PublishedAt = r.PublishedAt.Format(time.DateTime)
		}
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("writing record %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
