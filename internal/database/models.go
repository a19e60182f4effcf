package database

import "time"

// timeLayout stores timestamps as wall-clock text without a zone, so a
// record keeps the calendar day it was published on.
const timeLayout = "2006-01-02 15:04:05"

// ExtraColumnPrefix marks columns added for extraction fields outside the
// declared schema.
const ExtraColumnPrefix = "x_"

// ListOptions filters and pages ListRecords and CountRecords.
type ListOptions struct {
	Limit             int
	Offset            int
	Year              int // 0 for all years
	IncludeDuplicates bool
}

// Run is one pipeline run in the history table.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Outcome    string     `json:"outcome"`
	Message    string     `json:"message"`
	Articles   int        `json:"articles"`
	Records    int        `json:"records"`
	Duplicates int        `json:"duplicates"`
	Errors     []string   `json:"errors"`
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalRecords     int        `json:"total_records"`
	DuplicateRecords int        `json:"duplicate_records"`
	SourceURLs       int        `json:"source_urls"`
	Years            int        `json:"years"`
	Runs             int        `json:"runs"`
	LatestPublished  *time.Time `json:"latest_published"`
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
