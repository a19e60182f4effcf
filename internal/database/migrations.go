package database

import (
	"database/sql"
	"strings"
)

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx, d dialect) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "accident records and yearly summaries",
		Up: func(tx *sql.Tx, d dialect) error {
			return execAll(tx, d, `
CREATE TABLE IF NOT EXISTS accident_records (
    id {{id}},
    news_category {{key}} NOT NULL,
    local_id {{key}},
    accidents_occurred INTEGER NOT NULL DEFAULT 0,
    frequency VARCHAR(255),
    published_at VARCHAR(19),
    day_of_week VARCHAR(16),
    exact_location {{text}},
    area {{text}},
    division {{key}},
    district {{key}},
    subdistrict {{key}},
    place_type VARCHAR(32),
    country VARCHAR(64),
    accident_type VARCHAR(32),
    killed INTEGER NOT NULL DEFAULT 0,
    injured INTEGER NOT NULL DEFAULT 0,
    cause {{key}},
    primary_vehicle {{key}},
    secondary_vehicle {{key}},
    tertiary_vehicle {{key}},
    additional_vehicles {{text}},
    deceased_ages {{text}},
    headline {{text}},
    summary {{text}},
    source_url {{key}} NOT NULL,
    source_name {{key}},
    article_index INTEGER NOT NULL DEFAULT 0,
    article_title {{text}},
    article_text {{text}},
    raw_response {{text}},
    is_duplicate INTEGER NOT NULL DEFAULT 0,
    created_at VARCHAR(19) NOT NULL
);

CREATE TABLE IF NOT EXISTS yearly_summaries (
    year INTEGER PRIMARY KEY,
    total_accidents INTEGER NOT NULL DEFAULT 0,
    total_killed INTEGER NOT NULL DEFAULT 0,
    total_injured INTEGER NOT NULL DEFAULT 0,
    daily_deaths {{text}},
    daily_injured {{text}},
    monthly_deaths {{text}},
    monthly_injured {{text}},
    accident_hotspot {{key}},
    vehicles_involved {{text}},
    accidents_by_district {{text}},
    checksum VARCHAR(64) NOT NULL,
    last_updated VARCHAR(19) NOT NULL
);

CREATE INDEX idx_records_published ON accident_records(published_at);
CREATE INDEX idx_records_source_url ON accident_records(source_url);
CREATE INDEX idx_records_summary ON accident_records(country, frequency, is_duplicate);
`)
		},
	},
	{
		Version:     2,
		Description: "pipeline run history",
		Up: func(tx *sql.Tx, d dialect) error {
			return execAll(tx, d, `
CREATE TABLE IF NOT EXISTS pipeline_runs (
    id VARCHAR(36) PRIMARY KEY,
    started_at VARCHAR(19) NOT NULL,
    finished_at VARCHAR(19),
    outcome VARCHAR(32),
    message {{text}},
    articles INTEGER NOT NULL DEFAULT 0,
    records INTEGER NOT NULL DEFAULT 0,
    duplicates INTEGER NOT NULL DEFAULT 0,
    errors {{text}}
);

CREATE INDEX idx_runs_started ON pipeline_runs(started_at);
`)
		},
	},
}

// execAll runs each ;-separated statement of a schema template, with
// {{id}}, {{text}} and {{key}} replaced by the dialect's column types.
func execAll(tx *sql.Tx, d dialect, schema string) error {
	schema = strings.NewReplacer(
		"{{id}}", d.autoID(),
		"{{text}}", d.text(),
		"{{key}}", d.key(),
	).Replace(schema)
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
