package database

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
)

const summaryColumns = `year, total_accidents, total_killed, total_injured, daily_deaths,
	daily_injured, monthly_deaths, monthly_injured, accident_hotspot, vehicles_involved,
	accidents_by_district, checksum, last_updated`

// UpsertYearlySummary writes the summary for one year. A row whose content
// is unchanged keeps its last_updated time.
func (db *DB) UpsertYearlySummary(s accident.YearlySummary, now time.Time) error {
	maps := []map[string]int{
		s.DailyDeaths, s.DailyInjured, s.MonthlyDeaths, s.MonthlyInjured,
		s.VehiclesInvolved, s.AccidentsByDistrict,
	}
	encoded := make([]string, len(maps))
	for i, m := range maps {
		data, err := json.Marshal(nonNil(m))
		if err != nil {
			return fmt.Errorf("encoding summary %d: %w", s.Year, err)
		}
		encoded[i] = string(data)
	}
	sum, err := Checksum(s)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(db.dialect.upsertSummary(),
		s.Year, s.TotalAccidents, s.TotalKilled, s.TotalInjured,
		encoded[0], encoded[1], encoded[2], encoded[3], nullString(s.AccidentHotspot),
		encoded[4], encoded[5], sum, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("upserting summary %d: %w", s.Year, err)
	}
	return nil
}

// Checksum hashes the content of a summary, ignoring last_updated.
func Checksum(s accident.YearlySummary) (string, error) {
	s.LastUpdated = time.Time{}
	s.DailyDeaths = nonNil(s.DailyDeaths)
	s.DailyInjured = nonNil(s.DailyInjured)
	s.MonthlyDeaths = nonNil(s.MonthlyDeaths)
	s.MonthlyInjured = nonNil(s.MonthlyInjured)
	s.VehiclesInvolved = nonNil(s.VehiclesInvolved)
	s.AccidentsByDistrict = nonNil(s.AccidentsByDistrict)
	// encoding/json sorts map keys, so equal content hashes equally
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("hashing summary %d: %w", s.Year, err)
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}

// YearlySummaries returns every stored summary, oldest year first.
func (db *DB) YearlySummaries() ([]accident.YearlySummary, error) {
	rows, err := db.conn.Query("SELECT " + summaryColumns + " FROM yearly_summaries ORDER BY year ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []accident.YearlySummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// YearlySummary returns the summary for one year, or nil if none is stored.
func (db *DB) YearlySummary(year int) (*accident.YearlySummary, error) {
	row := db.conn.QueryRow("SELECT "+summaryColumns+" FROM yearly_summaries WHERE year = ?", year)
	s, err := scanSummary(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(sc scanner) (*accident.YearlySummary, error) {
	var (
		s        accident.YearlySummary
		encoded  [6]sql.NullString
		hotspot  sql.NullString
		checksum sql.NullString
		updated  sql.NullString
	)
	if err := sc.Scan(&s.Year, &s.TotalAccidents, &s.TotalKilled, &s.TotalInjured,
		&encoded[0], &encoded[1], &encoded[2], &encoded[3], &hotspot,
		&encoded[4], &encoded[5], &checksum, &updated); err != nil {
		return nil, err
	}

	targets := []*map[string]int{
		&s.DailyDeaths, &s.DailyInjured, &s.MonthlyDeaths, &s.MonthlyInjured,
		&s.VehiclesInvolved, &s.AccidentsByDistrict,
	}
	for i, target := range targets {
		*target = map[string]int{}
		if !encoded[i].Valid || encoded[i].String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(encoded[i].String), target); err != nil {
			return nil, fmt.Errorf("decoding summary %d: %w", s.Year, err)
		}
	}
	s.AccidentHotspot = hotspot.String

	t, err := parseTime(updated.String)
	if err != nil {
		return nil, err
	}
	if t != nil {
		s.LastUpdated = *t
	}
	return &s, nil
}

func nonNil(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
