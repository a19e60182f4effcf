package database

import (
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/accidentwatch/internal/accident"
)

const recordColumns = `news_category, local_id, accidents_occurred, frequency, published_at,
	day_of_week, exact_location, area, division, district, subdistrict, place_type, country,
	accident_type, killed, injured, cause, primary_vehicle, secondary_vehicle, tertiary_vehicle,
	additional_vehicles, deceased_ages, headline, summary, source_url, source_name, article_index,
	article_title, article_text, raw_response, is_duplicate, created_at`

var extraColumnName = regexp.MustCompile(`^[a-z0-9_]{1,60}$`)

// InsertRecords appends records in one transaction and sets their IDs.
// Fields in Extra get their own x_ column, added on first sight.
func (db *DB) InsertRecords(records []accident.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := db.ensureExtraColumns(records); err != nil {
		return 0, err
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	for i := range records {
		r := &records[i]
		cols := recordColumns
		args := []any{
			r.NewsCategory, nullString(r.LocalID), r.AccidentsOccurred, nullString(r.Frequency),
			formatTimePtr(r.PublishedAt), nullString(r.DayOfWeek), nullString(r.ExactLocation),
			nullString(r.Area), nullString(r.Division), nullString(r.District), nullString(r.Subdistrict),
			nullString(r.PlaceType), nullString(r.Country), nullString(r.AccidentType), r.Killed,
			r.Injured, nullString(r.Cause), nullString(r.PrimaryVehicle), nullString(r.SecondaryVehicle),
			nullString(r.TertiaryVehicle), nullString(r.AdditionalVehicles), nullString(r.DeceasedAges),
			nullString(r.Headline), nullString(r.Summary), r.SourceURL, nullString(r.SourceName),
			r.ArticleIndex, nullString(r.ArticleTitle), nullString(r.ArticleText),
			nullString(r.RawResponse), boolInt(r.Duplicate), now,
		}
		for _, k := range sortedKeys(r.Extra) {
			if !extraColumnName.MatchString(k) {
				continue
			}
			cols += ", " + ExtraColumnPrefix + k
			args = append(args, nullString(r.Extra[k]))
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
		result, err := tx.Exec(
			fmt.Sprintf("INSERT INTO accident_records (%s) VALUES (%s)", cols, placeholders),
			args...,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting record from %s: %w", r.SourceURL, err)
		}
		if r.ID, err = result.LastInsertId(); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// ensureExtraColumns adds an x_ column for every unseen Extra key. It runs
// outside the insert transaction since MySQL commits implicitly on DDL.
func (db *DB) ensureExtraColumns(records []accident.Record) error {
	var wanted []string
	seen := map[string]bool{}
	for _, r := range records {
		for k := range r.Extra {
			if !seen[k] && extraColumnName.MatchString(k) {
				seen[k] = true
				wanted = append(wanted, k)
			}
		}
	}
	if len(wanted) == 0 {
		return nil
	}
	sort.Strings(wanted)

	cols, err := db.dialect.columns(db.conn, "accident_records")
	if err != nil {
		return fmt.Errorf("listing columns: %w", err)
	}
	for _, k := range wanted {
		col := ExtraColumnPrefix + k
		if cols[col] {
			continue
		}
		log.Printf("Adding column %s for new extraction field", col)
		if _, err := db.conn.Exec(fmt.Sprintf("ALTER TABLE accident_records ADD COLUMN %s %s", col, db.dialect.text())); err != nil {
			return fmt.Errorf("adding column %s: %w", col, err)
		}
	}
	return nil
}

// ExtraColumns lists the extraction fields stored in x_ columns, without the
// prefix.
func (db *DB) ExtraColumns() ([]string, error) {
	cols, err := db.dialect.columns(db.conn, "accident_records")
	if err != nil {
		return nil, err
	}
	var extras []string
	for c := range cols {
		if strings.HasPrefix(c, ExtraColumnPrefix) {
			extras = append(extras, strings.TrimPrefix(c, ExtraColumnPrefix))
		}
	}
	sort.Strings(extras)
	return extras, nil
}

// ExistingRecords returns stored dated records in insertion order, the order
// duplicate resolution treats as "earlier". since limits the result to
// records published on or after it.
func (db *DB) ExistingRecords(since *time.Time) ([]accident.Record, error) {
	query := "SELECT id, " + recordColumns + " FROM accident_records WHERE published_at IS NOT NULL"
	var args []any
	if since != nil {
		query += " AND published_at >= ?"
		args = append(args, formatTime(*since))
	}
	query += " ORDER BY id ASC"
	return db.queryRecords(nil, query, args...)
}

// SummaryRecords returns the records the yearly summary is built from:
// Bangladesh daily reports with a date that are not duplicates, newest first.
func (db *DB) SummaryRecords() ([]accident.Record, error) {
	return db.queryRecords(nil,
		"SELECT id, "+recordColumns+` FROM accident_records
		WHERE country = ? AND frequency = ? AND is_duplicate = 0 AND published_at IS NOT NULL
		ORDER BY published_at DESC, id ASC`,
		accident.CountryBangladesh, accident.FrequencyDaily,
	)
}

// ListRecords returns stored records newest first, including extra fields.
func (db *DB) ListRecords(opts ListOptions) ([]accident.Record, error) {
	extras, err := db.ExtraColumns()
	if err != nil {
		return nil, err
	}
	cols := "id, " + recordColumns
	for _, k := range extras {
		cols += ", " + ExtraColumnPrefix + k
	}
	where, args := listFilter(opts)
	query := "SELECT " + cols + " FROM accident_records" + where + " ORDER BY published_at DESC, id DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", opts.Limit, max(opts.Offset, 0))
	}
	return db.queryRecords(extras, query, args...)
}

// CountRecords counts the records ListRecords would return without paging.
func (db *DB) CountRecords(opts ListOptions) (int, error) {
	where, args := listFilter(opts)
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM accident_records"+where, args...).Scan(&n)
	return n, err
}

func listFilter(opts ListOptions) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !opts.IncludeDuplicates {
		conds = append(conds, "is_duplicate = 0")
	}
	if opts.Year > 0 {
		conds = append(conds, "published_at >= ? AND published_at < ?")
		args = append(args, fmt.Sprintf("%04d-01-01", opts.Year), fmt.Sprintf("%04d-01-01", opts.Year+1))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// KnownURLs returns every source URL that produced a stored record.
func (db *DB) KnownURLs() (accident.URLSet, error) {
	rows, err := db.conn.Query("SELECT DISTINCT source_url FROM accident_records")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	urls := accident.NewURLSet()
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		urls.Add(u)
	}
	return urls, rows.Err()
}

// LatestPublishTime returns the newest publish time stored for a source, or
// nil when the source has no dated records.
func (db *DB) LatestPublishTime(source string) (*time.Time, error) {
	var latest sql.NullString
	if err := db.conn.QueryRow(
		"SELECT MAX(published_at) FROM accident_records WHERE source_name = ?", source,
	).Scan(&latest); err != nil {
		return nil, err
	}
	return parseTime(latest.String)
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM accident_records", &s.TotalRecords},
		{"SELECT COUNT(*) FROM accident_records WHERE is_duplicate = 1", &s.DuplicateRecords},
		{"SELECT COUNT(DISTINCT source_url) FROM accident_records", &s.SourceURLs},
		{"SELECT COUNT(*) FROM yearly_summaries", &s.Years},
		{"SELECT COUNT(*) FROM pipeline_runs", &s.Runs},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	var latest sql.NullString
	if err := db.conn.QueryRow("SELECT MAX(published_at) FROM accident_records").Scan(&latest); err != nil {
		return nil, err
	}
	t, err := parseTime(latest.String)
	if err != nil {
		return nil, err
	}
	s.LatestPublished = t
	return s, nil
}

func (db *DB) queryRecords(extras []string, query string, args ...any) ([]accident.Record, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []accident.Record
	for rows.Next() {
		r, err := scanRecord(rows, extras)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows, extras []string) (accident.Record, error) {
	var (
		r         accident.Record
		text      [26]sql.NullString
		published sql.NullString
		duplicate int
	)
	// integer columns are scanned directly, the rest as nullable text
	dest := []any{
		&r.ID,
		&text[0], &text[1], &r.AccidentsOccurred, &text[2], &published,
		&text[3], &text[4], &text[5], &text[6], &text[7], &text[8], &text[9], &text[10],
		&text[11], &r.Killed, &r.Injured, &text[12], &text[13], &text[14], &text[15],
		&text[16], &text[17], &text[18], &text[19], &text[20], &text[21], &r.ArticleIndex,
		&text[22], &text[23], &text[24], &duplicate, &text[25],
	}
	extraVals := make([]sql.NullString, len(extras))
	for i := range extraVals {
		dest = append(dest, &extraVals[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return r, err
	}

	fields := []*string{
		&r.NewsCategory, &r.LocalID, &r.Frequency, &r.DayOfWeek, &r.ExactLocation, &r.Area,
		&r.Division, &r.District, &r.Subdistrict, &r.PlaceType, &r.Country, &r.AccidentType,
		&r.Cause, &r.PrimaryVehicle, &r.SecondaryVehicle, &r.TertiaryVehicle,
		&r.AdditionalVehicles, &r.DeceasedAges, &r.Headline, &r.Summary, &r.SourceURL,
		&r.SourceName, &r.ArticleTitle, &r.ArticleText, &r.RawResponse,
	}
	for i, f := range fields {
		*f = text[i].String
	}

	t, err := parseTime(published.String)
	if err != nil {
		return r, fmt.Errorf("record %d: parsing published_at: %w", r.ID, err)
	}
	r.PublishedAt = t
	r.Duplicate = duplicate != 0

	for i, k := range extras {
		if extraVals[i].Valid {
			if r.Extra == nil {
				r.Extra = make(map[string]string)
			}
			r.Extra[k] = extraVals[i].String
		}
	}
	return r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
