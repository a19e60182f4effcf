package database

import (
	"database/sql"
	"fmt"
)

// dialect covers the SQL that differs between SQLite and MySQL.
type dialect interface {
	name() string
	// column types
	autoID() string
	text() string
	key() string

	schemaVersion(conn *sql.DB) (int, error)
	setSchemaVersion(conn *sql.DB, v int) error
	columns(q querier, table string) (map[string]bool, error)
	upsertSummary() string
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

type sqliteDialect struct{}

func (sqliteDialect) name() string   { return DriverSQLite }
func (sqliteDialect) autoID() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (sqliteDialect) text() string   { return "TEXT" }
func (sqliteDialect) key() string    { return "TEXT" }

// schemaVersion reads PRAGMA user_version from the database.
func (sqliteDialect) schemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// Set outside the migration transaction (modernc/sqlite requirement).
func (sqliteDialect) setSchemaVersion(conn *sql.DB, v int) error {
	_, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", v))
	return err
}

func (sqliteDialect) columns(q querier, table string) (map[string]bool, error) {
	rows, err := q.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// The row is only rewritten when the checksum changed, so last_updated
// reflects the last real change.
func (sqliteDialect) upsertSummary() string {
	return `INSERT INTO yearly_summaries (` + summaryColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(year) DO UPDATE SET
    total_accidents = excluded.total_accidents,
    total_killed = excluded.total_killed,
    total_injured = excluded.total_injured,
    daily_deaths = excluded.daily_deaths,
    daily_injured = excluded.daily_injured,
    monthly_deaths = excluded.monthly_deaths,
    monthly_injured = excluded.monthly_injured,
    accident_hotspot = excluded.accident_hotspot,
    vehicles_involved = excluded.vehicles_involved,
    accidents_by_district = excluded.accidents_by_district,
    checksum = excluded.checksum,
    last_updated = excluded.last_updated
WHERE yearly_summaries.checksum <> excluded.checksum`
}

type mysqlDialect struct{}

func (mysqlDialect) name() string   { return DriverMySQL }
func (mysqlDialect) autoID() string { return "BIGINT PRIMARY KEY AUTO_INCREMENT" }
func (mysqlDialect) text() string   { return "LONGTEXT" }
func (mysqlDialect) key() string    { return "VARCHAR(512)" }

func (mysqlDialect) schemaVersion(conn *sql.DB) (int, error) {
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("creating schema_version: %w", err)
	}
	var version int
	err := conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func (mysqlDialect) setSchemaVersion(conn *sql.DB, v int) error {
	_, err := conn.Exec("INSERT INTO schema_version (version) VALUES (?)", v)
	return err
}

func (mysqlDialect) columns(q querier, table string) (map[string]bool, error) {
	rows, err := q.Query(
		`SELECT column_name FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?`, table,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// last_updated is assigned first: MySQL evaluates the list left to right, so
// it still sees the stored checksum.
func (mysqlDialect) upsertSummary() string {
	return `INSERT INTO yearly_summaries (` + summaryColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    last_updated = IF(checksum = VALUES(checksum), last_updated, VALUES(last_updated)),
    total_accidents = VALUES(total_accidents),
    total_killed = VALUES(total_killed),
    total_injured = VALUES(total_injured),
    daily_deaths = VALUES(daily_deaths),
    daily_injured = VALUES(daily_injured),
    monthly_deaths = VALUES(monthly_deaths),
    monthly_injured = VALUES(monthly_injured),
    accident_hotspot = VALUES(accident_hotspot),
    vehicles_involved = VALUES(vehicles_involved),
    accidents_by_district = VALUES(accidents_by_district),
    checksum = VALUES(checksum)`
}
