package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// DB wraps a SQLite or MySQL database connection.
type DB struct {
	conn    *sql.DB
	path    string
	dialect dialect
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return finishOpen(conn, dbPath, sqliteDialect{})
}

// OpenMySQL connects to a MySQL database given a go-sql-driver DSN such as
// "user:pass@tcp(localhost:3306)/accidents".
func OpenMySQL(dsn string) (*DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing MySQL DSN: %w", err)
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	conn := sql.OpenDB(connector)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to MySQL: %w", err)
	}
	return finishOpen(conn, cfg.Addr+"/"+cfg.DBName, mysqlDialect{})
}

// OpenDriver opens a store by driver name. target is a file path for SQLite
// and a DSN for MySQL.
func OpenDriver(driver, target string) (*DB, error) {
	switch driver {
	case "", DriverSQLite:
		return Open(target)
	case DriverMySQL:
		return OpenMySQL(target)
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

func finishOpen(conn *sql.DB, path string, d dialect) (*DB, error) {
	if err := migrate(conn, d); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &DB{conn: conn, path: path, dialect: d}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path, or host/database for MySQL.
func (db *DB) Path() string {
	return db.path
}

// Driver names the backing database.
func (db *DB) Driver() string {
	return db.dialect.name()
}
