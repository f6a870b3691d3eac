package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect captures what differs between the supported SQL backends.
type Dialect struct {
	Name      string // config name: sqlite, postgres, mysql
	Driver    string // database/sql driver name
	Key       string // column type for names used in primary keys
	Float     string
	Timestamp string
	Numbered  bool // $1, $2 placeholders instead of ?
}

var (
	SQLite   = Dialect{Name: "sqlite", Driver: "sqlite", Key: "TEXT", Float: "REAL", Timestamp: "DATETIME"}
	Postgres = Dialect{Name: "postgres", Driver: "postgres", Key: "TEXT", Float: "DOUBLE PRECISION", Timestamp: "TIMESTAMPTZ", Numbered: true}
	MySQL    = Dialect{Name: "mysql", Driver: "mysql", Key: "VARCHAR(191)", Float: "DOUBLE", Timestamp: "DATETIME(6)"}
)

// DialectFor looks a dialect up by its config name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	}
	return Dialect{}, fmt.Errorf("unknown storage driver %q", name)
}

// Rebind rewrites ? placeholders for dialects that number them. Queries in
// this package never contain a literal question mark.
func (d Dialect) Rebind(q string) string {
	if !d.Numbered {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// DB wraps the SQL connection and its dialect.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// Open connects to dsn with the named driver and runs migrations. For
// sqlite the DSN is a file path; its directory is created.
func Open(driver, dsn string) (*DB, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if d.Name == SQLite.Name {
		return NewSQLite(dsn)
	}
	if d.Name == MySQL.Name {
		if dsn, err = mysqlDSN(dsn); err != nil {
			return nil, err
		}
	}
	conn, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name, err)
	}
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", d.Name, err)
	}
	return open(conn, d)
}

// mysqlDSN forces the options the stores depend on: DATETIME columns scan
// into time.Time, and UPDATE reports matched rows so rewriting an unchanged
// position is not mistaken for a missing row.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// NewSQLite opens (or creates) the SQLite file at dbPath.
func NewSQLite(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer; a single connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)
	return open(conn, SQLite)
}

func open(conn *sql.DB, d Dialect) (*DB, error) {
	db := &DB{conn: conn, dialect: d}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) migrate() error {
	d := db.dialect
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS solutions (
			name ` + d.Key + ` PRIMARY KEY,
			created_at ` + d.Timestamp + ` NOT NULL,
			updated_at ` + d.Timestamp + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS states (
			solution ` + d.Key + ` NOT NULL,
			name ` + d.Key + ` NOT NULL,
			kind VARCHAR(32) NOT NULL,
			x ` + d.Float + ` NOT NULL DEFAULT 0,
			y ` + d.Float + ` NOT NULL DEFAULT 0,
			radius ` + d.Float + ` NOT NULL DEFAULT 0,
			width ` + d.Float + ` NOT NULL DEFAULT 0,
			height ` + d.Float + ` NOT NULL DEFAULT 0,
			half_diagonal ` + d.Float + ` NOT NULL DEFAULT 0,
			corner_radius ` + d.Float + ` NOT NULL DEFAULT 0,
			style_json TEXT NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (solution, name)
		)`,
		`CREATE TABLE IF NOT EXISTS slots (
			solution ` + d.Key + ` NOT NULL,
			state ` + d.Key + ` NOT NULL,
			idx INTEGER NOT NULL,
			is_input INTEGER NOT NULL DEFAULT 0,
			is_output INTEGER NOT NULL DEFAULT 0,
			angle ` + d.Float + ` NOT NULL DEFAULT 0,
			color VARCHAR(32) NOT NULL DEFAULT '',
			label VARCHAR(64) NOT NULL DEFAULT '',
			PRIMARY KEY (solution, state, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS connectors (
			solution ` + d.Key + ` NOT NULL,
			id ` + d.Key + ` NOT NULL,
			source_state ` + d.Key + ` NOT NULL,
			source_slot INTEGER NOT NULL,
			sink_state ` + d.Key + ` NOT NULL,
			sink_slot INTEGER NOT NULL,
			sort_order INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (solution, id)
		)`,
		`CREATE TABLE IF NOT EXISTS mcp_approvals (
			id ` + d.Key + ` PRIMARY KEY,
			tool VARCHAR(128) NOT NULL,
			description TEXT NOT NULL,
			status VARCHAR(16) NOT NULL,
			metadata TEXT NOT NULL,
			created_at ` + d.Timestamp + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS app_settings (
			setting_key ` + d.Key + ` PRIMARY KEY,
			setting_value TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %s: %w", strings.Join(strings.Fields(m), " ")[:40], err)
		}
	}
	return nil
}
