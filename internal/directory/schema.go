// Package directory is the sqlite-backed store of tracked characters, their
// daily snapshots and the history of scheduled runs.
package directory

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const (
	createCharactersTableSQL = `
	CREATE TABLE IF NOT EXISTS characters (
		"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"server" TEXT NOT NULL,
		"world" TEXT NOT NULL,
		"name" TEXT NOT NULL COLLATE NOCASE,
		"level" INTEGER NOT NULL DEFAULT 0,
		"vocation" TEXT NOT NULL DEFAULT '',
		"sex" TEXT NOT NULL DEFAULT '',
		"guild" TEXT NOT NULL DEFAULT '',
		"guild_rank" TEXT NOT NULL DEFAULT '',
		"residence" TEXT NOT NULL DEFAULT '',
		"house" TEXT NOT NULL DEFAULT '',
		"online" INTEGER NOT NULL DEFAULT 0,
		"last_login" TEXT,
		"achievement_points" INTEGER NOT NULL DEFAULT 0,
		"loyalty_points" INTEGER NOT NULL DEFAULT 0,
		"outfit_url" TEXT NOT NULL DEFAULT '',
		"profile_url" TEXT NOT NULL DEFAULT '',
		"last_scrape_at" TEXT,
		"last_snapshot_at" TEXT,
		"error_count" INTEGER NOT NULL DEFAULT 0,
		"last_error" TEXT NOT NULL DEFAULT '',
		"last_error_kind" TEXT NOT NULL DEFAULT '',
		"next_scrape_at" TEXT,
		"recovery_active" INTEGER NOT NULL DEFAULT 1,
		"suspend_reason" TEXT NOT NULL DEFAULT '',
		"created_at" TEXT NOT NULL,
		UNIQUE(server, world, name)
	);`

	createSnapshotsTableSQL = `
	CREATE TABLE IF NOT EXISTS character_snapshots (
		"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"character_id" INTEGER NOT NULL,
		"exp_date" TEXT NOT NULL,
		"level" INTEGER NOT NULL DEFAULT 0,
		"experience" INTEGER NOT NULL DEFAULT 0,
		"deaths" INTEGER NOT NULL DEFAULT 0,
		"vocation" TEXT NOT NULL DEFAULT '',
		"world" TEXT NOT NULL DEFAULT '',
		"guild" TEXT NOT NULL DEFAULT '',
		"guild_rank" TEXT NOT NULL DEFAULT '',
		"achievement_points" INTEGER NOT NULL DEFAULT 0,
		"loyalty_points" INTEGER NOT NULL DEFAULT 0,
		"online" INTEGER NOT NULL DEFAULT 0,
		"outfit_url" TEXT NOT NULL DEFAULT '',
		"scraped_at" TEXT NOT NULL,
		"scrape_source" TEXT NOT NULL,
		UNIQUE(character_id, exp_date),
		FOREIGN KEY(character_id) REFERENCES characters(id) ON DELETE CASCADE
	);`

	createRunsTableSQL = `
	CREATE TABLE IF NOT EXISTS scrape_runs (
		"id" TEXT NOT NULL PRIMARY KEY,
		"started_at" TEXT NOT NULL,
		"finished_at" TEXT NOT NULL,
		"succeeded" INTEGER NOT NULL DEFAULT 0,
		"failed" INTEGER NOT NULL DEFAULT 0,
		"skipped" INTEGER NOT NULL DEFAULT 0,
		"failures_json" TEXT NOT NULL DEFAULT '{}'
	);`
)

// Store wraps the sqlite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		dsn = "file:" + dsn
	}
	if strings.Contains(dsn, "?") {
		dsn += "&_foreign_keys=on&_busy_timeout=5000"
	} else {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer; one connection also keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func initSchema(db *sql.DB) error {
	tables := []struct{ name, query string }{
		{"characters", createCharactersTableSQL},
		{"character_snapshots", createSnapshotsTableSQL},
		{"scrape_runs", createRunsTableSQL},
	}
	for _, t := range tables {
		if _, err := db.Exec(t.query); err != nil {
			return fmt.Errorf("could not create table '%s': %w", t.name, err)
		}
	}

	indexQueries := []string{
		`CREATE INDEX IF NOT EXISTS idx_chars_due ON characters (recovery_active, next_scrape_at);`,
		`CREATE INDEX IF NOT EXISTS idx_chars_server ON characters (server, world);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_char_date_desc ON character_snapshots (character_id, exp_date DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_desc ON scrape_runs (started_at DESC);`,
	}
	for i, query := range indexQueries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("could not create index #%d: %w", i, err)
		}
	}
	return nil
}

// migrations adds columns that older databases lack.
var migrations = []struct{ table, column, ddl string }{
	{"characters", "sex", `ALTER TABLE characters ADD COLUMN sex TEXT NOT NULL DEFAULT '';`},
	{"characters", "suspend_reason", `ALTER TABLE characters ADD COLUMN suspend_reason TEXT NOT NULL DEFAULT '';`},
	{"characters", "last_error_kind", `ALTER TABLE characters ADD COLUMN last_error_kind TEXT NOT NULL DEFAULT '';`},
	{"character_snapshots", "deaths", `ALTER TABLE character_snapshots ADD COLUMN deaths INTEGER NOT NULL DEFAULT 0;`},
}

func applyMigrations(db *sql.DB) error {
	for _, m := range migrations {
		exists, err := columnExists(db, m.table, m.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.Exec(m.ddl); err != nil {
			return fmt.Errorf("failed to add '%s' column to '%s' table: %w", m.column, m.table, err)
		}
		log.Printf("[I] [Directory] Migrated %s: added column %s.", m.table, m.column)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false, fmt.Errorf("could not query table info for %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
