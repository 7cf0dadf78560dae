// Package sqlstore keeps NodeState and LinkState rows in a SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/encodeous/spfsync/state"
	_ "github.com/mattn/go-sqlite3"
)

const currentSchemaVersion = 1

// Store writes one row per published record. It is safe for concurrent use.
type Store struct {
	db        *sql.DB
	nodeTable string
	linkTable string
}

// Open creates or opens the database at path and makes sure both tables exist.
// Table names must already be validated, they are quoted into the statements.
func Open(path, nodeTable, linkTable string) (*Store, error) {
	if err := state.BucketValidator(nodeTable); err != nil {
		return nil, err
	}
	if err := state.BucketValidator(linkTable); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// single writer, avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	s := &Store{db: db, nodeTable: nodeTable, linkTable: linkTable}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) applySchema() error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %q (
	name   TEXT PRIMARY KEY,
	addr   TEXT NOT NULL,
	prefix TEXT NOT NULL DEFAULT '',
	pbsid  TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS %q (
	name1  TEXT NOT NULL,
	addr1  TEXT NOT NULL,
	name2  TEXT NOT NULL,
	addr2  TEXT NOT NULL,
	metric INTEGER NOT NULL,
	bw     REAL NOT NULL,
	ava_bw REAL NOT NULL,
	delay  REAL NOT NULL,
	PRIMARY KEY (name1, name2)
);`, s.nodeTable, s.linkTable)
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (s *Store) PublishNode(ctx context.Context, row state.NodeRow) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %q (name, addr, prefix, pbsid) VALUES (?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET addr = excluded.addr, prefix = excluded.prefix, pbsid = excluded.pbsid`, s.nodeTable),
		row.Name, row.Addr, row.Prefix, row.Pbsid)
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", s.nodeTable, row.Name, err)
	}
	return nil
}

func (s *Store) PublishLink(ctx context.Context, row state.LinkRow) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %q (name1, addr1, name2, addr2, metric, bw, ava_bw, delay) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (name1, name2) DO UPDATE SET addr1 = excluded.addr1, addr2 = excluded.addr2, metric = excluded.metric,
	bw = excluded.bw, ava_bw = excluded.ava_bw, delay = excluded.delay`, s.linkTable),
		row.Name1, row.Addr1, row.Name2, row.Addr2, row.Metric, row.Bw, row.AvaBw, row.Delay)
	if err != nil {
		return fmt.Errorf("insert %s %s-%s: %w", s.linkTable, row.Name1, row.Name2, err)
	}
	return nil
}

// RetractNode deletes the row by name. Deleting a row that is already gone succeeds.
func (s *Store) RetractNode(ctx context.Context, row state.NodeRow) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE name = ?`, s.nodeTable), row.Name)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", s.nodeTable, row.Name, err)
	}
	return nil
}

func (s *Store) RetractLink(ctx context.Context, row state.LinkRow) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE name1 = ? AND name2 = ?`, s.linkTable), row.Name1, row.Name2)
	if err != nil {
		return fmt.Errorf("delete %s %s-%s: %w", s.linkTable, row.Name1, row.Name2, err)
	}
	return nil
}

// Nodes returns every node row ordered by name
func (s *Store) Nodes(ctx context.Context) ([]state.NodeRow, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT name, addr, prefix, pbsid FROM %q ORDER BY name`, s.nodeTable))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.nodeTable, err)
	}
	defer rows.Close()
	out := make([]state.NodeRow, 0)
	for rows.Next() {
		var r state.NodeRow
		if err := rows.Scan(&r.Name, &r.Addr, &r.Prefix, &r.Pbsid); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.nodeTable, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Links returns every link row ordered by endpoint names
func (s *Store) Links(ctx context.Context) ([]state.LinkRow, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT name1, addr1, name2, addr2, metric, bw, ava_bw, delay FROM %q ORDER BY name1, name2`, s.linkTable))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.linkTable, err)
	}
	defer rows.Close()
	out := make([]state.LinkRow, 0)
	for rows.Next() {
		var r state.LinkRow
		if err := rows.Scan(&r.Name1, &r.Addr1, &r.Name2, &r.Addr2, &r.Metric, &r.Bw, &r.AvaBw, &r.Delay); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.linkTable, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
