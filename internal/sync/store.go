package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/driftlab/driftsync/internal/db"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS file_state (
    root TEXT NOT NULL,
    path TEXT NOT NULL,
    size INTEGER NOT NULL,
    mod_time TEXT NOT NULL, -- RFC3339Nano
    hash TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (root, path)
);

CREATE TABLE IF NOT EXISTS store_meta (
    root TEXT PRIMARY KEY,
    generation INTEGER NOT NULL DEFAULT 0,
    committed_at TEXT NOT NULL DEFAULT ''
);
`

// dbFileRecord is the scan target; timestamps are stored as TEXT.
type dbFileRecord struct {
	Root    string `db:"root"`
	Path    string `db:"path"`
	Size    int64  `db:"size"`
	ModTime string `db:"mod_time"`
	Hash    string `db:"hash"`
}

// StateStore persists the last committed snapshot per root in a SQLite
// database under the working directory. Both roots of a pair share one
// database file, keyed by their resolved root string so argument order
// never matters.
//
// Commit replaces a root's rows inside a single immediate transaction, so a
// crash at any point leaves either the old snapshot or the new one readable,
// never a torn mixture.
type StateStore struct {
	db     *sqlx.DB
	dbPath string
}

// OpenStateStore opens (or creates) the state database at dbPath.
// A missing file is created empty; an existing file that cannot be opened or
// initialized is reported as corrupt.
func OpenStateStore(dbPath string) (*StateStore, error) {
	sdb, err := db.NewSqliteDB(db.WithPath(dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreCorrupt, dbPath, err)
	}

	if _, err := sdb.Exec(storeSchema); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("%w: init schema %s: %v", ErrStoreCorrupt, dbPath, err)
	}

	return &StateStore{db: sdb, dbPath: dbPath}, nil
}

func (s *StateStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Load returns the last committed snapshot for root. First-ever runs return
// an empty snapshot; unparseable rows mean the store is corrupt and the pass
// must abort rather than misread the damage as mass deletion.
func (s *StateStore) Load(root string) (Snapshot, error) {
	var rows []dbFileRecord
	err := s.db.Select(&rows, "SELECT root, path, size, mod_time, hash FROM file_state WHERE root = ?", root)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrStoreCorrupt, root, err)
	}

	snapshot := make(Snapshot, len(rows))
	for _, row := range rows {
		modTime, err := time.Parse(time.RFC3339Nano, row.ModTime)
		if err != nil {
			return nil, fmt.Errorf("%w: bad timestamp %q for %s", ErrStoreCorrupt, row.ModTime, row.Path)
		}
		snapshot[row.Path] = &FileRecord{
			Path:    row.Path,
			Size:    row.Size,
			ModTime: modTime,
			Hash:    row.Hash,
		}
	}

	return snapshot, nil
}

// Commit atomically replaces root's snapshot and bumps its generation.
func (s *StateStore) Commit(root string, snapshot Snapshot) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin commit for %s: %w", root, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM file_state WHERE root = ?", root); err != nil {
		return fmt.Errorf("clear state for %s: %w", root, err)
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO file_state (root, path, size, mod_time, hash)
	                              VALUES (:root, :path, :size, :mod_time, :hash)`)
	if err != nil {
		return fmt.Errorf("prepare insert for %s: %w", root, err)
	}
	defer stmt.Close()

	for _, path := range snapshot.Paths() {
		record := snapshot[path]
		row := dbFileRecord{
			Root:    root,
			Path:    record.Path,
			Size:    record.Size,
			ModTime: record.ModTime.Format(time.RFC3339Nano),
			Hash:    record.Hash,
		}
		if _, err := stmt.Exec(row); err != nil {
			return fmt.Errorf("insert %s for %s: %w", path, root, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.Exec(`INSERT INTO store_meta (root, generation, committed_at) VALUES (?, 1, ?)
	                  ON CONFLICT(root) DO UPDATE SET generation = generation + 1, committed_at = excluded.committed_at`,
		root, now)
	if err != nil {
		return fmt.Errorf("bump generation for %s: %w", root, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state for %s: %w", root, err)
	}

	slog.Debug("state committed", "root", root, "files", len(snapshot))
	return nil
}

// Generation returns the store-level version counter for root, zero when the
// root has never been committed.
func (s *StateStore) Generation(root string) (int64, error) {
	var generation int64
	err := s.db.Get(&generation, "SELECT generation FROM store_meta WHERE root = ?", root)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("query generation for %s: %w", root, err)
	}
	return generation, nil
}
