package storage

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/patronlib/librarystack/pkg/liberr"
)

// SQLiteBackend is an alternate Backend implementation storing every
// key as a row in a single SQLite file, using the pure-Go
// modernc.org/sqlite driver. It trades the file-per-key layout for a
// single portable file at the cost of per-Save transaction overhead.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if absent) a SQLite database at path
// and ensures its schema exists.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}
	db.SetMaxOpenConns(1)

	const schema = `CREATE TABLE IF NOT EXISTS library_blobs (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Load returns every stored key/value pair.
func (s *SQLiteBackend) Load() (map[string][]byte, error) {
	rows, err := s.db.Query(`SELECT key, value FROM library_blobs`)
	if err != nil {
		return nil, liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}
	return out, nil
}

// Save upserts every key in snapshot within a single transaction, so a
// mid-write failure leaves the prior snapshot intact.
func (s *SQLiteBackend) Save(snapshot map[string][]byte) error {
	tx, err := s.db.Begin()
	if err != nil {
		return liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO library_blobs(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		tx.Rollback()
		return liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}
	defer stmt.Close()

	for key, value := range snapshot {
		if _, err := stmt.Exec(key, value); err != nil {
			tx.Rollback()
			return liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteBackend) Close() error {
	if err := s.db.Close(); err != nil {
		return liberr.Wrap(liberr.KindStorageIO, liberr.CodeStorageIO, err)
	}
	return nil
}
