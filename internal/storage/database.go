package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a per-model embedding store backed by a single SQLite file.
// Exactly one file exists per model name; reopening with a drifted
// configuration surfaces an UpdateCheck and the caller decides between
// Rebuild and RegisterModel. The store never resolves drift on its own.
type Store struct {
	db       *sql.DB
	path     string
	cfg      ModelConfig
	modelIdx int64 // current models row id, 0 until resolved
}

// Open opens (creating if absent) the store file for cfg.Name inside dir.
// The returned UpdateCheck describes how the newest matching model row
// relates to cfg; any state other than CheckOK leaves the store without a
// current model row until the caller calls Rebuild or RegisterModel.
func Open(dir string, cfg ModelConfig) (*Store, UpdateCheck, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("%w: create data dir: %v", ErrUnavailable, err)
	}
	path := filepath.Join(dir, sanitizeFilename(cfg.Name)+".sqlite")

	db, err := openDB(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: open %s: %v", ErrUnavailable, path, err)
	}

	s := &Store{db: db, path: path, cfg: cfg}

	created, err := s.ensureSchema()
	if err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("%w: init schema: %v", ErrUnavailable, err)
	}
	if created {
		if err := s.RegisterModel(); err != nil {
			_ = db.Close()
			return nil, "", err
		}
		return s, CheckOK, nil
	}

	check, modelIdx, err := s.updateCheck()
	if err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("%w: model check: %v", ErrUnavailable, err)
	}
	s.modelIdx = modelIdx
	return s, check, nil
}

// openDB opens the SQLite file with the pragmas and pool settings used
// throughout the project.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys (disabled by default in SQLite)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Single local writer; a tiny pool is plenty.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// sanitizeFilename strips characters that are unsafe in file names from a
// model identifier.
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '?', '%', '*', ':', '|', '"', '<', '>':
			return '_'
		}
		return r
	}, name)
}

// ensureSchema creates the three tables when the note and block tables are
// absent. A partial prior failure (one of the two missing) is treated as
// absent and the remnants are recreated. Returns true when the schema was
// (re)created.
func (s *Store) ensureSchema() (bool, error) {
	var notesExist, embeddingsExist bool
	rows, err := s.db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	if err != nil {
		return false, err
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return false, err
		}
		switch name {
		case "notes":
			notesExist = true
		case "embeddings":
			embeddingsExist = true
		}
	}
	if err := rows.Close(); err != nil {
		return false, err
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	if notesExist && embeddingsExist {
		return false, nil
	}

	// The NOT NULL UNIQUE(note_id) alongside UNIQUE(note_id, hash) is
	// redundant but part of the observed on-disk format; kept for file
	// compatibility.
	schema := []string{
		`DROP TABLE IF EXISTS embeddings;`,
		`DROP TABLE IF EXISTS notes;`,
		`DROP TABLE IF EXISTS models;`,
		`CREATE TABLE models (
			idx INTEGER PRIMARY KEY,
			model_name TEXT NOT NULL,
			model_version TEXT NOT NULL,
			max_block_size INT NOT NULL,
			embedding_version INTEGER NOT NULL DEFAULT 2,
			UNIQUE (model_name, model_version, max_block_size, embedding_version)
		);`,
		`CREATE TABLE notes (
			idx INTEGER PRIMARY KEY,
			note_id TEXT NOT NULL UNIQUE,
			hash TEXT NOT NULL,
			UNIQUE (note_id, hash)
		);`,
		`CREATE TABLE embeddings (
			idx INTEGER PRIMARY KEY,
			line INTEGER NOT NULL,
			body_idx INTEGER NOT NULL,
			length INTEGER NOT NULL,
			level INTEGER NOT NULL,
			title TEXT,
			embedding BLOB NOT NULL,
			note_idx INTEGER NOT NULL REFERENCES notes(idx),
			model_idx INTEGER NOT NULL REFERENCES models(idx)
		);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return false, err
		}
	}
	return true, nil
}

// updateCheck compares every persisted model row against the requested
// configuration along four axes, in priority order: no row with this name,
// embedding format revision, model version, block size budget.
func (s *Store) updateCheck() (UpdateCheck, int64, error) {
	rows, err := s.db.Query(`SELECT idx, model_name, model_version, max_block_size, embedding_version FROM models`)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		_ = rows.Close()
	}()

	modelExists := false
	embeddingUpdate := true
	modelUpdate := true
	sizeChange := true
	var modelIdx int64

	for rows.Next() {
		var rec ModelRecord
		if err := rows.Scan(&rec.Idx, &rec.Name, &rec.Version, &rec.MaxBlockSize, &rec.EmbeddingVersion); err != nil {
			return "", 0, err
		}
		if rec.Name != s.cfg.Name {
			continue
		}
		modelExists = true
		if rec.EmbeddingVersion != s.cfg.EmbeddingVersion {
			continue
		}
		embeddingUpdate = false
		if rec.Version != s.cfg.Version {
			continue
		}
		modelUpdate = false
		if rec.MaxBlockSize != s.cfg.MaxBlockSize {
			continue
		}
		sizeChange = false
		modelIdx = rec.Idx
	}
	if err := rows.Err(); err != nil {
		return "", 0, err
	}

	switch {
	case !modelExists:
		return CheckNew, 0, nil
	case embeddingUpdate:
		return CheckEmbeddingUpdate, 0, nil
	case modelUpdate:
		return CheckModelUpdate, 0, nil
	case sizeChange:
		return CheckSizeChange, 0, nil
	}
	return CheckOK, modelIdx, nil
}

// RegisterModel inserts a new models row for the requested configuration
// alongside any existing data (the "keep" choice of the open-time dialog).
// Rows written under older model records stay orphaned but present.
func (s *Store) RegisterModel() error {
	res, err := s.db.Exec(
		`INSERT INTO models (model_name, model_version, max_block_size, embedding_version) VALUES (?, ?, ?, ?)`,
		s.cfg.Name, s.cfg.Version, s.cfg.MaxBlockSize, s.cfg.EmbeddingVersion,
	)
	if err != nil {
		return fmt.Errorf("%w: register model: %v", ErrUnavailable, err)
	}
	idx, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: register model: %v", ErrUnavailable, err)
	}
	s.modelIdx = idx
	return nil
}

// Rebuild deletes the store file and recreates it empty (the "rebuild"
// choice of the open-time dialog).
func (s *Store) Rebuild() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close before rebuild: %v", ErrUnavailable, err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove %s: %v", ErrUnavailable, s.path, err)
	}

	db, err := openDB(s.path)
	if err != nil {
		return fmt.Errorf("%w: reopen %s: %v", ErrUnavailable, s.path, err)
	}
	s.db = db
	s.modelIdx = 0
	if _, err := s.ensureSchema(); err != nil {
		return fmt.Errorf("%w: init schema: %v", ErrUnavailable, err)
	}
	return s.RegisterModel()
}

// CurrentModel returns the models row the store is writing under, or
// ErrNoModel when the open-time decision is still pending.
func (s *Store) CurrentModel() (ModelRecord, error) {
	if s.modelIdx == 0 {
		return ModelRecord{}, ErrNoModel
	}
	var rec ModelRecord
	err := s.db.QueryRow(
		`SELECT idx, model_name, model_version, max_block_size, embedding_version FROM models WHERE idx = ?`,
		s.modelIdx,
	).Scan(&rec.Idx, &rec.Name, &rec.Version, &rec.MaxBlockSize, &rec.EmbeddingVersion)
	if err != nil {
		return ModelRecord{}, fmt.Errorf("%w: read model row: %v", ErrUnavailable, err)
	}
	return rec, nil
}

// Ready reports whether the store has a current model row and can accept
// writes.
func (s *Store) Ready() bool {
	return s.modelIdx != 0
}

// Path returns the store file location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
