package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"notemind/internal/vector"
)

// GetNoteStatus reports whether a note's stored blocks are current. UpToDate
// is true only when a note row with this id exists and its stored hash
// equals hash; RowID is set whenever the note exists, regardless of match.
func (s *Store) GetNoteStatus(ctx context.Context, noteID, hash string) (NoteStatus, error) {
	var rowID int64
	var stored string
	err := s.db.QueryRowContext(ctx,
		`SELECT idx, hash FROM notes WHERE note_id = ?`, noteID,
	).Scan(&rowID, &stored)
	if err == sql.ErrNoRows {
		return NoteStatus{}, nil
	}
	if err != nil {
		return NoteStatus{}, fmt.Errorf("%w: query note status: %v", ErrUnavailable, err)
	}
	return NoteStatus{UpToDate: stored == hash, RowID: rowID}, nil
}

// ReplaceNoteBlocks atomically replaces one note's blocks: it upserts the
// note row with the new hash, deletes all prior blocks for that note's
// internal id, and inserts the new blocks tagged with the current model
// row. All blocks must share the same note id and hash; a mix is a caller
// bug and fails with ErrConsistency before anything is written.
func (s *Store) ReplaceNoteBlocks(ctx context.Context, noteID, hash string, blocks []Block) error {
	if s.modelIdx == 0 {
		return ErrNoModel
	}
	for i := range blocks {
		if blocks[i].NoteID != noteID || blocks[i].Hash != hash {
			return fmt.Errorf("%w: block %d belongs to note %q hash %q, expected %q %q",
				ErrConsistency, i, blocks[i].NoteID, blocks[i].Hash, noteID, hash)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin replace: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Upsert preserves the internal row id so prior blocks stay addressable
	// for the delete below.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notes (note_id, hash) VALUES (?, ?)
		 ON CONFLICT (note_id) DO UPDATE SET hash = excluded.hash`,
		noteID, hash,
	); err != nil {
		return fmt.Errorf("%w: upsert note: %v", ErrUnavailable, err)
	}

	var rowID int64
	if err := tx.QueryRowContext(ctx, `SELECT idx FROM notes WHERE note_id = ?`, noteID).Scan(&rowID); err != nil {
		return fmt.Errorf("%w: read note row: %v", ErrUnavailable, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE note_idx = ?`, rowID); err != nil {
		return fmt.Errorf("%w: delete stale blocks: %v", ErrUnavailable, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO embeddings (note_idx, line, body_idx, length, level, title, embedding, model_idx)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare insert: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for i := range blocks {
		b := &blocks[i]
		if _, err := stmt.ExecContext(ctx,
			rowID, b.Line, b.BodyIdx, b.Length, b.Level, b.Title, vector.Encode(b.Embedding), s.modelIdx,
		); err != nil {
			return fmt.Errorf("%w: insert block: %v", ErrUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit replace: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteNote removes the note row and all its blocks. Deleting an absent
// note is a no-op.
func (s *Store) DeleteNote(ctx context.Context, noteID string) error {
	status, err := s.GetNoteStatus(ctx, noteID, "")
	if err != nil {
		return err
	}
	if status.RowID == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin delete: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE note_idx = ?`, status.RowID); err != nil {
		return fmt.Errorf("%w: delete blocks: %v", ErrUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE idx = ?`, status.RowID); err != nil {
		return fmt.Errorf("%w: delete note: %v", ErrUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete: %v", ErrUnavailable, err)
	}
	return nil
}

// ScanAll materializes every stored block with its owning note id and hash,
// ordered by note then line. It seeds the in-memory pool the retrieval
// engine reads from. A row whose blob fails to decode is logged and
// skipped; one corrupt row must not abort the scan.
func (s *Store) ScanAll(ctx context.Context) ([]Block, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT notes.note_id, notes.hash, e.line, e.body_idx, e.length, e.level, e.title, e.embedding
		 FROM notes JOIN embeddings e ON notes.idx = e.note_idx
		 ORDER BY notes.idx, e.line`)
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var blocks []Block
	for rows.Next() {
		var b Block
		var title sql.NullString
		var blob []byte
		if err := rows.Scan(&b.NoteID, &b.Hash, &b.Line, &b.BodyIdx, &b.Length, &b.Level, &title, &blob); err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", ErrUnavailable, err)
		}
		b.Title = title.String

		emb, err := vector.Decode(blob)
		if err != nil {
			if errors.Is(err, vector.ErrFormat) {
				slog.Warn("skipping corrupt embedding row", "note_id", b.NoteID, "line", b.Line, "error", err)
				continue
			}
			return nil, err
		}
		b.Embedding = emb
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan rows: %v", ErrUnavailable, err)
	}
	return blocks, nil
}

// Counts returns the number of note and block rows, for status reporting.
func (s *Store) Counts(ctx context.Context) (notes int64, blocks int64, err error) {
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&notes); err != nil {
		return 0, 0, fmt.Errorf("%w: count notes: %v", ErrUnavailable, err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&blocks); err != nil {
		return 0, 0, fmt.Errorf("%w: count blocks: %v", ErrUnavailable, err)
	}
	return notes, blocks, nil
}
