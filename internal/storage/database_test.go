package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testConfig() ModelConfig {
	return ModelConfig{
		Name:             "test-embed",
		Version:          "1.0",
		MaxBlockSize:     512,
		EmbeddingVersion: 2,
	}
}

func openTestStore(t *testing.T, dir string, cfg ModelConfig) (*Store, UpdateCheck) {
	t.Helper()
	s, check, err := Open(dir, cfg)
	if err != nil {
		t.Fatalf("Open() unexpected error: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s, check
}

func TestOpenNewStore(t *testing.T) {
	dir := t.TempDir()
	s, check := openTestStore(t, dir, testConfig())

	if check != CheckOK {
		t.Errorf("Open() check = %v, want %v", check, CheckOK)
	}
	if !s.Ready() {
		t.Error("Open() store not ready after fresh create")
	}
	if _, err := os.Stat(filepath.Join(dir, "test-embed.sqlite")); err != nil {
		t.Errorf("store file missing: %v", err)
	}

	rec, err := s.CurrentModel()
	if err != nil {
		t.Fatalf("CurrentModel() unexpected error: %v", err)
	}
	if rec.Name != "test-embed" || rec.Version != "1.0" || rec.MaxBlockSize != 512 || rec.EmbeddingVersion != 2 {
		t.Errorf("CurrentModel() = %+v, want requested config", rec)
	}
}

func TestOpenSanitizesFilename(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Name = "openai/text-embed:3"
	s, _ := openTestStore(t, dir, cfg)

	want := filepath.Join(dir, "openai_text-embed_3.sqlite")
	if s.Path() != want {
		t.Errorf("Path() = %q, want %q", s.Path(), want)
	}
}

func TestOpenUpdateCheck(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ModelConfig)
		want   UpdateCheck
	}{
		{
			name:   "unchanged config",
			mutate: func(*ModelConfig) {},
			want:   CheckOK,
		},
		{
			name:   "embedding version differs",
			mutate: func(c *ModelConfig) { c.EmbeddingVersion = 3 },
			want:   CheckEmbeddingUpdate,
		},
		{
			name:   "model version differs",
			mutate: func(c *ModelConfig) { c.Version = "2.0" },
			want:   CheckModelUpdate,
		},
		{
			name:   "block size differs",
			mutate: func(c *ModelConfig) { c.MaxBlockSize = 256 },
			want:   CheckSizeChange,
		},
		{
			name: "embedding version outranks the rest",
			mutate: func(c *ModelConfig) {
				c.EmbeddingVersion = 3
				c.Version = "2.0"
				c.MaxBlockSize = 256
			},
			want: CheckEmbeddingUpdate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			first, _ := openTestStore(t, dir, testConfig())
			_ = first.Close()

			cfg := testConfig()
			tt.mutate(&cfg)
			s, check := openTestStore(t, dir, cfg)

			if check != tt.want {
				t.Errorf("Open() check = %v, want %v", check, tt.want)
			}
			if tt.want != CheckOK && s.Ready() {
				t.Error("store must not be ready before the rebuild/keep decision")
			}
		})
	}
}

func TestOpenCheckNewWhenModelNameMissing(t *testing.T) {
	dir := t.TempDir()
	first, _ := openTestStore(t, dir, testConfig())
	path := first.Path()
	_ = first.Close()

	// Forge the file a different model name would open: the name drives the
	// file name, so drift on the name axis only shows up when the file was
	// carried over (e.g. renamed or migrated).
	cfg := testConfig()
	cfg.Name = "other-embed"
	if err := os.Rename(path, filepath.Join(dir, "other-embed.sqlite")); err != nil {
		t.Fatal(err)
	}

	_, check := openTestStore(t, dir, cfg)
	if check != CheckNew {
		t.Errorf("Open() check = %v, want %v", check, CheckNew)
	}
}

func TestOpenRecreatesPartialSchema(t *testing.T) {
	dir := t.TempDir()
	s, _ := openTestStore(t, dir, testConfig())
	path := s.Path()
	_ = s.Close()

	// Simulate a partial prior failure by dropping one of the two tables.
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`DROP TABLE embeddings`); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	s2, check := openTestStore(t, dir, testConfig())
	if check != CheckOK {
		t.Errorf("Open() check = %v, want %v after schema recreation", check, CheckOK)
	}
	if !s2.Ready() {
		t.Error("store not ready after schema recreation")
	}
}

func TestRegisterModelKeepsExistingRows(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := openTestStore(t, dir, testConfig())

	blocks := []Block{testBlock("n1", "h1", 0, []float32{1, 0})}
	if err := s.ReplaceNoteBlocks(ctx, "n1", "h1", blocks); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	cfg := testConfig()
	cfg.Version = "2.0"
	s2, check := openTestStore(t, dir, cfg)
	if check != CheckModelUpdate {
		t.Fatalf("Open() check = %v, want %v", check, CheckModelUpdate)
	}
	if err := s2.RegisterModel(); err != nil {
		t.Fatalf("RegisterModel() unexpected error: %v", err)
	}
	if !s2.Ready() {
		t.Error("store not ready after RegisterModel()")
	}

	// The keep branch leaves rows written under the old model row in place.
	all, err := s2.ScanAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("ScanAll() returned %d blocks, want 1 surviving block", len(all))
	}
}

func TestRebuildEmptiesStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := openTestStore(t, dir, testConfig())

	if err := s.ReplaceNoteBlocks(ctx, "n1", "h1", []Block{testBlock("n1", "h1", 0, []float32{1, 0})}); err != nil {
		t.Fatal(err)
	}

	if err := s.Rebuild(); err != nil {
		t.Fatalf("Rebuild() unexpected error: %v", err)
	}
	if !s.Ready() {
		t.Error("store not ready after Rebuild()")
	}

	all, err := s.ScanAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("ScanAll() returned %d blocks after rebuild, want 0", len(all))
	}
}

func TestReplaceNoteBlocksMixedNoteFails(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t, t.TempDir(), testConfig())

	blocks := []Block{
		testBlock("n1", "h1", 0, []float32{1, 0}),
		testBlock("n2", "h1", 5, []float32{0, 1}),
	}
	err := s.ReplaceNoteBlocks(ctx, "n1", "h1", blocks)
	if !errors.Is(err, ErrConsistency) {
		t.Errorf("ReplaceNoteBlocks() error = %v, want ErrConsistency", err)
	}

	// Nothing may have been written.
	notes, blockCount, err := s.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if notes != 0 || blockCount != 0 {
		t.Errorf("Counts() = (%d, %d) after failed replace, want (0, 0)", notes, blockCount)
	}
}

func TestReplaceNoteBlocksReplacesStale(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t, t.TempDir(), testConfig())

	old := []Block{
		testBlock("n1", "h1", 0, []float32{1, 0}),
		testBlock("n1", "h1", 8, []float32{0, 1}),
	}
	if err := s.ReplaceNoteBlocks(ctx, "n1", "h1", old); err != nil {
		t.Fatal(err)
	}

	status, err := s.GetNoteStatus(ctx, "n1", "h1")
	if err != nil {
		t.Fatal(err)
	}
	if !status.UpToDate || status.RowID == 0 {
		t.Errorf("GetNoteStatus() = %+v, want up to date with row id", status)
	}

	// New hash: all old rows go, exactly the new rows remain.
	updated := []Block{testBlock("n1", "h2", 3, []float32{0.5, 0.5})}
	if err := s.ReplaceNoteBlocks(ctx, "n1", "h2", updated); err != nil {
		t.Fatal(err)
	}

	status, err = s.GetNoteStatus(ctx, "n1", "h1")
	if err != nil {
		t.Fatal(err)
	}
	if status.UpToDate {
		t.Error("old hash still reported up to date after replace")
	}

	all, err := s.ScanAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("ScanAll() returned %d blocks, want 1", len(all))
	}
	got := all[0]
	if got.NoteID != "n1" || got.Hash != "h2" || got.Line != 3 {
		t.Errorf("ScanAll()[0] = %+v, want replaced block", got)
	}
	if len(got.Embedding) != 2 || got.Embedding[0] != 0.5 || got.Embedding[1] != 0.5 {
		t.Errorf("ScanAll()[0].Embedding = %v, want [0.5 0.5]", got.Embedding)
	}
}

func TestGetNoteStatusAbsent(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t, t.TempDir(), testConfig())

	status, err := s.GetNoteStatus(ctx, "missing", "h")
	if err != nil {
		t.Fatal(err)
	}
	if status.UpToDate || status.RowID != 0 {
		t.Errorf("GetNoteStatus() = %+v, want zero status for absent note", status)
	}
}

func TestDeleteNote(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t, t.TempDir(), testConfig())

	if err := s.ReplaceNoteBlocks(ctx, "n1", "h1", []Block{testBlock("n1", "h1", 0, []float32{1, 0})}); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceNoteBlocks(ctx, "n2", "h2", []Block{testBlock("n2", "h2", 0, []float32{0, 1})}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteNote(ctx, "n1"); err != nil {
		t.Fatalf("DeleteNote() unexpected error: %v", err)
	}

	// No orphan block rows may remain.
	notes, blocks, err := s.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if notes != 1 || blocks != 1 {
		t.Errorf("Counts() = (%d, %d) after delete, want (1, 1)", notes, blocks)
	}

	// Deleting an absent note is a no-op.
	if err := s.DeleteNote(ctx, "n1"); err != nil {
		t.Errorf("DeleteNote() on absent note: %v", err)
	}
}

func TestReplaceBeforeDecisionFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	first, _ := openTestStore(t, dir, testConfig())
	_ = first.Close()

	cfg := testConfig()
	cfg.Version = "9.9"
	s, check := openTestStore(t, dir, cfg)
	if check != CheckModelUpdate {
		t.Fatalf("Open() check = %v, want %v", check, CheckModelUpdate)
	}

	err := s.ReplaceNoteBlocks(ctx, "n1", "h1", nil)
	if !errors.Is(err, ErrNoModel) {
		t.Errorf("ReplaceNoteBlocks() error = %v, want ErrNoModel", err)
	}
}

func TestScanAllSkipsCorruptRow(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t, t.TempDir(), testConfig())

	if err := s.ReplaceNoteBlocks(ctx, "n1", "h1", []Block{testBlock("n1", "h1", 0, []float32{1, 0})}); err != nil {
		t.Fatal(err)
	}

	// Corrupt the blob behind the store's back.
	if _, err := s.db.Exec(`UPDATE embeddings SET embedding = X'0102030405'`); err != nil {
		t.Fatal(err)
	}

	all, err := s.ScanAll(ctx)
	if err != nil {
		t.Fatalf("ScanAll() must not fail on one corrupt row: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("ScanAll() returned %d blocks, want corrupt row skipped", len(all))
	}
}

func testBlock(noteID, hash string, line int, emb []float32) Block {
	return Block{
		NoteID:    noteID,
		Hash:      hash,
		Line:      line,
		BodyIdx:   line * 10,
		Length:    42,
		Level:     1,
		Title:     "Heading",
		Embedding: emb,
	}
}
