package storage

import (
	"context"
	"errors"
	"testing"
)

// confirmerFunc adapts a function to the Confirmer interface.
type confirmerFunc func(check UpdateCheck, cfg ModelConfig) (Decision, error)

func (f confirmerFunc) Confirm(check UpdateCheck, cfg ModelConfig) (Decision, error) {
	return f(check, cfg)
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in      string
		want    Decision
		wantErr bool
	}{
		{"rebuild", DecisionRebuild, false},
		{"keep", DecisionKeep, false},
		{"defer", DecisionDefer, false},
		{"maybe", DecisionDefer, true},
		{"", DecisionDefer, true},
	}
	for _, tt := range tests {
		got, err := ParseDecision(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDecision(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDecision(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolveOKSkipsConfirmer(t *testing.T) {
	dir := t.TempDir()
	s, check := openTestStore(t, dir, testConfig())

	err := s.Resolve(check, confirmerFunc(func(UpdateCheck, ModelConfig) (Decision, error) {
		t.Fatal("confirmer must not be consulted when the model matches")
		return DecisionDefer, nil
	}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
}

func TestResolveDecisions(t *testing.T) {
	tests := []struct {
		name      string
		decision  Decision
		wantReady bool
		wantRows  int
	}{
		{"rebuild wipes and registers", DecisionRebuild, true, 0},
		{"keep registers alongside rows", DecisionKeep, true, 1},
		{"defer leaves store read-only", DecisionDefer, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s, _ := openTestStore(t, dir, testConfig())
			if err := s.ReplaceNoteBlocks(context.Background(), "n1", "h1", []Block{testBlock("n1", "h1", 1, []float32{1})}); err != nil {
				t.Fatalf("seed write failed: %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("close failed: %v", err)
			}

			// Reopen under a drifted model version.
			drifted := testConfig()
			drifted.Version = "2.0"
			s2, check := openTestStore(t, dir, drifted)
			if check != CheckModelUpdate {
				t.Fatalf("check = %v, want %v", check, CheckModelUpdate)
			}

			if err := s2.Resolve(check, StaticConfirmer{Decision: tt.decision}); err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if s2.Ready() != tt.wantReady {
				t.Errorf("Ready() = %v, want %v", s2.Ready(), tt.wantReady)
			}

			scanned, err := s2.ScanAll(context.Background())
			if err != nil {
				t.Fatalf("ScanAll() error = %v", err)
			}
			if len(scanned) != tt.wantRows {
				t.Errorf("%d rows after resolve, want %d", len(scanned), tt.wantRows)
			}
		})
	}
}

func TestResolvePropagatesConfirmerError(t *testing.T) {
	dir := t.TempDir()
	s, _ := openTestStore(t, dir, testConfig())
	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	drifted := testConfig()
	drifted.EmbeddingVersion = 3
	s2, check := openTestStore(t, dir, drifted)

	boom := errors.New("prompt aborted")
	err := s2.Resolve(check, confirmerFunc(func(UpdateCheck, ModelConfig) (Decision, error) {
		return DecisionDefer, boom
	}))
	if !errors.Is(err, boom) {
		t.Errorf("Resolve() error = %v, want %v", err, boom)
	}
	if s2.Ready() {
		t.Error("store must stay unresolved after a confirmer error")
	}
}
