package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// embeddingsServer returns deterministic vectors of the given size.
func embeddingsServer(t *testing.T, size int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "missing auth", http.StatusUnauthorized)
			return
		}

		var req EmbeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var resp EmbeddingsResponse
		for i := range req.Input {
			vec := make([]float64, size)
			vec[i%size] = 1
			resp.Data = append(resp.Data, EmbeddingData{Embedding: vec})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestEmbedTexts(t *testing.T) {
	srv := embeddingsServer(t, 4)
	c := NewEmbeddingsClient(srv.URL, "key", "test-model", 4, time.Second)

	vecs, err := c.EmbedTexts(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("EmbedTexts() unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("EmbedTexts() returned %d vectors, want 2", len(vecs))
	}
	for i, vec := range vecs {
		if len(vec) != 4 {
			t.Errorf("vector %d has size %d, want 4", i, len(vec))
		}
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("unexpected vector contents: %v", vecs)
	}
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	c := NewEmbeddingsClient("http://unused", "key", "m", 4, time.Second)
	if _, err := c.EmbedTexts(context.Background(), nil); err == nil {
		t.Error("EmbedTexts(nil) expected error, got nil")
	}
}

func TestEmbedTextsSizeMismatch(t *testing.T) {
	srv := embeddingsServer(t, 4)
	c := NewEmbeddingsClient(srv.URL, "key", "m", 8, time.Second)

	_, err := c.EmbedTexts(context.Background(), []string{"x"})
	if !errors.Is(err, ErrBackend) {
		t.Errorf("EmbedTexts() error = %v, want ErrBackend on size mismatch", err)
	}
}

func TestEmbedTextsBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := NewEmbeddingsClient(srv.URL, "key", "m", 4, time.Second)
	_, err := c.EmbedTexts(context.Background(), []string{"x"})
	if !errors.Is(err, ErrBackend) {
		t.Errorf("EmbedTexts() error = %v, want ErrBackend", err)
	}
}

func TestEmbedTextsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := NewEmbeddingsClient(srv.URL, "key", "m", 4, 50*time.Millisecond)
	_, err := c.EmbedTexts(context.Background(), []string{"x"})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("EmbedTexts() error = %v, want ErrTimeout", err)
	}
}

func TestEmbedText(t *testing.T) {
	srv := embeddingsServer(t, 3)
	c := NewEmbeddingsClient(srv.URL, "key", "m", 3, time.Second)

	vec, err := c.EmbedText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("EmbedText() unexpected error: %v", err)
	}
	if fmt.Sprint(vec) != "[1 0 0]" {
		t.Errorf("EmbedText() = %v, want [1 0 0]", vec)
	}
}
