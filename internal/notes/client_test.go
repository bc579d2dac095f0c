package notes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

// notesServer serves a fixed corpus with host-style pagination.
func notesServer(t *testing.T, items []noteItem) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret" {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if id, ok := strings.CutPrefix(r.URL.Path, "/notes/"); ok {
			for _, it := range items {
				if it.ID == id {
					w.Header().Set("Content-Type", "application/json")
					fmt.Fprintf(w, `{"id":%q,"parent_id":%q,"title":%q,"body":%q,"is_conflict":%d,"deleted_time":%d,"markup_language":%d}`,
						it.ID, it.ParentID, it.Title, it.Body, it.IsConflict, it.DeletedTime, it.MarkupLanguage)
					return
				}
			}
			http.NotFound(w, r)
			return
		}
		if r.URL.Path != "/notes" {
			http.NotFound(w, r)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if page < 1 || limit < 1 {
			http.Error(w, "bad paging", http.StatusBadRequest)
			return
		}

		start := (page - 1) * limit
		end := start + limit
		if start > len(items) {
			start = len(items)
		}
		if end > len(items) {
			end = len(items)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[`)
		for i, it := range items[start:end] {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"id":%q,"parent_id":%q,"title":%q,"body":%q,"is_conflict":%d,"deleted_time":%d,"markup_language":%d}`,
				it.ID, it.ParentID, it.Title, it.Body, it.IsConflict, it.DeletedTime, it.MarkupLanguage)
		}
		fmt.Fprintf(w, `],"has_more":%t}`, end < len(items))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testCorpus(n int) []noteItem {
	items := make([]noteItem, n)
	for i := range items {
		items[i] = noteItem{
			ID:             fmt.Sprintf("note-%03d", i),
			Title:          fmt.Sprintf("Note %d", i),
			Body:           "body",
			MarkupLanguage: 1,
		}
	}
	return items
}

func TestClientCount(t *testing.T) {
	items := testCorpus(7)
	srv := notesServer(t, items)

	c := NewClient(srv.URL, "secret", 3)
	got, err := c.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() unexpected error: %v", err)
	}
	if got != 7 {
		t.Errorf("Count() = %d, want 7", got)
	}
}

func TestClientPage(t *testing.T) {
	items := testCorpus(5)
	items[1].DeletedTime = 1700000000
	items[2].IsConflict = 1
	srv := notesServer(t, items)

	c := NewClient(srv.URL, "secret", 2)

	page, err := c.Page(context.Background(), 1)
	if err != nil {
		t.Fatalf("Page() unexpected error: %v", err)
	}
	if len(page.Items) != 2 || !page.HasMore {
		t.Fatalf("Page(1) = %d items, hasMore=%t, want 2 items with more", len(page.Items), page.HasMore)
	}
	if !page.Items[1].Deleted {
		t.Error("deleted_time != 0 must map to Deleted")
	}

	page, err = c.Page(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if !page.Items[0].Conflict {
		t.Error("is_conflict != 0 must map to Conflict")
	}

	page, err = c.Page(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.HasMore {
		t.Errorf("Page(3) = %d items, hasMore=%t, want final page of 1", len(page.Items), page.HasMore)
	}
}

func TestClientLiveIDs(t *testing.T) {
	items := testCorpus(4)
	items[0].DeletedTime = 1700000000
	items[3].DeletedTime = 1700000001
	srv := notesServer(t, items)

	c := NewClient(srv.URL, "secret", 2)
	ids, err := c.LiveIDs(context.Background())
	if err != nil {
		t.Fatalf("LiveIDs() unexpected error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("LiveIDs() returned %d ids, want 2", len(ids))
	}
	for _, want := range []string{"note-001", "note-002"} {
		if _, ok := ids[want]; !ok {
			t.Errorf("LiveIDs() missing %s", want)
		}
	}
}

func TestClientBadToken(t *testing.T) {
	srv := notesServer(t, testCorpus(1))

	c := NewClient(srv.URL, "wrong", 10)
	if _, err := c.Count(context.Background()); err == nil {
		t.Error("Count() with bad token expected error, got nil")
	}
}

func TestClientGet(t *testing.T) {
	items := testCorpus(3)
	items[1].Body = "the full body"
	items[1].IsConflict = 1
	srv := notesServer(t, items)

	c := NewClient(srv.URL, "secret", 10)

	note, err := c.Get(context.Background(), "note-001")
	if err != nil {
		t.Fatalf("Get() unexpected error: %v", err)
	}
	if note.ID != "note-001" || note.Body != "the full body" || !note.Conflict {
		t.Errorf("Get() = %+v, want note-001 with body and conflict flag", note)
	}

	if _, err := c.Get(context.Background(), "missing"); err == nil {
		t.Error("Get() for unknown id expected error, got nil")
	}
}
