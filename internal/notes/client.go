package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const defaultPageSize = 50

// Client reads notes from the host application's local REST data API.
type Client struct {
	BaseURL  string
	Token    string
	PageSize int
	client   *http.Client
}

// NewClient creates a client for the host note API.
func NewClient(baseURL, token string, pageSize int) *Client {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Client{
		BaseURL:  baseURL,
		Token:    token,
		PageSize: pageSize,
		client:   http.DefaultClient,
	}
}

// noteItem is the host's wire shape for a note row.
type noteItem struct {
	ID             string `json:"id"`
	ParentID       string `json:"parent_id"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	IsConflict     int    `json:"is_conflict"`
	DeletedTime    int64  `json:"deleted_time"`
	MarkupLanguage int    `json:"markup_language"`
}

// pageResponse is the host's paginated list envelope.
type pageResponse struct {
	Items   []noteItem `json:"items"`
	HasMore bool       `json:"has_more"`
}

// Count pages through the corpus requesting only ids.
func (c *Client) Count(ctx context.Context) (int, error) {
	total := 0
	for page := 1; ; page++ {
		resp, err := c.fetchPage(ctx, page, "id")
		if err != nil {
			return 0, err
		}
		total += len(resp.Items)
		if !resp.HasMore {
			return total, nil
		}
	}
}

// Page returns one page of notes with bodies loaded.
func (c *Client) Page(ctx context.Context, page int) (Page, error) {
	resp, err := c.fetchPage(ctx, page, "id,parent_id,title,body,is_conflict,deleted_time,markup_language")
	if err != nil {
		return Page{}, err
	}

	items := make([]Note, len(resp.Items))
	for i, it := range resp.Items {
		items[i] = Note{
			ID:             it.ID,
			ParentID:       it.ParentID,
			Title:          it.Title,
			Body:           it.Body,
			Deleted:        it.DeletedTime != 0,
			Conflict:       it.IsConflict != 0,
			MarkupLanguage: it.MarkupLanguage,
		}
	}
	return Page{Items: items, HasMore: resp.HasMore}, nil
}

// LiveIDs returns the ids of every non-deleted note.
func (c *Client) LiveIDs(ctx context.Context) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	for page := 1; ; page++ {
		resp, err := c.fetchPage(ctx, page, "id,deleted_time")
		if err != nil {
			return nil, err
		}
		for _, it := range resp.Items {
			if it.DeletedTime == 0 {
				ids[it.ID] = struct{}{}
			}
		}
		if !resp.HasMore {
			return ids, nil
		}
	}
}

// Get returns a single note by id with its body loaded.
func (c *Client) Get(ctx context.Context, id string) (Note, error) {
	q := url.Values{}
	q.Set("fields", "id,parent_id,title,body,is_conflict,deleted_time,markup_language")
	if c.Token != "" {
		q.Set("token", c.Token)
	}

	reqURL := fmt.Sprintf("%s/notes/%s?%s", c.BaseURL, url.PathEscape(id), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Note{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Note{}, fmt.Errorf("failed to get note %s: %w", id, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return Note{}, fmt.Errorf("note api status %d: %s", resp.StatusCode, string(raw))
	}

	var it noteItem
	if err := json.NewDecoder(resp.Body).Decode(&it); err != nil {
		return Note{}, fmt.Errorf("failed to decode note: %w", err)
	}
	return Note{
		ID:             it.ID,
		ParentID:       it.ParentID,
		Title:          it.Title,
		Body:           it.Body,
		Deleted:        it.DeletedTime != 0,
		Conflict:       it.IsConflict != 0,
		MarkupLanguage: it.MarkupLanguage,
	}, nil
}

// fetchPage issues one GET /notes request with the given field projection.
func (c *Client) fetchPage(ctx context.Context, page int, fields string) (pageResponse, error) {
	q := url.Values{}
	q.Set("fields", fields)
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(c.PageSize))
	if c.Token != "" {
		q.Set("token", c.Token)
	}

	reqURL := fmt.Sprintf("%s/notes?%s", c.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return pageResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return pageResponse{}, fmt.Errorf("failed to list notes: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return pageResponse{}, fmt.Errorf("note api status %d: %s", resp.StatusCode, string(raw))
	}

	var out pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return pageResponse{}, fmt.Errorf("failed to decode note page: %w", err)
	}
	return out, nil
}
