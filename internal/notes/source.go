package notes

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_source.go -package=mocks notemind/internal/notes Source

import "context"

// Note is a note as the host application reports it. The host owns the
// note's identity and content; this side only reads it.
type Note struct {
	ID             string
	ParentID       string
	Title          string
	Body           string
	Deleted        bool
	Conflict       bool
	MarkupLanguage int // 1 = markdown, 2 = html
}

// Page is one page of a paginated note enumeration.
type Page struct {
	Items   []Note
	HasMore bool
}

// Source enumerates the live note corpus. Implementations must support
// cheap fields-only counting so a full progress total never loads bodies.
type Source interface {
	// Count returns the total number of notes without loading bodies.
	Count(ctx context.Context) (int, error)
	// Page returns the given 1-based page with bodies loaded.
	Page(ctx context.Context, page int) (Page, error)
	// LiveIDs returns the ids of all non-deleted notes, used to reconcile
	// deletions after a full sync pass.
	LiveIDs(ctx context.Context) (map[string]struct{}, error)
}
