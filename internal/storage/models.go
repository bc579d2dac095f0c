package storage

// ModelConfig identifies the embedding configuration a store file is built
// against. A persisted model row is immutable: configuration changes create
// a new row (or a full rebuild), never an in-place edit.
type ModelConfig struct {
	Name             string // model identifier, also names the store file
	Version          string // model revision reported by the backend
	MaxBlockSize     int    // token budget per block
	EmbeddingVersion int    // schema-breaking format revision
}

// Block is the unit of embedding: a contiguous fragment of one note's body
// with its position metadata and vector.
type Block struct {
	NoteID    string    // owning note id (host identity)
	Hash      string    // content hash of the note this block was cut from
	Line      int       // start line number, orders blocks within a note
	BodyIdx   int       // character offset within the note body
	Length    int       // fragment size in characters
	Level     int       // enclosing heading depth, 0 = none
	Title     string    // contextual label (nearest heading or note title)
	Embedding []float32 // fixed-length vector from the configured model

	// Similarity is a transient, derived score attached during retrieval.
	// It is never persisted.
	Similarity float64
}

// NoteStatus reports whether a note's stored blocks are current.
type NoteStatus struct {
	UpToDate bool  // stored hash equals the note's current hash
	RowID    int64 // internal note row id, 0 when the note is absent
}

// UpdateCheck is the result of comparing the newest matching model row
// against the requested configuration on open.
type UpdateCheck string

const (
	// CheckOK means the store matches the requested configuration.
	CheckOK UpdateCheck = "ok"
	// CheckNew means no model row with this name exists.
	CheckNew UpdateCheck = "new"
	// CheckEmbeddingUpdate means the embedding format revision differs.
	CheckEmbeddingUpdate UpdateCheck = "embedding_update"
	// CheckModelUpdate means the model version differs.
	CheckModelUpdate UpdateCheck = "model_update"
	// CheckSizeChange means the per-block token budget differs.
	CheckSizeChange UpdateCheck = "size_change"
)

// ModelRecord is a persisted models row.
type ModelRecord struct {
	Idx              int64
	Name             string
	Version          string
	MaxBlockSize     int
	EmbeddingVersion int
}
