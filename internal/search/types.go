package search

import "notemind/internal/storage"

// Aggregation selects how block similarities combine into a note score.
type Aggregation string

const (
	// AggregateMax scores a note by its best block.
	AggregateMax Aggregation = "max"
	// AggregateAvg scores a note by the arithmetic mean of its blocks.
	AggregateAvg Aggregation = "avg"
)

// Settings tune one retrieval call. The zero value disables every filter.
type Settings struct {
	// MinSimilarity drops notes whose aggregate score falls below it.
	// Zero disables the filter, for pools already narrowed by an exact
	// match search on the host side.
	MinSimilarity float64 `json:"min_similarity"`
	// MinBlockLength drops blocks whose fragment is too short to mean
	// anything, measured in characters.
	MinBlockLength int `json:"min_block_length"`
	// MaxHits truncates the ranked note list. Zero means no truncation.
	MaxHits int `json:"max_hits"`
	// Aggregation is the note scoring policy; empty defaults to max.
	Aggregation Aggregation `json:"aggregation"`
	// BlockSimilarityFactor scales MinSimilarity down to the per-block
	// floor, so a strong note can surface weaker but still relevant
	// blocks. Zero defaults to 0.5.
	BlockSimilarityFactor float64 `json:"block_similarity_factor"`
	// PrevBlocks, NextBlocks and NearestBlocks are the context expansion
	// counts; zero disables the respective expansion.
	PrevBlocks    int `json:"prev_blocks"`
	NextBlocks    int `json:"next_blocks"`
	NearestBlocks int `json:"nearest_blocks"`
}

// DefaultBlockSimilarityFactor is the per-block floor relative to the
// note-level threshold.
const DefaultBlockSimilarityFactor = 0.5

// NoteResult is a ranked note with the blocks that earned its score (plus
// any context expansions). Transient retrieval output, never persisted.
type NoteResult struct {
	NoteID     string          `json:"note_id"`
	Title      string          `json:"title"`
	Similarity float64         `json:"similarity"`
	Blocks     []storage.Block `json:"blocks"`
}
