package search

import (
	"sort"

	"notemind/internal/storage"
	"notemind/internal/vector"
)

// blockKey identifies a block for expansion dedup.
type blockKey struct {
	noteID string
	line   int
}

// PrevBlocks returns the k nearest blocks strictly before block's line in
// the same note, in reading order. Used to restore context lost by
// chunking.
func PrevBlocks(block storage.Block, pool []storage.Block, k int) []storage.Block {
	return adjacentBlocks(block, pool, k, true)
}

// NextBlocks returns the k nearest blocks strictly after block's line in
// the same note, in reading order.
func NextBlocks(block storage.Block, pool []storage.Block, k int) []storage.Block {
	return adjacentBlocks(block, pool, k, false)
}

func adjacentBlocks(block storage.Block, pool []storage.Block, k int, before bool) []storage.Block {
	if k <= 0 {
		return nil
	}
	var same []storage.Block
	for _, b := range pool {
		if b.NoteID != block.NoteID {
			continue
		}
		if before && b.Line < block.Line {
			same = append(same, b)
		}
		if !before && b.Line > block.Line {
			same = append(same, b)
		}
	}
	sort.SliceStable(same, func(i, j int) bool {
		return same[i].Line < same[j].Line
	})
	if before {
		if len(same) > k {
			same = same[len(same)-k:]
		}
		return same
	}
	if len(same) > k {
		same = same[:k]
	}
	return same
}

// NearestBlocks returns the k globally most similar blocks to block, any
// note, excluding block itself. Used to pull in topically related
// fragments regardless of position.
func NearestBlocks(block storage.Block, pool []storage.Block, k int) []storage.Block {
	if k <= 0 {
		return nil
	}
	var scored []storage.Block
	for i := range pool {
		b := pool[i]
		if b.NoteID == block.NoteID && b.Line == block.Line {
			continue
		}
		sim, err := vector.Cosine(b.Embedding, block.Embedding)
		if err != nil {
			continue
		}
		b.Similarity = sim
		scored = append(scored, b)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// Expand enriches each ranked note's block list with surrounding and
// related blocks from the pool, per the settings' expansion counts. It
// never re-ranks a note. Each selected block is rewritten in place as
// prev-blocks, the block itself, next-blocks, then nearest-blocks, so
// adjacent context reads in line order around its anchor. Duplicates are
// suppressed across the whole result set via a seen-set keyed by
// (note id, line), seeded with the already selected blocks.
func Expand(results []NoteResult, pool []storage.Block, s Settings) []NoteResult {
	if s.PrevBlocks <= 0 && s.NextBlocks <= 0 && s.NearestBlocks <= 0 {
		return results
	}

	seen := make(map[blockKey]struct{})
	for _, r := range results {
		for _, b := range r.Blocks {
			seen[blockKey{b.NoteID, b.Line}] = struct{}{}
		}
	}

	expanded := make([]NoteResult, len(results))
	for i, r := range results {
		out := r
		out.Blocks = make([]storage.Block, 0, len(r.Blocks))
		for _, b := range r.Blocks {
			for _, extra := range PrevBlocks(b, pool, s.PrevBlocks) {
				out.Blocks = appendUnseen(out.Blocks, extra, seen)
			}
			out.Blocks = append(out.Blocks, b)
			for _, extra := range NextBlocks(b, pool, s.NextBlocks) {
				out.Blocks = appendUnseen(out.Blocks, extra, seen)
			}
			for _, extra := range NearestBlocks(b, pool, s.NearestBlocks) {
				out.Blocks = appendUnseen(out.Blocks, extra, seen)
			}
		}
		expanded[i] = out
	}
	return expanded
}

func appendUnseen(blocks []storage.Block, b storage.Block, seen map[blockKey]struct{}) []storage.Block {
	key := blockKey{b.NoteID, b.Line}
	if _, ok := seen[key]; ok {
		return blocks
	}
	seen[key] = struct{}{}
	return append(blocks, b)
}
