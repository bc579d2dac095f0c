package search

import (
	"sort"

	"notemind/internal/storage"
	"notemind/internal/vector"
)

// FindNearest ranks candidate blocks against a query vector and aggregates
// them into note-level results:
//
//  1. score every candidate by cosine similarity,
//  2. drop fragments under the minimum length (the query's own note is
//     always excluded from its results),
//  3. group by note and aggregate per the policy,
//  4. drop notes under the aggregate threshold,
//  5. stable-sort descending and truncate to the hit limit,
//  6. keep each surviving note's blocks that clear the length floor and
//     the (lower) per-block similarity floor, best first.
//
// A zero minimum similarity disables both the note threshold and the
// per-block floor, so pre-filtered pools pass through intact.
//
// Candidates whose vectors cannot be scored against the query (dimension
// drift from a kept older model) are skipped, not fatal.
func FindNearest(candidates []storage.Block, query []float32, excludeNoteID string, s Settings) []NoteResult {
	policy := s.Aggregation
	if policy == "" {
		policy = AggregateMax
	}
	factor := s.BlockSimilarityFactor
	if factor == 0 {
		factor = DefaultBlockSimilarityFactor
	}
	blockFloor := factor * s.MinSimilarity

	type group struct {
		blocks []storage.Block
		sum    float64
		best   float64
	}
	var order []string
	groups := make(map[string]*group)

	for i := range candidates {
		b := candidates[i]
		if b.NoteID == excludeNoteID {
			continue
		}
		if b.Length < s.MinBlockLength {
			continue
		}
		sim, err := vector.Cosine(b.Embedding, query)
		if err != nil {
			continue
		}
		b.Similarity = sim

		g, ok := groups[b.NoteID]
		if !ok {
			g = &group{}
			groups[b.NoteID] = g
			order = append(order, b.NoteID)
		}
		g.blocks = append(g.blocks, b)
		g.sum += sim
		if len(g.blocks) == 1 || sim > g.best {
			g.best = sim
		}
	}

	// Aggregate and filter in enumeration order so the later stable sort
	// breaks ties by first appearance.
	var results []NoteResult
	for _, noteID := range order {
		g := groups[noteID]
		score := g.best
		if policy == AggregateAvg {
			score = g.sum / float64(len(g.blocks))
		}
		if s.MinSimilarity > 0 && score < s.MinSimilarity {
			continue
		}

		selected := make([]storage.Block, 0, len(g.blocks))
		for _, b := range g.blocks {
			if s.MinSimilarity > 0 && b.Similarity < blockFloor {
				continue
			}
			selected = append(selected, b)
		}
		if len(selected) == 0 {
			continue
		}
		sort.SliceStable(selected, func(i, j int) bool {
			return selected[i].Similarity > selected[j].Similarity
		})

		results = append(results, NoteResult{
			NoteID:     noteID,
			Title:      selected[0].Title,
			Similarity: score,
			Blocks:     selected,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if s.MaxHits > 0 && len(results) > s.MaxHits {
		results = results[:s.MaxHits]
	}
	return results
}
