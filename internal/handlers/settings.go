package handlers

import "notemind/internal/search"

// settingsOverride carries optional per-request retrieval settings.
// Pointers distinguish "not sent" from meaningful zero values, since a
// zero min_similarity disables the threshold entirely.
type settingsOverride struct {
	MinSimilarity         *float64 `json:"min_similarity"`
	MinBlockLength        *int     `json:"min_block_length"`
	MaxHits               *int     `json:"max_hits"`
	Aggregation           *string  `json:"aggregation"`
	BlockSimilarityFactor *float64 `json:"block_similarity_factor"`
	PrevBlocks            *int     `json:"prev_blocks"`
	NextBlocks            *int     `json:"next_blocks"`
	NearestBlocks         *int     `json:"nearest_blocks"`
}

// apply layers the override onto the configured defaults.
func (o *settingsOverride) apply(def search.Settings) search.Settings {
	s := def
	if o.MinSimilarity != nil {
		s.MinSimilarity = *o.MinSimilarity
	}
	if o.MinBlockLength != nil {
		s.MinBlockLength = *o.MinBlockLength
	}
	if o.MaxHits != nil {
		s.MaxHits = *o.MaxHits
	}
	if o.Aggregation != nil {
		s.Aggregation = search.Aggregation(*o.Aggregation)
	}
	if o.BlockSimilarityFactor != nil {
		s.BlockSimilarityFactor = *o.BlockSimilarityFactor
	}
	if o.PrevBlocks != nil {
		s.PrevBlocks = *o.PrevBlocks
	}
	if o.NextBlocks != nil {
		s.NextBlocks = *o.NextBlocks
	}
	if o.NearestBlocks != nil {
		s.NearestBlocks = *o.NearestBlocks
	}
	return s
}
