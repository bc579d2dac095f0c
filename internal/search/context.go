package search

import (
	"strings"

	"notemind/internal/blocks"
	"notemind/internal/storage"
)

// ContextBlock couples a block with its fragment text for assembly. The
// caller resolves text from the note body (the store only holds spans).
type ContextBlock struct {
	storage.Block
	Text string `json:"text"`
}

// AssembleContext greedily accumulates block text, in the order given,
// until adding the next block would exceed the token budget. It returns
// the assembled text and exactly the blocks that made it in, so citation
// links can reflect what was actually included.
func AssembleContext(ctxBlocks []ContextBlock, tok blocks.Tokenizer, budget int) (string, []ContextBlock) {
	var sb strings.Builder
	var used []ContextBlock
	total := 0

	for _, b := range ctxBlocks {
		cost := tok.Count(b.Text)
		if total+cost > budget {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(b.Text)
		total += cost
		used = append(used, b)
	}
	return sb.String(), used
}
