package sync

import (
	"crypto/sha256"
	"encoding/hex"

	"notemind/internal/blocks"
	"notemind/internal/notes"
)

// ContentHash fingerprints the embedded content of a note. The title is
// folded in only when it is part of the embedded text, so toggling that
// option invalidates stored blocks on the next pass.
func ContentHash(n *notes.Note, opts blocks.Options) string {
	h := sha256.New()
	if opts.EmbedTitle {
		h.Write([]byte(n.Title))
		h.Write([]byte{'\n'})
	}
	h.Write([]byte(n.Body))
	return hex.EncodeToString(h.Sum(nil))
}
