package blocks

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"notemind/internal/notes"
	"notemind/internal/storage"
)

// Block couples a storable block with the text that feeds the embedder.
// Only the metadata and vector are persisted; the fragment text is always
// recoverable from the note body via BodyIdx and Length.
type Block struct {
	storage.Block
	Text string
}

// Options control how note content is decorated before embedding. The
// decoration is part of the embedding context policy: toggling it changes
// the content hash and forces re-embedding.
type Options struct {
	// EmbedTitle prefixes each block's embedder text with the note title.
	EmbedTitle bool
	// EmbedHeading prefixes each block's embedder text with its nearest
	// heading.
	EmbedHeading bool
}

// Splitter cuts a note body into ordered, token-bounded blocks. Sections
// are delimited by markdown headings; a section over the token budget is
// bisected on paragraph breaks (then lines, then characters) until every
// fragment fits.
type Splitter struct {
	parser goldmark.Markdown
}

// NewSplitter creates a splitter.
func NewSplitter() *Splitter {
	return &Splitter{parser: goldmark.New()}
}

// section is a contiguous body span under one (or no) heading.
type section struct {
	start int // byte offset into the body
	end   int
	level int
	title string
}

// Split cuts note's body into blocks bounded by maxTokens, all tagged with
// the note id and hash. Blocks are returned in body order; their Line
// fields are 1-based and strictly ordered within the note.
func (s *Splitter) Split(note notes.Note, hash string, tok Tokenizer, maxTokens int, opts Options) []Block {
	body := note.Body
	if strings.TrimSpace(body) == "" {
		return nil
	}

	var result []Block
	for _, sec := range s.sections(note) {
		secText := body[sec.start:sec.end]
		if strings.TrimSpace(secText) == "" {
			continue
		}

		title := sec.title
		if title == "" {
			title = note.Title
		}

		for _, span := range budgetSpans(secText, tok, maxTokens) {
			start := sec.start + span.start
			fragment := body[start : start+span.length]
			if strings.TrimSpace(fragment) == "" {
				continue
			}
			result = append(result, Block{
				Block: storage.Block{
					NoteID:  note.ID,
					Hash:    hash,
					Line:    1 + strings.Count(body[:start], "\n"),
					BodyIdx: start,
					Length:  span.length,
					Level:   sec.level,
					Title:   title,
				},
				Text: embedderText(note.Title, title, fragment, opts),
			})
		}
	}
	return result
}

// sections parses the body and returns heading-delimited spans. Content
// before the first heading forms a level-0 section labeled by the note
// title.
func (s *Splitter) sections(note notes.Note) []section {
	body := []byte(note.Body)
	doc := s.parser.Parser().Parse(text.NewReader(body))

	var secs []section
	// Leading section; trimmed away later if a heading starts at offset 0.
	secs = append(secs, section{start: 0, level: 0, title: ""})

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		start := headingLineStart(body, heading)
		secs[len(secs)-1].end = start
		secs = append(secs, section{
			start: start,
			level: heading.Level,
			title: headingText(heading, body),
		})
		return ast.WalkSkipChildren, nil
	})
	secs[len(secs)-1].end = len(body)

	// Drop the empty leading section when the body starts with a heading.
	out := secs[:0]
	for _, sec := range secs {
		if sec.end > sec.start {
			out = append(out, sec)
		}
	}
	return out
}

// headingLineStart maps a heading node to the byte offset of its line.
func headingLineStart(body []byte, heading *ast.Heading) int {
	lines := heading.Lines()
	if lines.Len() == 0 {
		return 0
	}
	start := lines.At(0).Start
	// The segment begins at the heading text; back up past the markers to
	// the start of the line.
	for start > 0 && body[start-1] != '\n' {
		start--
	}
	return start
}

// headingText extracts the plain text of a heading.
func headingText(heading *ast.Heading, body []byte) string {
	var sb strings.Builder
	_ = ast.Walk(heading, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Text:
			sb.Write(v.Segment.Value(body))
		case *ast.String:
			sb.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// span is a fragment location relative to its section start.
type span struct {
	start  int
	length int
}

// budgetSpans cuts a section into spans whose token counts fit maxTokens.
// Fit sections come back whole; oversized ones go through the bisection in
// SplitByTokens, preferring paragraph breaks, then line breaks.
func budgetSpans(secText string, tok Tokenizer, maxTokens int) []span {
	if tok.Count(secText) <= maxTokens {
		return []span{{start: 0, length: len(secText)}}
	}

	separator := "\n\n"
	if !strings.Contains(secText, separator) {
		separator = "\n"
	}

	groups := SplitByTokens([]string{secText}, tok, maxTokens, separator, PreferFirst)

	// Every piece is a contiguous substring of the section in order, so a
	// forward search recovers exact offsets no matter which separator (or
	// the character fallback) produced it.
	var spans []span
	cursor := 0
	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		first := strings.Index(secText[cursor:], group[0]) + cursor
		end := first + len(group[0])
		for _, piece := range group[1:] {
			next := strings.Index(secText[end:], piece) + end
			end = next + len(piece)
		}
		spans = append(spans, span{start: first, length: end - first})
		cursor = end
	}
	return spans
}

// embedderText decorates a fragment per the embedding context policy.
func embedderText(noteTitle, blockTitle, fragment string, opts Options) string {
	var sb strings.Builder
	if opts.EmbedTitle && noteTitle != "" {
		sb.WriteString(noteTitle)
		sb.WriteString("\n")
	}
	if opts.EmbedHeading && blockTitle != "" && blockTitle != noteTitle {
		sb.WriteString(blockTitle)
		sb.WriteString("\n")
	}
	sb.WriteString(fragment)
	return sb.String()
}
