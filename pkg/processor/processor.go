package processor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xhad/aba/internal/logger"
	"github.com/xhad/aba/internal/models"
)

// Sizes are counted in characters (runes), not bytes.
type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Separator    string
}

type Processor struct {
	config ProcessorConfig
}

type span struct {
	start, end int
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 800
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize - 1
	}

	return Processor{
		config: config,
	}
}

// Split concatenates the document's pages and cuts the result into chunks.
// Chunk IDs are derived from the document ID and position, so splitting the
// same document twice yields the same IDs.
func (p *Processor) Split(doc models.Document) []models.Chunk {
	var text strings.Builder
	for _, page := range doc.Pages {
		text.WriteString(page.Text)
	}

	texts := p.SplitText(text.String())
	chunks := make([]models.Chunk, 0, len(texts))
	for i, t := range texts {
		chunks = append(chunks, models.Chunk{
			ID:         ChunkID(doc.ID, i),
			DocumentID: doc.ID,
			Index:      i,
			Text:       t,
		})
	}

	logger.L().Debug("document split",
		zap.String("document", doc.ID),
		zap.Int("pages", len(doc.Pages)),
		zap.Int("chunks", len(chunks)))

	return chunks
}

// SplitText cuts text on the separator and packs the pieces greedily into
// chunks of at most ChunkSize characters. Each chunk after the first starts
// with the trailing ChunkOverlap characters of its predecessor, shortened
// only when the next piece would not otherwise fit. A piece longer than
// ChunkSize becomes a chunk of its own.
func (p *Processor) SplitText(text string) []string {
	runes := []rune(text)
	spans := p.spans(text)

	chunks := make([]string, 0, len(spans))
	for _, s := range spans {
		chunks = append(chunks, string(runes[s.start:s.end]))
	}
	return chunks
}

func (p *Processor) spans(text string) []span {
	if text == "" {
		return nil
	}

	var out []span
	start, end := 0, 0
	fresh := true // chunk holds nothing but carried-over overlap

	for _, piece := range p.pieces(text) {
		n := piece.end - piece.start

		if !fresh && end-start+n > p.config.ChunkSize {
			out = append(out, span{start, end})

			carry := min(p.config.ChunkOverlap, end-start)
			if carry+n > p.config.ChunkSize {
				carry = max(p.config.ChunkSize-n, 0)
			}
			start = end - carry
			fresh = true
		}

		end = piece.end
		fresh = false
	}

	if !fresh {
		out = append(out, span{start, end})
	}
	return out
}

// pieces returns rune offsets of the separator-delimited pieces. Every piece
// but the first keeps its leading separator, so the pieces tile the text.
func (p *Processor) pieces(text string) []span {
	sep := p.config.Separator
	parts := strings.Split(text, sep)
	sepLen := utf8.RuneCountInString(sep)

	out := make([]span, 0, len(parts))
	pos := 0
	for i, part := range parts {
		n := utf8.RuneCountInString(part)
		if i > 0 {
			n += sepLen
		}
		if n == 0 {
			continue
		}
		out = append(out, span{pos, pos + n})
		pos += n
	}
	return out
}

// ChunkID is a name-based UUID, stable for a given document and position.
func ChunkID(documentID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s#%d", documentID, index))).String()
}

// DocumentID names a document by the SHA-1 of its bytes, so re-ingesting the
// same PDF overwrites rather than duplicates its chunks.
func DocumentID(data []byte) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, data).String()
}
