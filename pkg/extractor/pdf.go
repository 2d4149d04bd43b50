package extractor

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"github.com/xhad/aba/internal/logger"
	"github.com/xhad/aba/internal/models"
	"github.com/xhad/aba/internal/types"
)

// PageSource is an opened document that can be read page by page.
type PageSource interface {
	NumPage() int
	Text(pageNumber int) (string, error)
	Close() error
}

// OpenFunc opens a PDF held in memory.
type OpenFunc func(data []byte) (PageSource, error)

type PDFExtractor struct {
	open OpenFunc
}

func New() *PDFExtractor {
	return NewWithOpener(openFitz)
}

func NewWithOpener(open OpenFunc) *PDFExtractor {
	return &PDFExtractor{open: open}
}

func openFitz(data []byte) (PageSource, error) {
	return fitz.NewFromMemory(data)
}

// Extract returns the text of every page in order. A page that fails or
// yields no text is logged and left empty; only a document that cannot be
// opened at all is an error.
func (e *PDFExtractor) Extract(data []byte) ([]models.Page, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", types.ErrInvalidDocument)
	}

	doc, err := e.open(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidDocument, err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	pages := make([]models.Page, 0, numPages)

	for i := 0; i < numPages; i++ {
		text, err := doc.Text(i)
		if err != nil {
			logger.L().Warn("failed to extract page text",
				zap.Int("page", i+1),
				zap.Error(err))
			text = ""
		} else if strings.TrimSpace(text) == "" {
			logger.L().Warn("page has no text", zap.Int("page", i+1))
		}

		pages = append(pages, models.Page{Number: i + 1, Text: text})
	}

	return pages, nil
}

var _ types.Extractor = (*PDFExtractor)(nil)
