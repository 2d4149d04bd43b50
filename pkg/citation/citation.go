// Package citation formats arXiv papers as APA, MLA or Chicago references.
package citation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xhad/aba/internal/models"
)

var ErrUnsupportedStyle = errors.New("citation style not supported")

type Style int

const (
	Unsupported Style = iota
	APA
	MLA
	Chicago
)

var styleNames = map[Style]string{
	APA:     "APA",
	MLA:     "MLA",
	Chicago: "Chicago",
}

// Styles lists every supported style in display order.
func Styles() []Style {
	return []Style{APA, MLA, Chicago}
}

func (s Style) String() string {
	if name, ok := styleNames[s]; ok {
		return name
	}
	return "Unsupported"
}

// ParseStyle is case-insensitive. Unknown names map to Unsupported.
func ParseStyle(name string) Style {
	for style, n := range styleNames {
		if strings.EqualFold(strings.TrimSpace(name), n) {
			return style
		}
	}
	return Unsupported
}

var formatters = map[Style]func(authors, year, title, url string) string{
	APA: func(authors, year, title, url string) string {
		return fmt.Sprintf("%s (%s). %s. arXiv. %s", authors, year, title, url)
	},
	MLA: func(authors, year, title, url string) string {
		return fmt.Sprintf("%s. \"%s.\" arXiv, %s, %s.", authors, title, year, url)
	},
	Chicago: func(authors, year, title, url string) string {
		return fmt.Sprintf("%s. \"%s.\" arXiv (%s). %s.", authors, title, year, url)
	},
}

func Format(paper models.Paper, style Style) (string, error) {
	format, ok := formatters[style]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedStyle, style)
	}

	year := "n.d."
	if !paper.Published.IsZero() {
		year = fmt.Sprint(paper.Published.Year())
	}

	url := paper.URL
	if url == "" {
		url = "https://arxiv.org/abs/" + paper.ID
	}

	return format(strings.Join(paper.Authors, ", "), year, paper.Title, url), nil
}
