package arxiv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/aba/internal/logger"
	"github.com/xhad/aba/internal/models"
)

var ErrPaperNotFound = errors.New("paper not found")

type SortBy int

const (
	SortRelevance SortBy = iota
	SortLastUpdated
	SortSubmitted
)

func (s SortBy) String() string {
	switch s {
	case SortLastUpdated:
		return "lastUpdatedDate"
	case SortSubmitted:
		return "submittedDate"
	default:
		return "relevance"
	}
}

// ParseSort accepts relevance, updated or submitted.
func ParseSort(name string) (SortBy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "relevance":
		return SortRelevance, nil
	case "updated", "lastupdated", "lastupdateddate":
		return SortLastUpdated, nil
	case "submitted", "submitteddate":
		return SortSubmitted, nil
	}
	return SortRelevance, fmt.Errorf("unknown sort order %q", name)
}

type Query struct {
	Text       string
	MaxResults int
	Sort       SortBy
}

type ArxivConfig struct {
	BaseURL     string
	RateLimit   float64 // requests per second
	MaxResults  int
	Timeout     time.Duration
	MaxPDFBytes int64
}

// Client searches the arXiv API and downloads paper PDFs. All requests share
// one rate limiter.
type Client struct {
	config  ArxivConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ArxivConfig) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://export.arxiv.org/api/query"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 0.33
	}
	if config.MaxResults == 0 {
		config.MaxResults = 10
	}
	if config.MaxPDFBytes == 0 {
		config.MaxPDFBytes = 64 << 20
	}

	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, err
	}

	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

func New() *Client {
	c, _ := NewWithConfig(ArxivConfig{})
	return c
}

// Search runs a full-text query and returns up to MaxResults papers.
func (c *Client) Search(ctx context.Context, q Query) ([]models.Paper, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if q.MaxResults == 0 {
		q.MaxResults = c.config.MaxResults
	}
	if q.MaxResults < 1 || q.MaxResults > 50 {
		return nil, fmt.Errorf("max results must be between 1 and 50, got %d", q.MaxResults)
	}

	params := url.Values{}
	params.Set("search_query", "all:"+text)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(q.MaxResults))
	params.Set("sortBy", q.Sort.String())
	params.Set("sortOrder", "descending")

	papers, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}

	logger.L().Debug("arxiv search",
		zap.String("query", text),
		zap.String("sort", q.Sort.String()),
		zap.Int("results", len(papers)))

	return papers, nil
}

// Lookup fetches a single paper by its arXiv identifier, e.g. 1706.03762.
func (c *Client) Lookup(ctx context.Context, id string) (models.Paper, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Paper{}, fmt.Errorf("paper id is empty")
	}

	params := url.Values{}
	params.Set("id_list", id)

	papers, err := c.query(ctx, params)
	if err != nil {
		return models.Paper{}, err
	}
	if len(papers) == 0 {
		return models.Paper{}, fmt.Errorf("%w: %s", ErrPaperNotFound, id)
	}
	return papers[0], nil
}

// FetchPDF downloads the paper's PDF.
func (c *Client) FetchPDF(ctx context.Context, paper models.Paper) (models.Source, error) {
	if paper.PDFURL == "" {
		return models.Source{}, fmt.Errorf("paper %s has no pdf link", paper.ID)
	}

	body, err := c.get(ctx, paper.PDFURL)
	if err != nil {
		return models.Source{}, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, c.config.MaxPDFBytes+1))
	if err != nil {
		return models.Source{}, fmt.Errorf("failed to read pdf: %w", err)
	}
	if int64(len(data)) > c.config.MaxPDFBytes {
		return models.Source{}, fmt.Errorf("pdf exceeds %d bytes", c.config.MaxPDFBytes)
	}

	name := paper.Title
	if name == "" {
		name = paper.ID
	}

	logger.L().Info("downloaded paper",
		zap.String("id", paper.ID),
		zap.Int("bytes", len(data)))

	return models.Source{
		Name: name,
		URL:  paper.PDFURL,
		Data: data,
	}, nil
}

func (c *Client) query(ctx context.Context, params url.Values) ([]models.Paper, error) {
	body, err := c.get(ctx, c.config.BaseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	return parseFeed(doc), nil
}

func (c *Client) get(ctx context.Context, urlStr string) (io.ReadCloser, error) {
	// Apply rate limiting
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	return resp.Body, nil
}

// parseFeed reads the entries of an Atom feed. The HTML parser is lenient
// enough for the feed's flat structure.
func parseFeed(doc *goquery.Document) []models.Paper {
	var papers []models.Paper

	doc.Find("entry").Each(func(_ int, entry *goquery.Selection) {
		absURL := cleanText(entry.Find("id").First().Text())
		if absURL == "" {
			return
		}
		// arXiv reports a missing id_list entry as an entry titled "Error"
		if strings.Contains(absURL, "/api/errors") {
			return
		}

		paper := models.Paper{
			ID:      paperID(absURL),
			URL:     absURL,
			Title:   cleanText(entry.Find("title").First().Text()),
			Summary: cleanText(entry.Find("summary").First().Text()),
		}

		entry.Find("author name").Each(func(_ int, name *goquery.Selection) {
			if n := cleanText(name.Text()); n != "" {
				paper.Authors = append(paper.Authors, n)
			}
		})

		paper.Published = parseTime(entry.Find("published").First().Text())
		paper.Updated = parseTime(entry.Find("updated").First().Text())

		if href, ok := entry.Find(`link[title="pdf"]`).Attr("href"); ok {
			paper.PDFURL = href
		} else {
			paper.PDFURL = strings.Replace(absURL, "/abs/", "/pdf/", 1)
		}

		papers = append(papers, paper)
	})

	return papers
}

func paperID(absURL string) string {
	if i := strings.Index(absURL, "/abs/"); i >= 0 {
		return absURL[i+len("/abs/"):]
	}
	return absURL
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
