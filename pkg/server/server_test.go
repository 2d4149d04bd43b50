package server_test

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/aba/internal/models"
	"github.com/xhad/aba/internal/types"
	"github.com/xhad/aba/pkg/pipeline"
	"github.com/xhad/aba/pkg/processor"
	"github.com/xhad/aba/pkg/server"
	"github.com/xhad/aba/pkg/store"
)

// textExtractor treats the PDF bytes as the page text.
type textExtractor struct{}

func (textExtractor) Extract(data []byte) ([]models.Page, error) {
	if !strings.HasPrefix(string(data), "%PDF") {
		return nil, errors.New("not a pdf")
	}
	return []models.Page{{Number: 1, Text: strings.TrimPrefix(string(data), "%PDF")}}, nil
}

type lengthEmbedder struct{}

func vector(text string) []float32 {
	return []float32{float32(len(text)) + 1, 1}
}

func (lengthEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vector(t)
	}
	return out, nil
}

func (lengthEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return vector(text), nil
}

type echoSynth struct{}

func (echoSynth) Complete(ctx context.Context, prompt string, maxOutputTokens int) (string, error) {
	return "the paper is about transformers", nil
}

type fakeFetcher struct {
	data []byte
	err  error

	mu   sync.Mutex
	urls []string
}

func (f *fakeFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func (f *fakeFetcher) FetchPDF(ctx context.Context, paper models.Paper) (models.Source, error) {
	f.mu.Lock()
	f.urls = append(f.urls, paper.PDFURL)
	f.mu.Unlock()
	if f.err != nil {
		return models.Source{}, f.err
	}
	return models.Source{Name: paper.ID, URL: paper.PDFURL, Data: f.data}, nil
}

func newTestServer(t *testing.T, fetcher server.PDFFetcher) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	return newConfiguredServer(t, server.Config{}, fetcher)
}

func newConfiguredServer(t *testing.T, config server.Config, fetcher server.PDFFetcher) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	shared := store.NewMemoryStore(store.MemoryStoreConfig{VectorDim: 2})
	sessions := &atomic.Int32{}
	factory := func() (*pipeline.Pipeline, error) {
		sessions.Add(1)
		return pipeline.NewWithConfig(pipeline.PipelineConfig{}, pipeline.Dependencies{
			Extractor:   textExtractor{},
			Processor:   processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 50, ChunkOverlap: 10, Separator: "\n"}),
			Embedder:    lengthEmbedder{},
			Store:       shared,
			Synthesizer: echoSynth{},
		})
	}

	ts := httptest.NewServer(server.New(config, factory, fetcher).Handler())
	t.Cleanup(ts.Close)
	return ts, sessions
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg server.Message, wantType string) server.Message {
	t.Helper()

	require.NoError(t, conn.WriteJSON(msg))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var reply server.Message
		require.NoError(t, conn.ReadJSON(&reply))
		if reply.Type == server.TypeStatus && wantType != server.TypeStatus {
			continue
		}
		require.Equal(t, wantType, reply.Type, reply.Content)
		return reply
	}
}

const paperText = "%PDFTransformers replace recurrence\nwith attention over the whole sequence"

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestLoadPDFAndAsk(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	conn := dial(t, ts)

	reply := roundTrip(t, conn, server.Message{
		Type:    server.TypeLoadPDF,
		Content: "attention.pdf",
		Data:    base64.StdEncoding.EncodeToString([]byte(paperText)),
	}, server.TypeIngested)
	assert.Contains(t, reply.Content, "Loaded attention.pdf")

	result, ok := reply.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), result["stored"])

	reply = roundTrip(t, conn, server.Message{Type: server.TypeAsk, Content: "what is it about?"}, server.TypeAnswer)
	assert.Equal(t, "the paper is about transformers", reply.Content)

	sources, ok := reply.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, sources, 2)
}

func TestAskBeforeLoad(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	conn := dial(t, ts)

	reply := roundTrip(t, conn, server.Message{Type: server.TypeAsk, Content: "hello?"}, server.TypeError)
	assert.Equal(t, "Load a PDF before asking questions.", reply.Content)
}

func TestLoadURL(t *testing.T) {
	fetcher := &fakeFetcher{data: []byte(paperText)}
	ts, _ := newTestServer(t, fetcher)
	conn := dial(t, ts)

	reply := roundTrip(t, conn, server.Message{Type: server.TypeLoadURL, Content: " https://arxiv.org/pdf/1706.03762 "}, server.TypeIngested)
	assert.Contains(t, reply.Content, "Loaded 1706.03762")
	assert.Equal(t, []string{"https://arxiv.org/pdf/1706.03762"}, fetcher.fetched())
}

func TestBadRequests(t *testing.T) {
	tests := []struct {
		name    string
		fetcher server.PDFFetcher
		msg     server.Message
		want    string
	}{
		{
			name: "unknown type",
			msg:  server.Message{Type: "dance"},
			want: `Unknown message type "dance".`,
		},
		{
			name: "pdf without data",
			msg:  server.Message{Type: server.TypeLoadPDF, Content: "x.pdf"},
			want: "Attach the PDF as base64 in the data field.",
		},
		{
			name: "pdf not base64",
			msg:  server.Message{Type: server.TypeLoadPDF, Data: "!!!"},
			want: "The attached PDF is not valid base64.",
		},
		{
			name: "not a pdf",
			msg:  server.Message{Type: server.TypeLoadPDF, Data: base64.StdEncoding.EncodeToString([]byte("hello"))},
			want: pipeline.UserMessage(types.ErrInvalidDocument),
		},
		{
			name: "url without scheme",
			msg:  server.Message{Type: server.TypeLoadURL, Content: "arxiv.org/pdf/1"},
			want: "Please send an http or https link to a PDF.",
		},
		{
			name: "url loading disabled",
			msg:  server.Message{Type: server.TypeLoadURL, Content: "https://arxiv.org/pdf/1"},
			want: "Loading by URL is not enabled on this server.",
		},
		{
			name:    "host not allowed",
			fetcher: &fakeFetcher{data: []byte(paperText)},
			msg:     server.Message{Type: server.TypeLoadURL, Content: "http://169.254.169.254/latest/meta-data"},
			want:    "Only links to arxiv.org can be loaded.",
		},
		{
			name:    "lookalike host",
			fetcher: &fakeFetcher{data: []byte(paperText)},
			msg:     server.Message{Type: server.TypeLoadURL, Content: "https://arxiv.org.example.com/pdf/1"},
			want:    "Only links to arxiv.org can be loaded.",
		},
		{
			name:    "download fails",
			fetcher: &fakeFetcher{err: errors.New("unexpected status 404")},
			msg:     server.Message{Type: server.TypeLoadURL, Content: "https://arxiv.org/pdf/1"},
			want:    "Could not download https://arxiv.org/pdf/1.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, tt.fetcher)
			conn := dial(t, ts)

			reply := roundTrip(t, conn, tt.msg, server.TypeError)
			assert.Equal(t, tt.want, reply.Content)
		})
	}
}

func TestSessionPerConnection(t *testing.T) {
	ts, sessions := newTestServer(t, nil)

	first := dial(t, ts)
	roundTrip(t, first, server.Message{
		Type: server.TypeLoadPDF,
		Data: base64.StdEncoding.EncodeToString([]byte(paperText)),
	}, server.TypeIngested)

	// a second connection starts empty even though the store is shared
	second := dial(t, ts)
	reply := roundTrip(t, second, server.Message{Type: server.TypeAsk, Content: "hello?"}, server.TypeError)
	assert.Equal(t, "Load a PDF before asking questions.", reply.Content)

	assert.Equal(t, int32(2), sessions.Load())
}

func TestLoadURLAllowedHosts(t *testing.T) {
	tests := []struct {
		name    string
		hosts   []string
		link    string
		allowed bool
	}{
		{"default subdomain", nil, "https://export.arxiv.org/pdf/1706.03762", true},
		{"default other host", nil, "https://example.com/paper.pdf", false},
		{"configured host", []string{"papers.example.com"}, "https://papers.example.com/a.pdf", true},
		{"configured replaces default", []string{"papers.example.com"}, "https://arxiv.org/pdf/1706.03762", false},
		{"case insensitive", []string{"Papers.Example.com"}, "https://PAPERS.example.com/a.pdf", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{data: []byte(paperText)}
			ts, _ := newConfiguredServer(t, server.Config{AllowedHosts: tt.hosts}, fetcher)
			conn := dial(t, ts)

			if tt.allowed {
				roundTrip(t, conn, server.Message{Type: server.TypeLoadURL, Content: tt.link}, server.TypeIngested)
				assert.Equal(t, []string{tt.link}, fetcher.fetched())
				return
			}
			reply := roundTrip(t, conn, server.Message{Type: server.TypeLoadURL, Content: tt.link}, server.TypeError)
			assert.Contains(t, reply.Content, "Only links to")
			assert.Empty(t, fetcher.fetched())
		})
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  func(ts *httptest.Server) string
		wantOK  bool
	}{
		{"no origin header", nil, func(*httptest.Server) string { return "" }, true},
		{"same host", nil, func(ts *httptest.Server) string { return ts.URL }, true},
		{"cross origin", nil, func(*httptest.Server) string { return "http://evil.example" }, false},
		{"listed origin", []string{"app.example.com"}, func(*httptest.Server) string { return "https://app.example.com" }, true},
		{"unlisted origin", []string{"app.example.com"}, func(*httptest.Server) string { return "https://evil.example" }, false},
		{"list replaces same host", []string{"app.example.com"}, func(ts *httptest.Server) string { return ts.URL }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, sessions := newConfiguredServer(t, server.Config{AllowedOrigins: tt.allowed}, nil)

			header := http.Header{}
			if origin := tt.origin(ts); origin != "" {
				header.Set("Origin", origin)
			}
			url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}

			if !tt.wantOK {
				assert.ErrorIs(t, err, websocket.ErrBadHandshake)
				assert.Equal(t, http.StatusForbidden, resp.StatusCode)
				assert.Equal(t, int32(0), sessions.Load())
				return
			}
			require.NoError(t, err)
			defer conn.Close()
			roundTrip(t, conn, server.Message{Type: server.TypeAsk, Content: "hello?"}, server.TypeError)
		})
	}
}
