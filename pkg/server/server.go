package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xhad/aba/internal/logger"
	"github.com/xhad/aba/internal/models"
	"github.com/xhad/aba/pkg/pipeline"
)

const (
	TypeLoadURL = "load_url"
	TypeLoadPDF = "load_pdf"
	TypeAsk     = "ask"

	TypeStatus   = "status"
	TypeIngested = "ingested"
	TypeAnswer   = "answer"
	TypeError    = "error"
)

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type Source struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// SessionFactory builds a fresh pipeline for each connection.
type SessionFactory func() (*pipeline.Pipeline, error)

// PDFFetcher downloads the PDF a paper points at.
type PDFFetcher interface {
	FetchPDF(ctx context.Context, paper models.Paper) (models.Source, error)
}

type Config struct {
	Addr string
	// MaxMessageBytes bounds a single websocket frame, which must hold a
	// base64 encoded upload.
	MaxMessageBytes int64
	// AllowedOrigins lists the browser origin hosts that may connect. When
	// empty only same-host pages may connect.
	AllowedOrigins []string
	// AllowedHosts lists the hosts load_url may download from. Subdomains
	// of a listed host are accepted too.
	AllowedHosts []string
}

// DefaultAllowedHosts is used when Config.AllowedHosts is empty.
var DefaultAllowedHosts = []string{"arxiv.org"}

type WSServer struct {
	config     Config
	newSession SessionFactory
	fetcher    PDFFetcher
	upgrader   websocket.Upgrader
}

func New(config Config, newSession SessionFactory, fetcher PDFFetcher) *WSServer {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = 96 << 20
	}
	if len(config.AllowedHosts) == 0 {
		config.AllowedHosts = DefaultAllowedHosts
	}

	s := &WSServer{
		config:     config,
		newSession: newSession,
		fetcher:    fetcher,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin accepts clients that send no Origin header, such as command
// line tools, and browsers on an allowed or same-host page.
func (s *WSServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if len(s.config.AllowedOrigins) == 0 {
		return strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range s.config.AllowedOrigins {
		if strings.EqualFold(u.Host, allowed) || strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

func hostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, a := range allowed {
		a = strings.ToLower(a)
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *WSServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("starting websocket server", zap.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.config.MaxMessageBytes)

	session, err := s.newSession()
	if err != nil {
		logger.L().Error("failed to create session", zap.Error(err))
		s.send(conn, Message{Type: TypeError, Content: pipeline.UserMessage(err)})
		return
	}
	defer session.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger.L().Info("session opened", zap.String("remote", r.RemoteAddr))

	// messages are handled in the order they arrive
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.L().Warn("error reading message", zap.Error(err))
			}
			break
		}
		s.handleMessage(ctx, conn, session, msg)
	}

	logger.L().Info("session closed", zap.String("remote", r.RemoteAddr))
}

func (s *WSServer) handleMessage(ctx context.Context, conn *websocket.Conn, session *pipeline.Pipeline, msg Message) {
	switch msg.Type {
	case TypeLoadURL:
		s.loadURL(ctx, conn, session, strings.TrimSpace(msg.Content))
	case TypeLoadPDF:
		s.loadPDF(ctx, conn, session, msg)
	case TypeAsk:
		s.ask(ctx, conn, session, msg.Content)
	default:
		s.send(conn, Message{Type: TypeError, Content: fmt.Sprintf("Unknown message type %q.", msg.Type)})
	}
}

func (s *WSServer) loadURL(ctx context.Context, conn *websocket.Conn, session *pipeline.Pipeline, link string) {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		s.send(conn, Message{Type: TypeError, Content: "Please send an http or https link to a PDF."})
		return
	}
	if !hostAllowed(u.Hostname(), s.config.AllowedHosts) {
		logger.L().Warn("refused download", zap.String("host", u.Hostname()))
		s.send(conn, Message{Type: TypeError, Content: fmt.Sprintf("Only links to %s can be loaded.", strings.Join(s.config.AllowedHosts, ", "))})
		return
	}
	if s.fetcher == nil {
		s.send(conn, Message{Type: TypeError, Content: "Loading by URL is not enabled on this server."})
		return
	}

	s.send(conn, Message{Type: TypeStatus, Content: fmt.Sprintf("Downloading %s", link)})

	src, err := s.fetcher.FetchPDF(ctx, models.Paper{ID: path.Base(u.Path), PDFURL: link})
	if err != nil {
		logger.L().Warn("download failed", zap.String("url", link), zap.Error(err))
		s.send(conn, Message{Type: TypeError, Content: fmt.Sprintf("Could not download %s.", link)})
		return
	}

	s.ingest(ctx, conn, session, src)
}

func (s *WSServer) loadPDF(ctx context.Context, conn *websocket.Conn, session *pipeline.Pipeline, msg Message) {
	encoded, ok := msg.Data.(string)
	if !ok || encoded == "" {
		s.send(conn, Message{Type: TypeError, Content: "Attach the PDF as base64 in the data field."})
		return
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		s.send(conn, Message{Type: TypeError, Content: "The attached PDF is not valid base64."})
		return
	}

	name := strings.TrimSpace(msg.Content)
	if name == "" {
		name = "upload.pdf"
	}

	s.ingest(ctx, conn, session, models.Source{Name: name, Data: data})
}

func (s *WSServer) ingest(ctx context.Context, conn *websocket.Conn, session *pipeline.Pipeline, src models.Source) {
	s.send(conn, Message{Type: TypeStatus, Content: fmt.Sprintf("Processing %s", src.Name)})

	result, err := session.Ingest(ctx, src)
	if err != nil {
		s.send(conn, Message{Type: TypeError, Content: pipeline.UserMessage(err)})
		return
	}

	content := fmt.Sprintf("Loaded %s: %d pages, %d chunks stored.", result.Name, result.Pages, result.Stored)
	if result.Capped {
		content += fmt.Sprintf(" Only the first %d of %d chunks were kept.", result.Stored, result.Chunks)
	}
	s.send(conn, Message{Type: TypeIngested, Content: content, Data: result})
}

func (s *WSServer) ask(ctx context.Context, conn *websocket.Conn, session *pipeline.Pipeline, question string) {
	answer, err := session.Ask(ctx, question)
	if err != nil {
		content := pipeline.UserMessage(err)
		if answer.Text != "" {
			content = answer.Text + " " + content
		}
		s.send(conn, Message{Type: TypeError, Content: content})
		return
	}

	sources := make([]Source, 0, len(answer.Sources))
	for _, r := range answer.Sources {
		sources = append(sources, Source{Index: r.Chunk.Index, Score: r.Score, Text: r.Chunk.Text})
	}
	s.send(conn, Message{Type: TypeAnswer, Content: answer.Text, Data: sources})
}

func (s *WSServer) send(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		logger.L().Warn("error sending message", zap.String("type", msg.Type), zap.Error(err))
	}
}
