// Package devserver emulates the generation backend: the multipart stream
// endpoint, the model list and the chat REST API, backed by a store.Store.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/genesis/pkg/logger"
	"github.com/killallgit/genesis/pkg/store"
)

// Server is the emulated backend
type Server struct {
	engine    *gin.Engine
	store     store.Store
	models    []string
	responder Responder
	log       *slog.Logger

	mu    sync.Mutex
	calls []Call
}

// Option configures a Server
type Option func(*Server)

// WithStore serves chats from s instead of a fresh in-memory store
func WithStore(s store.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithModels sets the names listed by the models endpoint
func WithModels(models ...string) Option {
	return func(srv *Server) { srv.models = models }
}

// WithResponder scripts the generation endpoint
func WithResponder(r Responder) Option {
	return func(srv *Server) { srv.responder = r }
}

func New(opts ...Option) *Server {
	srv := &Server{
		store:     store.NewMemory(),
		models:    []string{"qwen2.5-coder:14b", "llama3.2-vision:11b", "mistral:7b"},
		responder: EchoResponder{},
		log:       logger.WithComponent("devserver"),
	}
	for _, opt := range opts {
		opt(srv)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	api := engine.Group("/api")
	{
		api.POST("/generate/stream", srv.generate)
		api.GET("/models", srv.listModels)

		chats := api.Group("/chats")
		{
			chats.GET("", srv.listChats)
			chats.POST("", srv.createChat)
			chats.GET("/:id", srv.getChat)
			chats.PUT("/:id", srv.updateChat)
			chats.DELETE("/:id", srv.deleteChat)
			chats.PATCH("/:id/pin", srv.pinChat)
			chats.POST("/:id/messages", srv.createMessage)
			chats.GET("/:id/messages", srv.listMessages)
		}
		api.POST("/messages/:id/codes", srv.createCode)
	}
	srv.engine = engine
	return srv
}

// Handler exposes the routes, for httptest servers
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Store returns the store behind the chat routes
func (s *Server) Store() store.Store {
	return s.store
}

// Calls returns the generation calls received so far
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Dev server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("Dev server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) generate(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	call := Call{
		Model:    c.PostForm("model"),
		Prompt:   c.PostForm("prompt"),
		AutoMode: c.PostForm("autoMode") == "true",
	}
	if raw := c.PostForm("messages"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &call.Messages); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid messages"})
			return
		}
	}
	if form := c.Request.MultipartForm; form != nil {
		for _, fh := range form.File["images"] {
			call.Images = append(call.Images, fh.Filename)
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()

	s.log.Debug("Generation call",
		"model", call.Model,
		"auto_mode", call.AutoMode,
		"history", len(call.Messages),
		"images", len(call.Images))

	reply := s.responder.Respond(call)
	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}
	if reply.Status != http.StatusOK {
		c.JSON(reply.Status, gin.H{"error": reply.Body})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for _, line := range reply.Lines {
		for _, chunk := range split(line, reply.ChunkSize) {
			if reply.Delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(reply.Delay):
				}
			}
			if _, err := c.Writer.WriteString(chunk); err != nil {
				s.log.Debug("Client went away", "error", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

func split(line string, size int) []string {
	if size <= 0 || len(line) <= size {
		return []string{line}
	}
	var chunks []string
	for len(line) > size {
		chunks = append(chunks, line[:size])
		line = line[size:]
	}
	return append(chunks, line)
}

func (s *Server) listModels(c *gin.Context) {
	models := make([]gin.H, 0, len(s.models))
	for _, name := range s.models {
		models = append(models, gin.H{"name": name})
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}
