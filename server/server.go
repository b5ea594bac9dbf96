package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/xhad/newsqa/internal/app"
)

// Port is the subset of the orchestrator the server drives.
type Port interface {
	ProcessURLs(ctx context.Context, urls []string) app.Outcome
	Ask(ctx context.Context, question string) app.Outcome
}

// Message is a client request.
type Message struct {
	Type    string   `json:"type" validate:"required,oneof=process ask"`
	Content string   `json:"content,omitempty" validate:"required_if=Type ask,max=4096"`
	URLs    []string `json:"urls,omitempty" validate:"max=20,dive,max=2048"`
}

// Reply is sent back for every request. Type is one of status, success,
// warning, error or answer.
type Reply struct {
	Type    string   `json:"type"`
	Content string   `json:"content"`
	Detail  string   `json:"detail,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

type Config struct {
	Addr   string
	Logger *slog.Logger
}

type WSServer struct {
	config   Config
	port     Port
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewWSServer(port Port, config Config) *WSServer {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &WSServer{
		config:   config,
		port:     port,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Be careful with this in production
			},
		},
	}
}

// Handler serves /ws and /health.
func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *WSServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Info("starting websocket server", "addr", s.config.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// handleWebSocket serves one request at a time per connection.
func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.config.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.config.Logger.Debug("error reading message", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.send(conn, Reply{Type: "error", Content: "Invalid message", Detail: err.Error()})
			continue
		}
		if errs := s.check(msg); errs != "" {
			s.send(conn, Reply{Type: "error", Content: "Invalid message", Detail: errs})
			continue
		}

		s.handleMessage(r.Context(), conn, msg)
	}
}

func (s *WSServer) check(msg Message) string {
	err := s.validate.Struct(msg)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed on '%s' tag", e.Field(), e.Tag()))
	}
	sort.Strings(fields)
	return strings.Join(fields, "; ")
}

func (s *WSServer) handleMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	var out app.Outcome
	switch msg.Type {
	case "process":
		s.send(conn, Reply{Type: "status", Content: "Loading and Processing URLs...."})
		out = s.port.ProcessURLs(ctx, msg.URLs)
	case "ask":
		s.send(conn, Reply{Type: "status", Content: "Thinking..."})
		out = s.port.Ask(ctx, msg.Content)
	}
	s.send(conn, toReply(out))
}

func toReply(out app.Outcome) Reply {
	switch {
	case out.Answer != nil:
		var sources []string
		if out.Answer.Sources != "" {
			sources = strings.Split(out.Answer.Sources, "\n")
		}
		return Reply{Type: "answer", Content: out.Answer.Answer, Sources: sources}
	case out.State == app.StateIdle:
		return Reply{Type: "status", Content: "Nothing to do"}
	}
	return Reply{Type: out.Level.String(), Content: out.Message, Detail: out.Detail}
}

func (s *WSServer) send(conn *websocket.Conn, reply Reply) {
	if err := conn.WriteJSON(reply); err != nil {
		s.config.Logger.Warn("error sending message", "error", err)
	}
}
