package ws

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wiseops/wise/internal/config"
	"github.com/wiseops/wise/internal/event"
	"github.com/wiseops/wise/internal/pool"
)

const (
	// passwordTimeout bounds the optional legacy password frame.
	passwordTimeout = 5 * time.Second

	// tokenTimeout bounds the token frame of the handshake.
	tokenTimeout = 3 * time.Second

	writeTimeout = 10 * time.Second
)

// Server accepts websocket connections, authenticates them against the
// configured token list, fans out bus messages, and dispatches client
// command requests onto the pool.
type Server struct {
	log   *slog.Logger
	store *config.Store
	pool  *pool.Pool
	bus   *event.Bus

	upgrader websocket.Upgrader
}

// NewServer wires a server to its collaborators. Run starts serving.
func NewServer(log *slog.Logger, store *config.Store, p *pool.Pool, bus *event.Bus) *Server {
	return &Server{
		log:   log,
		store: store,
		pool:  p,
		bus:   bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Access control happens in the token handshake, not per
			// origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run listens on the configured address until the context ends. With TLS
// enabled the configured certificate terminates the connection before the
// websocket upgrade.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.store.Get().Exporting.WebSocket

	listener, err := s.listen(cfg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler: s,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("websocket exporter listening", "address", listener.Addr().String(), "tls", cfg.TLS)
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

func (s *Server) listen(cfg config.WebSocketConfig) (net.Listener, error) {
	if !cfg.TLS {
		listener, err := net.Listen("tcp", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", cfg.Address, err)
		}
		return listener, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading tls key pair: %w", err)
	}
	listener, err := tls.Listen("tcp", cfg.Address, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return nil, fmt.Errorf("listening on %s with tls: %w", cfg.Address, err)
	}
	return listener, nil
}

// ServeHTTP upgrades one connection and runs it to completion.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	handle, err := s.authenticate(conn)
	if err != nil {
		// Dropped silently towards the client.
		s.log.Debug("websocket handshake rejected", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.log.Info("websocket client authenticated",
		"remote", r.RemoteAddr, "token", handle.Name)

	s.runClient(r.Context(), conn, handle)
}

// authenticate performs the password frame (when configured) and the
// token frame, and confirms success to the client.
func (s *Server) authenticate(conn *websocket.Conn) (AuthHandle, error) {
	cfg := s.store.Get()

	if password := cfg.Exporting.WebSocket.Password; password != "" {
		frame, err := readTextFrame(conn, passwordTimeout)
		if err != nil {
			return AuthHandle{}, fmt.Errorf("reading password frame: %w", err)
		}
		if frame != password {
			return AuthHandle{}, errors.New("wrong password")
		}
	}

	frame, err := readTextFrame(conn, tokenTimeout)
	if err != nil {
		return AuthHandle{}, fmt.Errorf("reading token frame: %w", err)
	}
	token, ok := cfg.Token(frame)
	if !ok {
		return AuthHandle{}, errors.New("unknown token")
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return AuthHandle{}, err
	}

	if err := s.writeMessage(conn, event.AuthenticatedMessage{}); err != nil {
		return AuthHandle{}, fmt.Errorf("confirming authentication: %w", err)
	}
	return newAuthHandle(token), nil
}

func readTextFrame(conn *websocket.Conn, timeout time.Duration) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	if messageType != websocket.TextMessage {
		return "", errors.New("expected a text frame")
	}
	return string(data), nil
}

func (s *Server) writeMessage(conn *websocket.Conn, msg event.ServerWsMessage) error {
	data, err := event.MarshalServerWsMessage(msg)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
