// Package feed lets a separate data-sourcing process deliver route data to
// the build that is waiting for it, over HTTP, a websocket, or a file of
// newline-delimited JSON payloads.
package feed

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/net/netutil"

	"github.com/toastdotdev/toast/internal/barrier"
	"github.com/toastdotdev/toast/internal/errors"
	"github.com/toastdotdev/toast/internal/logging"
	"github.com/toastdotdev/toast/internal/middleware"
	"github.com/toastdotdev/toast/internal/session"
)

const (
	// maxPayloadSize bounds a single route payload.
	maxPayloadSize = 8 << 20

	shutdownTimeout = 5 * time.Second
)

// Config configures the feed server.
type Config struct {
	Listen         string
	MaxConnections int
	// AwaitTimeout bounds how long a request waits for a build to open.
	AwaitTimeout time.Duration
}

// Message is one websocket frame from a producer.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Ack answers every request and websocket message.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Server exposes a session manager to producers.
type Server struct {
	mgr    *session.Manager
	cfg    Config
	logger logging.Logger

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a feed server over mgr.
func NewServer(mgr *session.Manager, cfg Config, logger logging.Logger) *Server {
	if cfg.AwaitTimeout <= 0 {
		cfg.AwaitTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		mgr:    mgr,
		cfg:    cfg,
		logger: logger.WithComponent("feed"),
	}
}

// Handler returns the HTTP routes of the feed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/routes", s.handleSetData)
	mux.HandleFunc("POST /api/v1/routes/end", s.handleEnd)
	mux.HandleFunc("GET /api/v1/routes/ws", s.handleWebSocket)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return middleware.New(middleware.Recover(s.logger), middleware.Logging(s.logger)).Apply(mux)
}

// Start binds the listener and serves until ctx is done. It returns the bound
// address, which differs from Config.Listen when an ephemeral port is used.
func (s *Server) Start(ctx context.Context) (net.Addr, error) {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, errors.ErrCodeInternalError, "failed to bind route feed listener").
			WithContext("listen", s.cfg.Listen)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error(context.Background(), err, "Route feed server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Route feed listening", "addr", ln.Addr().String())
	return ln.Addr(), nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleSetData(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadSize))
	if err != nil {
		writeAck(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AwaitTimeout)
	defer cancel()
	err = s.mgr.SetDataForSlug(ctx, body)
	if err != nil {
		s.logger.Warn(ctx, err, "Rejected route data")
	}
	writeAck(w, statusFor(err), err)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AwaitTimeout)
	defer cancel()
	err := s.mgr.DoneSourcingData(ctx)
	if err != nil {
		s.logger.Warn(ctx, err, "Rejected end of data sourcing")
	}
	writeAck(w, statusFor(err), err)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":          "ok",
		"build_in_flight": s.mgr.Current() != nil,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxPayloadSize)

	ctx := r.Context()
	for {
		var msg Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				s.logger.Debug(ctx, "WebSocket read ended", "error", err.Error())
			}
			return
		}

		err := s.dispatch(ctx, msg)
		ack := Ack{OK: err == nil}
		if err != nil {
			ack.Error = err.Error()
		}
		if err := wsjson.Write(ctx, conn, ack); err != nil {
			s.logger.Warn(ctx, err, "WebSocket write failed")
			return
		}
		if msg.Type == "end" && err == nil {
			conn.Close(websocket.StatusNormalClosure, "data sourcing ended")
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AwaitTimeout)
	defer cancel()

	switch msg.Type {
	case "set":
		return s.mgr.SetDataForSlug(ctx, msg.Payload)
	case "end":
		return s.mgr.DoneSourcingData(ctx)
	default:
		return errors.NewProtocolError(errors.ErrCodeInvalidRouteData, "unknown message type "+msg.Type)
	}
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusAccepted
	case stderrors.Is(err, barrier.ErrClosed):
		return http.StatusConflict
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.IsProtocolError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeAck(w http.ResponseWriter, status int, err error) {
	ack := Ack{OK: err == nil}
	if err != nil {
		ack.Error = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ack)
}
