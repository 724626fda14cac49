package proxyscan

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultStatusInterval = 5 * time.Second
	shutdownTimeout       = 5 * time.Second
)

// Payload is a message pushed to websocket clients
type Payload struct {
	Kind string `json:"kind"`
	Body any    `json:"body"`
}

// Status describes a running node
type Status struct {
	// Instance is a random id assigned when the server is created
	Instance string `json:"instance"`
	// Role is the configured node role
	Role Role `json:"role"`
	// WorkerID is the configured worker identifier
	WorkerID string `json:"worker_id"`
	// MasterURL is the configured master host
	MasterURL string `json:"master_url"`
	// UptimeSeconds is the time since the server was created
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Config is the redacted configuration
	Config Config `json:"config"`
}

// StatusServer exposes the node status over HTTP and websocket.
type StatusServer struct {
	cfg       Config
	log       logrus.FieldLogger
	instance  string
	startedAt time.Time
	interval  time.Duration

	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]bool
	m        sync.Mutex
}

// StatusOption configures a StatusServer.
type StatusOption func(*StatusServer)

// WithInterval sets how often the status is pushed to websocket clients.
func WithInterval(d time.Duration) StatusOption {
	return func(s *StatusServer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewStatusServer creates a status server for cfg.
func NewStatusServer(cfg Config, log logrus.FieldLogger, opts ...StatusOption) *StatusServer {
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &StatusServer{
		cfg:       cfg,
		log:       log.WithFields(cfg.LogFields()),
		instance:  uuid.NewString(),
		startedAt: time.Now(),
		interval:  defaultStatusInterval,
		clients:   make(map[*websocket.Conn]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current status of the node.
func (s *StatusServer) Status() Status {
	return Status{
		Instance:      s.instance,
		Role:          s.cfg.NodeRole,
		WorkerID:      s.cfg.WorkerID,
		MasterURL:     s.cfg.MasterURL,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Config:        s.cfg,
	}
}

// Handler returns the HTTP handler serving / and /ws.
func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveStatus)
	mux.HandleFunc("/ws", s.wsHandler)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *StatusServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.run(runCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("status server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	s.log.Info("status server stopped")
	return nil
}

func (s *StatusServer) serveStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
		s.log.WithError(err).Warn("encode status")
	}
}

func (s *StatusServer) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade")
		return
	}

	msg, err := s.message()
	if err != nil {
		conn.Close()
		return
	}

	s.m.Lock()
	defer s.m.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		conn.Close()
		return
	}
	s.clients[conn] = true
	s.log.WithField("clients", len(s.clients)).Debug("websocket client connected")
}

// run pushes the status to every client each interval until ctx is done
func (s *StatusServer) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeClients()
			return
		case <-ticker.C:
			if msg, err := s.message(); err == nil {
				s.broadcast(msg)
			}
		}
	}
}

func (s *StatusServer) message() ([]byte, error) {
	p, err := json.Marshal(Payload{"status", s.Status()})
	if err != nil {
		s.log.WithError(err).Warn("encode status")
	}
	return p, err
}

func (s *StatusServer) broadcast(msg []byte) {
	s.m.Lock()
	defer s.m.Unlock()

	for c := range s.clients {
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.Close()
			delete(s.clients, c)
		}
	}
}

func (s *StatusServer) closeClients() {
	s.m.Lock()
	defer s.m.Unlock()

	for c := range s.clients {
		c.Close()
		delete(s.clients, c)
	}
}
