package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"meshhub/internal/protocol"
)

var ErrNotOpen = errors.New("mesh server is not listening")

// ServerOptions configures the ingestion listener
type ServerOptions struct {
	Addr         string        // host:port, port 0 picks a free one
	PollInterval time.Duration // how often Run polls for a connection
	AcceptWait   time.Duration // how long a poll waits for a pending connection
	Handler      HandlerOptions
	Metrics      *Metrics
	Logger       *slog.Logger
}

// MeshServer accepts sender connections from a single poll loop.
// Each poll handles at most one connection, synchronously, so a slow sender
// holds up the loop; later connections wait in the OS backlog.
type MeshServer struct {
	opts    ServerOptions
	applier Applier
	logger  *slog.Logger

	mu       sync.Mutex // guards listener; Close may come from another goroutine
	listener *net.TCPListener
}

// constructor for MeshServer
func NewServer(applier Applier, opts ServerOptions) *MeshServer {
	if opts.Addr == "" {
		opts.Addr = fmt.Sprintf("0.0.0.0:%d", protocol.DefaultPort)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.AcceptWait <= 0 {
		opts.AcceptWait = time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MeshServer{
		opts:    opts,
		applier: applier,
		logger:  logger,
	}
}

// Open binds the listening socket
func (s *MeshServer) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("mesh server already listening on %s", s.listener.Addr())
	}

	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to start mesh listener on %s: %w", s.opts.Addr, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return fmt.Errorf("unexpected listener type %T", ln)
	}
	s.listener = tcpLn
	s.logger.Info("mesh_listener_started",
		"addr", tcpLn.Addr().String(),
		"poll_interval", s.opts.PollInterval.String(),
	)
	return nil
}

// Addr is the bound address, nil when not listening
func (s *MeshServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Listening reports whether the socket is open
func (s *MeshServer) Listening() bool {
	return s.Addr() != nil
}

// Poll accepts and fully handles at most one pending connection.
// It returns true if a connection was handled. Without an open socket it
// does nothing.
func (s *MeshServer) Poll(ctx context.Context) bool {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return false
	}

	// a deadline already in the past fails before looking at the backlog,
	// so give accept a short window instead
	if err := ln.SetDeadline(time.Now().Add(s.opts.AcceptWait)); err != nil {
		if !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("accept_deadline_failed", "error", err.Error())
		}
		return false
	}
	conn, err := ln.AcceptTCP()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return false // nothing pending
		}
		if errors.Is(err, net.ErrClosed) {
			return false
		}
		s.logger.Warn("accept_failed", "error", err.Error())
		return false
	}

	s.opts.Metrics.connectionAccepted()
	h := NewConnectionHandler(conn, s.applier, s.opts.Handler, s.opts.Metrics, s.logger)
	s.logger.Info("sender_connected",
		"conn_id", h.ID,
		"remote_addr", conn.RemoteAddr().String(),
	)
	// the handler logs its own outcome
	_ = h.Handle(ctx)
	return true
}

// Run polls on a ticker until ctx is done. The socket must be open.
func (s *MeshServer) Run(ctx context.Context) error {
	if !s.Listening() {
		return ErrNotOpen
	}
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("mesh_poll_loop_stopped")
			return nil
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Close releases the socket; safe to call more than once
func (s *MeshServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	s.logger.Info("mesh_listener_closed")
	return err
}
