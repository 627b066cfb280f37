package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"meshhub/internal/protocol"
)

// Applier receives every fully decoded mesh. scene.MeshSync implements it.
type Applier interface {
	Apply(ctx context.Context, p *protocol.MeshPayload) error
}

// HandlerState is where a connection is in its single message exchange
type HandlerState int

const (
	StateAwaitHeader HandlerState = iota
	StateComputeBodySize
	StateAwaitBody
	StateDecode
	StateApply
	StateClosed
)

func (s HandlerState) String() string {
	switch s {
	case StateAwaitHeader:
		return "await_header"
	case StateComputeBodySize:
		return "compute_body_size"
	case StateAwaitBody:
		return "await_body"
	case StateDecode:
		return "decode"
	case StateApply:
		return "apply"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// HandlerOptions tune how a single message is read and checked
type HandlerOptions struct {
	Limits          protocol.Limits
	ReadTimeout     time.Duration // 0 = wait for the sender indefinitely
	RejectNonFinite bool
}

// DefaultHandlerOptions mirrors the config defaults
var DefaultHandlerOptions = HandlerOptions{
	Limits:          protocol.DefaultLimits,
	RejectNonFinite: true,
}

// past deadline used to abort an in-flight read
var aLongTimeAgo = time.Unix(1, 0)

// ConnectionHandler owns one accepted connection for the whole exchange:
// read header, read body, decode, apply, close. There is no reply.
type ConnectionHandler struct {
	ID      string // unique identifier used in logs
	conn    net.Conn
	applier Applier
	opts    HandlerOptions
	metrics *Metrics
	logger  *slog.Logger
	state   HandlerState
}

// constructor for ConnectionHandler
func NewConnectionHandler(conn net.Conn, applier Applier, opts HandlerOptions, metrics *Metrics, logger *slog.Logger) *ConnectionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionHandler{
		ID:      uuid.NewString(),
		conn:    conn,
		applier: applier,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
		state:   StateAwaitHeader,
	}
}

// State reports the last state the handler reached
func (h *ConnectionHandler) State() HandlerState {
	return h.state
}

// Handle runs the exchange to completion and returns the terminal error.
// The connection is closed exactly once before Handle returns, whatever the
// outcome. Cancelling ctx aborts a read that is still waiting on the sender.
func (h *ConnectionHandler) Handle(ctx context.Context) (err error) {
	defer func() {
		h.conn.Close()
		h.transition(StateClosed)
		h.finish(ctx, err)
	}()

	if h.opts.ReadTimeout > 0 {
		if err := h.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		h.conn.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	payload, err := h.receive()
	if err != nil {
		return err
	}

	h.transition(StateApply)
	start := time.Now()
	err = h.applier.Apply(ctx, payload)
	h.metrics.observeApply(time.Since(start))
	if err != nil {
		return &ApplyError{Err: err}
	}

	h.logger.Info("mesh_applied",
		"conn_id", h.ID,
		"vertices", payload.VertexCount(),
		"triangles", payload.TriangleCount(),
		"apply_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// receive reads and decodes one message; nothing is handed on unless the
// whole body arrived and checked out
func (h *ConnectionHandler) receive() (*protocol.MeshPayload, error) {
	h.transition(StateAwaitHeader)
	raw, err := protocol.ReadExact(h.conn, protocol.HeaderSize, "header")
	if err != nil {
		h.countPartial(err)
		return nil, err
	}
	h.metrics.addBytes(len(raw))

	header, err := protocol.DecodeHeader(raw)
	if err != nil {
		return nil, err
	}

	h.transition(StateComputeBodySize)
	if err := header.Validate(h.opts.Limits); err != nil {
		return nil, err
	}
	size := header.BodySize()
	h.logger.Debug("header_received",
		"conn_id", h.ID,
		"vertex_floats", header.VertexFloatCount,
		"indices", header.IndexCount,
		"body_bytes", size,
	)

	h.transition(StateAwaitBody)
	body, err := protocol.ReadExact(h.conn, int(size), "body")
	if err != nil {
		h.countPartial(err)
		return nil, err
	}
	h.metrics.addBytes(len(body))

	h.transition(StateDecode)
	payload, err := protocol.DecodePayload(body, header.VertexFloatCount, header.IndexCount)
	if err != nil {
		return nil, err
	}
	if err := payload.ValidateIndices(); err != nil {
		return nil, err
	}
	if h.opts.RejectNonFinite {
		if err := payload.ValidateFinite(); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func (h *ConnectionHandler) transition(s HandlerState) {
	h.state = s
	h.logger.Debug("connection_state",
		"conn_id", h.ID,
		"state", s.String(),
	)
}

func (h *ConnectionHandler) countPartial(err error) {
	var ce *protocol.ConnectionError
	if errors.As(err, &ce) {
		h.metrics.addBytes(ce.Got)
	}
}

// finish records the outcome. Expected sender failures are warnings.
// A cancelled ctx interrupts reads through a past deadline, so that timeout
// is labelled "cancelled" to keep it apart from ReadTimeout.
func (h *ConnectionHandler) finish(ctx context.Context, err error) {
	outcome := Outcome(err)
	if outcome == "timeout" && ctx.Err() != nil {
		outcome = "cancelled"
	}
	h.metrics.messageHandled(outcome)
	if err == nil {
		return
	}

	attrs := []any{
		"conn_id", h.ID,
		"outcome", outcome,
		"error", err.Error(),
	}
	switch outcome {
	case "apply_failed":
		h.logger.Error("mesh_apply_failed", attrs...)
	case "closed", "cancelled":
		h.logger.Info("connection_aborted", attrs...)
	default:
		h.logger.Warn("message_rejected", attrs...)
	}
}

// ApplyError wraps a failure from the Applier, as opposed to a bad message
type ApplyError struct {
	Err error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply failed: %v", e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// Outcome is the metric/log label for a Handle result
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var ae *ApplyError
	if errors.As(err, &ae) {
		return "apply_failed"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	// On Linux: "use of closed network connection"
	if errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "closed network connection") {
		return "closed"
	}
	return protocol.Kind(err)
}
