package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a protocol violation
type ErrorKind int

const (
	KindBadMagic ErrorKind = iota + 1
	KindInvalidCounts
	KindTruncated
	KindOversized
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadMagic:
		return "bad_magic"
	case KindInvalidCounts:
		return "invalid_counts"
	case KindTruncated:
		return "truncated"
	case KindOversized:
		return "oversized"
	default:
		return "unknown"
	}
}

// sentinels so callers can use errors.Is without caring about the detail text
var (
	ErrBadMagic      = &ProtocolError{Kind: KindBadMagic}
	ErrInvalidCounts = &ProtocolError{Kind: KindInvalidCounts}
	ErrTruncated     = &ProtocolError{Kind: KindTruncated}
	ErrOversized     = &ProtocolError{Kind: KindOversized}
)

// ProtocolError reports a message that does not follow the wire format.
// The message is discarded and the connection closed; nothing is sent back.
type ProtocolError struct {
	Kind   ErrorKind
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("protocol error: %s", e.Kind)
	}
	return fmt.Sprintf("protocol error: %s: %s", e.Kind, e.Detail)
}

// Is matches any ProtocolError of the same kind
func (e *ProtocolError) Is(target error) bool {
	var pe *ProtocolError
	if !errors.As(target, &pe) {
		return false
	}
	return pe.Kind == e.Kind
}

func newProtocolError(kind ErrorKind, format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// ConnectionError is an I/O failure or a peer that closed mid-read.
type ConnectionError struct {
	Op   string // what was being read, e.g. "header" or "body"
	Want int    // bytes requested
	Got  int    // bytes accumulated before the failure
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error reading %s (%d/%d bytes): %v", e.Op, e.Got, e.Want, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsTruncation reports whether err means the declared message was not fully
// received, either as a short buffer or a peer that hung up early.
func IsTruncation(err error) bool {
	if errors.Is(err, ErrTruncated) {
		return true
	}
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// Kind returns a short label for err, used for logging and metric labels.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind.String()
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return "connection"
	}
	return "other"
}
