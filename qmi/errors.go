package qmi

import (
	"context"
	"fmt"

	"github.com/linux-mobile-broadband/libqmi-sub000/qmi/registry"
)

// Error is the common error type returned by the codec, the device runtime,
// and client sessions. It wraps an underlying cause (if any) the way
// Daedaluz-goserial's Error/wrapErr pair does, so callers can still
// errors.Is/errors.As through to the original cause.
type Error struct {
	Kind ErrorKind
	msg  string
	err  error
}

// ErrorKind identifies which of the error categories below an Error belongs to.
type ErrorKind int

const (
	// ErrFraming: marker wrong, or declared lengths are inconsistent.
	ErrFraming ErrorKind = iota + 1
	// ErrTruncated: buffer shorter than declared length.
	ErrTruncated
	// ErrMalformedResponse: a response is otherwise well-framed but is
	// missing the mandatory result TLV. Kept distinct from ErrFraming.
	ErrMalformedResponse
	// ErrTLVOverflow: a TLV read or write would exceed its TLV or the message.
	ErrTLVOverflow
	// ErrTLVTooLong: a write would push the message above 0xFFFF bytes.
	ErrTLVTooLong
	// ErrTLVNotFound: requested TLV type absent.
	ErrTLVNotFound
	// ErrProtocol: a response's content contradicts the request (e.g.
	// allocate_cid answered for a different service). A result TLV that
	// reports failure is returned as *ProtocolError instead.
	ErrProtocol
	// ErrTimeout: deadline expired.
	ErrTimeout
	// ErrCancelled: caller aborted via context.
	ErrCancelled
	// ErrDisconnected: transport EOF or fatal I/O.
	ErrDisconnected
	// ErrIO: recoverable transport I/O.
	ErrIO
	// ErrInvalidArgument: API misuse.
	ErrInvalidArgument
)

func (k ErrorKind) String() string {
	switch k {
	case ErrFraming:
		return "framing"
	case ErrTruncated:
		return "truncated"
	case ErrMalformedResponse:
		return "malformed response"
	case ErrTLVOverflow:
		return "tlv overflow"
	case ErrTLVTooLong:
		return "tlv too long"
	case ErrTLVNotFound:
		return "tlv not found"
	case ErrProtocol:
		return "protocol error"
	case ErrTimeout:
		return "timeout"
	case ErrCancelled:
		return "cancelled"
	case ErrDisconnected:
		return "disconnected"
	case ErrIO:
		return "io"
	case ErrInvalidArgument:
		return "invalid argument"
	default:
		return "unknown"
	}
}

func (e *Error) Error() string {
	if e.msg != "" {
		if e.err != nil {
			return fmt.Sprintf("qmi: %s: %s: %s", e.Kind, e.msg, e.err.Error())
		}
		return fmt.Sprintf("qmi: %s: %s", e.Kind, e.msg)
	}
	if e.err != nil {
		return fmt.Sprintf("qmi: %s: %s", e.Kind, e.err.Error())
	}
	return fmt.Sprintf("qmi: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.err }

// Is lets errors.Is(err, ErrTimeout-shaped sentinels) work by comparing kinds
// when the target is itself an *Error with no wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.err == nil && t.msg == "" && t.Kind == e.Kind
}

func newErr(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, msg: msg, err: cause}
}

// Transport implementations live outside this package (qmi/chardev,
// qmi/proxy) but still need to report errors in these categories; these
// constructors are the supported way to do that without exposing the
// unexported Error fields directly.

// NewIOError reports a recoverable transport I/O failure.
func NewIOError(msg string, cause error) error { return newErr(ErrIO, msg, cause) }

// NewDisconnectedError reports that the transport is gone for good.
func NewDisconnectedError(msg string) error { return newErr(ErrDisconnected, msg, nil) }

// NewCancelledOrTimeoutError maps a context error to ErrCancelled or
// ErrTimeout, whichever applies.
func NewCancelledOrTimeoutError(ctxErr error) error {
	if ctxErr == context.DeadlineExceeded {
		return newErr(ErrTimeout, "deadline exceeded", ctxErr)
	}
	return newErr(ErrCancelled, "context cancelled", ctxErr)
}

// Sentinel instances usable with errors.Is for the kinds that carry no
// dynamic message (e.g. errors.Is(err, ErrTimeout)).
var (
	ErrFramingSentinel      = &Error{Kind: ErrFraming}
	ErrTruncatedSentinel    = &Error{Kind: ErrTruncated}
	ErrTLVOverflowSentinel  = &Error{Kind: ErrTLVOverflow}
	ErrTLVTooLongSentinel   = &Error{Kind: ErrTLVTooLong}
	ErrTLVNotFoundSentinel  = &Error{Kind: ErrTLVNotFound}
	ErrTimeoutSentinel      = &Error{Kind: ErrTimeout}
	ErrCancelledSentinel    = &Error{Kind: ErrCancelled}
	ErrDisconnectedSentinel = &Error{Kind: ErrDisconnected}
)

// ProtocolError reports a response whose result TLV indicated failure. code
// is the numeric protocol error as carried on the wire; the registry package
// maps it to a human description.
type ProtocolError struct {
	Code uint16
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("qmi: protocol error 0x%04x (%s)", e.Code, registry.Describe(e.Code))
}
