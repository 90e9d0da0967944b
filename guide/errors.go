package guide

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure returned by the client.
type Kind int

const (
	// KindTransport: the request could not be sent or the server answered
	// with a non-success status.
	KindTransport Kind = iota + 1
	// KindIO: the response body could not be read.
	KindIO
	// KindDecode: the body did not match the expected schema.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "HTTP client error"
	case KindIO:
		return "I/O error"
	case KindDecode:
		return "decode error"
	default:
		return "unknown error"
	}
}

// Sentinels for errors.Is. Any *Error of the matching kind satisfies them.
var (
	ErrTransport = &Error{Kind: KindTransport}
	ErrIO        = &Error{Kind: KindIO}
	ErrDecode    = &Error{Kind: KindDecode}
)

// Error is returned by every fallible operation of the package.
type Error struct {
	Kind       Kind
	Op         string // e.g. "get channels", "decode program"
	URL        string // request URL, empty for pure decoding
	StatusCode int    // HTTP status when the server answered with a failure
	Err        error  // underlying cause
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " %s", e.URL)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.URL == "" && t.StatusCode == 0 && t.Err == nil && t.Kind == e.Kind
}

// IsKind reports whether err is, or wraps, an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func decodeErr(op string, err error) error {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindDecode {
		return err
	}
	return &Error{Kind: KindDecode, Op: op, Err: err}
}

// missingField reports the first required wire field that was absent or null.
type missingField string

func (m missingField) Error() string { return fmt.Sprintf("missing field %q", string(m)) }

// errNullBody is the cause when a list endpoint answers with a JSON null.
var errNullBody = errors.New("null response body")
