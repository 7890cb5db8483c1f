package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failed backend call.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindAuthorizationExpired
	KindAuthorizationInvalid
	KindAuthorizationMissing
	KindValidationRejected
	KindServerFault
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuthorizationExpired:
		return "authorization_expired"
	case KindAuthorizationInvalid:
		return "authorization_invalid"
	case KindAuthorizationMissing:
		return "authorization_missing"
	case KindValidationRejected:
		return "validation_rejected"
	case KindServerFault:
		return "server_fault"
	default:
		return "unknown"
	}
}

// IsAuthorization reports whether k is one of the 401 kinds.
func (k Kind) IsAuthorization() bool {
	return k == KindAuthorizationExpired || k == KindAuthorizationInvalid || k == KindAuthorizationMissing
}

type Error struct {
	Kind    Kind
	Status  int
	Message string
	Method  string
	Path    string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Method, e.Path, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a gateway error, or KindUnknown.
func KindOf(err error) Kind {
	var gErr *Error
	if errors.As(err, &gErr) {
		return gErr.Kind
	}
	return KindUnknown
}

// ServerMessage returns the message the backend sent with a failure, if any.
func ServerMessage(err error) string {
	var gErr *Error
	if errors.As(err, &gErr) {
		return gErr.Message
	}
	return ""
}

// StatusOf returns the HTTP status of a gateway error, or 0.
func StatusOf(err error) int {
	var gErr *Error
	if errors.As(err, &gErr) {
		return gErr.Status
	}
	return 0
}

// MessageOr returns the server-provided message, falling back to generic.
// Transport and server faults always get generic.
func MessageOr(err error, generic string) string {
	switch KindOf(err) {
	case KindTransport, KindServerFault:
		return generic
	}
	if msg := ServerMessage(err); msg != "" {
		return msg
	}
	return generic
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthorizationInvalid
	case status >= 500:
		return KindServerFault
	case status >= 400:
		return KindValidationRejected
	default:
		return KindUnknown
	}
}

// errorBody covers both {message} payloads and ASP.NET problem details.
type errorBody struct {
	Message string `json:"message"`
	Title   string `json:"title"`
	Error   string `json:"error"`
}

func extractMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		switch {
		case eb.Message != "":
			return eb.Message
		case eb.Title != "":
			return eb.Title
		case eb.Error != "":
			return eb.Error
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}
	if !strings.HasPrefix(trimmed, "<") && len(trimmed) <= 512 {
		return trimmed
	}
	return ""
}
