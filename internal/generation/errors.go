package generation

import (
	"errors"
	"strings"
)

// Kind classifies a generation failure.
type Kind string

const (
	KindMissingCredential Kind = "missing_credential"
	KindInvalidCredential Kind = "invalid_credential"
	KindEmptyResponse     Kind = "empty_response"
	KindSchemaMismatch    Kind = "schema_mismatch"
	KindParseError        Kind = "parse_error"
	KindUnclassified      Kind = "unclassified"
)

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrMissingCredential = &Error{Kind: KindMissingCredential, Message: "no usable api credential"}
	ErrInvalidCredential = &Error{Kind: KindInvalidCredential, Message: "api credential rejected"}
	ErrEmptyResponse     = &Error{Kind: KindEmptyResponse, Message: "backend returned no text"}
	ErrSchemaMismatch    = &Error{Kind: KindSchemaMismatch, Message: "response does not match schema"}
	ErrParseError        = &Error{Kind: KindParseError, Message: "response is not valid json"}
	ErrUnclassified      = &Error{Kind: KindUnclassified, Message: "generation failed"}
)

// Phrases the backends use when the key (or the project behind it) cannot be
// resolved. Only consulted when the status code alone is not conclusive.
var invalidCredentialPhrases = []string{
	"requested entity was not found",
	"api key not valid",
	"incorrect api key",
}

// Error is a classified generation failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can compare against the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the kind of err, or KindUnclassified when err is not an *Error.
func KindOf(err error) Kind {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return KindUnclassified
}

// BackendMessage returns the human-readable message a backend attached to an
// unclassified failure, if there is one.
func BackendMessage(err error) string {
	var genErr *Error
	if !errors.As(err, &genErr) || genErr.Kind != KindUnclassified || genErr.Err == nil {
		return ""
	}
	var msgErr interface{ BackendMessage() string }
	if errors.As(genErr.Err, &msgErr) {
		return strings.TrimSpace(msgErr.BackendMessage())
	}
	return ""
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// BackendError is returned by backends for failures they could classify
// from the transport response.
type BackendError struct {
	StatusCode int
	Status     string
	Message    string
	Err        error
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != "" {
		return e.Status + ": " + msg
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) BackendMessage() string { return e.Message }

// credentialRejected reports whether a backend failure means the API key is
// invalid or unknown. Structured status codes win; the message phrase is the
// fallback for transports that only surface text.
func credentialRejected(err error) bool {
	var be *BackendError
	if errors.As(err, &be) && (be.StatusCode == 401 || be.StatusCode == 403) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range invalidCredentialPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
