package entity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the closed set of failure classes the ingestion pipeline reports.
type ErrorKind string

const (
	ErrKindTransientFetch   ErrorKind = "transient_fetch"
	ErrKindMalformedPayload ErrorKind = "malformed_payload"
	ErrKindPersistence      ErrorKind = "persistence"
	ErrKindConfig           ErrorKind = "config"
)

var ErrNotFound = errors.New("not found")

type IngestError struct {
	Kind    ErrorKind
	Op      string
	Subject string
	Reasons []string
	Err     error
}

func (e *IngestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Subject != "" {
		fmt.Fprintf(&b, " %s", e.Subject)
	}
	fmt.Fprintf(&b, " (%s)", e.Kind)
	if len(e.Reasons) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Reasons, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first IngestError in err's chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// CacheError records why one media field could not be cached. It is never
// returned as an error from the orchestrator, only collected.
type CacheError struct {
	Field  MediaField `json:"field"`
	Index  int        `json:"index,omitempty"`
	URL    string     `json:"url"`
	Reason string     `json:"reason"`
}

func (e *CacheError) Kind() ErrorKind {
	return ErrKindTransientFetch
}

func (e *CacheError) Error() string {
	if e.Field == MediaFieldImage {
		return fmt.Sprintf("cache %s[%d] %s: %s", e.Field, e.Index, e.URL, e.Reason)
	}
	return fmt.Sprintf("cache %s %s: %s", e.Field, e.URL, e.Reason)
}
