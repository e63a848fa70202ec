package domain

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials is returned when a connection is attempted
// without a configured username and password.
var ErrMissingCredentials = errors.New("shell credentials required but not configured")

// ConnectionError wraps a transport or authentication failure. There
// is no internal retry; the caller must reconnect and resubmit.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failure during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RemoteQueryError carries a server-side error banner verbatim. The
// backing cache entry has been deleted by the time it is returned, so
// a retry will not resurrect the stale failure.
type RemoteQueryError struct {
	Message string
}

func (e *RemoteQueryError) Error() string {
	return fmt.Sprintf("remote query failed: %s", e.Message)
}

// ParseError reports a transcript that matched neither known table
// layout. The backing cache entry has been moved to Path (quarantined,
// not deleted) so a subsequent run does not replay it.
type ParseError struct {
	Path string
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse transcript (entry moved to %s), line %d: %q: %v",
		e.Path, e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
