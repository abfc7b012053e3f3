package search

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotInitialized is returned when an operation runs before the
// service has been wired with a database connection.
var ErrNotInitialized = errors.New("search service not initialized")

// ValidationError reports a request rejected before any store I/O.
// Errors holds one human-readable message per offending field.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid search request: %s", strings.Join(e.Errors, "; "))
}

// SearchExecutionError wraps a primary or count query failure with the
// operation name. User-supplied query text is deliberately not included.
type SearchExecutionError struct {
	Op  string
	Err error
}

func (e *SearchExecutionError) Error() string {
	return fmt.Sprintf("search execution failed during %s: %v", e.Op, e.Err)
}

func (e *SearchExecutionError) Unwrap() error { return e.Err }

// IndexUpdateError wraps an indexing failure for one node. Previously
// indexed state is left untouched by a failed update.
type IndexUpdateError struct {
	NodeID string
	Err    error
}

func (e *IndexUpdateError) Error() string {
	return fmt.Sprintf("index update failed for node %s: %v", e.NodeID, e.Err)
}

func (e *IndexUpdateError) Unwrap() error { return e.Err }
