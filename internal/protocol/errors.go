package protocol

import (
	"fmt"
	"strings"
)

const (
	// Hard failures: the operation aborts, nothing is written.
	ErrSchema    = "E_SCHEMA"
	ErrReference = "E_REFERENCE"
	ErrCollision = "E_COLLISION"
	ErrNotFound  = "E_NOT_FOUND"

	// Advisories: attached to an otherwise successful result.
	WarnCardinality = "W_CARDINALITY"
	WarnOrphan      = "W_ORPHAN"
)

var knownCodes = map[string]struct{}{
	ErrSchema:       {},
	ErrReference:    {},
	ErrCollision:    {},
	ErrNotFound:     {},
	WarnCardinality: {},
	WarnOrphan:      {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Issue is one validation finding, with the offending ids named.
type Issue struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	IDs     []string `json:"ids,omitempty"`
}

func (i Issue) String() string {
	if len(i.IDs) == 0 {
		return fmt.Sprintf("%s: %s", i.Code, i.Message)
	}
	return fmt.Sprintf("%s: %s (ids: %s)", i.Code, i.Message, strings.Join(i.IDs, ", "))
}

func NewIssue(code, format string, args ...any) Issue {
	return Issue{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (i Issue) WithIDs(ids ...string) Issue {
	i.IDs = append(i.IDs, ids...)
	return i
}

// IssueError aggregates the hard failures of one operation.
type IssueError struct {
	Op     string
	Issues []Issue
}

func (e *IssueError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("%s: %s", e.Op, e.Issues[0])
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.String())
	}
	return fmt.Sprintf("%s: %d errors: %s", e.Op, len(e.Issues), strings.Join(parts, "; "))
}

func NewIssueError(op string, issues ...Issue) *IssueError {
	return &IssueError{Op: op, Issues: issues}
}

// AsIssues unwraps an IssueError, or wraps a plain error as a single
// E_SCHEMA issue so callers always get a structured list.
func AsIssues(err error) []Issue {
	if err == nil {
		return nil
	}
	if ie, ok := err.(*IssueError); ok {
		return ie.Issues
	}
	return []Issue{{Code: ErrSchema, Message: err.Error()}}
}
