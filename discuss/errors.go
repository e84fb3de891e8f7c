package discuss

import (
	"fmt"
	"strings"
)

// TransportError is any failure reported by a Transport call.
type TransportError struct {
	Op      string
	Status  int
	Code    string
	Message string
	Err     error
}

func (err *TransportError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "transport %s failed", err.Op)

	if err.Status != 0 {
		fmt.Fprintf(&b, ": status %d", err.Status)
	}

	if err.Code != "" {
		fmt.Fprintf(&b, " (%s)", err.Code)
	}

	if err.Message != "" {
		fmt.Fprintf(&b, ": %s", err.Message)
	}

	if err.Err != nil {
		fmt.Fprintf(&b, ": %v", err.Err)
	}

	return b.String()
}

func (err *TransportError) Unwrap() error {
	return err.Err
}

// ValidationError rejects a mutation before any speculative write.
type ValidationError struct {
	Parameters []string
	Reasons    []string
}

func (err *ValidationError) Append(parameter, reason string) {
	err.Parameters = append(err.Parameters, parameter)
	err.Reasons = append(err.Reasons, reason)
}

func (err *ValidationError) Error() string {
	parts := make([]string, 0, len(err.Parameters))

	for i, parameter := range err.Parameters {
		parts = append(parts, parameter+": "+err.Reasons[i])
	}

	return "invalid input: " + strings.Join(parts, "; ")
}

// ConsistencyError reports a broken internal invariant. It is logged, never
// shown to users, and never aborts a read.
type ConsistencyError struct {
	Scope      Scope
	Reason     string
	CommentIDs []string
}

func (err *ConsistencyError) Error() string {
	if len(err.CommentIDs) == 0 {
		return fmt.Sprintf("consistency error in %s: %s", err.Scope, err.Reason)
	}

	return fmt.Sprintf(
		"consistency error in %s: %s: %s",
		err.Scope,
		err.Reason,
		strings.Join(err.CommentIDs, ", "),
	)
}

type CommentNotFoundError struct {
	ID string
}

func (err *CommentNotFoundError) Error() string {
	return fmt.Sprintf("comment %q not found", err.ID)
}
