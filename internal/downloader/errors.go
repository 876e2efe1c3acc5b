package downloader

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingSource is returned when no URL was given and no resumable
// descriptor exists for the output path.
var ErrMissingSource = errors.New("no download descriptor found and no valid URL given")

// UnexpectedStatusError is a segment response other than 200 or 206.
type UnexpectedStatusError struct {
	Segment    int
	StatusCode int
	Status     string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("segment %d: received %s from server", e.Segment, e.Status)
}

// TransportError covers connection, read and write failures of one segment.
type TransportError struct {
	Segment int
	Op      string // what was being done, e.g. "request", "read body", "write part file"
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("segment %d: %s: %v", e.Segment, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// WorkerPanicError records a worker that terminated abnormally.
type WorkerPanicError struct {
	Segment int
	Value   any
	Stack   []byte
}

func (e *WorkerPanicError) Error() string {
	return fmt.Sprintf("segment %d: worker panicked: %v", e.Segment, e.Value)
}

// MergeError aborts the merge. Segment is -1 when the target itself failed.
type MergeError struct {
	Segment int
	Path    string
	Err     error
}

func (e *MergeError) Error() string {
	if e.Segment < 0 {
		return fmt.Sprintf("merging into %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("merging part %d (%s): %v", e.Segment, e.Path, e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// InconsistentResumeStateError is a part file holding more bytes than its
// segment's planned span, typically after the segment count changed between
// runs. Resume is not possible without manual cleanup.
type InconsistentResumeStateError struct {
	Segment  int
	Existing int64
	Planned  int64
}

func (e *InconsistentResumeStateError) Error() string {
	return fmt.Sprintf("segment %d: part file holds %d bytes but only %d are planned", e.Segment, e.Existing, e.Planned)
}

// AggregateError carries every failure of a run, not only the first.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d segments failed:", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n  ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// aggregate returns nil for no errors and an *AggregateError otherwise.
func aggregate(errs []error) error {
	var kept []error
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &AggregateError{Errors: kept}
}
