package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrIO                 = errors.New("video io error")
	ErrDecode             = errors.New("video decode error")
	ErrBackendUnavailable = errors.New("vision backend unavailable")
	ErrBackendTimeout     = errors.New("vision backend timeout")
	ErrMalformedResponse  = errors.New("malformed backend response")
	ErrNoFramesAvailable  = errors.New("no frames available")
)

// Wrap tags err with marker so callers can classify it with errors.Is while
// keeping the operation context in the message.
func Wrap(marker error, op, msg string, err error) error {
	parts := make([]string, 0, 2)
	if op = strings.TrimSpace(op); op != "" {
		parts = append(parts, op)
	}
	if msg = strings.TrimSpace(msg); msg != "" {
		parts = append(parts, msg)
	}
	detail := strings.Join(parts, ": ")
	if detail == "" {
		detail = "failure"
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// BackendUnavailableError reports a failed backend precondition check.
type BackendUnavailableError struct {
	Backend string
	Host    string
	Model   string
	Reason  string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	msg := fmt.Sprintf("%s backend unavailable (host=%s, model=%s)", e.Backend, e.Host, e.Model)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendUnavailableError) Is(target error) bool { return target == ErrBackendUnavailable }

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// MalformedResponseError reports a backend response that failed the output
// contract. StepIndex is 1-based; zero means the record as a whole.
type MalformedResponseError struct {
	StepIndex int
	Reason    string
	Preview   string
}

func (e *MalformedResponseError) Error() string {
	var b strings.Builder
	b.WriteString("malformed response")
	if e.StepIndex > 0 {
		fmt.Fprintf(&b, ": step %d", e.StepIndex)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Preview != "" {
		fmt.Fprintf(&b, " (preview: %q)", e.Preview)
	}
	return b.String()
}

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }
