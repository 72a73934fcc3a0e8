package event

import (
	"errors"
	"fmt"
)

// ParseError reports malformed or unresolvable protocol data. It is always
// fatal for the block and never succeeds on retry with the same input.
type ParseError struct {
	Subtype string // empty for envelope-level errors
	Reason  string
	Err     error
}

func (e *ParseError) Error() string {
	prefix := "parse block"
	if e.Subtype != "" {
		prefix = fmt.Sprintf("parse %s event", e.Subtype)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError builds a ParseError with a formatted reason.
func NewParseError(subtype, format string, args ...interface{}) *ParseError {
	return &ParseError{Subtype: subtype, Reason: fmt.Sprintf(format, args...)}
}

// WrapParseError attaches the decode error that caused the failure.
func WrapParseError(subtype string, err error, reason string) *ParseError {
	return &ParseError{Subtype: subtype, Reason: reason, Err: err}
}

// IsParseError reports whether err carries a ParseError anywhere in its chain.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
