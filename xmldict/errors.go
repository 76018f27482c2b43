package xmldict

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	// ErrParse covers malformed markup, disallowed entity references,
	// unresolved namespace prefixes, and unsupported encodings.
	ErrParse ErrorType = "parse_error"
	// ErrInput covers inputs of an unsupported shape (nil chunks, nil
	// readers, non-container values handed to Encode).
	ErrInput ErrorType = "input_error"
	// ErrValue covers semantic violations such as a full document without
	// exactly one root key or inconsistent option combinations.
	ErrValue ErrorType = "value_error"
)

// Error wraps decode/encode failures with context and type.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// SyntaxError reports a well-formedness error with its position in the input.
// Line and Column are 1-based; Offset is the byte offset of the offending
// character in the decoded stream.
type SyntaxError struct {
	Offset int64
	Line   int
	Column int
	Err    error
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("xml syntax error at line %d, column %d: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("xml syntax error at offset %d: %v", e.Offset, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

var (
	errUnexpectedEOF       = errors.New("unexpected EOF")
	errInvalidName         = errors.New("invalid XML name")
	errInvalidEntity       = errors.New("undefined entity reference")
	errEntityDisabled      = errors.New("entity expansion is disabled")
	errRecursiveEntity     = errors.New("recursive entity definition")
	errInvalidCharRef      = errors.New("invalid character reference")
	errInvalidToken        = errors.New("invalid XML token")
	errInvalidComment      = errors.New("invalid XML comment")
	errInvalidAttr         = errors.New("invalid attribute syntax")
	errDuplicateAttr       = errors.New("duplicate attribute name")
	errMismatchedEndTag    = errors.New("mismatched end element")
	errMultipleRoots       = errors.New("multiple root elements")
	errContentOutsideRoot  = errors.New("content outside root element")
	errMissingRoot         = errors.New("no element found")
	errUnboundPrefix       = errors.New("unbound namespace prefix")
	errUnsupportedEncoding = errors.New("unsupported encoding")
	errInterrupted         = errors.New("parsing interrupted by item callback")
)

func wrapSyntaxError(err error, message string) error {
	var se *SyntaxError
	if errors.As(err, &se) {
		return &Error{Type: ErrParse, Message: fmt.Sprintf("%s (line %d, column %d)", message, se.Line, se.Column), Err: err}
	}
	return &Error{Type: ErrParse, Message: message, Err: err}
}
