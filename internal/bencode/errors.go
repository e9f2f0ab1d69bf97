package bencode

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed              = errors.New("malformed bencode")
	ErrTruncated              = errors.New("truncated bencode")
	ErrKeyOrder               = errors.New("dictionary keys not in ascending order")
	ErrDuplicateKey           = errors.New("duplicate dictionary key")
	ErrRecursionDepthExceeded = errors.New("recursion depth exceeded")
	ErrUnrepresentableValue   = errors.New("unrepresentable value")
)

// SyntaxError reports where decoding failed. Err is one of the package
// sentinels and can be matched with errors.Is.
type SyntaxError struct {
	Offset int
	Reason string
	Err    error
}

func (e *SyntaxError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("bencode: %v at offset %d", e.Err, e.Offset)
	}
	return fmt.Sprintf("bencode: %v at offset %d: %s", e.Err, e.Offset, e.Reason)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}
