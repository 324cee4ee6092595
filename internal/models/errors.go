package models

import (
	"errors"
	"fmt"
)

var (
	ErrParse            = errors.New("parse error")
	ErrValidation       = errors.New("validation failure")
	ErrTransport        = errors.New("transport failure")
	ErrTimeout          = errors.New("timeout")
	ErrConversion       = errors.New("conversion failure")
	ErrConfiguration    = errors.New("configuration error")
	ErrRateLimited      = errors.New("rate limited")
	ErrAllSourcesFailed = errors.New("all sources failed")
)

// ParseError reports a malformed timestamp or price in a source payload.
type ParseError struct {
	Key    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %q: %s", ErrParse, e.Key, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParse }
