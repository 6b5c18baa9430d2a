package types

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownClient     = errors.New("no client configured for state machine")
	ErrRpcFailure        = errors.New("rpc failure")
	ErrStreamTerminated  = errors.New("notification stream terminated")
	ErrEncodingFailure   = errors.New("message encoding failed")
	ErrUnsupportedFamily = errors.New("unsupported chain family")
)

type rpcError struct {
	method string
	err    error
}

// NewRpcError wraps a chain query failure so that it matches both ErrRpcFailure and err.
func NewRpcError(method string, err error) error {
	if err == nil {
		return nil
	}
	return &rpcError{method: method, err: err}
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrRpcFailure, e.method, e.err)
}

func (e *rpcError) Unwrap() []error {
	return []error{ErrRpcFailure, e.err}
}

// StreamError is the final item of a stream that failed while in State.
type StreamError struct {
	State string
	Err   error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream failed in state %s: %v", e.State, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
