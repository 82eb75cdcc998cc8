package broker

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

var (
	// ErrNoMoreMessages is reported by a Receiver that reached the end of a
	// partition. It is informational and never a failure.
	ErrNoMoreMessages = errors.New("broker: no more messages")

	// ErrBufferFull is returned when the outbound queue cannot take more records.
	ErrBufferFull = errors.New("broker: outbound queue is full")

	// ErrClosed is returned by clients used after Close.
	ErrClosed = errors.New("broker: client closed")
)

// TransientConnectivityError reports that a collaborator needed to send
// (such as the schema registry) could not be reached.
type TransientConnectivityError struct {
	Op  string
	Err error
}

func (e *TransientConnectivityError) Error() string {
	return fmt.Sprintf("%s: connection failed: %v", e.Op, e.Err)
}

func (e *TransientConnectivityError) Unwrap() error {
	return e.Err
}

var _ error = (*TransientConnectivityError)(nil)

// SerializationError reports a key or value that could not be encoded or decoded.
type SerializationError struct {
	Topic string
	Field string
	Err   error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("failed to serialize %s for topic %s: %v", e.Field, e.Topic, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

var _ error = (*SerializationError)(nil)

// IsTransient reports whether err is a TransientConnectivityError.
func IsTransient(err error) bool {
	var transient *TransientConnectivityError
	return errors.As(err, &transient)
}

// IsConnectivity reports whether err looks like a failure to reach a
// remote endpoint, as opposed to an error returned by it.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
