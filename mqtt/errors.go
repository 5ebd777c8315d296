// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import "fmt"

// ClientState is the lifecycle state of a session client.
type ClientState byte

const (
	// NotStarted means Start has not been called yet.
	NotStarted ClientState = iota

	// Started means the client is managing its connection.
	Started

	// ShutDown means the client was stopped or hit a fatal error.
	ShutDown
)

// ClientStateError is returned when an operation is invalid in the client's
// current lifecycle state.
type ClientStateError struct {
	State ClientState
}

func (e *ClientStateError) Error() string {
	switch e.State {
	case NotStarted:
		return "the session client has not been started"
	case Started:
		return "the session client has already been started"
	default:
		return "the session client has been shut down"
	}
}

// ConnectionError wraps a failure to open or keep the network connection.
type ConnectionError struct {
	message string
	wrapped error
}

func (e *ConnectionError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *ConnectionError) Unwrap() error {
	return e.wrapped
}

// ConnackError is a retryable CONNACK failure.
type ConnackError struct {
	ReasonCode byte
}

func (e *ConnackError) Error() string {
	return fmt.Sprintf(
		"received CONNACK packet with error reason code %#02x",
		e.ReasonCode,
	)
}

// FatalConnackError is a CONNACK failure that reconnecting cannot fix, such
// as rejected credentials. It terminates the session client.
type FatalConnackError struct {
	ReasonCode byte
}

func (e *FatalConnackError) Error() string {
	return fmt.Sprintf(
		"received CONNACK packet with fatal reason code %#02x",
		e.ReasonCode,
	)
}

// DisconnectError records a server DISCONNECT after which the client
// reconnects.
type DisconnectError struct {
	ReasonCode byte
	Reason     string
}

func (e *DisconnectError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf(
			"received DISCONNECT packet with reason code %#02x: %s",
			e.ReasonCode,
			e.Reason,
		)
	}
	return fmt.Sprintf(
		"received DISCONNECT packet with reason code %#02x",
		e.ReasonCode,
	)
}

// FatalDisconnectError is a server DISCONNECT that terminates the session
// client.
type FatalDisconnectError struct {
	ReasonCode byte
}

func (e *FatalDisconnectError) Error() string {
	return fmt.Sprintf(
		"received DISCONNECT packet with fatal reason code %#02x",
		e.ReasonCode,
	)
}

// InvalidArgumentError reports a bad option or argument.
type InvalidArgumentError struct {
	message string
	wrapped error
}

func (e *InvalidArgumentError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *InvalidArgumentError) Unwrap() error {
	return e.wrapped
}

// AckError is a PUBACK, SUBACK or UNSUBACK carrying a failure reason code.
type AckError struct {
	Packet       string
	ReasonCode   byte
	ReasonString string
}

func (e *AckError) Error() string {
	msg := fmt.Sprintf(
		"%s rejected with reason code %#02x",
		e.Packet,
		e.ReasonCode,
	)
	if e.ReasonString != "" {
		msg += ": " + e.ReasonString
	}
	return msg
}
