// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/TranDung6129/sensor-telemetry/mqtt/retry"
)

type (
	// SessionClientOptions are the connection-level settings of a session
	// client. A zero field falls back to its default.
	SessionClientOptions struct {
		// ClientID defaults to a random ID.
		ClientID string

		// KeepAlive defaults to 60s; it is sent in whole seconds.
		KeepAlive time.Duration

		// SessionExpiry is how long the broker keeps the session after a
		// disconnect. With the default of 0 every connection starts clean
		// and subscriptions are re-established by the client.
		SessionExpiry time.Duration

		// ReceiveMaximum limits unacknowledged inbound QoS 1 messages.
		ReceiveMaximum uint16

		// ConnectionTimeout bounds one connection attempt; defaults to 30s.
		ConnectionTimeout time.Duration

		// ConnectionRetry decides how long to keep reconnecting. The default
		// retries forever with exponential backoff.
		ConnectionRetry retry.Policy

		Username UsernameProvider
		Password PasswordProvider

		Logger *slog.Logger
	}

	// SessionClientOption configures a session client.
	SessionClientOption interface{ sessionClient(*SessionClientOptions) }

	// UsernameProvider is queried on every connection attempt.
	UsernameProvider func(context.Context) (string, error)

	// PasswordProvider is queried on every connection attempt, so rotated
	// credentials are picked up on reconnect.
	PasswordProvider func(context.Context) ([]byte, error)

	// WithClientID sets the MQTT client ID.
	WithClientID string

	// WithKeepAlive sets the keep-alive interval.
	WithKeepAlive time.Duration

	// WithSessionExpiry sets the session expiry interval.
	WithSessionExpiry time.Duration

	// WithReceiveMaximum sets the receive maximum.
	WithReceiveMaximum uint16

	// WithConnectionTimeout bounds each connection attempt.
	WithConnectionTimeout time.Duration

	// WithUsername sets the username provider.
	WithUsername UsernameProvider

	// WithPassword sets the password provider.
	WithPassword PasswordProvider

	withConnectionRetry struct{ retry.Policy }

	withLogger struct{ *slog.Logger }
)

const (
	defaultKeepAlive         = 60 * time.Second
	defaultConnectionTimeout = 30 * time.Second
)

// WithConnectionRetry sets the reconnect policy.
func WithConnectionRetry(policy retry.Policy) SessionClientOption {
	return withConnectionRetry{policy}
}

// WithLogger sets the logger used for connection events and packet tracing.
func WithLogger(l *slog.Logger) SessionClientOption {
	return withLogger{l}
}

// ConstantUsername always returns the same username.
func ConstantUsername(username string) UsernameProvider {
	return func(context.Context) (string, error) { return username, nil }
}

// ConstantPassword always returns the same password.
func ConstantPassword(password []byte) PasswordProvider {
	return func(context.Context) ([]byte, error) { return password, nil }
}

// FilePassword reads the password from a file on every connection attempt.
func FilePassword(path string) PasswordProvider {
	return func(context.Context) ([]byte, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "cannot read password file",
				wrapped: err,
			}
		}
		return data, nil
	}
}

// Apply resolves a list of options.
func (o *SessionClientOptions) Apply(
	opts []SessionClientOption,
	rest ...SessionClientOption,
) {
	for _, opt := range opts {
		if opt != nil {
			opt.sessionClient(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.sessionClient(o)
		}
	}
}

func (o *SessionClientOptions) sessionClient(opt *SessionClientOptions) {
	if o == nil {
		return
	}
	if o.ClientID != "" {
		opt.ClientID = o.ClientID
	}
	if o.KeepAlive != 0 {
		opt.KeepAlive = o.KeepAlive
	}
	if o.SessionExpiry != 0 {
		opt.SessionExpiry = o.SessionExpiry
	}
	if o.ReceiveMaximum != 0 {
		opt.ReceiveMaximum = o.ReceiveMaximum
	}
	if o.ConnectionTimeout != 0 {
		opt.ConnectionTimeout = o.ConnectionTimeout
	}
	if o.ConnectionRetry != nil {
		opt.ConnectionRetry = o.ConnectionRetry
	}
	if o.Username != nil {
		opt.Username = o.Username
	}
	if o.Password != nil {
		opt.Password = o.Password
	}
	if o.Logger != nil {
		opt.Logger = o.Logger
	}
}

func (o WithClientID) sessionClient(opt *SessionClientOptions) {
	opt.ClientID = string(o)
}

func (o WithKeepAlive) sessionClient(opt *SessionClientOptions) {
	opt.KeepAlive = time.Duration(o)
}

func (o WithSessionExpiry) sessionClient(opt *SessionClientOptions) {
	opt.SessionExpiry = time.Duration(o)
}

func (o WithReceiveMaximum) sessionClient(opt *SessionClientOptions) {
	opt.ReceiveMaximum = uint16(o)
}

func (o WithConnectionTimeout) sessionClient(opt *SessionClientOptions) {
	opt.ConnectionTimeout = time.Duration(o)
}

func (o WithUsername) sessionClient(opt *SessionClientOptions) {
	opt.Username = UsernameProvider(o)
}

func (o WithPassword) sessionClient(opt *SessionClientOptions) {
	opt.Password = PasswordProvider(o)
}

func (o withConnectionRetry) sessionClient(opt *SessionClientOptions) {
	opt.ConnectionRetry = o.Policy
}

func (o withLogger) sessionClient(opt *SessionClientOptions) {
	opt.Logger = o.Logger
}
