// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"time"
)

type (
	// QoS is the MQTT quality of service level. The session client supports
	// at-most-once and at-least-once delivery.
	QoS byte

	// PayloadFormat is the MQTT v5 payload format indicator.
	PayloadFormat byte

	// Message is an incoming application message.
	Message struct {
		Topic   string
		Payload []byte
		PublishOptions
	}

	// MessageHandler receives messages that match a subscription. It runs on
	// the client's receive goroutine and must not block for long.
	MessageHandler func(context.Context, *Message)

	// Ack is the broker acknowledgement of a publish. It is empty for QoS 0.
	Ack struct {
		ReasonCode   byte
		ReasonString string
	}

	// Subscription is an active topic filter registration.
	Subscription interface {
		Filter() string
		Unsubscribe(context.Context) error
	}

	// ConnectEvent describes a successful connection.
	ConnectEvent struct {
		Attempt        uint64
		SessionPresent bool
	}

	// DisconnectEvent describes a lost connection. Error is nil only for a
	// requested shutdown.
	DisconnectEvent struct {
		Error error
	}

	// ConnectEventHandler is notified after every successful connection.
	ConnectEventHandler func(*ConnectEvent)

	// DisconnectEventHandler is notified after every lost connection.
	DisconnectEventHandler func(*DisconnectEvent)

	// FatalErrorHandler is notified once if the client shuts down on its own.
	FatalErrorHandler func(error)
)

const (
	QoS0 QoS = 0
	QoS1 QoS = 1
)

const (
	PayloadUnspecified PayloadFormat = 0
	PayloadUTF8        PayloadFormat = 1
)

type (
	// PublishOptions are the per-message publish settings.
	PublishOptions struct {
		QoS            QoS
		Retain         bool
		ContentType    string
		PayloadFormat  PayloadFormat
		MessageExpiry  time.Duration
		UserProperties map[string]string
	}

	// PublishOption configures a single publish.
	PublishOption interface{ publish(*PublishOptions) }

	// SubscribeOptions are the per-subscription settings.
	SubscribeOptions struct {
		QoS     QoS
		NoLocal bool
	}

	// SubscribeOption configures a single subscription.
	SubscribeOption interface{ subscribe(*SubscribeOptions) }

	// WithQoS sets the QoS of a publish or subscription.
	WithQoS QoS

	// WithRetain sets the retain flag of a publish.
	WithRetain bool

	// WithContentType sets the MQTT v5 content type.
	WithContentType string

	// WithPayloadFormat sets the MQTT v5 payload format indicator.
	WithPayloadFormat PayloadFormat

	// WithMessageExpiry sets the message expiry interval, rounded down to
	// whole seconds.
	WithMessageExpiry time.Duration

	// WithUserProperties adds MQTT v5 user properties.
	WithUserProperties map[string]string

	// WithNoLocal suppresses delivery of the client's own publishes.
	WithNoLocal bool
)

// Apply resolves a list of options.
func (o *PublishOptions) Apply(opts []PublishOption, rest ...PublishOption) {
	for _, opt := range opts {
		if opt != nil {
			opt.publish(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.publish(o)
		}
	}
}

// Apply resolves a list of options.
func (o *SubscribeOptions) Apply(
	opts []SubscribeOption,
	rest ...SubscribeOption,
) {
	for _, opt := range opts {
		if opt != nil {
			opt.subscribe(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.subscribe(o)
		}
	}
}

func (o WithQoS) publish(opt *PublishOptions) { opt.QoS = QoS(o) }

func (o WithQoS) subscribe(opt *SubscribeOptions) { opt.QoS = QoS(o) }

func (o WithRetain) publish(opt *PublishOptions) { opt.Retain = bool(o) }

func (o WithContentType) publish(opt *PublishOptions) {
	opt.ContentType = string(o)
}

func (o WithPayloadFormat) publish(opt *PublishOptions) {
	opt.PayloadFormat = PayloadFormat(o)
}

func (o WithMessageExpiry) publish(opt *PublishOptions) {
	opt.MessageExpiry = time.Duration(o)
}

func (o WithUserProperties) publish(opt *PublishOptions) {
	if opt.UserProperties == nil {
		opt.UserProperties = make(map[string]string, len(o))
	}
	for k, v := range o {
		opt.UserProperties[k] = v
	}
}

func (o WithNoLocal) subscribe(opt *SubscribeOptions) {
	opt.NoLocal = bool(o)
}
