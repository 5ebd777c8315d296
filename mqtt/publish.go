// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"math"
	"maps"
	"slices"

	"github.com/eclipse/paho.golang/paho"
)

// Publish sends a message and, for QoS 1, waits for the PUBACK. If the
// connection drops before the acknowledgement arrives the message is sent
// again on the next connection, so QoS 1 delivery is at least once.
func (c *SessionClient) Publish(
	ctx context.Context,
	topic string,
	payload []byte,
	opts ...PublishOption,
) (*Ack, error) {
	if err := c.ensureStarted(); err != nil {
		return nil, err
	}
	if err := ValidateTopicName(topic); err != nil {
		return nil, err
	}

	var opt PublishOptions
	opt.Apply(opts)
	if opt.QoS > QoS1 {
		return nil, &InvalidArgumentError{message: "unsupported QoS"}
	}
	if opt.PayloadFormat > PayloadUTF8 {
		return nil, &InvalidArgumentError{message: "invalid payload format"}
	}

	packet := &paho.Publish{
		Topic:      topic,
		QoS:        byte(opt.QoS),
		Retain:     opt.Retain,
		Payload:    payload,
		Properties: publishProperties(&opt),
	}

	ctx, cancel := c.session.Bind(ctx)
	defer cancel()

	for connCtx, client := range c.conn.Client(ctx) {
		c.log.Packet(connCtx, "publish", packet)
		res, err := client.Publish(connCtx, packet)
		if res != nil {
			c.log.Packet(connCtx, "puback", res)
		}

		switch {
		case res != nil && isFailure(res.ReasonCode):
			return ackFrom(res), &AckError{
				Packet:       "PUBLISH",
				ReasonCode:   res.ReasonCode,
				ReasonString: ackReason(res),
			}
		case err != nil && connCtx.Err() != nil:
			// The connection dropped or ctx ended; the iterator decides.
			continue
		case err != nil:
			return nil, &ConnectionError{message: "publish failed", wrapped: err}
		}
		return ackFrom(res), nil
	}
	return nil, context.Cause(ctx)
}

func publishProperties(opt *PublishOptions) *paho.PublishProperties {
	props := &paho.PublishProperties{
		ContentType: opt.ContentType,
		User:        userProperties(opt.UserProperties),
	}
	if opt.PayloadFormat != PayloadUnspecified {
		format := byte(opt.PayloadFormat)
		props.PayloadFormat = &format
	}
	if opt.MessageExpiry > 0 {
		expiry := uint32(min(opt.MessageExpiry.Seconds(), math.MaxUint32))
		props.MessageExpiry = &expiry
	}
	return props
}

func userProperties(m map[string]string) paho.UserProperties {
	if len(m) == 0 {
		return nil
	}
	ups := make(paho.UserProperties, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		ups = append(ups, paho.UserProperty{Key: k, Value: m[k]})
	}
	return ups
}

func messageFrom(p *paho.Publish) *Message {
	msg := &Message{
		Topic:   p.Topic,
		Payload: p.Payload,
		PublishOptions: PublishOptions{
			QoS:    QoS(p.QoS),
			Retain: p.Retain,
		},
	}
	if props := p.Properties; props != nil {
		msg.ContentType = props.ContentType
		if props.PayloadFormat != nil {
			msg.PayloadFormat = PayloadFormat(*props.PayloadFormat)
		}
		if len(props.User) > 0 {
			msg.UserProperties = make(map[string]string, len(props.User))
			for _, up := range props.User {
				msg.UserProperties[up.Key] = up.Value
			}
		}
	}
	return msg
}

func ackFrom(res *paho.PublishResponse) *Ack {
	if res == nil {
		return &Ack{}
	}
	return &Ack{ReasonCode: res.ReasonCode, ReasonString: ackReason(res)}
}

func ackReason(res *paho.PublishResponse) string {
	if res.Properties == nil {
		return ""
	}
	return res.Properties.ReasonString
}
