// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"

	"github.com/eclipse/paho.golang/paho"
)

type subscription struct {
	client  *SessionClient
	filter  string
	handler MessageHandler
	opts    SubscribeOptions
}

// Subscribe registers handler for messages matching filter and sends the
// SUBSCRIBE, waiting for the SUBACK. The subscription is restored
// automatically after reconnects. A filter may only be subscribed once.
func (c *SessionClient) Subscribe(
	ctx context.Context,
	filter string,
	handler MessageHandler,
	opts ...SubscribeOption,
) (Subscription, error) {
	if err := c.ensureStarted(); err != nil {
		return nil, err
	}
	if err := ValidateTopicFilter(filter); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, &InvalidArgumentError{message: "message handler is nil"}
	}

	var opt SubscribeOptions
	opt.Apply(opts)
	if opt.QoS > QoS1 {
		return nil, &InvalidArgumentError{message: "unsupported QoS"}
	}

	s := &subscription{client: c, filter: filter, handler: handler, opts: opt}

	c.subscriptionsMu.Lock()
	if _, ok := c.subscriptions[filter]; ok {
		c.subscriptionsMu.Unlock()
		return nil, &InvalidArgumentError{
			message: "already subscribed to " + filter,
		}
	}
	c.subscriptions[filter] = s
	c.subscriptionsMu.Unlock()

	if err := c.sendSubscribe(ctx, s); err != nil {
		c.subscriptionsMu.Lock()
		delete(c.subscriptions, filter)
		c.subscriptionsMu.Unlock()
		return nil, err
	}
	return s, nil
}

func (s *subscription) Filter() string {
	return s.filter
}

// Unsubscribe stops delivery to the handler immediately and sends the
// UNSUBSCRIBE if the client is still running.
func (s *subscription) Unsubscribe(ctx context.Context) error {
	c := s.client

	c.subscriptionsMu.Lock()
	if c.subscriptions[s.filter] != s {
		c.subscriptionsMu.Unlock()
		return nil
	}
	delete(c.subscriptions, s.filter)
	c.subscriptionsMu.Unlock()

	if c.ensureStarted() != nil {
		return nil
	}

	packet := &paho.Unsubscribe{Topics: []string{s.filter}}

	ctx, cancel := c.session.Bind(ctx)
	defer cancel()

	for connCtx, client := range c.conn.Client(ctx) {
		c.log.Packet(connCtx, "unsubscribe", packet)
		res, err := client.Unsubscribe(connCtx, packet)
		if res != nil {
			c.log.Packet(connCtx, "unsuback", res)
		}
		switch {
		case err != nil && connCtx.Err() != nil:
			continue
		case res != nil && len(res.Reasons) > 0 && isFailure(res.Reasons[0]):
			return &AckError{Packet: "UNSUBSCRIBE", ReasonCode: res.Reasons[0]}
		case err != nil:
			return &ConnectionError{message: "unsubscribe failed", wrapped: err}
		}
		return nil
	}
	if c.session.Ended() {
		return nil
	}
	return context.Cause(ctx)
}

func (c *SessionClient) sendSubscribe(
	ctx context.Context,
	s *subscription,
) error {
	ctx, cancel := c.session.Bind(ctx)
	defer cancel()

	for connCtx, client := range c.conn.Client(ctx) {
		err := c.subscribeOn(connCtx, client, s)
		if err != nil && connCtx.Err() != nil && ctx.Err() == nil {
			continue
		}
		return err
	}
	return context.Cause(ctx)
}

func (c *SessionClient) subscribeOn(
	ctx context.Context,
	client *paho.Client,
	s *subscription,
) error {
	packet := &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic:   s.filter,
			QoS:     byte(s.opts.QoS),
			NoLocal: s.opts.NoLocal,
		}},
	}
	c.log.Packet(ctx, "subscribe", packet)

	res, err := client.Subscribe(ctx, packet)
	if res != nil {
		c.log.Packet(ctx, "suback", res)
		if len(res.Reasons) > 0 && isFailure(res.Reasons[0]) {
			reason := ""
			if res.Properties != nil {
				reason = res.Properties.ReasonString
			}
			return &AckError{
				Packet:       "SUBSCRIBE",
				ReasonCode:   res.Reasons[0],
				ReasonString: reason,
			}
		}
	}
	if err != nil {
		return &ConnectionError{message: "subscribe failed", wrapped: err}
	}
	return nil
}

// restoreSubscriptions re-sends every active subscription on a fresh
// connection before it is handed out to callers.
func (c *SessionClient) restoreSubscriptions(
	ctx context.Context,
	client *paho.Client,
	sessionPresent bool,
) error {
	if sessionPresent {
		return nil
	}

	c.subscriptionsMu.RLock()
	subs := make([]*subscription, 0, len(c.subscriptions))
	for _, s := range c.subscriptions {
		subs = append(subs, s)
	}
	c.subscriptionsMu.RUnlock()

	for _, s := range subs {
		if err := c.subscribeOn(ctx, client, s); err != nil {
			return err
		}
	}
	return nil
}

func (c *SessionClient) onPublishReceived(
	ctx context.Context,
	p paho.PublishReceived,
) (bool, error) {
	c.log.Packet(ctx, "publish received", p.Packet)

	c.subscriptionsMu.RLock()
	var handlers []MessageHandler
	for filter, s := range c.subscriptions {
		if IsTopicFilterMatch(filter, p.Packet.Topic) {
			handlers = append(handlers, s.handler)
		}
	}
	c.subscriptionsMu.RUnlock()

	if len(handlers) == 0 {
		c.logEvent(ctx, slog.LevelDebug, "no handler for message",
			slog.String("topic", p.Packet.Topic),
		)
		return false, nil
	}

	msg := messageFrom(p.Packet)
	for _, h := range handlers {
		h(ctx, msg)
	}
	return true, nil
}
