// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/eclipse/paho.golang/paho"
	"github.com/eclipse/paho.golang/paho/session/state"
)

// manageConnection connects, waits for the connection to drop and
// reconnects until ctx ends or a fatal error occurs.
func (c *SessionClient) manageConnection(ctx context.Context) error {
	for reconnect := false; ; reconnect = true {
		var connack *paho.Connack
		err := c.options.ConnectionRetry.Start(ctx, "connect",
			func(attemptCtx context.Context) (bool, error) {
				var retry bool
				var err error
				connack, retry, err = c.connect(ctx, attemptCtx, reconnect)
				return retry, err
			},
		)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		cur := c.conn.Current()
		c.logEvent(ctx, slog.LevelInfo, "connected",
			slog.Uint64("attempt", cur.Attempt),
			slog.Bool("session_present", connack.SessionPresent),
		)
		for handler := range c.connectHandlers.All() {
			handler(&ConnectEvent{
				Attempt:        cur.Attempt,
				SessionPresent: connack.SessionPresent,
			})
		}

		select {
		case <-ctx.Done():
			c.disconnect(ctx, cur.Client, cur.Attempt)
			for handler := range c.disconnectHandlers.All() {
				handler(&DisconnectEvent{})
			}
			return nil

		case <-cur.Down.Done():
		}

		lost := c.conn.Current().Error
		c.logEvent(ctx, slog.LevelWarn, "connection lost",
			slog.String("error", errorString(lost)),
		)
		for handler := range c.disconnectHandlers.All() {
			handler(&DisconnectEvent{Error: lost})
		}

		var fatal *FatalDisconnectError
		if errors.As(lost, &fatal) {
			return lost
		}
	}
}

// connect makes one connection attempt. sessionCtx outlives the attempt and
// scopes message handlers; attemptCtx bounds the attempt itself.
func (c *SessionClient) connect(
	sessionCtx context.Context,
	attemptCtx context.Context,
	reconnect bool,
) (*paho.Connack, bool, error) {
	attempt := c.conn.Attempt()

	ctx, cancel := context.WithTimeout(attemptCtx, c.options.ConnectionTimeout)
	defer cancel()

	netConn, err := c.provider(ctx)
	if err != nil {
		return nil, true, err
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: c.options.ClientID,
		Conn:     netConn,
		Session:  state.NewInMemory(),
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(p paho.PublishReceived) (bool, error) {
				return c.onPublishReceived(sessionCtx, p)
			},
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			c.log.Packet(sessionCtx, "disconnect", d)
			c.conn.Down(attempt, disconnectError(d))
		},
		OnClientError: func(err error) {
			c.conn.Down(attempt, &ConnectionError{
				message: "connection failed",
				wrapped: err,
			})
		},
	})

	packet, err := c.connectPacket(ctx, reconnect)
	if err != nil {
		_ = netConn.Close()
		return nil, false, err
	}
	c.log.Packet(ctx, "connect", packet)

	connack, err := client.Connect(ctx, packet)
	c.log.Packet(ctx, "connack", connack)
	switch {
	case connack != nil && isFailure(connack.ReasonCode):
		_ = netConn.Close()
		if isFatalConnack(connack.ReasonCode) {
			return nil, false, &FatalConnackError{connack.ReasonCode}
		}
		return nil, true, &ConnackError{connack.ReasonCode}

	case err != nil:
		_ = netConn.Close()
		return nil, true, &ConnectionError{
			message: "error during MQTT handshake",
			wrapped: err,
		}
	}

	if err := c.restoreSubscriptions(ctx, client, connack.SessionPresent); err != nil {
		c.disconnect(ctx, client, attempt)
		return nil, true, err
	}

	if err := c.conn.Up(client); err != nil {
		_ = netConn.Close()
		return nil, true, err
	}
	return connack, false, nil
}

func (c *SessionClient) connectPacket(
	ctx context.Context,
	reconnect bool,
) (*paho.Connect, error) {
	expiry := uint32(min(c.options.SessionExpiry.Seconds(), math.MaxUint32))

	packet := &paho.Connect{
		ClientID:   c.options.ClientID,
		KeepAlive:  uint16(c.options.KeepAlive.Seconds()),
		CleanStart: !reconnect || expiry == 0,
		Properties: &paho.ConnectProperties{
			SessionExpiryInterval: &expiry,
		},
	}
	if c.options.ReceiveMaximum > 0 {
		packet.Properties.ReceiveMaximum = &c.options.ReceiveMaximum
	}

	if c.options.Username != nil {
		username, err := c.options.Username(ctx)
		if err != nil {
			return nil, err
		}
		packet.Username = username
		packet.UsernameFlag = true
	}
	if c.options.Password != nil {
		password, err := c.options.Password(ctx)
		if err != nil {
			return nil, err
		}
		packet.Password = password
		packet.PasswordFlag = true
	}
	return packet, nil
}

// disconnect sends DISCONNECT and marks the attempt down. Errors are ignored
// since the connection is being abandoned either way.
func (c *SessionClient) disconnect(
	ctx context.Context,
	client *paho.Client,
	attempt uint64,
) {
	if client != nil {
		packet := &paho.Disconnect{ReasonCode: 0}
		c.log.Packet(ctx, "disconnect", packet)
		_ = client.Disconnect(packet)
	}
	c.conn.Down(attempt, &ClientStateError{ShutDown})
	c.logEvent(ctx, slog.LevelInfo, "disconnected")
}

func disconnectError(d *paho.Disconnect) error {
	var reason string
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	if isFatalDisconnect(d.ReasonCode) {
		return &FatalDisconnectError{d.ReasonCode}
	}
	return &DisconnectError{ReasonCode: d.ReasonCode, Reason: reason}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
