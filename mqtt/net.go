// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/packets"
	"github.com/gorilla/websocket"
)

// ConnectionProvider opens a network connection to the broker. The returned
// connection must tolerate concurrent writes.
type ConnectionProvider func(context.Context) (net.Conn, error)

const (
	defaultTCPPort = 1883
	defaultTLSPort = 8883
)

// TCPConnection connects over plain TCP.
func TCPConnection(hostname string, port uint16) ConnectionProvider {
	addr := net.JoinHostPort(hostname, strconv.Itoa(int(port)))
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening TCP connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

// TLSConnection connects over TLS. The options are re-evaluated on every
// attempt so that rotated certificate files are picked up.
func TLSConnection(
	hostname string,
	port uint16,
	opts ...TLSOption,
) ConnectionProvider {
	addr := net.JoinHostPort(hostname, strconv.Itoa(int(port)))
	return func(ctx context.Context) (net.Conn, error) {
		cfg, err := buildTLSConfig(hostname, opts)
		if err != nil {
			return nil, &ConnectionError{
				message: "error loading TLS configuration",
				wrapped: err,
			}
		}

		d := tls.Dialer{Config: cfg}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening TLS connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

// WebSocketConnection connects with MQTT over WebSockets. TLS options apply
// to wss:// URLs.
func WebSocketConnection(
	rawURL string,
	opts ...TLSOption,
) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "invalid WebSocket URL",
				wrapped: err,
			}
		}

		d := websocket.Dialer{
			Proxy:        websocket.DefaultDialer.Proxy,
			Subprotocols: []string{"mqtt"},
		}
		if deadline, ok := ctx.Deadline(); ok {
			d.HandshakeTimeout = time.Until(deadline)
		}
		if u.Scheme == "wss" {
			if d.TLSClientConfig, err = buildTLSConfig(u.Hostname(), opts); err != nil {
				return nil, &ConnectionError{
					message: "error loading TLS configuration",
					wrapped: err,
				}
			}
		}

		ws, _, err := d.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening WebSocket connection",
				wrapped: err,
			}
		}
		return &wsConn{Conn: ws}, nil
	}
}

// ConnectionProviderFromURL picks a provider by URL scheme: tcp and mqtt for
// plain TCP, tls, ssl and mqtts for TLS, ws and wss for WebSockets.
func ConnectionProviderFromURL(
	rawURL string,
	opts ...TLSOption,
) (ConnectionProvider, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "tcp://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &InvalidArgumentError{
			message: "invalid broker URL",
			wrapped: err,
		}
	}
	if u.Hostname() == "" {
		return nil, &InvalidArgumentError{
			message: "broker URL has no host: " + rawURL,
		}
	}

	port := func(def uint16) (uint16, error) {
		if u.Port() == "" {
			return def, nil
		}
		p, err := strconv.ParseUint(u.Port(), 10, 16)
		if err != nil {
			return 0, &InvalidArgumentError{
				message: "invalid broker port",
				wrapped: err,
			}
		}
		return uint16(p), nil
	}

	switch strings.ToLower(u.Scheme) {
	case "tcp", "mqtt":
		p, err := port(defaultTCPPort)
		if err != nil {
			return nil, err
		}
		return TCPConnection(u.Hostname(), p), nil

	case "tls", "ssl", "mqtts":
		p, err := port(defaultTLSPort)
		if err != nil {
			return nil, err
		}
		return TLSConnection(u.Hostname(), p, opts...), nil

	case "ws", "wss":
		return WebSocketConnection(u.String(), opts...), nil

	default:
		return nil, &InvalidArgumentError{
			message: "unsupported broker URL scheme " + u.Scheme,
		}
	}
}

// wsConn carries the MQTT byte stream in binary WebSocket messages.
type wsConn struct {
	*websocket.Conn
	reader  io.Reader
	writeMu sync.Mutex
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			typ, r, err := c.NextReader()
			if err != nil {
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}
