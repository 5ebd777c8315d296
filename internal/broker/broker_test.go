// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package broker_test

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/TranDung6129/sensor-telemetry/internal/broker"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestStartRequiresListener(t *testing.T) {
	_, err := broker.Start(broker.Config{})
	require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))
}

func TestStartServesTCPAndWebSocket(t *testing.T) {
	b, err := broker.Start(broker.Config{
		TCPAddress:       "localhost:18830",
		WebSocketAddress: "localhost:18831",
		Logger:           quiet,
	})
	require.NoError(t, err)
	defer func() { require.NoError(t, b.Close()) }()

	for _, addr := range []string{"localhost:18830", "localhost:18831"} {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		require.NoError(t, err, addr)
		require.NoError(t, conn.Close())
	}

	require.NoError(t, b.Publish("sensor/data", []byte("{}")))
	require.False(t, b.DisconnectClient("nobody"))
}
