// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/TranDung6129/sensor-telemetry/internal/env"
)

// DefaultBrokerURL is used when neither a broker URL nor a host name is
// configured.
const DefaultBrokerURL = "tcp://localhost:1883"

// SessionClientConfigFromEnv reads the broker settings from MQTT_*
// environment variables:
//
//	MQTT_BROKER_URL           tcp://, mqtts://, ws:// or wss:// URL
//	MQTT_HOST_NAME            alternative to the URL, with MQTT_TCP_PORT
//	                          and MQTT_USE_TLS
//	MQTT_CLIENT_ID
//	MQTT_USERNAME
//	MQTT_PASSWORD             or MQTT_PASSWORD_FILE
//	MQTT_KEEP_ALIVE           PT60S, 60s or 60
//	MQTT_CONNECTION_TIMEOUT
//	MQTT_SESSION_EXPIRY
//	MQTT_RECEIVE_MAXIMUM
//	MQTT_CA_FILE
//	MQTT_CERT_FILE            with MQTT_KEY_FILE and optionally
//	                          MQTT_KEY_PASSWORD_FILE
func SessionClientConfigFromEnv() (
	ConnectionProvider,
	*SessionClientOptions,
	error,
) {
	settings := map[string]string{}
	for _, kv := range os.Environ() {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if name, ok := strings.CutPrefix(key, "MQTT_"); ok {
			settings[normalizeKey(name)] = strings.TrimSpace(val)
		}
	}
	return configFromSettings(settings, "MQTT_")
}

// SessionClientConfigFromConnectionString parses a semicolon-separated
// connection string, e.g.
// "HostName=localhost;TcpPort=1883;UseTls=false;KeepAlive=PT30S". It accepts
// the same settings as SessionClientConfigFromEnv, in PascalCase.
func SessionClientConfigFromConnectionString(connStr string) (
	ConnectionProvider,
	*SessionClientOptions,
	error,
) {
	settings := map[string]string{}
	for _, param := range strings.Split(connStr, ";") {
		key, val, ok := strings.Cut(param, "=")
		if !ok {
			continue
		}
		settings[normalizeKey(key)] = strings.TrimSpace(val)
	}
	if settings["hostname"] == "" && settings["brokerurl"] == "" {
		return nil, nil, &errors.Error{
			Message:      "HostName must not be empty",
			Kind:         errors.ConfigurationInvalid,
			PropertyName: "HostName",
		}
	}
	return configFromSettings(settings, "")
}

// NewSessionClientFromEnv creates a session client configured from the
// environment. Explicit options override environment settings.
func NewSessionClientFromEnv(
	opts ...SessionClientOption,
) (*SessionClient, error) {
	provider, envOpts, err := SessionClientConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewSessionClient(provider, append([]SessionClientOption{envOpts}, opts...)...)
}

// NewSessionClientFromConnectionString creates a session client from a
// connection string. Explicit options override its settings.
func NewSessionClientFromConnectionString(
	connStr string,
	opts ...SessionClientOption,
) (*SessionClient, error) {
	provider, csOpts, err := SessionClientConfigFromConnectionString(connStr)
	if err != nil {
		return nil, err
	}
	return NewSessionClient(provider, append([]SessionClientOption{csOpts}, opts...)...)
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "_", ""))
}

func configFromSettings(
	settings map[string]string,
	prefix string,
) (ConnectionProvider, *SessionClientOptions, error) {
	invalid := func(name, value string, err error) error {
		return &errors.Error{
			Message:       "invalid " + prefix + name,
			Kind:          errors.ConfigurationInvalid,
			NestedError:   err,
			PropertyName:  prefix + name,
			PropertyValue: value,
		}
	}
	durationOf := func(key, name string) (time.Duration, error) {
		v := settings[key]
		if v == "" {
			return 0, nil
		}
		d, err := env.ParseDuration(v)
		if err != nil {
			return 0, invalid(name, v, err)
		}
		return d, nil
	}

	opts := &SessionClientOptions{ClientID: settings["clientid"]}

	var err error
	if opts.KeepAlive, err = durationOf("keepalive", "KeepAlive"); err != nil {
		return nil, nil, err
	}
	if opts.SessionExpiry, err = durationOf("sessionexpiry", "SessionExpiry"); err != nil {
		return nil, nil, err
	}
	if opts.ConnectionTimeout, err = durationOf("connectiontimeout", "ConnectionTimeout"); err != nil {
		return nil, nil, err
	}
	if v := settings["receivemaximum"]; v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return nil, nil, invalid("ReceiveMaximum", v, err)
		}
		opts.ReceiveMaximum = uint16(n)
	}

	if v, ok := settings["username"]; ok && v != "" {
		opts.Username = ConstantUsername(v)
	}
	switch {
	case settings["password"] != "":
		opts.Password = ConstantPassword([]byte(settings["password"]))
	case settings["passwordfile"] != "":
		opts.Password = FilePassword(settings["passwordfile"])
	}

	var tlsOpts []TLSOption
	if ca := settings["cafile"]; ca != "" {
		tlsOpts = append(tlsOpts, WithCA(ca))
	}
	if cert, key := settings["certfile"], settings["keyfile"]; cert != "" || key != "" {
		if cert == "" || key == "" {
			return nil, nil, invalid("CertFile", cert, &InvalidArgumentError{
				message: "certificate and key files must be set together",
			})
		}
		if pass := settings["keypasswordfile"]; pass != "" {
			tlsOpts = append(tlsOpts, WithEncryptedX509(cert, key, pass))
		} else {
			tlsOpts = append(tlsOpts, WithX509(cert, key))
		}
	}

	provider, err := providerFromSettings(settings, tlsOpts, invalid)
	if err != nil {
		return nil, nil, err
	}
	return provider, opts, nil
}

func providerFromSettings(
	settings map[string]string,
	tlsOpts []TLSOption,
	invalid func(name, value string, err error) error,
) (ConnectionProvider, error) {
	if u := settings["brokerurl"]; u != "" {
		p, err := ConnectionProviderFromURL(u, tlsOpts...)
		if err != nil {
			return nil, invalid("BrokerUrl", u, err)
		}
		return p, nil
	}

	host := settings["hostname"]
	if host == "" {
		return ConnectionProviderFromURL(DefaultBrokerURL)
	}

	useTLS := false
	if v := settings["usetls"]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, invalid("UseTls", v, err)
		}
		useTLS = b
	}

	port := uint16(defaultTCPPort)
	if useTLS {
		port = defaultTLSPort
	}
	if v := settings["tcpport"]; v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return nil, invalid("TcpPort", v, err)
		}
		port = uint16(n)
	}

	if useTLS {
		return TLSConnection(host, port, tlsOpts...), nil
	}
	return TCPConnection(host, port), nil
}
