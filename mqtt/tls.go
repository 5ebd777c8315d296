// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

// TLSOption adjusts the TLS configuration of a connection attempt.
type TLSOption func(*tls.Config) error

const (
	keySaltLen    = 8
	keyNonceLen   = 12
	keyIterations = 10000
	keyLen        = 32
)

func buildTLSConfig(hostname string, opts []TLSOption) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: hostname,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithCA trusts the PEM certificates in caFile instead of the system pool.
func WithCA(caFile string) TLSOption {
	return func(cfg *tls.Config) error {
		data, err := os.ReadFile(caFile)
		if err != nil {
			return err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return errors.New("no certificates found in " + caFile)
		}
		cfg.RootCAs = pool
		return nil
	}
}

// WithX509 presents a client certificate for mutual TLS.
func WithX509(certFile, keyFile string) TLSOption {
	return func(cfg *tls.Config) error {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return err
		}
		cfg.Certificates = append(cfg.Certificates, cert)
		return nil
	}
}

// WithEncryptedX509 presents a client certificate whose private key is
// sealed with AES-256-GCM under a PBKDF2-SHA3 key derived from the contents
// of passwordFile.
func WithEncryptedX509(certFile, keyFile, passwordFile string) TLSOption {
	return func(cfg *tls.Config) error {
		password, err := os.ReadFile(passwordFile)
		if err != nil {
			return err
		}
		certPEM, err := os.ReadFile(certFile)
		if err != nil {
			return err
		}
		sealed, err := os.ReadFile(keyFile)
		if err != nil {
			return err
		}

		block, _ := pem.Decode(sealed)
		if block == nil {
			return errors.New("no PEM block found in " + keyFile)
		}
		der, err := OpenPrivateKey(
			block.Bytes,
			[]byte(strings.TrimSpace(string(password))),
		)
		if err != nil {
			return err
		}

		keyPEM := pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der})
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return err
		}
		cfg.Certificates = append(cfg.Certificates, cert)
		return nil
	}
}

// WithInsecureSkipVerify disables server certificate verification. Only use
// it against a local development broker.
func WithInsecureSkipVerify() TLSOption {
	return func(cfg *tls.Config) error {
		cfg.InsecureSkipVerify = true // #nosec G402
		return nil
	}
}

// SealPrivateKey encrypts DER key material in the layout WithEncryptedX509
// reads: salt, nonce, then the GCM ciphertext.
func SealPrivateKey(der, password, salt, nonce []byte) ([]byte, error) {
	if len(salt) != keySaltLen || len(nonce) != keyNonceLen {
		return nil, errors.New("invalid salt or nonce length")
	}
	gcm, err := keyCipher(password, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, keySaltLen+keyNonceLen+len(der)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, der, nil), nil
}

// OpenPrivateKey reverses SealPrivateKey.
func OpenPrivateKey(sealed, password []byte) ([]byte, error) {
	if len(sealed) < keySaltLen+keyNonceLen {
		return nil, errors.New("encrypted key is too short")
	}
	salt := sealed[:keySaltLen]
	nonce := sealed[keySaltLen : keySaltLen+keyNonceLen]

	gcm, err := keyCipher(password, salt)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, sealed[keySaltLen+keyNonceLen:], nil)
}

func keyCipher(password, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(password, salt, keyIterations, keyLen, sha3.New256)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
