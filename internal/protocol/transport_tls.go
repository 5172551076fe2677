package protocol

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// ALPNProtocol is the single protocol this driver advertises during TLS
// negotiation; a server that does not select it is not speaking this
// wire protocol.
const ALPNProtocol = "edgedb-binary"

// TLSOptions mirrors the teacher's SslOpts shape (CertFile/KeyFile/
// CaFile/Ciphers), generalized to the stdlib crypto/tls knobs this
// driver needs: SNI override, a pinned CA (file or inline PEM), and an
// insecure-skip-verify escape hatch for local development servers using
// a self-signed certificate.
type TLSOptions struct {
	ServerName         string
	CertFile           string
	KeyFile            string
	CAFile             string
	CAPem              []byte
	InsecureSkipVerify bool
}

// NewTLSConfig builds a *tls.Config for a connection attempt, requiring
// TLS 1.2 and the edgedb-binary ALPN protocol, matching the teacher's
// sslCreateContext's fixed TLSv1.2 floor generalized to crypto/tls
// (plain TLS 1.2, not the GOST-only quirk the teacher guarded against).
func NewTLSConfig(opts TLSOptions) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         opts.ServerName,
		NextProtos:         []string{ALPNProtocol},
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}

	if opts.CAFile != "" || len(opts.CAPem) > 0 {
		pool, err := loadCAPool(opts)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	if opts.CertFile != "" {
		if opts.KeyFile == "" {
			return nil, errors.New("protocol: TLS client certificate given without a key file")
		}
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("protocol: loading client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

func loadCAPool(opts TLSOptions) (*x509.CertPool, error) {
	pem := opts.CAPem
	if opts.CAFile != "" {
		data, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("protocol: reading CA file: %w", err)
		}
		pem = data
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("protocol: no PEM certificates found in CA data")
	}
	return pool, nil
}

// VerifyNegotiatedProtocol confirms the server actually selected the
// edgedb-binary ALPN protocol once the TLS handshake completes.
func VerifyNegotiatedProtocol(cs tls.ConnectionState) error {
	if cs.NegotiatedProtocol != ALPNProtocol {
		return NewProtocolError(
			fmt.Sprintf("server did not negotiate %q (got %q)", ALPNProtocol, cs.NegotiatedProtocol), nil)
	}
	return nil
}
