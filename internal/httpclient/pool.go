// Package httpclient builds the pooled HTTP/2 clients each pushkin dials
// providers with Component 1 "HTTP Client Pool": one pooled
// client per pushkin instance, sharing connections across dispatches to the
// same provider, with optional forward-proxy and extra trust-anchor support.
package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"
)

// Config controls how a pooled client reaches its provider.
type Config struct {
	// Timeout bounds a single request/response round-trip, not the overall
	// ingress deadline (that one lives on the context passed to Dispatch).
	Timeout time.Duration

	// ProxyURL, if set, routes all provider traffic through a forward proxy.
	ProxyURL string

	// ExtraCACertPEM, if set, is appended to the system trust pool — for
	// providers behind a corporate TLS-inspecting proxy or a private CA.
	ExtraCACertPEM []byte
}

// New builds an HTTP/2 client per Config. APNs and FCM both require HTTP/2;
// webpush-go negotiates it itself but benefits from the same pooling.
func New(cfg Config) (*http.Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if len(cfg.ExtraCACertPEM) > 0 {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(cfg.ExtraCACertPEM) {
			return nil, fmt.Errorf("httpclient: no certificates parsed from extra CA PEM")
		}
		tlsConfig.RootCAs = pool
	}

	transport := &http2.Transport{
		TLSClientConfig: tlsConfig,
	}

	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("httpclient: invalid proxy url: %w", err)
		}
		// http2.Transport has no native proxy dialer; fall back to the
		// standard transport's CONNECT-based proxying, still pinned to the
		// same TLS config, and let it negotiate h2 via ALPN.
		stdTransport := &http.Transport{
			Proxy:           http.ProxyURL(proxy),
			TLSClientConfig: tlsConfig,
		}
		if err := http2.ConfigureTransport(stdTransport); err != nil {
			return nil, fmt.Errorf("httpclient: configure http2 over proxy transport: %w", err)
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		return &http.Client{Transport: stdTransport, Timeout: timeout}, nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
