package web

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds the per-app_id settings for one WebPush pushkin instance.
type Config struct {
	// VAPIDPrivateKeyPEM is an EC (P-256) private key in PEM form.
	VAPIDPrivateKeyPEM []byte
	// VAPIDContactURI identifies the sender to push services, e.g.
	// "mailto:admin@example.org".
	VAPIDContactURI string

	// AllowedEndpoints, if non-empty, restricts dispatch to endpoints whose
	// URL contains one of these substrings (e.g. known push-service hosts).
	AllowedEndpoints []string

	// EventIDOnly sends a minimal JSON envelope instead of the full content.
	EventIDOnly bool

	MaxConnections int
	RatePerSecond  float64
}

// vapidKeys derives the base64url raw keys webpush-go expects from a PEM EC
// private key, since VAPID credentials are configured as PEM.
func vapidKeys(pemBytes []byte) (privateKey, publicKey string, err error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return "", "", fmt.Errorf("web: parse vapid private key: %w", err)
	}
	return encodeVAPIDKeys(key)
}

func encodeVAPIDKeys(key *ecdsa.PrivateKey) (privateKey, publicKey string, err error) {
	curve := elliptic.P256()
	byteLen := (curve.Params().BitSize + 7) / 8

	d := key.D.Bytes()
	if len(d) < byteLen {
		padded := make([]byte, byteLen)
		copy(padded[byteLen-len(d):], d)
		d = padded
	}

	pub := elliptic.Marshal(curve, key.X, key.Y)

	return base64.RawURLEncoding.EncodeToString(d), base64.RawURLEncoding.EncodeToString(pub), nil
}

func (c Config) endpointAllowed(endpoint string) bool {
	if len(c.AllowedEndpoints) == 0 {
		return true
	}
	for _, allowed := range c.AllowedEndpoints {
		if strings.Contains(endpoint, allowed) {
			return true
		}
	}
	return false
}
