package apns

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tinywideclouds/go-push-gateway/internal/auth"
)

// maxTokenAge is Apple's hard ceiling on provider-token lifetime. The cache
// margin (5m) forces a refresh at 55 minutes of age
const (
	maxTokenAge   = 60 * time.Minute
	refreshMargin = 5 * time.Minute
)

// newAuthCache builds the single-flight ES256 JWT cache for token-based APNs
// auth: claims {iss: team_id, iat: now}, header {alg: ES256, kid: key_id}.
func newAuthCache(name string, keyPEM []byte, keyID, teamID string, opts ...auth.Option) (*auth.Cache, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("apns: parse p8 key: %w", err)
	}

	refresh := func(_ context.Context) (string, time.Time, error) {
		return signProviderToken(key, keyID, teamID)
	}

	return auth.NewCache(name, refreshMargin, refresh, opts...), nil
}

func signProviderToken(key *ecdsa.PrivateKey, keyID, teamID string) (string, time.Time, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": teamID,
		"iat": now.Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = keyID

	signed, err := tok.SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("apns: sign provider token: %w", err)
	}
	return signed, now.Add(maxTokenAge), nil
}
