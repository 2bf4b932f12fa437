package creds

import (
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Store supplies the authentication credential for a connection attempt:
// bearer token preferred, static API key as fallback, unauthenticated as the
// last resort. The token is re-read on every call, so each connection
// attempt picks up a refreshed token without restarting the client.
type Store struct {
	tokenFile string
	tokenEnv  string
	apiKey    string
	clock     clockwork.Clock
}

// NewStore creates a credential store. tokenFile and tokenEnv may both be
// empty; whichever yields a non-expired token first wins.
func NewStore(tokenFile, tokenEnv, apiKey string, clock clockwork.Clock) *Store {
	return &Store{
		tokenFile: tokenFile,
		tokenEnv:  tokenEnv,
		apiKey:    apiKey,
		clock:     clock,
	}
}

// BearerToken returns the stored token if present and not expired.
func (s *Store) BearerToken() (string, bool) {
	token := s.readToken()
	if token == "" {
		return "", false
	}
	if !s.usable(token) {
		return "", false
	}
	return token, true
}

// APIKey returns the static API key, if configured.
func (s *Store) APIKey() (string, bool) {
	if s.apiKey == "" {
		return "", false
	}
	return s.apiKey, true
}

func (s *Store) readToken() string {
	if s.tokenEnv != "" {
		if v := os.Getenv(s.tokenEnv); v != "" {
			return strings.TrimSpace(v)
		}
	}
	if s.tokenFile != "" {
		data, err := os.ReadFile(s.tokenFile)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(data))
	}
	return ""
}

// usable checks the token's expiry claim without verifying the signature;
// verification is the server's job, we only avoid sending a token we already
// know is dead.
func (s *Store) usable(token string) bool {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		// Opaque (non-JWT) tokens are passed through as-is.
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	if exp.Time.Before(s.clock.Now().Add(10 * time.Second)) {
		log.Debug().Time("expires_at", exp.Time).Msg("discarding expired bearer token")
		return false
	}
	return true
}
