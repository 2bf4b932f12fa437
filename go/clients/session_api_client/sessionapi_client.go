package session_api_client

import (
	"github.com/mcdev12/quizlink/go/clients"
)

// SessionApiClient talks to the non-real-time query surface of the game
// service. The session client uses it as the reconciliation fallback (fetch
// the authoritative current question) and as the submission fallback when
// the realtime path reports non-delivery.
type SessionApiClient struct {
	*clients.BaseClient
}

// NewSessionApiClient creates a client for the given service base URL.
// Either credential may be empty; bearer token wins when both are set.
func NewSessionApiClient(baseURL, bearerToken, apiKey string) *SessionApiClient {
	client := &SessionApiClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	if bearerToken != "" {
		client.SetHeader(AuthorizationHeader, "Bearer "+bearerToken)
	} else if apiKey != "" {
		client.SetHeader(APIKeyHeader, apiKey)
	}
	client.SetHeader("Content-Type", "application/json")

	return client
}
