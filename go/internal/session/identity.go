package session

import (
	"fmt"
	"unicode"
)

// Identity pins a connection attempt to one player in one session. It is
// immutable for the lifetime of the connection and any reconnect attempts,
// and discarded on deliberate disconnect.
type Identity struct {
	SessionCode string
	PlayerID    string
	PlayerName  string
	PhotoURL    string // optional
}

const minSessionCodeLen = 6

// Validate rejects malformed identities before any network attempt.
func (id Identity) Validate() error {
	if id.SessionCode == "" {
		return fmt.Errorf("session code is required")
	}
	if len(id.SessionCode) < minSessionCodeLen {
		return fmt.Errorf("session code must be at least %d characters", minSessionCodeLen)
	}
	for _, r := range id.SessionCode {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return fmt.Errorf("session code must be alphanumeric")
		}
	}
	if id.PlayerID == "" {
		return fmt.Errorf("player id is required")
	}
	if id.PlayerName == "" {
		return fmt.Errorf("player name is required")
	}
	return nil
}
