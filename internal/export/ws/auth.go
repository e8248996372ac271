// Package ws exposes the event bus and command dispatch to external
// clients over an authenticated websocket.
package ws

import (
	"time"

	"github.com/wiseops/wise/internal/config"
)

// Perms scopes what one authenticated connection may do.
type Perms struct {
	// ReadRconEvents gates the outbound event fan-out.
	ReadRconEvents bool `json:"read_rcon_events"`

	// WriteRcon gates inbound command dispatch.
	WriteRcon bool `json:"write_rcon"`
}

// AuthHandle is the capability a connection holds after a successful
// token handshake.
type AuthHandle struct {
	// Name is the label of the matched token, for log attribution.
	Name string `json:"name"`

	Perms Perms `json:"perms"`

	GrantedAt time.Time `json:"granted_at"`
}

// newAuthHandle derives a handle from the matched token.
func newAuthHandle(token config.TokenConfig) AuthHandle {
	return AuthHandle{
		Name: token.Name,
		Perms: Perms{
			ReadRconEvents: token.Perms.ReadRconEvents,
			WriteRcon:      token.Perms.WriteRcon,
		},
		GrantedAt: time.Now(),
	}
}
