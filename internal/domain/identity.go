// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const (
	MaxIDLen   = 64
	MaxNameLen = 36
)

var (
	ErrIDEmpty     = errors.New("id empty")
	ErrIDTooLong   = errors.New("id too long")
	ErrNameEmpty   = errors.New("name empty")
	ErrNameTooLong = errors.New("name too long")
)

type (
	// SessionID identifies one call instance. Externally issued, opaque.
	SessionID string
	// PeerID is an addressable identity on the rendezvous service.
	PeerID string
	// Credential is a bearer token presented at connect time.
	Credential string
)

// Identity is who the local participant is, as supplied by the auth provider.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(id, name string) (Identity, error) {
	if id == "" {
		return Identity{}, ErrIDEmpty
	}
	if len(id) > MaxIDLen {
		return Identity{}, ErrIDTooLong
	}
	if name == "" {
		return Identity{}, ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return Identity{}, ErrNameTooLong
	}
	return Identity{ID: id, Name: name}, nil
}
