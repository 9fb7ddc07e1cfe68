package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/torquehub/torquehub-backend/pkg/enums"
)

// Actor is the resolved identity the core trusts after authentication.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	ActorID uuid.UUID
	Role    enums.ActorRole
	JTI     string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	ActorID uuid.UUID       `json:"actor_id"`
	Role    enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts validated claims into the trusted actor reference.
func (c *AccessTokenClaims) Actor() Actor {
	return Actor{ID: c.ActorID, Role: c.Role}
}
