package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torquehub/torquehub-backend/pkg/config"
	"github.com/torquehub/torquehub-backend/pkg/enums"
)

func jwtConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "torquehub-test",
		ExpirationMinutes: 15,
	}
}

func TestMintAndParseRoundTrip(t *testing.T) {
	actorID := uuid.New()
	token, err := MintAccessToken(jwtConfig(), time.Now(), AccessTokenPayload{
		ActorID: actorID,
		Role:    enums.ActorRoleTechnician,
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(jwtConfig(), token)
	require.NoError(t, err)
	assert.Equal(t, actorID, claims.ActorID)
	assert.Equal(t, enums.ActorRoleTechnician, claims.Role)

	actor := claims.Actor()
	assert.Equal(t, actorID, actor.ID)
	assert.Equal(t, enums.ActorRoleTechnician, actor.Role)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	token, err := MintAccessToken(jwtConfig(), time.Now(), AccessTokenPayload{
		ActorID: uuid.New(),
		Role:    enums.ActorRoleCustomer,
	})
	require.NoError(t, err)

	other := jwtConfig()
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(other, token)
	assert.Error(t, err)
}

func TestMintRejectsInvalidRole(t *testing.T) {
	_, err := MintAccessToken(jwtConfig(), time.Now(), AccessTokenPayload{
		ActorID: uuid.New(),
		Role:    enums.ActorRole("ghost"),
	})
	assert.Error(t, err)
}
