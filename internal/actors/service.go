package actors

import (
	"context"
	"time"

	"github.com/google/uuid"

	pkgauth "github.com/torquehub/torquehub-backend/pkg/auth"
	"github.com/torquehub/torquehub-backend/pkg/config"
	"github.com/torquehub/torquehub-backend/pkg/enums"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
	"github.com/torquehub/torquehub-backend/pkg/logger"
	"github.com/torquehub/torquehub-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid email or password"

// LoginRequest carries the login form fields.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse returns the access token plus the resolved identity.
type LoginResponse struct {
	AccessToken string          `json:"access_token"`
	ActorID     uuid.UUID       `json:"actor_id"`
	Role        enums.ActorRole `json:"role"`
	Name        string          `json:"name"`
}

// Service authenticates marketplace actors. Registration and profile
// management live in the profile service; the core only resolves identity.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
}

type service struct {
	repo Repository
	jwt  config.JWTConfig
	logg *logger.Logger
}

// NewService wires the auth dependencies.
func NewService(repo Repository, jwt config.JWTConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "actor repository required")
	}
	if jwt.Secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "jwt secret required")
	}
	return &service{repo: repo, jwt: jwt, logg: logg}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	actor, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup actor")
	}
	if actor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	ok, err := security.VerifyPassword(req.Password, actor.PasswordHash)
	if err != nil || !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	token, err := pkgauth.MintAccessToken(s.jwt, time.Now().UTC(), pkgauth.AccessTokenPayload{
		ActorID: actor.ID,
		Role:    actor.Role,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithActorID(ctx, actor.ID.String()), "actor logged in")
	}

	return &LoginResponse{
		AccessToken: token,
		ActorID:     actor.ID,
		Role:        actor.Role,
		Name:        actor.Name,
	}, nil
}
