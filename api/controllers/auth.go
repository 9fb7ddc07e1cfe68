package controllers

import (
	"net/http"

	"github.com/torquehub/torquehub-backend/api/responses"
	"github.com/torquehub/torquehub-backend/api/validators"
	"github.com/torquehub/torquehub-backend/internal/actors"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
	"github.com/torquehub/torquehub-backend/pkg/logger"
)

// AuthLogin exchanges credentials for an access token.
func AuthLogin(svc actors.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var req actors.LoginRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
