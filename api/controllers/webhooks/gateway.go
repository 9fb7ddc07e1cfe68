package webhooks

import (
	"io"
	"net/http"

	"github.com/torquehub/torquehub-backend/api/responses"
	"github.com/torquehub/torquehub-backend/internal/payments"
	pkgerrors "github.com/torquehub/torquehub-backend/pkg/errors"
	"github.com/torquehub/torquehub-backend/pkg/logger"
)

const signatureHeader = "X-Gateway-Signature"

// Gateway verifies and settles payment gateway webhook deliveries. The raw
// body must reach the verifier untouched; decode only after settlement.
func Gateway(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read webhook body"))
			return
		}

		signature := r.Header.Get(signatureHeader)
		if err := svc.HandleWebhook(r.Context(), body, signature); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
