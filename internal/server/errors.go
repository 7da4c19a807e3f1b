package server

import (
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/quotaward/quotaward/internal/errors"
	servermw "github.com/quotaward/quotaward/internal/server/middleware"
)

// HandleError writes err as an error envelope. For requests the quota
// middleware already admitted, the error log also names the caller, so a
// failed status query or upstream call can be traced to an identity.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithEnvelope(w, r, callerEnvelope(r, err))
}

func callerEnvelope(r *http.Request, err error) *errors.ErrorEnvelope {
	envelope := apperrors.EnsureEnvelope(err)
	if r == nil {
		return envelope
	}
	if info, ok := servermw.QuotaInfo(r.Context()); ok {
		envelope = apperrors.WithQuotaCaller(envelope, info)
	}
	return envelope
}
