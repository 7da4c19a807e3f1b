package handlers

import (
	"net/http"

	apperrors "github.com/quotaward/quotaward/internal/errors"
)

// httpErrorResponder writes handler errors. The server installs its
// caller-aware responder here; handlers cannot import the server package.
var httpErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder replaces the responder. nil restores the plain one.
func SetHTTPErrorResponder(responder func(http.ResponseWriter, *http.Request, error)) {
	if responder == nil {
		responder = apperrors.RespondWithError
	}
	httpErrorResponder = responder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}
