package authapi

import (
	"errors"
	"net/http"

	"sessiond/cmd/identity"
	"sessiond/cmd/internal/auth/credential"
	"sessiond/cmd/internal/auth/session"
)

// ErrConfig is returned for invalid API configuration.
var ErrConfig = errors.New("invalid auth api config")

type errorMapping struct {
	kind   error
	status int
	code   string
	msg    string
}

// Order matters: the first kind matched by errors.Is wins.
var errorMappings = []errorMapping{
	{session.ErrConflict, http.StatusConflict, "conflict", "email already registered"},
	{session.ErrNotFound, http.StatusNotFound, "not_found", "identity not found"},
	{session.ErrUnauthorized, http.StatusUnauthorized, "invalid_credentials", "invalid credentials"},
	{session.ErrRevokedToken, http.StatusUnauthorized, "token_revoked", "session is no longer active"},
	{credential.ErrExpiredToken, http.StatusUnauthorized, "token_expired", "token expired"},
	{credential.ErrMalformedToken, http.StatusUnauthorized, "token_malformed", "token malformed"},
	{credential.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "invalid token"},
}

// writeDomainError maps err to a status and writes it. Unmapped errors are
// logged and reported as 500 without detail.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, event string, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			writeError(w, m.status, m.code, m.msg)
			return
		}
	}

	if identity.IsInvalidInput(err) {
		msg := "invalid input"
		var oe identity.OpError
		if errors.As(err, &oe) && oe.Msg != "" {
			msg = oe.Msg
		}
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	h.log.ErrorContext(r.Context(), event, "err", err, "method", r.Method, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
}
