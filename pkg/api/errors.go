package api

import (
	"errors"
	"net/http"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/exchange"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/httputil"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/permissions"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/roles"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/sessions"
)

// Stable error codes returned in response bodies. Clients match on these,
// never on message text.
const (
	codeInvalidToken         = "invalid_token"
	codeTokenReplayed        = "token_replayed"
	codeExternalAuthConflict = "external_auth_conflict"
	codeInvalidRefreshToken  = "invalid_refresh_token"
	codeNotAMember           = "not_a_member"
	codeSessionNotFound      = "session_not_found"
	codeUnownedPermission    = "unowned_permission"
	codeInvalidRole          = "invalid_role"
	codeInternal             = "internal_error"
)

// writeDomainError maps tagged domain failures to stable HTTP error codes.
// Anything unmapped is a transient infra failure and surfaces as a 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exchange.ErrInvalidAssertion):
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, codeInvalidToken)
	case errors.Is(err, exchange.ErrReplayDetected):
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, codeTokenReplayed)
	case errors.Is(err, exchange.ErrExternalAuthConflict):
		httputil.WriteErrorMessage(w, http.StatusConflict, codeExternalAuthConflict)
	case errors.Is(err, sessions.ErrInvalidRefreshToken):
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, codeInvalidRefreshToken)
	case errors.Is(err, sessions.ErrNotAMember):
		httputil.WriteErrorMessage(w, http.StatusForbidden, codeNotAMember)
	case errors.Is(err, sessions.ErrSessionNotFound):
		httputil.WriteErrorMessage(w, http.StatusNotFound, codeSessionNotFound)
	case errors.Is(err, permissions.ErrUnownedPermission):
		httputil.WriteErrorMessage(w, http.StatusForbidden, codeUnownedPermission)
	case errors.Is(err, roles.ErrReservedRoleName),
		errors.Is(err, roles.ErrInvalidRoleName),
		errors.Is(err, roles.ErrUnknownRole):
		httputil.WriteErrorMessage(w, http.StatusBadRequest, codeInvalidRole)
	default:
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, codeInternal)
	}
}
