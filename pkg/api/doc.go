// Package api exposes the identity service over HTTP.
//
// # Routes
//
// Credential flows (no bearer token; the request carries its own proof):
//
//	POST /v1/token/exchange   external assertion -> access + refresh pair
//	POST /v1/token/refresh    refresh token -> rotated pair
//	POST /v1/token/revoke     revoke one refresh token by value
//
// Bearer-authenticated:
//
//	POST   /v1/organizations/switch
//	GET    /v1/sessions
//	POST   /v1/sessions/revoke_all[?organization_id=...]
//	DELETE /v1/sessions/{id}
//	POST   /v1/organizations/{orgID}/roles
//	PUT    /v1/organizations/{orgID}/roles/{name}
//	POST   /v1/organizations/{orgID}/roles/assign
//
// # Error Contract
//
// Domain failures map to stable error codes in the response body (for
// example "invalid_token", "token_replayed", "unowned_permission") so
// clients never match on message text. Transient infra failures surface
// as 500 "internal_error".
//
// # Related Packages
//
//   - pkg/exchange: Token-exchange coordination
//   - pkg/sessions: Refresh lifecycle and organization switch
//   - pkg/roles: Role management with escalation guard
package api
