package api

// ExchangeRequest is the token-exchange request body
type ExchangeRequest struct {
	Assertion string   `json:"assertion"`
	Scopes    []string `json:"scopes,omitempty"`
}

// RefreshRequest redeems a refresh token
type RefreshRequest struct {
	RefreshToken string  `json:"refresh_token"`
	DeviceName   *string `json:"device_name,omitempty"`
}

// RevokeRequest revokes one refresh token by value
type RevokeRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SwitchRequest re-scopes credentials to another organization
type SwitchRequest struct {
	OrganizationID string   `json:"organization_id"`
	Scopes         []string `json:"scopes,omitempty"`
}

// CreateRoleRequest creates a tenant-defined role
type CreateRoleRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// UpdateRoleRequest updates a tenant-defined role
type UpdateRoleRequest struct {
	Name        string   `json:"name,omitempty"`
	Permissions []string `json:"permissions"`
}

// AssignRoleRequest assigns a role to a member
type AssignRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// RevokedResponse reports how many sessions a bulk revocation hit
type RevokedResponse struct {
	Revoked int64 `json:"revoked"`
}
