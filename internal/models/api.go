package models

import (
	"time"

	"github.com/yourorg/synapse/internal/catalog"
)

// ErrorResponse is the error shape for every API failure. Code is a stable
// machine-readable reason.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error codes.
const (
	CodeEmptyToken       = "empty_token"
	CodeInvalidToken     = "invalid_token"
	CodeDeviceMismatch   = "device_mismatch"
	CodeStoreUnavailable = "store_unavailable"
	CodeMissingDevice    = "missing_device"
	CodeInvalidRequest   = "invalid_request"
	CodeSessionRequired  = "session_required"
	CodeSessionInvalid   = "session_invalid"
	CodeEmptyLibrary     = "empty_library"
	CodeRateLimited      = "rate_limited"
	CodeAdminDisabled    = "admin_disabled"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeInternal         = "internal"
)

// UnlockRequest is the body of POST /api/gate/unlock.
type UnlockRequest struct {
	Token string `json:"token"`
}

// UnlockResponse is returned when the gate grants access.
type UnlockResponse struct {
	Status       string    `json:"status"`
	Session      string    `json:"session"`
	ExpiresAt    time.Time `json:"expires_at"`
	DeviceSource string    `json:"device_source"`
	Message      string    `json:"message"`
}

// SessionStatus describes the caller's session.
type SessionStatus struct {
	Authenticated bool      `json:"authenticated"`
	DeviceSource  string    `json:"device_source,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// QuestionsResponse is one page of filtered questions.
type QuestionsResponse struct {
	catalog.Page
	Filter catalog.Filter `json:"filter"`
}

// TokenDTO is an access token as shown to administrators.
type TokenDTO struct {
	Token        string     `json:"token"`
	Bound        bool       `json:"bound"`
	DeviceID     string     `json:"device_id,omitempty"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

// IssueTokensRequest issues Token when set, otherwise Count generated tokens.
type IssueTokensRequest struct {
	Token string `json:"token,omitempty"`
	Count int    `json:"count,omitempty"`
}

type IssueTokensResponse struct {
	Tokens []string `json:"tokens"`
}

// TokenListResponse is returned by GET /api/admin/tokens.
type TokenListResponse struct {
	Tokens []TokenDTO `json:"tokens"`
	Total  int        `json:"total"`
	Bound  int        `json:"bound"`
}

// HealthResponse reports dependency state.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Catalog   catalog.Status    `json:"catalog"`
	Version   string            `json:"version,omitempty"`
}
