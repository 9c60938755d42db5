package auth

import "github.com/golang-jwt/jwt/v5"

// AdminClaims are carried by tokens on the call-record admin API.
// Subject is the operator the audit journal attributes actions to.
type AdminClaims struct {
	jwt.RegisteredClaims

	Role string `json:"role"`
}

// WebhookClaims are the claims we rely on from provider and Event Grid tokens.
type WebhookClaims struct {
	jwt.RegisteredClaims

	// AppID identifies the calling Azure AD application, when present.
	AppID string `json:"appid,omitempty"`
}
