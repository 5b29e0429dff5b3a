// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the Movi service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization header,
// validates it using the configured AuthProvider, and stores the resulting
// AuthInfo in the Gin context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► Store AuthInfo in context
//	           │
//	           ▼
//	       Handler (retrieves via GetAuthInfo)
//
// # Default Behavior
//
// With NopAuthProvider every request is authenticated as "local-user". With
// an API key configured, APIKeyProvider accepts only that key.
package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/gin-gonic/gin"
)

// ErrUnauthorized is returned by providers when a token is missing or wrong.
var ErrUnauthorized = errors.New("unauthorized")

// authInfoKey is the context key for storing AuthInfo.
const authInfoKey = "movi_auth_info"

// AuthInfo is the identity attached to an authenticated request.
type AuthInfo struct {
	// UserID is never empty.
	UserID string

	// Roles granted to the caller.
	Roles []string
}

// HasRole reports whether the caller holds role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates bearer tokens.
type AuthProvider interface {
	// Validate returns the caller's identity, or an error wrapping
	// ErrUnauthorized.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// =============================================================================
// Providers
// =============================================================================

// NopAuthProvider accepts every request as a local operator.
type NopAuthProvider struct{}

// Validate implements AuthProvider.
func (NopAuthProvider) Validate(context.Context, string) (*AuthInfo, error) {
	return &AuthInfo{UserID: "local-user", Roles: []string{"operator"}}, nil
}

// APIKeyProvider accepts a single shared API key.
//
// # Description
//
// The key is held in a memguard enclave so it is encrypted at rest in
// memory and only decrypted for the comparison.
//
// # Thread Safety
//
// Safe for concurrent use.
type APIKeyProvider struct {
	key *memguard.Enclave
}

// NewAPIKeyProvider seals key into an enclave. The caller's slice is wiped.
func NewAPIKeyProvider(key []byte) (*APIKeyProvider, error) {
	if len(key) == 0 {
		return nil, errors.New("api key is empty")
	}
	return &APIKeyProvider{key: memguard.NewEnclave(key)}, nil
}

// Validate implements AuthProvider.
func (p *APIKeyProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	buf, err := p.key.Open()
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()

	if subtle.ConstantTimeCompare(buf.Bytes(), []byte(token)) != 1 {
		return nil, ErrUnauthorized
	}
	return &AuthInfo{UserID: "api-key", Roles: []string{"operator"}}, nil
}

// =============================================================================
// Context Helpers
// =============================================================================

// SetAuthInfo stores the authenticated identity in the Gin context.
func SetAuthInfo(c *gin.Context, info *AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo returns the identity stored by AuthMiddleware, or nil.
func GetAuthInfo(c *gin.Context) *AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// =============================================================================
// Middleware
// =============================================================================

// AuthMiddleware authenticates every request with provider.
//
// # Description
//
// Requests that fail validation are aborted with 401. On success the
// AuthInfo is stored for handlers.
//
// # Inputs
//
//   - provider: Token validator. Must not be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: The middleware.
func AuthMiddleware(provider AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "unauthorized",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication failed",
			})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

// extractBearerToken reads "Authorization: Bearer <token>". Browsers cannot
// set headers on WebSocket upgrades, so the access_token query parameter is
// accepted as a fallback.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return c.Query("access_token")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
