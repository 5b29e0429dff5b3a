// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/awnumar/memguard"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/AleutianAI/movi/services/orchestrator/datatypes"
	"github.com/AleutianAI/movi/services/orchestrator/observability"
)

// ErrVoiceNotConfigured is returned when room credentials are missing.
var ErrVoiceNotConfigured = errors.New("voice room credentials not configured")

// VideoGrant is the room permission block of a room token.
type VideoGrant struct {
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	Room         string `json:"room,omitempty"`
	CanPublish   bool   `json:"canPublish,omitempty"`
	CanSubscribe bool   `json:"canSubscribe,omitempty"`
}

// RoomClaims are the claims of a LiveKit-compatible access token.
type RoomClaims struct {
	jwt.RegisteredClaims
	Name     string      `json:"name,omitempty"`
	Video    *VideoGrant `json:"video,omitempty"`
	Metadata string      `json:"metadata,omitempty"`
}

// VoiceTokenConfig holds the room server credentials.
type VoiceTokenConfig struct {
	// URL is the room server URL returned to clients.
	URL string

	// APIKey is the token issuer.
	APIKey string

	// APISecret signs tokens. It is sealed in an enclave and wiped.
	APISecret []byte

	// TTL is the token lifetime. Default: 6h.
	TTL time.Duration
}

// VoiceTokenIssuer signs room tokens with HS256.
//
// Thread Safety: Safe for concurrent use.
type VoiceTokenIssuer struct {
	url    string
	apiKey string
	secret *memguard.Enclave
	ttl    time.Duration
	now    func() time.Time
}

// NewVoiceTokenIssuer creates an issuer.
//
// # Outputs
//
//   - *VoiceTokenIssuer: The issuer.
//   - error: ErrVoiceNotConfigured if any credential is missing.
func NewVoiceTokenIssuer(cfg VoiceTokenConfig) (*VoiceTokenIssuer, error) {
	if cfg.URL == "" || cfg.APIKey == "" || len(cfg.APISecret) == 0 {
		return nil, ErrVoiceNotConfigured
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 6 * time.Hour
	}
	return &VoiceTokenIssuer{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		secret: memguard.NewEnclave(cfg.APISecret),
		ttl:    cfg.TTL,
		now:    time.Now,
	}, nil
}

// Issue signs a token for the session's room.
//
// # Description
//
// The identity is "user-{session}" and the room "movi-{session}". The
// metadata carries the context page so the room agent can scope tools.
func (i *VoiceTokenIssuer) Issue(sessionID, contextPage string) (datatypes.VoiceTokenResponse, error) {
	room := "movi-" + sessionID
	meta, err := json.Marshal(map[string]string{
		"context_page": contextPage,
		"session_id":   sessionID,
	})
	if err != nil {
		return datatypes.VoiceTokenResponse{}, err
	}

	now := i.now()
	claims := RoomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   "user-" + sessionID,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Name: "Movi User",
		Video: &VideoGrant{
			RoomJoin:     true,
			Room:         room,
			CanPublish:   true,
			CanSubscribe: true,
		},
		Metadata: string(meta),
	}

	key, err := i.secret.Open()
	if err != nil {
		return datatypes.VoiceTokenResponse{}, fmt.Errorf("open signing key: %w", err)
	}
	defer key.Destroy()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key.Bytes())
	if err != nil {
		return datatypes.VoiceTokenResponse{}, fmt.Errorf("sign token: %w", err)
	}
	return datatypes.VoiceTokenResponse{Token: signed, RoomName: room, URL: i.url}, nil
}

// HandleVoiceToken serves POST /movi/voice/token.
//
// # Description
//
// Returns 500 when issuer is nil, which is how an unconfigured deployment
// is wired.
func HandleVoiceToken(issuer *VoiceTokenIssuer, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.VoiceTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid request", Details: err.Error()})
			return
		}
		if issuer == nil {
			metrics.RecordRequest(observability.EndpointVoiceToken, observability.StatusError)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: ErrVoiceNotConfigured.Error()})
			return
		}

		resp, err := issuer.Issue(req.SessionID, req.ContextPage)
		if err != nil {
			slog.Error("Failed to issue voice token", "session_id", req.SessionID, "error", err)
			metrics.RecordRequest(observability.EndpointVoiceToken, observability.StatusError)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "error generating voice token"})
			return
		}
		metrics.RecordRequest(observability.EndpointVoiceToken, observability.StatusCompleted)
		c.JSON(http.StatusOK, resp)
	}
}
