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
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/movi/services/agent"
	"github.com/AleutianAI/movi/services/orchestrator/datatypes"
	"github.com/AleutianAI/movi/services/orchestrator/observability"
	"github.com/AleutianAI/movi/services/speech"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// Audio clips arrive base64 encoded in a single message.
	ReadBufferSize:  1024 * 1024,
	WriteBufferSize: 1024 * 1024,
}

const (
	// maxVoiceMessageBytes bounds one client message.
	maxVoiceMessageBytes = 16 * 1024 * 1024

	defaultPingInterval = 30 * time.Second
)

// =============================================================================
// Voice Session Registry
// =============================================================================

type voiceSession struct {
	contextPage string
	createdAt   time.Time
}

// VoiceHub tracks connected voice clients by session id.
//
// Thread Safety: Safe for concurrent use.
type VoiceHub struct {
	mu       sync.RWMutex
	sessions map[string]*voiceSession
}

// NewVoiceHub creates an empty hub.
func NewVoiceHub() *VoiceHub {
	return &VoiceHub{sessions: make(map[string]*voiceSession)}
}

func (h *VoiceHub) add(sessionID, page string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sessionID] = &voiceSession{contextPage: page, createdAt: time.Now().UTC()}
}

func (h *VoiceHub) remove(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}

func (h *VoiceHub) setPage(sessionID, page string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[sessionID]; ok {
		s.contextPage = page
	}
}

func (h *VoiceHub) page(sessionID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.sessions[sessionID]; ok {
		return s.contextPage
	}
	return datatypes.DefaultContextPage
}

// List returns the connected sessions ordered by session id.
func (h *VoiceHub) List() []datatypes.VoiceSessionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]datatypes.VoiceSessionInfo, 0, len(h.sessions))
	for id, s := range h.sessions {
		out = append(out, datatypes.VoiceSessionInfo{SessionID: id, ContextPage: s.contextPage, CreatedAt: s.createdAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// HandleVoiceSessions serves GET /movi/voice/sessions.
func HandleVoiceSessions(hub *VoiceHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions := hub.List()
		c.JSON(http.StatusOK, datatypes.VoiceSessionsResponse{
			ActiveSessions: len(sessions),
			Sessions:       sessions,
		})
	}
}

// =============================================================================
// Voice WebSocket
// =============================================================================

// VoiceDeps are the collaborators of the voice endpoint.
type VoiceDeps struct {
	Turns       TurnRunner
	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer
	Hub         *VoiceHub
	Metrics     *observability.Metrics

	// PingInterval is how often the server pings the client. Default: 30s.
	PingInterval time.Duration
}

// voiceConn serializes writes to one socket.
type voiceConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (vc *voiceConn) send(v any) error {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	err := vc.ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

func (vc *voiceConn) sendError(msg string) error {
	return vc.send(datatypes.VoiceServerMessage{Type: datatypes.VoiceError, Message: msg})
}

// HandleVoiceWebSocket serves GET /movi/voice.
//
// # Description
//
// Protocol:
//  1. Client sends {"type":"init","session_id":...,"context_page":...}
//  2. Server replies {"type":"ready"}
//  3. Client sends {"type":"audio","data":<base64>,"format":"webm"}
//  4. Server sends transcription, processing(thinking), text_response,
//     processing(generating_audio) and audio_response
//  5. Client sends {"type":"close"} or disconnects
//
// A transcription received while the session waits for confirmation is the
// answer, approved if it is one of VoiceApprovalWords.
//
// # Inputs
//
//   - deps: Turn API, speech backends and the session hub.
//
// # Outputs
//
//   - gin.HandlerFunc: The handler.
func HandleVoiceWebSocket(deps VoiceDeps) gin.HandlerFunc {
	if deps.PingInterval <= 0 {
		deps.PingInterval = defaultPingInterval
	}

	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		ws.SetReadLimit(maxVoiceMessageBytes)

		deps.Metrics.StreamStarted(observability.EndpointVoice)
		defer deps.Metrics.StreamEnded(observability.EndpointVoice)

		vc := &voiceConn{ws: ws}
		g, ctx := errgroup.WithContext(c.Request.Context())

		var sessionID string
		g.Go(func() error {
			defer func() {
				if sessionID != "" {
					deps.Hub.remove(sessionID)
				}
			}()
			err := deps.readLoop(ctx, vc, &sessionID)
			// Unblock the pinger.
			return errors.Join(err, errVoiceClosed)
		})
		g.Go(func() error {
			return pingLoop(ctx, ws, deps.PingInterval)
		})

		if err := g.Wait(); err != nil && !errors.Is(err, errVoiceClosed) {
			slog.Info("Voice connection ended", "error", err)
		}
	}
}

var errVoiceClosed = errors.New("voice session closed")

func pingLoop(ctx context.Context, ws *websocket.Conn, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Wake a reader still blocked on the socket.
			_ = ws.Close()
			return nil
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				// Wake the reader.
				_ = ws.Close()
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// readLoop handles client messages until close or disconnect.
func (d VoiceDeps) readLoop(ctx context.Context, vc *voiceConn, sessionID *string) error {
	for {
		var msg datatypes.VoiceClientMessage
		if err := vc.ws.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				if vc.sendError("invalid message") != nil {
					return err
				}
				continue
			}
			return err
		}

		switch msg.Type {
		case datatypes.VoiceInit:
			if msg.SessionID == "" {
				if err := vc.sendError("session_id is required"); err != nil {
					return err
				}
				continue
			}
			page := msg.ContextPage
			if page == "" {
				page = datatypes.DefaultContextPage
			}
			if *sessionID != "" && *sessionID != msg.SessionID {
				d.Hub.remove(*sessionID)
			}
			*sessionID = msg.SessionID
			d.Hub.add(msg.SessionID, page)
			slog.Info("Voice session initialized", "session_id", msg.SessionID, "page", page)
			if err := vc.send(datatypes.VoiceServerMessage{Type: datatypes.VoiceReady, Message: "Voice session initialized"}); err != nil {
				return err
			}

		case datatypes.VoiceAudio:
			if *sessionID == "" {
				if err := vc.sendError("Session not initialized"); err != nil {
					return err
				}
				continue
			}
			if msg.Data == "" {
				if err := vc.sendError("No audio data provided"); err != nil {
					return err
				}
				continue
			}
			if err := d.handleAudio(ctx, vc, *sessionID, msg); err != nil {
				d.Metrics.RecordRequest(observability.EndpointVoice, observability.StatusError)
				if sendErr := vc.sendError(fmt.Sprintf("Failed to process voice: %v", err)); sendErr != nil {
					return sendErr
				}
			}

		case datatypes.VoiceUpdateContext:
			if *sessionID != "" {
				page := msg.ContextPage
				if page == "" {
					page = datatypes.DefaultContextPage
				}
				d.Hub.setPage(*sessionID, page)
			}

		case datatypes.VoiceClose:
			return nil

		default:
			if err := vc.sendError(fmt.Sprintf("Unknown message type: %s", msg.Type)); err != nil {
				return err
			}
		}
	}
}

// handleAudio runs one spoken turn. Errors returned here are reported to
// the client; the connection stays open.
func (d VoiceDeps) handleAudio(ctx context.Context, vc *voiceConn, sessionID string, msg datatypes.VoiceClientMessage) error {
	logger := slog.With("session_id", sessionID)

	audio, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		return fmt.Errorf("invalid audio data: %w", err)
	}
	format := msg.Format
	if format == "" {
		format = "webm"
	}

	text, err := d.Transcriber.Transcribe(ctx, audio, format)
	if err != nil {
		return fmt.Errorf("transcription: %w", err)
	}
	if err := vc.send(datatypes.VoiceServerMessage{Type: datatypes.VoiceTranscription, Text: text}); err != nil {
		return err
	}
	if err := vc.send(datatypes.VoiceServerMessage{Type: datatypes.VoiceProcessing, Status: datatypes.StatusThinking}); err != nil {
		return err
	}

	routed, err := routeMessage(ctx, d.Turns, sessionID, text, agent.TurnContext{CurrentPage: d.Hub.page(sessionID)}, VoiceApprovalWords)
	if err != nil {
		return err
	}

	reply := datatypes.VoiceReply{Type: datatypes.VoiceTextResponse, Text: routed.Outcome.ResponseText}
	status := observability.StatusCompleted
	if routed.Outcome.IsSuspended() {
		p := routed.Outcome.Payload
		if p != nil {
			reply.Text = p.Message
		}
		reply.RequiresConfirmation = true
		reply.AwaitingConfirmation = true
		reply.ConsequenceInfo = p
		status = observability.StatusConfirmation
	} else if routed.Resumed {
		status = observability.StatusResumed
		if !routed.Approved {
			status = observability.StatusRejected
		}
	}
	if reply.Text == "" {
		reply.Text = "No response generated."
	}
	d.Metrics.RecordRequest(observability.EndpointVoice, status)

	// Text goes out before speech synthesis so the client can show it.
	if err := vc.send(reply); err != nil {
		return err
	}
	if d.Synthesizer == nil {
		return nil
	}
	if err := vc.send(datatypes.VoiceServerMessage{Type: datatypes.VoiceProcessing, Status: datatypes.StatusGeneratingAudio}); err != nil {
		return err
	}

	clip, err := d.Synthesizer.Synthesize(ctx, reply.Text)
	if err != nil {
		logger.Warn("Speech synthesis failed", "error", err)
		return fmt.Errorf("speech synthesis: %w", err)
	}
	reply.Type = datatypes.VoiceAudioResponse
	reply.Data = base64.StdEncoding.EncodeToString(clip)
	return vc.send(reply)
}
