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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/movi/services/agent"
	"github.com/AleutianAI/movi/services/orchestrator/datatypes"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Fake Turn Runner
// =============================================================================

// fakeTurns suspends any message containing "delete" and answers everything
// else with a canned reply.
type fakeTurns struct {
	mu        sync.Mutex
	suspended map[string]*agent.ConfirmationPayload
	known     map[string]bool
	reply     string
	startErr  error
	stateErr  error

	starts  []string
	resumes []bool
	pages   []string
}

func newFakeTurns() *fakeTurns {
	return &fakeTurns{
		suspended: map[string]*agent.ConfirmationPayload{},
		known:     map[string]bool{},
		reply:     "There are 4 trips scheduled today.",
	}
}

func (f *fakeTurns) StartTurn(_ context.Context, sessionID, input string, tc agent.TurnContext) (agent.TurnOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, input)
	f.pages = append(f.pages, tc.CurrentPage)
	if f.startErr != nil {
		return agent.TurnOutcome{}, f.startErr
	}
	if _, ok := f.suspended[sessionID]; ok {
		return agent.TurnOutcome{}, agent.ErrInvalidState
	}
	f.known[sessionID] = true
	if strings.Contains(input, "delete") {
		p := &agent.ConfirmationPayload{
			Type:       agent.PayloadConsequences,
			ActionName: "delete_trip",
			Message:    "Deleting this trip affects 3 bookings. Proceed?",
			Consequences: &agent.ConsequenceRecord{
				HasConsequences: true,
				Details:         "3 bookings will be affected",
				ActionName:      "delete_trip",
			},
		}
		f.suspended[sessionID] = p
		return agent.Suspended(sessionID, p), nil
	}
	return agent.Completed(sessionID, f.reply), nil
}

func (f *fakeTurns) ResumeTurn(_ context.Context, sessionID string, approved bool) (agent.TurnOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes = append(f.resumes, approved)
	if _, ok := f.suspended[sessionID]; !ok {
		return agent.TurnOutcome{}, agent.ErrInvalidState
	}
	delete(f.suspended, sessionID)
	if approved {
		return agent.Completed(sessionID, "Trip 'Morning Express' deleted."), nil
	}
	return agent.Completed(sessionID, "Okay, I cancelled that action."), nil
}

func (f *fakeTurns) GetState(_ context.Context, sessionID string) (agent.StateView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return agent.StateView{}, f.stateErr
	}
	if sessionID == "" {
		return agent.StateView{}, agent.ErrEmptySessionID
	}
	if !f.known[sessionID] {
		return agent.StateView{}, agent.ErrSessionNotFound
	}
	p, suspended := f.suspended[sessionID]
	view := agent.StateView{SessionID: sessionID, Stage: agent.StageDone, IsSuspended: suspended}
	if suspended {
		view.Stage = agent.StageSuspended
		view.PendingConfirmationPayload = p
	}
	return view, nil
}

// =============================================================================
// Helpers
// =============================================================================

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func readEvents(t *testing.T, body string) []datatypes.StreamEvent {
	t.Helper()
	var out []datatypes.StreamEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		var ev datatypes.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(line), &ev), "line %q", line)
		out = append(out, ev)
	}
	return out
}

func tokens(events []datatypes.StreamEvent) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == datatypes.StreamEventToken {
			b.WriteString(ev.Content)
		}
	}
	return b.String()
}

// =============================================================================
// IsApproval / routeMessage Tests
// =============================================================================

func TestIsApproval(t *testing.T) {
	tests := []struct {
		reply string
		words []string
		want  bool
	}{
		{"yes", ChatApprovalWords, true},
		{"  YES \n", ChatApprovalWords, true},
		{"Yep", ChatApprovalWords, true},
		{"approve", ChatApprovalWords, true},
		{"yeah", VoiceApprovalWords, false},
		{"sure", VoiceApprovalWords, true},
		{"yes please", ChatApprovalWords, false},
		{"no", ChatApprovalWords, false},
		{"", ChatApprovalWords, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsApproval(tt.reply, tt.words), "reply %q", tt.reply)
	}
}

func TestRouteMessage_StartsNewSession(t *testing.T) {
	turns := newFakeTurns()

	routed, err := routeMessage(context.Background(), turns, "s1", "list trips", agent.TurnContext{CurrentPage: "busDashboard"}, ChatApprovalWords)

	require.NoError(t, err)
	assert.False(t, routed.Resumed)
	assert.Equal(t, []string{"list trips"}, turns.starts)
	assert.Equal(t, []string{"busDashboard"}, turns.pages)
}

func TestRouteMessage_ResumesSuspendedSession(t *testing.T) {
	turns := newFakeTurns()
	ctx := context.Background()
	_, err := routeMessage(ctx, turns, "s1", "delete Morning Express", agent.TurnContext{}, ChatApprovalWords)
	require.NoError(t, err)

	routed, err := routeMessage(ctx, turns, "s1", "Yes", agent.TurnContext{}, ChatApprovalWords)

	require.NoError(t, err)
	assert.True(t, routed.Resumed)
	assert.True(t, routed.Approved)
	assert.Equal(t, []bool{true}, turns.resumes)
	assert.Len(t, turns.starts, 1, "the answer is not a new turn")
}

func TestRouteMessage_StateError(t *testing.T) {
	turns := newFakeTurns()
	turns.stateErr = errors.New("store down")

	_, err := routeMessage(context.Background(), turns, "s1", "hi", agent.TurnContext{}, ChatApprovalWords)

	assert.EqualError(t, err, "store down")
	assert.Empty(t, turns.starts)
}

// stalledView reports "not suspended" even when the session is, as a
// concurrent request might observe.
type stalledView struct{ *fakeTurns }

func (s stalledView) GetState(ctx context.Context, id string) (agent.StateView, error) {
	return agent.StateView{SessionID: id}, nil
}

func TestRouteMessage_RetriesAsResumeOnInvalidState(t *testing.T) {
	inner := newFakeTurns()
	ctx := context.Background()
	_, err := inner.StartTurn(ctx, "s1", "delete Morning Express", agent.TurnContext{})
	require.NoError(t, err)

	routed, err := routeMessage(ctx, stalledView{inner}, "s1", "no", agent.TurnContext{}, ChatApprovalWords)

	require.NoError(t, err)
	assert.True(t, routed.Resumed)
	assert.False(t, routed.Approved)
	assert.Equal(t, "Okay, I cancelled that action.", routed.Outcome.ResponseText)
}

// =============================================================================
// Chat Tests
// =============================================================================

func chatRouter(turns TurnRunner) *gin.Engine {
	router := gin.New()
	router.POST("/movi/chat", HandleChat(turns, nil, ChatOptions{ChunkSize: 15}))
	return router
}

func TestHandleChat_StreamsTokens(t *testing.T) {
	turns := newFakeTurns()
	w := postJSON(t, chatRouter(turns), "/movi/chat", datatypes.ChatRequest{Message: "list trips", SessionID: "s1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	events := readEvents(t, w.Body.String())
	require.Len(t, events, 3, "34 characters in 15-character chunks")
	for _, ev := range events {
		assert.Equal(t, datatypes.StreamEventToken, ev.Type)
		assert.LessOrEqual(t, len([]rune(ev.Content)), 15)
	}
	assert.Equal(t, turns.reply, tokens(events))
	assert.Equal(t, []string{datatypes.DefaultContextPage}, turns.pages)
}

func TestHandleChat_ConfirmationThenApproval(t *testing.T) {
	turns := newFakeTurns()
	router := chatRouter(turns)

	w := postJSON(t, router, "/movi/chat", datatypes.ChatRequest{Message: "delete Morning Express", SessionID: "s1", ContextPage: "busDashboard"})
	events := readEvents(t, w.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, datatypes.StreamEventConfirmation, events[0].Type)
	require.NotNil(t, events[0].Payload)
	assert.True(t, events[0].Payload.RequiresConfirmation)
	assert.Equal(t, "Deleting this trip affects 3 bookings. Proceed?", events[0].Payload.Message)

	w = postJSON(t, router, "/movi/chat", datatypes.ChatRequest{Message: "okay", SessionID: "s1"})
	assert.Equal(t, "Trip 'Morning Express' deleted.", tokens(readEvents(t, w.Body.String())))
	assert.Equal(t, []bool{true}, turns.resumes)
}

func TestHandleChat_AnythingElseRejects(t *testing.T) {
	turns := newFakeTurns()
	router := chatRouter(turns)
	postJSON(t, router, "/movi/chat", datatypes.ChatRequest{Message: "delete Morning Express", SessionID: "s1"})

	w := postJSON(t, router, "/movi/chat", datatypes.ChatRequest{Message: "hmm, maybe not", SessionID: "s1"})

	assert.Equal(t, "Okay, I cancelled that action.", tokens(readEvents(t, w.Body.String())))
	assert.Equal(t, []bool{false}, turns.resumes)
}

func TestHandleChat_ErrorEvent(t *testing.T) {
	turns := newFakeTurns()
	turns.startErr = agent.ErrConcurrentTurn

	w := postJSON(t, chatRouter(turns), "/movi/chat", datatypes.ChatRequest{Message: "list trips", SessionID: "s1"})

	assert.Equal(t, http.StatusOK, w.Code)
	events := readEvents(t, w.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, datatypes.StreamEventError, events[0].Type)
	assert.Contains(t, events[0].Content, agent.ErrConcurrentTurn.Error())
}

func TestHandleChat_EmptyReplyIsError(t *testing.T) {
	turns := newFakeTurns()
	turns.reply = "  "

	w := postJSON(t, chatRouter(turns), "/movi/chat", datatypes.ChatRequest{Message: "list trips", SessionID: "s1"})

	events := readEvents(t, w.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, "No response generated from agent", events[0].Content)
}

func TestHandleChat_BadRequests(t *testing.T) {
	router := chatRouter(newFakeTurns())

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing message", `{"session_id":"s1"}`},
		{"missing session", `{"message":"hi"}`},
		{"oversized message", `{"session_id":"s1","message":"` + strings.Repeat("a", datatypes.MaxMessageContentBytes+1) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/movi/chat", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestChunkText(t *testing.T) {
	assert.Equal(t, []string{"abc", "def", "g"}, chunkText("abcdefg", 3))
	assert.Equal(t, []string{"héll", "ö"}, chunkText("héllö", 4), "chunks never split a character")
	assert.Empty(t, chunkText("", 15))
	assert.Equal(t, []string{"abc"}, chunkText("abc", 0))
}

// =============================================================================
// Sessions / Health Tests
// =============================================================================

func TestGetSession(t *testing.T) {
	turns := newFakeTurns()
	router := gin.New()
	router.GET("/movi/sessions/:sessionId", GetSession(turns))
	postJSON(t, chatRouter(turns), "/movi/chat", datatypes.ChatRequest{Message: "delete Night Service", SessionID: "s1"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/movi/sessions/s1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var view agent.StateView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.True(t, view.IsSuspended)
	assert.Equal(t, agent.StageSuspended, view.Stage)
	require.NotNil(t, view.PendingConfirmationPayload)
	assert.Equal(t, "delete_trip", view.PendingConfirmationPayload.ActionName)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/movi/sessions/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSession_StoreFailure(t *testing.T) {
	turns := newFakeTurns()
	turns.stateErr = errors.New("disk on fire")
	router := gin.New()
	router.GET("/movi/sessions/:sessionId", GetSession(turns))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/movi/sessions/s1", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "disk on fire")
}

func TestHealthEndpoints(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck)
	router.GET("/movi/health", MoviHealth)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/movi/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"Movi AI Assistant"}`, w.Body.String())
}
