// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/movi/pkg/ux"
	"github.com/AleutianAI/movi/services/agent"
	"github.com/AleutianAI/movi/services/orchestrator/datatypes"
)

// ErrServer wraps a non-200 response from the Movi server.
var ErrServer = errors.New("movi server error")

// =============================================================================
// HTTP client
// =============================================================================

// chatClient is the server surface the chat runner needs.
type chatClient interface {
	// Chat posts one message and returns the NDJSON stream body.
	Chat(ctx context.Context, req datatypes.ChatRequest) (io.ReadCloser, error)

	// Session fetches the public state of a session.
	Session(ctx context.Context, sessionID string) (agent.StateView, error)
}

type httpChatClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newHTTPChatClient(baseURL, apiKey string, timeout time.Duration) *httpChatClient {
	return &httpChatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *httpChatClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *httpChatClient) Chat(ctx context.Context, chat datatypes.ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(chat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/movi/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

func (c *httpChatClient) Session(ctx context.Context, sessionID string) (agent.StateView, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/movi/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return agent.StateView{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return agent.StateView{}, fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return agent.StateView{}, decodeError(resp)
	}

	var view agent.StateView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return agent.StateView{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return view, nil
}

func decodeError(resp *http.Response) error {
	var body datatypes.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("%w: %s", ErrServer, resp.Status)
	}
	if body.Details != "" {
		return fmt.Errorf("%w: %d %s (%s)", ErrServer, resp.StatusCode, body.Error, body.Details)
	}
	return fmt.Errorf("%w: %d %s", ErrServer, resp.StatusCode, body.Error)
}

// =============================================================================
// Chat runner
// =============================================================================

// chatRunner drives an interactive or one-shot conversation.
type chatRunner struct {
	client chatClient
	input  InputReader
	ui     ux.ChatUI
	out    io.Writer
	level  ux.PersonalityLevel

	server    string
	sessionID string
	page      string

	turns    int
	awaiting bool
}

type chatRunnerConfig struct {
	Client    chatClient
	Input     InputReader
	Out       io.Writer
	Level     ux.PersonalityLevel
	Server    string
	SessionID string
	Page      string
}

func newChatRunner(c chatRunnerConfig) *chatRunner {
	sessionID := c.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &chatRunner{
		client:    c.Client,
		input:     c.Input,
		ui:        ux.NewChatUI(c.Out, c.Level),
		out:       c.Out,
		level:     c.Level,
		server:    c.Server,
		sessionID: sessionID,
		page:      c.Page,
	}
}

// Run reads messages until exit, quit or end of input. Send failures are
// shown and the loop continues.
func (r *chatRunner) Run(ctx context.Context) error {
	r.ui.Header(r.sessionID, r.page, r.server)

	for {
		if err := ctx.Err(); err != nil {
			break
		}

		prompt := r.ui.Prompt(r.awaiting)
		if p, ok := r.input.(PromptingInputReader); ok {
			p.SetPrompt(prompt)
		} else {
			fmt.Fprint(r.out, prompt)
		}
		if s, ok := r.input.(SuggestingInputReader); ok {
			if r.awaiting {
				s.SetSuggestions(confirmationAnswers)
			} else {
				s.SetSuggestions(nil)
			}
		}

		line, err := r.input.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		switch {
		case line == "":
			continue
		case isExitCommand(line):
			r.ui.SessionEnd(r.sessionID, r.turns)
			return nil
		case strings.HasPrefix(line, "/page"):
			r.switchPage(strings.TrimSpace(strings.TrimPrefix(line, "/page")))
			continue
		}

		if err := r.Send(ctx, line); err != nil {
			r.ui.Error(err)
		}
	}

	r.ui.SessionEnd(r.sessionID, r.turns)
	return nil
}

func (r *chatRunner) switchPage(page string) {
	if page == "" {
		fmt.Fprintf(r.out, "Current page: %s\n", r.page)
		return
	}
	r.page = page
	fmt.Fprintf(r.out, "Page set to %s\n", page)
}

// Send posts one message and renders the streamed reply.
func (r *chatRunner) Send(ctx context.Context, message string) error {
	body, err := r.client.Chat(ctx, datatypes.ChatRequest{
		Message:     message,
		SessionID:   r.sessionID,
		ContextPage: r.page,
	})
	if err != nil {
		return err
	}
	defer body.Close()

	result, err := ux.NewStreamProcessor(r.out, r.level).Process(body)
	if err != nil {
		r.awaiting = false
		return err
	}
	r.turns++
	r.awaiting = result.AwaitingConfirmation()
	return nil
}

// =============================================================================
// Commands
// =============================================================================

func runChat(cmd *cobra.Command, args []string) error {
	page := chatPage
	if page == "" {
		page = cfg.Client.ContextPage
	}
	runner := newChatRunner(chatRunnerConfig{
		Client:    newHTTPChatClient(cfg.Client.ServerURL, cfg.Client.APIKey, cfg.Client.Timeout),
		Out:       os.Stdout,
		Level:     ux.GetPersonality().Level,
		Server:    cfg.Client.ServerURL,
		SessionID: chatSession,
		Page:      page,
	})

	if len(args) > 0 {
		return runner.Send(cmd.Context(), strings.Join(args, " "))
	}
	runner.input = newInputReader(50)
	return runner.Run(cmd.Context())
}

func runSession(cmd *cobra.Command, args []string) error {
	client := newHTTPChatClient(cfg.Client.ServerURL, cfg.Client.APIKey, cfg.Client.Timeout)
	view, err := client.Session(cmd.Context(), args[0])
	if err != nil {
		ux.Error(err.Error())
		return err
	}
	printSession(os.Stdout, ux.GetPersonality().Level, view)
	return nil
}

func printSession(w io.Writer, level ux.PersonalityLevel, view agent.StateView) {
	if level == ux.PersonalityMachine {
		fmt.Fprintf(w, "session=%s\nstage=%s\nsuspended=%t\nturns=%d\n",
			view.SessionID, view.Stage, view.IsSuspended, view.TurnCount)
		if view.PendingConfirmationPayload != nil {
			fmt.Fprintf(w, "pending_action=%s\n", view.PendingConfirmationPayload.ActionName)
		}
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stage: %s\nTurns: %d\nUpdated: %s",
		view.Stage, view.TurnCount, view.UpdatedAt.Format(time.RFC3339))
	if p := view.PendingConfirmationPayload; p != nil {
		fmt.Fprintf(&b, "\nWaiting for confirmation of %s", p.ActionName)
	}
	if view.LastResponse != "" {
		fmt.Fprintf(&b, "\nLast reply: %s", view.LastResponse)
	}
	ux.NewOutput(w, w, level).Box("Session "+view.SessionID, b.String())
}
