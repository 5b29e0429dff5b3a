// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs assistant turns: analyze, validate, execute and
// reply, with a durable suspension between validate and execute for
// actions that need human confirmation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/movi/services/agent"
	"github.com/AleutianAI/movi/services/agent/events"
	"github.com/AleutianAI/movi/services/agent/nlu"
	"github.com/AleutianAI/movi/services/agent/safety"
	"github.com/AleutianAI/movi/services/agent/store"
)

var tracer = otel.Tracer("movi.agent.pipeline")

// Analyzer extracts a structured request from user input.
type Analyzer interface {
	Analyze(ctx context.Context, req nlu.AnalyzeRequest) nlu.Analysis
}

// Validator decides whether the pending action needs confirmation.
type Validator interface {
	Validate(ctx context.Context, state *agent.SessionState) safety.Decision
}

// Executor runs an action. It never returns an error; failures are
// classified in the result.
type Executor interface {
	Execute(ctx context.Context, actionName string, entities map[string]any) *agent.ToolResult
}

// Replier writes user-facing text.
type Replier interface {
	Synthesize(ctx context.Context, rc nlu.ReplyContext) string
	ConfirmationAlert(ctx context.Context, payload *agent.ConfirmationPayload) string
}

// Dependencies are the stage implementations. All are required.
type Dependencies struct {
	Store     store.Store
	Analyzer  Analyzer
	Validator Validator
	Executor  Executor
	Replier   Replier
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEmitter publishes turn events.
func WithEmitter(e *events.Emitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHistoryLimit sets how many history messages a new turn keeps.
// Default: agent.DefaultHistoryLimit.
func WithHistoryLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

// WithMaxConcurrentTurns limits turns in flight across all sessions.
// Zero means unlimited.
func WithMaxConcurrentTurns(n int) Option {
	return func(o *Orchestrator) { o.maxConcurrent = n }
}

// Orchestrator runs turns for many sessions.
//
// Thread Safety: Orchestrator is safe for concurrent use. Turns for the same
// session are never run concurrently; an overlapping call fails with
// agent.ErrConcurrentTurn. Turns for different sessions run in parallel.
type Orchestrator struct {
	deps         Dependencies
	sm           *agent.StateMachine
	guard        *agent.TurnGuard
	emitter      *events.Emitter
	logger       *slog.Logger
	historyLimit int

	mu            sync.Mutex
	maxConcurrent int
	active        int
}

// New creates an orchestrator.
//
// # Description
//
// Wires the four stages around a session store. The store is the only
// shared mutable resource; the remaining dependencies are read-only after
// startup.
//
// # Inputs
//
//   - deps: Stage implementations and the store.
//   - opts: Optional configuration.
//
// # Outputs
//
//   - *Orchestrator: Ready to run turns.
//   - error: Non-nil if a dependency is missing.
func New(deps Dependencies, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Analyzer == nil:
		return nil, errors.New("pipeline: analyzer is required")
	case deps.Validator == nil:
		return nil, errors.New("pipeline: validator is required")
	case deps.Executor == nil:
		return nil, errors.New("pipeline: executor is required")
	case deps.Replier == nil:
		return nil, errors.New("pipeline: replier is required")
	}

	o := &Orchestrator{
		deps:         deps,
		sm:           agent.DefaultStateMachine,
		guard:        agent.NewTurnGuard(),
		logger:       slog.Default(),
		historyLimit: agent.DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// StartTurn processes a new user message.
//
// # Description
//
// Loads or creates the session, keeps the last historyLimit messages,
// clears the previous turn's result and appends the user input. Then
// analyzes and validates. A high-impact action suspends the turn: the
// state is saved with the confirmation payload and a Suspended outcome is
// returned. Otherwise the action runs, a reply is written, and a Completed
// outcome is returned.
//
// Analysis and tool failures never fail the call; they are recorded on
// the state and explained in the reply.
//
// # Inputs
//
//   - ctx: Context for the whole turn.
//   - sessionID: Conversation id.
//   - userInput: The user's message.
//   - tc: Page and optional screenshot.
//
// # Outputs
//
//   - agent.TurnOutcome: Completed or Suspended.
//   - error: ErrEmptySessionID, ErrEmptyInput, ErrConcurrentTurn,
//     ErrTooManyTurns, ErrInvalidState (the session is suspended), or a
//     store failure.
func (o *Orchestrator) StartTurn(ctx context.Context, sessionID, userInput string, tc agent.TurnContext) (agent.TurnOutcome, error) {
	if sessionID == "" {
		return agent.TurnOutcome{}, agent.ErrEmptySessionID
	}
	userInput = strings.TrimSpace(userInput)
	if userInput == "" {
		return agent.TurnOutcome{}, agent.ErrEmptyInput
	}

	release, err := o.acquire(sessionID)
	if err != nil {
		return agent.TurnOutcome{}, err
	}
	defer release()

	ctx, span := tracer.Start(ctx, "pipeline.StartTurn", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("page", tc.CurrentPage),
		attribute.Bool("has_image", tc.ImageBase64 != ""),
	))
	defer span.End()
	start := time.Now()
	logger := o.logger.With("session_id", sessionID)

	state, err := o.load(ctx, sessionID)
	if err != nil {
		return o.fail(span, sessionID, 0, err)
	}
	if state.IsSuspended() {
		return o.fail(span, sessionID, state.TurnCount,
			fmt.Errorf("%w: session %s is awaiting confirmation", agent.ErrInvalidState, sessionID))
	}
	if !state.Stage.IsResting() || state.Stage == agent.StageSuspended {
		// A claimed resume whose process died before saving leaves a
		// transient stage behind.
		logger.Warn("Recovering session left in a transient stage", "stage", state.Stage)
		state.Stage = agent.StageDone
		state.AwaitingConfirmation = false
	}

	prior := len(state.History)
	state.TrimHistory(o.historyLimit)
	if dropped := prior - len(state.History); dropped > 0 {
		logger.Debug("Trimmed history", "dropped", dropped)
	}
	state.ResetTurn()
	state.TurnCount++
	state.CurrentPage = tc.CurrentPage
	history := append([]agent.Message(nil), state.History...)
	state.AppendMessage(agent.RoleUser, userInput)

	o.emit(state, events.TypeTurnStart, &events.TurnStartData{Page: tc.CurrentPage, HasImage: tc.ImageBase64 != ""})

	// Analyze.
	if err := o.transition(state, agent.StageAnalyzing); err != nil {
		return o.fail(span, sessionID, state.TurnCount, err)
	}
	analyzeStart := time.Now()
	analysis := o.deps.Analyzer.Analyze(ctx, nlu.AnalyzeRequest{
		Page:        tc.CurrentPage,
		History:     history,
		UserInput:   userInput,
		ImageBase64: tc.ImageBase64,
	})
	state.Intent = analysis.Intent
	state.PendingAction = analysis.ActionName
	state.Entities = analysis.Entities
	if state.Entities == nil {
		state.Entities = map[string]any{}
	}
	o.emit(state, events.TypeAnalysis, &events.AnalysisData{
		Intent:   analysis.Intent,
		Action:   analysis.ActionName,
		Entities: len(state.Entities),
		Degraded: analysis.Degraded,
		Duration: time.Since(analyzeStart),
	})
	if analysis.Degraded {
		o.emit(state, events.TypeError, &events.ErrorData{
			Error:       errString(analysis.Err),
			Stage:       agent.StageAnalyzing,
			Recoverable: true,
		})
	}
	span.SetAttributes(attribute.String("action", state.PendingAction), attribute.Bool("analysis.degraded", analysis.Degraded))

	// Validate.
	if err := o.transition(state, agent.StageValidating); err != nil {
		return o.fail(span, sessionID, state.TurnCount, err)
	}
	decision := o.deps.Validator.Validate(ctx, state)
	o.emit(state, events.TypeSafetyCheck, &events.SafetyCheckData{
		Action:          state.PendingAction,
		HighImpact:      decision.Suspend,
		HasConsequences: decision.Consequences != nil,
		AffectedEntity:  decision.AffectedEntity,
		CheckError:      errString(decision.CheckErr),
	})
	if decision.CheckErr != nil {
		o.emit(state, events.TypeError, &events.ErrorData{
			Error:       decision.CheckErr.Error(),
			Stage:       agent.StageValidating,
			Recoverable: true,
		})
	}

	if decision.Suspend {
		outcome, err := o.suspend(ctx, state, decision)
		if err != nil {
			return o.fail(span, sessionID, state.TurnCount, err)
		}
		o.emit(state, events.TypeTurnEnd, &events.TurnEndData{Outcome: outcome.Kind, Duration: time.Since(start)})
		span.SetAttributes(attribute.String("outcome", string(outcome.Kind)))
		return outcome, nil
	}

	// Execute.
	if err := o.transition(state, agent.StageExecuting); err != nil {
		return o.fail(span, sessionID, state.TurnCount, err)
	}
	o.execute(ctx, state)

	outcome, err := o.reply(ctx, state)
	if err != nil {
		return o.fail(span, sessionID, state.TurnCount, err)
	}
	o.emit(state, events.TypeTurnEnd, &events.TurnEndData{Outcome: outcome.Kind, Duration: time.Since(start)})
	span.SetAttributes(attribute.String("outcome", string(outcome.Kind)))
	return outcome, nil
}

// ResumeTurn applies a confirmation decision to a suspended session.
//
// # Description
//
// The decision is claimed atomically in the store: the stored state must
// be suspended, and it leaves the suspended stage in the same write. A
// second resume, from this process or another, therefore fails with
// ErrInvalidState and never runs the action.
//
// Approved: the pending action runs exactly once, then the reply stage
// runs. Rejected: the action is dropped, the tool result records the
// cancellation, and only the reply stage runs. A rejected action cannot be
// approved later; the user must start a new turn.
//
// # Inputs
//
//   - ctx: Context for the turn.
//   - sessionID: Conversation id.
//   - approved: The user's decision.
//
// # Outputs
//
//   - agent.TurnOutcome: Always Completed on success.
//   - error: ErrEmptySessionID, ErrConcurrentTurn, ErrTooManyTurns,
//     ErrInvalidState (not suspended; nothing is changed), or a store
//     failure.
func (o *Orchestrator) ResumeTurn(ctx context.Context, sessionID string, approved bool) (agent.TurnOutcome, error) {
	if sessionID == "" {
		return agent.TurnOutcome{}, agent.ErrEmptySessionID
	}

	release, err := o.acquire(sessionID)
	if err != nil {
		return agent.TurnOutcome{}, err
	}
	defer release()

	ctx, span := tracer.Start(ctx, "pipeline.ResumeTurn", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Bool("approved", approved),
	))
	defer span.End()
	start := time.Now()

	var from agent.Stage
	state, err := o.deps.Store.Update(ctx, sessionID, func(st *agent.SessionState) error {
		if !st.IsSuspended() {
			return fmt.Errorf("%w: session %s has no pending confirmation", agent.ErrInvalidState, sessionID)
		}
		from = st.Stage
		if approved {
			return o.sm.Transition(st, agent.StageExecuting)
		}
		if err := o.sm.Transition(st, agent.StageReplying); err != nil {
			return err
		}
		rejected := st.PendingAction
		if st.PendingConfirmation != nil {
			rejected = st.PendingConfirmation.ActionName
		}
		st.PendingAction = ""
		st.Consequences = nil
		st.ToolResult = agent.CancelledResult(rejected)
		return nil
	})
	if err != nil {
		return o.fail(span, sessionID, 0, err)
	}

	action := ""
	if state.PendingConfirmation != nil {
		action = state.PendingConfirmation.ActionName
	}
	state.PendingConfirmation = nil

	o.emit(state, events.TypeTurnStart, &events.TurnStartData{Resume: true})
	o.emit(state, events.TypeStateTransition, &events.StateTransitionData{
		FromStage: from,
		ToStage:   state.Stage,
		Reason:    o.sm.TransitionReason(from, state.Stage),
	})
	o.emit(state, events.TypeResumed, &events.ResumedData{Action: action, Approved: approved})
	o.logger.Info("Confirmation applied", "session_id", sessionID, "action", action, "approved", approved)

	if approved {
		o.execute(ctx, state)
	}

	outcome, err := o.reply(ctx, state)
	if err != nil {
		return o.fail(span, sessionID, state.TurnCount, err)
	}
	o.emit(state, events.TypeTurnEnd, &events.TurnEndData{Outcome: outcome.Kind, Duration: time.Since(start)})
	return outcome, nil
}

// GetState returns the transport view of a session.
//
// # Outputs
//
//   - agent.StateView: The view.
//   - error: ErrSessionNotFound if the session has never run a turn.
func (o *Orchestrator) GetState(ctx context.Context, sessionID string) (agent.StateView, error) {
	if sessionID == "" {
		return agent.StateView{}, agent.ErrEmptySessionID
	}
	state, err := o.deps.Store.Load(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return agent.StateView{}, fmt.Errorf("%w: %s", agent.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return agent.StateView{}, err
	}
	return state.View(), nil
}

// InFlight returns the number of turns currently running.
func (o *Orchestrator) InFlight() int {
	return o.guard.InFlight()
}

// suspend records the confirmation payload and saves the session.
func (o *Orchestrator) suspend(ctx context.Context, state *agent.SessionState, decision safety.Decision) (agent.TurnOutcome, error) {
	payload := decision.Payload
	if payload == nil {
		payload = &agent.ConfirmationPayload{
			Type:       agent.PayloadConfirmationRequired,
			ActionName: state.PendingAction,
			Entities:   state.Entities,
		}
	}
	payload.Message = o.deps.Replier.ConfirmationAlert(ctx, payload)

	if err := o.transition(state, agent.StageSuspended); err != nil {
		return agent.TurnOutcome{}, err
	}
	state.Consequences = decision.Consequences
	state.PendingConfirmation = payload
	state.ResponseText = payload.Message
	state.AppendMessage(agent.RoleAssistant, payload.Message)

	if err := o.deps.Store.Save(ctx, state); err != nil {
		return agent.TurnOutcome{}, fmt.Errorf("save suspended session: %w", err)
	}

	o.emit(state, events.TypeSuspended, &events.SuspendedData{Action: payload.ActionName, PayloadType: payload.Type})
	o.logger.Info("Turn suspended for confirmation",
		"session_id", state.SessionID,
		"action", payload.ActionName,
		"has_consequences", payload.HasConsequences())
	return agent.Suspended(state.SessionID, payload), nil
}

// execute runs the pending action once and records the result.
func (o *Orchestrator) execute(ctx context.Context, state *agent.SessionState) {
	ctx, span := tracer.Start(ctx, "pipeline.Execute", trace.WithAttributes(attribute.String("action", state.PendingAction)))
	defer span.End()

	if state.PendingAction != "" {
		o.emit(state, events.TypeToolInvocation, &events.ToolInvocationData{
			ToolName:   state.PendingAction,
			ParamNames: sortedKeys(state.Entities),
		})
	}

	start := time.Now()
	result := o.deps.Executor.Execute(ctx, state.PendingAction, state.Entities)
	state.ToolResult = result

	if state.PendingAction != "" {
		data := &events.ToolResultData{
			ToolName: state.PendingAction,
			Kind:     result.Kind,
			Success:  result.Kind == agent.ResultSuccess,
			Duration: time.Since(start),
		}
		if result.IsError() {
			data.Error = result.Message
			span.SetStatus(codes.Error, result.Message)
		}
		o.emit(state, events.TypeToolResult, data)
	}
}

// reply writes the reply, closes the turn and saves the session.
func (o *Orchestrator) reply(ctx context.Context, state *agent.SessionState) (agent.TurnOutcome, error) {
	if state.Stage != agent.StageReplying {
		if err := o.transition(state, agent.StageReplying); err != nil {
			return agent.TurnOutcome{}, err
		}
	}

	text := o.deps.Replier.Synthesize(ctx, nlu.ReplyContext{
		Page:                 state.CurrentPage,
		Intent:               state.Intent,
		ToolResult:           state.ToolResult,
		Consequences:         state.Consequences,
		AwaitingConfirmation: state.AwaitingConfirmation,
		History:              state.History,
	})
	if strings.TrimSpace(text) == "" {
		text = nlu.Fallback(nlu.ReplyContext{ToolResult: state.ToolResult})
	}
	state.ResponseText = text
	state.AppendMessage(agent.RoleAssistant, text)

	if err := o.transition(state, agent.StageDone); err != nil {
		return agent.TurnOutcome{}, err
	}
	if err := o.deps.Store.Save(ctx, state); err != nil {
		return agent.TurnOutcome{}, fmt.Errorf("save session: %w", err)
	}
	return agent.Completed(state.SessionID, text), nil
}

func (o *Orchestrator) load(ctx context.Context, sessionID string) (*agent.SessionState, error) {
	state, err := o.deps.Store.Load(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return agent.NewSessionState(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return state, nil
}

func (o *Orchestrator) transition(state *agent.SessionState, to agent.Stage) error {
	from := state.Stage
	if err := o.sm.Transition(state, to); err != nil {
		return err
	}
	o.emit(state, events.TypeStateTransition, &events.StateTransitionData{
		FromStage: from,
		ToStage:   to,
		Reason:    o.sm.TransitionReason(from, to),
	})
	return nil
}

// acquire claims the per-session guard and a global slot.
func (o *Orchestrator) acquire(sessionID string) (func(), error) {
	if !o.guard.TryAcquire(sessionID) {
		return nil, fmt.Errorf("%w: %s", agent.ErrConcurrentTurn, sessionID)
	}

	o.mu.Lock()
	if o.maxConcurrent > 0 && o.active >= o.maxConcurrent {
		o.mu.Unlock()
		o.guard.Release(sessionID)
		return nil, fmt.Errorf("%w: limit %d", agent.ErrTooManyTurns, o.maxConcurrent)
	}
	o.active++
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		o.active--
		o.mu.Unlock()
		o.guard.Release(sessionID)
	}, nil
}

func (o *Orchestrator) fail(span trace.Span, sessionID string, turn int, err error) (agent.TurnOutcome, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.emitter.Emit(sessionID, turn, events.TypeError, &events.ErrorData{Error: err.Error()})
	return agent.TurnOutcome{}, err
}

func (o *Orchestrator) emit(state *agent.SessionState, t events.Type, data any) {
	o.emitter.Emit(state.SessionID, state.TurnCount, t, data)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
