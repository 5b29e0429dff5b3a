// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import "errors"

// Sentinel errors for the agent packages.
//
// Only ErrInvalidState and ErrConcurrentTurn (and input validation errors)
// are surfaced to transports. Stage failures are recorded as data on the
// session and rendered by the reply stage.
var (
	// ErrInvalidTransition indicates an invalid stage transition was attempted.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrInvalidState indicates resume was called on a session that is not
	// suspended, or a new turn was started while one is suspended.
	ErrInvalidState = errors.New("invalid session state")

	// ErrConcurrentTurn indicates another turn for the same session is in flight.
	ErrConcurrentTurn = errors.New("turn already in progress for session")

	// ErrTooManyTurns indicates the concurrent turn limit was reached.
	ErrTooManyTurns = errors.New("too many concurrent turns")

	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptySessionID indicates the session id is empty.
	ErrEmptySessionID = errors.New("session id must not be empty")

	// ErrEmptyInput indicates the user input is empty.
	ErrEmptyInput = errors.New("user input must not be empty")

	// ErrAnalysisDegraded indicates NLU output was missing or malformed.
	ErrAnalysisDegraded = errors.New("analysis degraded")

	// ErrConsequenceCheck indicates a consequence checker failed.
	ErrConsequenceCheck = errors.New("consequence check failed")

	// ErrLLMUnavailable indicates the language model could not be reached.
	ErrLLMUnavailable = errors.New("LLM service unavailable")
)
