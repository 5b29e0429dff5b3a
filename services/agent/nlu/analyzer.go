// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package nlu turns user messages into structured requests and tool results
// into user-facing replies, using an LLM for both.
//
// Neither direction fails a turn: analysis degrades to an empty request and
// replies fall back to deterministic text.
package nlu

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/movi/services/agent"
	"github.com/AleutianAI/movi/services/agent/tools"
	"github.com/AleutianAI/movi/services/llm"
)

// Catalog lists the actions available on a UI page.
type Catalog interface {
	ForPage(page string) []tools.ActionDescriptor
}

// AnalyzeRequest is the input of Analyze.
type AnalyzeRequest struct {
	// Page is the UI page the user is on.
	Page string

	// History is the conversation before this message.
	History []agent.Message

	// UserInput is the new message.
	UserInput string

	// ImageBase64 is an optional screenshot.
	ImageBase64 string
}

// Analysis is the structured request extracted from a message.
type Analysis struct {
	Intent     string
	ActionName string
	Entities   map[string]any

	// ImageDescription is set when a screenshot was described.
	ImageDescription string

	// Degraded is true when the model failed or its output did not decode.
	Degraded bool

	// Err explains a degraded analysis. It wraps agent.ErrAnalysisDegraded.
	Err error
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithVision enables screenshot description.
func WithVision(v llm.VisionClient) AnalyzerOption {
	return func(a *Analyzer) { a.vision = v }
}

// WithAnalyzerLogger sets the logger.
func WithAnalyzerLogger(l *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithAnalyzeTimeout bounds each model call. Default: 30s.
func WithAnalyzeTimeout(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// Analyzer classifies user messages.
//
// Thread Safety: Analyzer is immutable after construction.
type Analyzer struct {
	client  llm.LLMClient
	vision  llm.VisionClient
	catalog Catalog
	logger  *slog.Logger
	timeout time.Duration
}

// NewAnalyzer creates an analyzer.
//
// Inputs:
//
//	client - Chat model used for classification
//	catalog - Source of the page-scoped tool list
//	opts - Optional configuration
//
// Outputs:
//
//	*Analyzer - The analyzer
func NewAnalyzer(client llm.LLMClient, catalog Catalog, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		client:  client,
		catalog: catalog,
		logger:  slog.Default(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze extracts intent, action and entities from a message.
//
// Description:
//
//	When a screenshot is attached and vision is configured, the image is
//	described first and the description is appended to the user message as
//	"[Image Analysis: ...]". The classification prompt lists only the tools
//	available on req.Page. Model output must be a JSON object, optionally in
//	a fenced block; anything else yields a degraded Analysis.
//
// Inputs:
//
//	ctx - Context for the model calls
//	req - The message and its context
//
// Outputs:
//
//	Analysis - Never fails; check Degraded
func (a *Analyzer) Analyze(ctx context.Context, req AnalyzeRequest) Analysis {
	var out Analysis
	userMsg := req.UserInput

	if req.ImageBase64 != "" {
		if desc := a.describeImage(ctx, req.ImageBase64); desc != "" {
			out.ImageDescription = desc
			userMsg = WithImageAnalysis(userMsg, desc)
		}
	}

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: a.systemPrompt(req.Page, out.ImageDescription != ""),
	})
	for _, m := range req.History {
		messages = append(messages, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMsg})

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	params := llm.Temperature(0)
	params.JSONMode = true
	raw, err := a.client.Chat(callCtx, messages, params)
	if err != nil {
		a.logger.Warn("Request analysis failed, continuing degraded", "error", err)
		return degraded(out, fmt.Errorf("%w: %w: %v", agent.ErrAnalysisDegraded, agent.ErrLLMUnavailable, err))
	}

	decoded, err := DecodeAnalysis(raw)
	if err != nil {
		a.logger.Warn("Request analysis output rejected, continuing degraded",
			"error", err, "output_preview", preview(raw, 200))
		return degraded(out, err)
	}

	out.Intent = decoded.Intent
	out.ActionName = decoded.ActionName
	out.Entities = decoded.Entities
	return out
}

func degraded(out Analysis, err error) Analysis {
	out.Intent = ""
	out.ActionName = ""
	out.Entities = map[string]any{}
	out.Degraded = true
	out.Err = err
	return out
}

func (a *Analyzer) describeImage(ctx context.Context, image string) string {
	if a.vision == nil {
		a.logger.Debug("Image attached but no vision model configured")
		return ""
	}
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	desc, err := a.vision.DescribeImage(callCtx, visionPrompt, image, llm.Temperature(0))
	if err != nil {
		a.logger.Warn("Image analysis failed, continuing without it", "error", err)
		return ""
	}
	return strings.TrimSpace(desc)
}

// WithImageAnalysis appends a screenshot description to a user message.
func WithImageAnalysis(userMsg, description string) string {
	return fmt.Sprintf("%s\n\n[Image Analysis: %s]", userMsg, description)
}

const visionPrompt = `Analyze this image carefully and extract ALL text and information visible.

Pay special attention to:
1. ANY highlighted, circled, or marked items (these are MOST IMPORTANT)
2. Trip names, IDs, and identifiers
3. Status indicators (SCHEDULED, IN-PROGRESS, UNKNOWN, etc.)
4. Booking percentages
5. Times and schedules
6. Any arrows or visual emphasis

Describe what the user wants to draw attention to. Mention circled, arrowed or highlighted items first.`

func (a *Analyzer) systemPrompt(page string, hasImage bool) string {
	var b strings.Builder
	b.WriteString("You are Movi's request analyzer for a fleet operations console.\n\n")
	b.WriteString("You receive the user's message, the page they are on and the tools available there.\n")
	if hasImage {
		b.WriteString("\nThe user message includes [Image Analysis: ...]. Items that are highlighted, circled or\n")
		b.WriteString("marked with arrows are what the user wants to work with; prefer them when extracting entities.\n")
	}
	b.WriteString(`
Your job:
1. Identify the user's intent.
2. Select the EXACT tool_name from the tools list, or "" if no tool applies.
3. Extract entities as a flat object of parameter values.

Respond ONLY with JSON:

{"intent": "...", "tool_name": "...", "entities": {}}
`)
	fmt.Fprintf(&b, "\nCurrent Page: %s\n\nAvailable Tools:\n", displayPage(page))
	for _, d := range a.catalog.ForPage(page) {
		fmt.Fprintf(&b, "- %s: %s", d.Name, d.Description)
		if len(d.Parameters) > 0 {
			b.WriteString(" (params: ")
			b.WriteString(paramList(d))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func displayPage(page string) string {
	if page == "" {
		return "unknown"
	}
	return page
}

func paramList(d tools.ActionDescriptor) string {
	names := make([]string, 0, len(d.Parameters))
	for _, name := range sortedKeys(d.Parameters) {
		p := d.Parameters[name]
		entry := name + ":" + string(p.Type)
		if p.Required {
			entry += "*"
		}
		names = append(names, entry)
	}
	return strings.Join(names, ", ")
}

// preview cuts s to at most n characters, never inside a multi-byte rune.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
