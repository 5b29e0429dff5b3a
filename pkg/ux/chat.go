// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"strings"
)

// ChatUI renders the interactive chat session.
type ChatUI interface {
	// Header displays the session header.
	Header(sessionID, page, server string)

	// Prompt returns the input prompt. awaiting marks a pending confirmation.
	Prompt(awaiting bool) string

	// Error displays a chat error message.
	Error(err error)

	// SessionEnd displays the goodbye line.
	SessionEnd(sessionID string, turns int)
}

type terminalChatUI struct {
	writer      io.Writer
	personality PersonalityLevel
}

// NewChatUI creates a ChatUI writing to w.
func NewChatUI(w io.Writer, personality PersonalityLevel) ChatUI {
	return &terminalChatUI{writer: w, personality: personality}
}

func (u *terminalChatUI) Header(sessionID, page, server string) {
	switch u.personality {
	case PersonalityMachine:
		fmt.Fprintf(u.writer, "CHAT_START: session=%s page=%s server=%s\n", sessionID, page, server)
		return
	case PersonalityMinimal:
		fmt.Fprintf(u.writer, "Movi chat (session %s, page %s)\n", sessionID, page)
		return
	}

	var content strings.Builder
	content.WriteString(Styles.Highlight.Render(string(IconBus) + " Movi Fleet Assistant"))
	fmt.Fprintf(&content, "\nPage: %s", Styles.Success.Render(page))
	fmt.Fprintf(&content, "\nSession: %s", Styles.Muted.Render(sessionID))
	fmt.Fprintf(&content, "\nServer: %s", Styles.Muted.Render(server))
	fmt.Fprintln(u.writer, Styles.Box.Width(60).Render(content.String()))
	fmt.Fprintln(u.writer)
	fmt.Fprintln(u.writer, Styles.Muted.Render("Type 'exit' to end, '/page <name>' to switch pages."))
	fmt.Fprintln(u.writer)
}

func (u *terminalChatUI) Prompt(awaiting bool) string {
	if u.personality == PersonalityMachine {
		if awaiting {
			return "(yes/no)> "
		}
		return "> "
	}
	if awaiting {
		return Styles.Warning.Render("(yes/no) > ")
	}
	return Styles.Highlight.Render("> ")
}

func (u *terminalChatUI) Error(err error) {
	if u.personality == PersonalityMachine {
		fmt.Fprintf(u.writer, "CHAT_ERROR: %v\n", err)
		return
	}
	fmt.Fprintf(u.writer, "%s %s\n", IconError.Render(), Styles.Error.Render(fmt.Sprintf("Chat error: %v", err)))
}

func (u *terminalChatUI) SessionEnd(sessionID string, turns int) {
	if u.personality == PersonalityMachine {
		fmt.Fprintf(u.writer, "CHAT_END: session=%s turns=%d\n", sessionID, turns)
		return
	}
	fmt.Fprintln(u.writer, Styles.Muted.Render(fmt.Sprintf("Session: %s (%d turns)", sessionID, turns)))
	fmt.Fprintln(u.writer, "Goodbye!")
}
