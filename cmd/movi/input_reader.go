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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// InputReader abstracts reading one line of user input.
//
// Production uses the interactive reader on a TTY and stdinReader for
// piped input. Tests use a scripted reader.
type InputReader interface {
	// ReadLine returns the next trimmed line, or io.EOF when input ends.
	ReadLine() (string, error)
}

// PromptingInputReader is implemented by readers that draw their own prompt.
type PromptingInputReader interface {
	InputReader
	SetPrompt(prompt string)
}

// SuggestingInputReader is implemented by readers that can tab-complete.
// The chat loop offers the confirmation answers while a prompt is pending.
type SuggestingInputReader interface {
	InputReader
	SetSuggestions(suggestions []string)
}

// confirmationAnswers are completed while an action waits for approval.
var confirmationAnswers = []string{"yes", "no"}

// stdinReader reads lines from a plain io.Reader.
type stdinReader struct {
	reader *bufio.Reader
}

func newStdinReader(r io.Reader) *stdinReader {
	return &stdinReader{reader: bufio.NewReader(r)}
}

// ReadLine returns the final unterminated line before reporting io.EOF.
func (r *stdinReader) ReadLine() (string, error) {
	line, err := r.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && strings.TrimSpace(line) != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// interactiveInputReader reads with up and down arrow history.
type interactiveInputReader struct {
	history     []string
	maxHistory  int
	prompt      string
	suggestions []string
}

// inputModel is the bubbletea model for one line of input.
type inputModel struct {
	textInput    textinput.Model
	history      []string
	historyIndex int
	currentInput string
	done         bool
	cancelled    bool
}

// newInputReader returns the interactive reader on a terminal and a plain
// line reader otherwise.
func newInputReader(maxHistory int) InputReader {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return newStdinReader(os.Stdin)
	}
	return &interactiveInputReader{
		history:    make([]string, 0, maxHistory),
		maxHistory: maxHistory,
		prompt:     "> ",
	}
}

func (r *interactiveInputReader) SetPrompt(prompt string) {
	r.prompt = prompt
}

// SetSuggestions replaces the Tab completions for the next ReadLine. nil
// turns completion off.
func (r *interactiveInputReader) SetSuggestions(suggestions []string) {
	r.suggestions = suggestions
}

// ReadLine runs a bubbletea program until Enter, Ctrl+C or Ctrl+D.
// Ctrl+C clears the line; Ctrl+D on an empty line returns io.EOF.
func (r *interactiveInputReader) ReadLine() (string, error) {
	ti := textinput.New()
	ti.Prompt = r.prompt
	ti.Focus()
	ti.CharLimit = 4096
	ti.Width = 80
	if len(r.suggestions) > 0 {
		ti.ShowSuggestions = true
		ti.SetSuggestions(r.suggestions)
	}

	m := inputModel{
		textInput:    ti,
		history:      r.history,
		historyIndex: -1,
	}

	finalModel, err := tea.NewProgram(m, tea.WithOutput(os.Stderr)).Run()
	if err != nil {
		return "", err
	}
	result, ok := finalModel.(inputModel)
	if !ok {
		return "", fmt.Errorf("unexpected model type from bubbletea: %T", finalModel)
	}
	if result.cancelled {
		return "", io.EOF
	}

	input := strings.TrimSpace(result.textInput.Value())
	if input != "" {
		r.addToHistory(input)
	}
	return input, nil
}

func (r *interactiveInputReader) addToHistory(input string) {
	if len(r.history) > 0 && r.history[len(r.history)-1] == input {
		return
	}
	r.history = append(r.history, input)
	if len(r.history) > r.maxHistory {
		r.history = r.history[1:]
	}
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}

	switch key.Type {
	case tea.KeyEnter:
		m.done = true
		return m, tea.Quit

	case tea.KeyCtrlC:
		m.textInput.SetValue("")
		m.done = true
		return m, tea.Quit

	case tea.KeyCtrlD:
		if m.textInput.Value() != "" {
			return m, nil
		}
		m.cancelled = true
		m.done = true
		return m, tea.Quit

	case tea.KeyUp:
		if len(m.history) == 0 {
			return m, nil
		}
		if m.historyIndex == -1 {
			m.currentInput = m.textInput.Value()
			m.historyIndex = len(m.history) - 1
		} else if m.historyIndex > 0 {
			m.historyIndex--
		}
		m.textInput.SetValue(m.history[m.historyIndex])
		m.textInput.CursorEnd()
		return m, nil

	case tea.KeyDown:
		if m.historyIndex == -1 {
			return m, nil
		}
		if m.historyIndex < len(m.history)-1 {
			m.historyIndex++
			m.textInput.SetValue(m.history[m.historyIndex])
		} else {
			m.historyIndex = -1
			m.textInput.SetValue(m.currentInput)
		}
		m.textInput.CursorEnd()
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done {
		return ""
	}
	return m.textInput.View()
}

// isExitCommand reports whether input ends the chat loop.
func isExitCommand(input string) bool {
	return input == "exit" || input == "quit"
}
