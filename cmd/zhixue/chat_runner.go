// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file implements the interactive chat loop: reading learner
// input (with history navigation on a real terminal), dispatching
// slash commands, and delegating questions to the ChatService.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/zhixueban/zhixue-cli/pkg/backend"
	"github.com/zhixueban/zhixue-cli/pkg/persist"
	"github.com/zhixueban/zhixue-cli/pkg/session"
	"github.com/zhixueban/zhixue-cli/pkg/ux"
)

// =============================================================================
// Input Readers
// =============================================================================

// InputReader abstracts line input so tests can script a session.
type InputReader interface {
	// ReadLine reads one trimmed line. Returns io.EOF when input is
	// exhausted.
	ReadLine() (string, error)
}

// PromptingInputReader is implemented by readers that draw their own
// prompt; the runner then skips printing one.
type PromptingInputReader interface {
	InputReader
	SetPrompt(prompt string)
}

// StdinReader reads lines from stdin. Used for piped input and as the
// non-TTY fallback.
type StdinReader struct {
	reader *bufio.Reader
}

// NewStdinReader wraps os.Stdin.
func NewStdinReader() *StdinReader {
	return &StdinReader{reader: bufio.NewReader(os.Stdin)}
}

func (r *StdinReader) ReadLine() (string, error) {
	line, err := r.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// InteractiveInputReader reads lines with up/down history navigation
// and line editing, via a bubbletea textinput. Falls back to
// StdinReader when stdin is not a terminal.
type InteractiveInputReader struct {
	history      []string
	historyIndex int
	maxHistory   int
	prompt       string
}

// inputModel is the bubbletea model behind one ReadLine call.
type inputModel struct {
	textInput    textinput.Model
	history      []string
	historyIndex int
	currentInput string
	done         bool
	cancelled    bool
}

// NewInteractiveInputReader creates the interactive reader, or a
// StdinReader when stdin is piped.
func NewInteractiveInputReader(maxHistory int) InputReader {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return NewStdinReader()
	}
	return &InteractiveInputReader{
		history:      make([]string, 0, maxHistory),
		historyIndex: -1,
		maxHistory:   maxHistory,
		prompt:       "你> ",
	}
}

// SetPrompt implements PromptingInputReader.
func (r *InteractiveInputReader) SetPrompt(prompt string) {
	r.prompt = prompt
}

// ReadLine runs one textinput round. Ctrl+D returns io.EOF, Ctrl+C
// cancels the current line.
func (r *InteractiveInputReader) ReadLine() (string, error) {
	ti := textinput.New()
	ti.Prompt = r.prompt
	ti.Focus()
	ti.CharLimit = 4096
	ti.Width = 80

	m := inputModel{
		textInput:    ti,
		history:      r.history,
		historyIndex: -1,
	}

	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	result, ok := finalModel.(inputModel)
	if !ok {
		return "", fmt.Errorf("unexpected model type from bubbletea: %T", finalModel)
	}

	if result.cancelled && result.textInput.Value() == "" {
		return "", io.EOF
	}

	input := strings.TrimSpace(result.textInput.Value())
	if input != "" {
		r.addToHistory(input)
	}
	return input, nil
}

func (r *InteractiveInputReader) addToHistory(input string) {
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
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit

		case tea.KeyCtrlC:
			m.textInput.SetValue("")
			m.done = true
			return m, tea.Quit

		case tea.KeyCtrlD:
			m.cancelled = true
			m.textInput.SetValue("")
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
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done {
		return ""
	}
	return m.textInput.View()
}

// =============================================================================
// ChatRunner
// =============================================================================

// ChatRunner owns the interactive loop. Exit (via "exit"/"quit", EOF
// or cancellation) always flushes the active session first, so a
// half-finished conversation survives Ctrl+C.
type ChatRunner struct {
	store    *session.Store
	service  *ChatService
	saver    *persist.Saver
	renderer *ux.ChatRenderer
	console  *ux.Console
	sessions backend.SessionAPI
	identity persist.IdentityProvider
	input    InputReader
	logger   *slog.Logger
}

// NewChatRunner wires the runner.
func NewChatRunner(
	store *session.Store,
	service *ChatService,
	saver *persist.Saver,
	renderer *ux.ChatRenderer,
	console *ux.Console,
	sessions backend.SessionAPI,
	identity persist.IdentityProvider,
	input InputReader,
	logger *slog.Logger,
) *ChatRunner {
	return &ChatRunner{
		store:    store,
		service:  service,
		saver:    saver,
		renderer: renderer,
		console:  console,
		sessions: sessions,
		identity: identity,
		input:    input,
		logger:   logger,
	}
}

const promptString = "你> "

// Run executes the chat loop until exit, EOF or cancellation.
func (r *ChatRunner) Run(ctx context.Context) error {
	r.console.Infof("输入问题开始对话，/help 查看命令，exit 退出")

	active := r.store.Active()
	if len(active.Messages) > 0 {
		r.renderer.Transcript(active)
	}

	for {
		select {
		case <-ctx.Done():
			return r.shutdown(ctx)
		default:
		}

		if p, ok := r.input.(PromptingInputReader); ok {
			p.SetPrompt(promptString)
		} else {
			fmt.Print(promptString)
		}

		line, err := r.input.ReadLine()
		if err != nil {
			if err == io.EOF {
				r.flushActive(ctx)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			r.flushActive(ctx)
			return nil
		}
		if strings.HasPrefix(line, "/") {
			r.handleCommand(ctx, line)
			continue
		}

		if err := r.service.Send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return r.shutdown(ctx)
			}
			r.logger.Warn("question failed", "error", err)
		}
	}
}

// handleCommand dispatches one slash command.
func (r *ChatRunner) handleCommand(ctx context.Context, line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		r.printHelp()

	case "/new":
		fresh := r.store.StartNew()
		r.saver.Trigger(fresh.ID)
		r.console.Successf("已新建对话")

	case "/sessions":
		r.renderer.SessionList(r.store.Snapshot(), r.store.ActiveID())

	case "/switch":
		if len(args) != 1 {
			r.console.Warnf("用法：/switch <编号>")
			return
		}
		target, ok := r.sessionByNumber(args[0])
		if !ok {
			r.console.Warnf("没有编号为 %s 的对话", args[0])
			return
		}
		if err := r.store.SetActive(target.ID); err != nil {
			r.console.Errorf("切换失败：%v", err)
			return
		}
		r.renderer.Transcript(r.store.Active())

	case "/delete":
		r.deleteSession(ctx, args)

	case "/provider":
		if len(args) == 0 {
			r.console.Infof("当前提供商：%s", displayProvider(r.service.Provider()))
			return
		}
		r.service.SetProvider(args[0])
		r.console.Successf("已切换到 %s", args[0])

	default:
		r.console.Warnf("未知命令 %s，/help 查看命令", cmd)
	}
}

// deleteSession removes the numbered session (or the active one) and
// persists the change. Logged-in users also get the backend copy
// removed.
func (r *ChatRunner) deleteSession(ctx context.Context, args []string) {
	target := r.store.Active()
	if len(args) == 1 {
		var ok bool
		if target, ok = r.sessionByNumber(args[0]); !ok {
			r.console.Warnf("没有编号为 %s 的对话", args[0])
			return
		}
	}

	if target.IsRemote() && r.identity() != "" {
		if err := r.sessions.DeleteSession(ctx, target.RemoteID); err != nil {
			r.logger.Warn("failed to delete remote session",
				"remote_id", target.RemoteID, "error", err)
		}
	}

	newActive := r.store.Delete(target.ID)
	r.saver.Flush(ctx, newActive.ID)
	r.console.Successf("已删除「%s」", target.Title)
}

// sessionByNumber resolves a 1-based session list number.
func (r *ChatRunner) sessionByNumber(arg string) (session.Session, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return session.Session{}, false
	}
	sessions := r.store.Snapshot()
	if n < 1 || n > len(sessions) {
		return session.Session{}, false
	}
	return sessions[n-1], true
}

func (r *ChatRunner) printHelp() {
	r.console.Infof("/new              新建对话")
	r.console.Infof("/sessions         列出对话")
	r.console.Infof("/switch <编号>    切换对话")
	r.console.Infof("/delete [编号]    删除对话（默认当前）")
	r.console.Infof("/provider [名称]  查看或切换AI提供商")
	r.console.Infof("exit / quit       退出")
}

// flushActive forces a save of the active session.
func (r *ChatRunner) flushActive(ctx context.Context) {
	r.saver.Flush(ctx, r.store.ActiveID())
}

// shutdown saves state after cancellation and reports the context
// error.
func (r *ChatRunner) shutdown(ctx context.Context) error {
	r.logger.Info("shutting down chat", "session_id", r.store.ActiveID())
	r.flushActive(context.WithoutCancel(ctx))
	return ctx.Err()
}
