// Package commands provides the slash commands a respondent can type into
// the chat instead of an answer. Each command declares a regex pattern; the
// capture groups become its arguments.
package commands

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/intake/export"
	"github.com/c360studio/intake/session"
)

// CommandConfig describes how a command is matched and documented.
type CommandConfig struct {
	// Pattern is matched against the whole trimmed input.
	Pattern string

	// Help is the one-line usage shown by /help.
	Help string
}

// ResponseType classifies a command response.
type ResponseType string

const (
	ResponseTypeResult  ResponseType = "result"
	ResponseTypeError   ResponseType = "error"
	ResponseTypeConfirm ResponseType = "confirm"
)

// Response is what a command reports back to the chat.
type Response struct {
	ResponseID string
	Type       ResponseType
	Content    string
	Timestamp  time.Time

	// Turn is a host turn the driver must schedule, set when a command
	// restarted the conversation.
	Turn *session.Turn
}

// Env is the state a command operates on.
type Env struct {
	Machine       *session.Machine
	ExportDir     string
	DefaultFormat export.Format
	Now           func() time.Time

	// OnExport is called after every export attempt.
	OnExport func(format export.Format, err error)
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Executor is a single slash command.
type Executor interface {
	Config() CommandConfig
	Execute(ctx context.Context, env *Env, args []string) (Response, error)
}

type registered struct {
	executor Executor
	pattern  *regexp.Regexp
}

// Registry holds the available commands.
type Registry struct {
	commands map[string]registered
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]registered)}
}

// Default returns a registry with the built-in commands.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister("help", &HelpCommand{registry: r})
	r.MustRegister("status", &StatusCommand{})
	r.MustRegister("export", &ExportCommand{})
	r.MustRegister("reset", &ResetCommand{})
	return r
}

// Register adds a command under name.
func (r *Registry) Register(name string, e Executor) error {
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %q already registered", name)
	}
	re, err := regexp.Compile(e.Config().Pattern)
	if err != nil {
		return fmt.Errorf("command %q pattern: %w", name, err)
	}
	r.commands[name] = registered{executor: e, pattern: re}
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(name string, e Executor) {
	if err := r.Register(name, e); err != nil {
		panic(err)
	}
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (Executor, bool) {
	c, ok := r.commands[name]
	return c.executor, ok
}

// IsCommand reports whether input is meant as a slash command.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// Dispatch runs the command matching input. Input that looks like a command
// but matches none yields an error response pointing at /help.
func (r *Registry) Dispatch(ctx context.Context, env *Env, input string) (Response, error) {
	input = strings.TrimSpace(input)
	if err := ctx.Err(); err != nil {
		return errorResponse(env, fmt.Sprintf("Request cancelled: %v", err)), nil
	}

	for _, name := range r.Names() {
		c := r.commands[name]
		m := c.pattern.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		return c.executor.Execute(ctx, env, m[1:])
	}

	word, _, _ := strings.Cut(input, " ")
	return errorResponse(env, fmt.Sprintf("Unknown command: %s\n\nRun /help to see available commands.", word)), nil
}

func newResponse(env *Env, typ ResponseType, content string) Response {
	return Response{
		ResponseID: uuid.New().String(),
		Type:       typ,
		Content:    content,
		Timestamp:  env.now(),
	}
}

func errorResponse(env *Env, content string) Response {
	return newResponse(env, ResponseTypeError, content)
}

// arg returns the trimmed i-th capture, or "".
func arg(args []string, i int) string {
	if i < len(args) {
		return strings.TrimSpace(args[i])
	}
	return ""
}
