package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// StatusCommand implements the /status command.
type StatusCommand struct{}

// Config returns the command configuration.
func (c *StatusCommand) Config() CommandConfig {
	return CommandConfig{
		Pattern: `^/status\s*$`,
		Help:    "/status - Show progress and the answers collected so far",
	}
}

// Execute runs the status command.
func (c *StatusCommand) Execute(_ context.Context, env *Env, _ []string) (Response, error) {
	return newResponse(env, ResponseTypeResult, Summary(env)), nil
}

// Summary describes the session state in a few lines.
func Summary(env *Env) string {
	m := env.Machine
	cur, total := m.Progress()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Phase: %s\n", m.Phase())
	fmt.Fprintf(&sb, "Progress: %d/%d\n", cur, total)

	if q, ok := m.CurrentQuestion(); ok && m.HasStarted() {
		fmt.Fprintf(&sb, "Current question: %s\n", q.Field)
	}

	answers := m.Answers()
	if len(answers) == 0 {
		sb.WriteString("Answered: none")
		return sb.String()
	}
	fields := make([]string, 0, len(answers))
	for f := range answers {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	sb.WriteString("Answered: " + strings.Join(fields, ", "))
	return sb.String()
}
