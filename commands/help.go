package commands

import (
	"context"
	"fmt"
	"strings"
)

// HelpCommand implements the /help command for listing available commands.
type HelpCommand struct {
	registry *Registry
}

// Config returns the command configuration.
func (c *HelpCommand) Config() CommandConfig {
	return CommandConfig{
		Pattern: `^/help(?:\s+(.*))?$`,
		Help:    "/help [command] - Show available commands or command details",
	}
}

// Execute runs the help command.
func (c *HelpCommand) Execute(_ context.Context, env *Env, args []string) (Response, error) {
	name := strings.TrimPrefix(arg(args, 0), "/")
	if name != "" {
		cmd, ok := c.registry.Lookup(name)
		if !ok {
			return errorResponse(env, fmt.Sprintf("Unknown command: /%s\n\nRun /help to see available commands.", name)), nil
		}
		return newResponse(env, ResponseTypeResult, cmd.Config().Help), nil
	}

	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, n := range c.registry.Names() {
		cmd, _ := c.registry.Lookup(n)
		sb.WriteString("  " + cmd.Config().Help + "\n")
	}
	sb.WriteString("\nAnything else you type is your answer to the current question.")
	return newResponse(env, ResponseTypeResult, sb.String()), nil
}
