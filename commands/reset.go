package commands

import "context"

// ResetCommand implements the /reset command. A bare /reset only asks for
// confirmation; /reset confirm clears the session and starts over.
type ResetCommand struct{}

// Config returns the command configuration.
func (c *ResetCommand) Config() CommandConfig {
	return CommandConfig{
		Pattern: `^/reset(?:\s+(confirm))?\s*$`,
		Help:    "/reset [confirm] - Clear every answer and start over",
	}
}

// Execute runs the reset command.
func (c *ResetCommand) Execute(ctx context.Context, env *Env, args []string) (Response, error) {
	if arg(args, 0) != "confirm" {
		return newResponse(env, ResponseTypeConfirm,
			"This clears the whole conversation and every answer. Type /reset confirm to continue."), nil
	}

	env.Machine.Reset(ctx)
	turn, err := env.Machine.Start(ctx)
	if err != nil {
		return errorResponse(env, "Conversation cleared, but it could not restart: "+err.Error()), nil
	}
	resp := newResponse(env, ResponseTypeResult, "Conversation cleared.")
	resp.Turn = turn
	return resp, nil
}
