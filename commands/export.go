package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/intake/export"
)

// ExportCommand implements the /export command.
type ExportCommand struct{}

// Config returns the command configuration.
func (c *ExportCommand) Config() CommandConfig {
	return CommandConfig{
		Pattern: `^/export(?:\s+(\S+))?(?:\s+(\S+))?\s*$`,
		Help:    "/export [format] [dir] - Save your answers to a file (formats: " + formatList() + ")",
	}
}

// Execute runs the export command.
func (c *ExportCommand) Execute(_ context.Context, env *Env, args []string) (Response, error) {
	if !env.Machine.IsComplete() {
		return errorResponse(env, "Export is available once every question has been answered."), nil
	}

	format := env.DefaultFormat
	if format == "" {
		format = export.DefaultFormat
	}
	if a := arg(args, 0); a != "" {
		f, ok := export.ParseFormat(a)
		if !ok {
			return errorResponse(env, fmt.Sprintf("Unknown format: %s\n\nSupported formats: %s", a, formatList())), nil
		}
		format = f
	}

	dir := env.ExportDir
	if a := arg(args, 1); a != "" {
		dir = a
	}

	path, err := export.WriteFile(dir, env.Machine.Answers(), format, env.now())
	if env.OnExport != nil {
		env.OnExport(format, err)
	}
	if err != nil {
		return errorResponse(env, fmt.Sprintf("Export failed: %v", err)), nil
	}
	return newResponse(env, ResponseTypeResult, "Exported to "+path), nil
}

func formatList() string {
	names := make([]string, 0, len(export.FormatRegistry))
	for _, f := range export.Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}
