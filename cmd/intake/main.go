// Package main provides the intake binary entry point.
// Intake runs a guided podcast-guest interview in the terminal and exports
// the collected answers.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/c360studio/intake/catalog"
	"github.com/c360studio/intake/commands"
	"github.com/c360studio/intake/config"
	"github.com/c360studio/intake/export"
	"github.com/c360studio/intake/storage"
	"github.com/c360studio/intake/tui"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "intake"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand and override loaded config.
type globalFlags struct {
	configPath  string
	logLevel    string
	logFile     string
	metricsFile string
	session     string
	catalogPath string
	stateDir    string
	backend     string
}

// runFlags only apply to the interactive chat.
type runFlags struct {
	typingDelay time.Duration
	ephemeral   bool
}

func rootCmd() *cobra.Command {
	var (
		g globalFlags
		r runFlags
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Conversational podcast guest intake",
		Long: `Intake interviews a prospective podcast guest one question at a time.

Answers are validated as they arrive, the conversation is saved after every
step so it can be resumed, and the finished profile can be exported as JSON,
formatted text or CSV.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, &g, &r)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.logFile, "log-file", "", "Write logs to this file")
	pf.StringVar(&g.metricsFile, "metrics-file", "", "Write a Prometheus textfile on exit")
	pf.StringVarP(&g.session, "session", "s", "", "Session id to resume")
	pf.StringVar(&g.catalogPath, "catalog", "", "Question catalog file or directory")
	pf.StringVar(&g.stateDir, "state-dir", "", "State directory of the file backend")
	pf.StringVar(&g.backend, "backend", "", "Storage backend (file, memory, nats, redis)")

	addRunFlags := func(c *cobra.Command) {
		c.Flags().DurationVar(&r.typingDelay, "typing-delay", -1, "Host typing delay (e.g. 0s, 1.5s)")
		c.Flags().BoolVar(&r.ephemeral, "ephemeral", false, "Keep nothing on disk and use a fresh session")
	}
	addRunFlags(cmd)

	run := &cobra.Command{
		Use:   "run",
		Short: "Start or resume the interview (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, &g, &r)
		},
	}
	addRunFlags(run)

	cmd.AddCommand(
		run,
		statusCmd(&g),
		exportCmd(&g),
		resetCmd(&g),
		catalogCmd(&g),
		configCmd(&g),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

// loadConfig applies flags over the layered configuration.
func loadConfig(g *globalFlags, r *runFlags) (*config.Config, error) {
	cfg, err := config.NewLoader(slog.New(slog.NewTextHandler(io.Discard, nil))).Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if g.logLevel != "" {
		cfg.Log.Level = strings.ToLower(g.logLevel)
	}
	if g.logFile != "" {
		cfg.Log.File = g.logFile
	}
	if g.metricsFile != "" {
		cfg.Metrics.File = g.metricsFile
	}
	if g.session != "" {
		cfg.Session.ID = g.session
	}
	if g.catalogPath != "" {
		cfg.Catalog.Path = g.catalogPath
	}
	if g.stateDir != "" {
		cfg.Storage.Dir = g.stateDir
	}
	if g.backend != "" {
		cfg.Storage.Backend = g.backend
	}

	if r != nil {
		if r.typingDelay >= 0 {
			cfg.Session.StartDelay = r.typingDelay
			cfg.Session.TypingDelay = r.typingDelay
		}
		if r.ephemeral {
			cfg.Storage.Backend = storage.KindMemory
			cfg.Session.ID = uuid.NewString()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. When quiet is set the chat UI owns
// the terminal, so logs go to the configured file or to intake.log in the
// state directory. Memory-backed sessions keep nothing on disk and discard
// them instead.
func newLogger(cfg *config.Config, quiet bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var (
		w       io.Writer = os.Stderr
		cleanup           = func() {}
	)
	path := cfg.Log.File
	if path == "" && quiet && cfg.Storage.Backend == storage.KindFile {
		path = filepath.Join(cfg.Storage.Dir, "intake.log")
	}
	switch {
	case path != "":
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		cleanup = func() { _ = f.Close() }
	case quiet:
		w = io.Discard
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

// setup loads configuration, builds the logger and opens the app.
func setup(ctx context.Context, g *globalFlags, r *runFlags, quiet bool) (*App, func(), error) {
	cfg, err := loadConfig(g, r)
	if err != nil {
		return nil, nil, err
	}
	logger, closeLog, err := newLogger(cfg, quiet)
	if err != nil {
		return nil, nil, err
	}

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return app, func() {
		if err := app.Close(); err != nil {
			logger.Warn("Shutdown incomplete", "error", err)
		}
		closeLog()
	}, nil
}

func runChat(cmd *cobra.Command, g *globalFlags, r *runFlags) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, shutdown, err := setup(ctx, g, r, true)
	if err != nil {
		return err
	}
	defer shutdown()

	format, _ := export.ParseFormat(app.cfg.Export.Format)
	model := tui.New(ctx, tui.Options{
		Load:         app.Open,
		Commands:     commands.Default(),
		ExportDir:    app.cfg.Export.Dir,
		ExportFormat: format,
		OnExport:     app.RecordExport,
		Logger:       app.logger,
	})

	app.logger.Info("Starting intake", "version", Version, "session", app.cfg.Session.ID)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("run chat: %w", err)
	}
	return nil
}

func statusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the progress of the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, shutdown, err := setup(ctx, g, nil, false)
			if err != nil {
				return err
			}
			defer shutdown()

			m, _, err := app.Machine(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session: %s\n%s\n", app.cfg.Session.ID, commands.Summary(&commands.Env{Machine: m}))
			return nil
		},
	}
}

func exportCmd(g *globalFlags) *cobra.Command {
	var (
		formatName string
		outDir     string
		clipboard  bool
		stdout     bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the answers of a completed session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, shutdown, err := setup(ctx, g, nil, false)
			if err != nil {
				return err
			}
			defer shutdown()

			m, _, err := app.Machine(ctx)
			if err != nil {
				return err
			}
			if !m.IsComplete() {
				cur, total := m.Progress()
				return fmt.Errorf("session %q is not complete (%d/%d answered)", app.cfg.Session.ID, cur, total)
			}

			if formatName == "" {
				formatName = app.cfg.Export.Format
			}
			format, ok := export.ParseFormat(formatName)
			if !ok {
				return fmt.Errorf("unknown format %q (use json, formatted or csv)", formatName)
			}
			if outDir == "" {
				outDir = app.cfg.Export.Dir
			}

			now := time.Now()
			switch {
			case stdout:
				_, err = fmt.Fprintln(cmd.OutOrStdout(), export.Render(m.Answers(), format, now))
				app.RecordExport(format, err)
				return err
			case clipboard:
				err = export.CopyToClipboard(m.Answers(), format, now)
				app.RecordExport(format, err)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Copied to clipboard!")
				return nil
			}

			path, err := export.WriteFile(outDir, m.Answers(), format, now)
			app.RecordExport(format, err)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&formatName, "format", "f", "", "Export format (json, formatted, csv)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory to write the export to")
	cmd.Flags().BoolVar(&clipboard, "clipboard", false, "Copy to the clipboard instead of writing a file")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Print to standard output instead of writing a file")
	return cmd
}

func resetCmd(g *globalFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, shutdown, err := setup(ctx, g, nil, false)
			if err != nil {
				return err
			}
			defer shutdown()

			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
				fmt.Sprintf("Clear session %q and every answer? [y/N] ", app.cfg.Session.ID)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}

			if err := app.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s cleared.\n", app.cfg.Session.ID)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default user config if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd.OutOrStdout(), config.NewLoader(nil))
		},
	}

	validate := &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a config file, or the layered configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cfg, err := loadConfig(g, nil)
				if err != nil {
					return err
				}
				printConfig(cmd.OutOrStdout(), cfg)
				return nil
			}
			return validateConfig(cmd.OutOrStdout(), args[0])
		},
	}

	cmd.AddCommand(initCmd, validate)
	return cmd
}

func initConfig(w io.Writer, l *config.Loader) error {
	path, created, err := l.EnsureUserConfig()
	if err != nil {
		return fmt.Errorf("create user config: %w", err)
	}
	if created {
		fmt.Fprintf(w, "Wrote default configuration to %s\n", path)
	} else {
		fmt.Fprintf(w, "User configuration already exists at %s\n", path)
	}
	return nil
}

// validateConfig checks a single file on top of the defaults.
func validateConfig(w io.Writer, path string) error {
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	printConfig(w, cfg)
	return nil
}

func printConfig(w io.Writer, cfg *config.Config) {
	source := cfg.Catalog.Path
	if source == "" {
		source = "built-in"
	}
	fmt.Fprintf(w, "Configuration OK\n  backend: %s\n  session: %s\n  catalog: %s\n",
		cfg.Storage.Backend, cfg.Session.ID, source)
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func catalogCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect question catalogs",
	}

	var watch bool
	lint := &cobra.Command{
		Use:   "lint [path]",
		Short: "Check a catalog for mistakes",
		Long: `Lint loads a catalog file or directory and reports duplicate fields or
orders, missing text, unknown types and contradictory length limits.
Without a path the configured catalog is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g, nil)
			if err != nil {
				return err
			}
			logger, closeLog, err := newLogger(cfg, false)
			if err != nil {
				return err
			}
			defer closeLog()

			path := cfg.Catalog.Path
			if len(args) == 1 {
				path = args[0]
			}
			out := cmd.OutOrStdout()

			if watch {
				if path == "" {
					return fmt.Errorf("--watch needs a catalog path")
				}
				ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()
				return catalog.Watch(ctx, catalog.WatchConfig{
					Path:    path,
					Pattern: cfg.Catalog.Pattern,
					Logger:  logger,
				}, func(ev catalog.WatchEvent) {
					fmt.Fprintf(out, "--- %s\n", time.Now().Format(time.TimeOnly))
					printLint(out, ev.Questions, ev.Issues, ev.Err)
				})
			}

			provider := catalog.New(path, logger)
			if dp, ok := provider.(*catalog.DirProvider); ok && cfg.Catalog.Pattern != "" {
				dp.Pattern = cfg.Catalog.Pattern
			}
			qs, err := provider.Load(cmd.Context())
			var issues []catalog.Issue
			if err == nil {
				issues = catalog.Lint(qs)
			}
			if !printLint(out, qs, issues, err) {
				return fmt.Errorf("catalog has errors")
			}
			return nil
		},
	}
	lint.Flags().BoolVarP(&watch, "watch", "w", false, "Re-lint whenever the catalog changes")

	cmd.AddCommand(lint)
	return cmd
}

// printLint reports a lint run and returns false when the catalog is unusable.
func printLint(w io.Writer, qs []catalog.Question, issues []catalog.Issue, err error) bool {
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return false
	}
	for _, issue := range issues {
		fmt.Fprintln(w, issue.String())
	}
	fmt.Fprintf(w, "%d questions, %d issues\n", len(qs), len(issues))
	return !catalog.HasErrors(issues)
}
