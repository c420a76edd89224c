package export

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/atotto/clipboard"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	separatorRe  = regexp.MustCompile(`[/\\]+`)
)

// clipboardWrite is swapped in tests.
var clipboardWrite = clipboard.WriteAll

// Error reports a failed export. It never affects the session.
type Error struct {
	Op     string
	Format Format
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export %s (%s): %v", e.Op, e.Format, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Filename builds the download name for an export:
// guest-intake-<name>-<unix millis>.<ext>, with the name lower-cased and
// whitespace runs replaced by dashes.
func Filename(answers map[string]string, format Format, t time.Time) string {
	slug := strings.TrimSpace(answers["name"])
	slug = whitespaceRe.ReplaceAllString(slug, "-")
	slug = separatorRe.ReplaceAllString(slug, "-")
	slug = strings.ToLower(slug)
	if slug == "" {
		slug = "unknown"
	}
	return fmt.Sprintf("guest-intake-%s-%d%s", slug, t.UnixMilli(), info(format).Extension)
}

// WriteFile renders answers and writes them into dir under Filename.
// It returns the written path.
func WriteFile(dir string, answers map[string]string, format Format, t time.Time) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &Error{Op: "write", Format: format, Err: err}
	}

	path := filepath.Join(dir, Filename(answers, format, t))
	if err := os.WriteFile(path, []byte(Render(answers, format, t)), 0o644); err != nil {
		return "", &Error{Op: "write", Format: format, Err: err}
	}
	return path, nil
}

// CopyToClipboard renders answers and places them on the system clipboard.
func CopyToClipboard(answers map[string]string, format Format, t time.Time) error {
	if err := clipboardWrite(Render(answers, format, t)); err != nil {
		return &Error{Op: "clipboard", Format: format, Err: err}
	}
	return nil
}
