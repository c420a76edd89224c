package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var generated = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func fullAnswers() map[string]string {
	return map[string]string{
		"name":         "Ada Lovelace",
		"email":        "ada@example.com",
		"bio":          "Mathematician.\nWrote the first program.",
		"expertise":    "Analytical engines",
		"topics":       `She said "hi" to Babbage, then left`,
		"socialLinks":  "https://example.com/ada",
		"availability": "Weekday mornings",
	}
}

func TestRenderJSON(t *testing.T) {
	out := Render(map[string]string{"name": "Ada", "email": "a<b>@example.com"}, FormatJSON, generated)
	assert.Equal(t, "{\n  \"email\": \"a<b>@example.com\",\n  \"name\": \"Ada\"\n}", out)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(Render(fullAnswers(), FormatJSON, generated)), &decoded))
	assert.Equal(t, fullAnswers(), decoded)

	assert.Equal(t, "{}", Render(nil, FormatJSON, generated))
}

func TestRenderUnknownFallsBackToJSON(t *testing.T) {
	a := fullAnswers()
	assert.Equal(t, Render(a, FormatJSON, generated), Render(a, Format("xml"), generated))
}

func TestRenderFormatted(t *testing.T) {
	out := Render(map[string]string{"name": "Ada", "bio": "Line one\nLine two"}, FormatFormatted, generated)

	want := `PODCAST GUEST INTAKE FORM
Generated: 2025-06-01

NAME: Ada
EMAIL: Not provided

BIO:
Line one
Line two

EXPERTISE:
Not provided

DISCUSSION TOPICS:
Not provided

SOCIAL LINKS:
Not provided

AVAILABILITY:
Not provided
`
	assert.Equal(t, want, out)
}

func TestRenderCSV(t *testing.T) {
	out := Render(fullAnswers(), FormatCSV, generated)
	header, row, ok := strings.Cut(out, "\n")
	require.True(t, ok)

	assert.Equal(t, "Name,Email,Bio,Expertise,Topics,Social Links,Availability", header)
	assert.True(t, strings.HasPrefix(row, `"Ada Lovelace","ada@example.com","Mathematician.`))
	assert.Contains(t, row, `"She said ""hi"" to Babbage, then left"`)

	empty := Render(map[string]string{}, FormatCSV, generated)
	assert.True(t, strings.HasSuffix(empty, "\n"+`"","","","","","",""`))
}

func TestRenderIsDeterministic(t *testing.T) {
	for _, f := range Formats() {
		t.Run(string(f), func(t *testing.T) {
			assert.Equal(t, Render(fullAnswers(), f, generated), Render(fullAnswers(), f, generated))
		})
	}
}

func TestFilename(t *testing.T) {
	ts := time.UnixMilli(1717230000123)

	tests := []struct {
		name    string
		answers map[string]string
		format  Format
		want    string
	}{
		{"json", map[string]string{"name": "Ada Lovelace"}, FormatJSON, "guest-intake-ada-lovelace-1717230000123.json"},
		{"formatted is txt", map[string]string{"name": "Ada"}, FormatFormatted, "guest-intake-ada-1717230000123.txt"},
		{"csv", map[string]string{"name": "Ada"}, FormatCSV, "guest-intake-ada-1717230000123.csv"},
		{"collapses whitespace", map[string]string{"name": "  Grace \t Brewster  Hopper "}, FormatJSON, "guest-intake-grace-brewster-hopper-1717230000123.json"},
		{"no name", map[string]string{}, FormatJSON, "guest-intake-unknown-1717230000123.json"},
		{"no separators", map[string]string{"name": "../etc/passwd"}, FormatCSV, "guest-intake-..-etc-passwd-1717230000123.csv"},
		{"unknown format", map[string]string{"name": "Ada"}, Format("xml"), "guest-intake-ada-1717230000123.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.answers, tt.format, ts))
		})
	}
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	path, err := WriteFile(dir, fullAnswers(), FormatCSV, generated)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Render(fullAnswers(), FormatCSV, generated), string(data))
}

func TestWriteFileError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := WriteFile(file, fullAnswers(), FormatJSON, generated)
	require.Error(t, err)
	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "write", ee.Op)
}

func TestCopyToClipboard(t *testing.T) {
	orig := clipboardWrite
	t.Cleanup(func() { clipboardWrite = orig })

	var got string
	clipboardWrite = func(s string) error {
		got = s
		return nil
	}
	require.NoError(t, CopyToClipboard(fullAnswers(), FormatFormatted, generated))
	assert.Equal(t, Render(fullAnswers(), FormatFormatted, generated), got)

	clipboardWrite = func(string) error { return errors.New("no clipboard utilities available") }
	err := CopyToClipboard(fullAnswers(), FormatJSON, generated)
	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "clipboard", ee.Op)
	assert.Equal(t, FormatJSON, ee.Format)
}

func TestParseFormat(t *testing.T) {
	f, ok := ParseFormat(" CSV ")
	assert.True(t, ok)
	assert.Equal(t, FormatCSV, f)

	_, ok = ParseFormat("turtle")
	assert.False(t, ok)

	assert.Equal(t, []Format{FormatCSV, FormatFormatted, FormatJSON}, Formats())
	info, ok := GetFormatInfo(FormatFormatted)
	require.True(t, ok)
	assert.Equal(t, ".txt", info.Extension)
}
