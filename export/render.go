package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

const notProvided = "Not provided"

// section is one entry of the human-readable and tabular layouts.
type section struct {
	field  string
	title  string
	header string
	inline bool
}

var sections = []section{
	{field: "name", title: "NAME", header: "Name", inline: true},
	{field: "email", title: "EMAIL", header: "Email", inline: true},
	{field: "bio", title: "BIO", header: "Bio"},
	{field: "expertise", title: "EXPERTISE", header: "Expertise"},
	{field: "topics", title: "DISCUSSION TOPICS", header: "Topics"},
	{field: "socialLinks", title: "SOCIAL LINKS", header: "Social Links"},
	{field: "availability", title: "AVAILABILITY", header: "Availability"},
}

// Render formats answers in the requested shape. Unknown formats produce
// JSON. The result depends only on the arguments.
func Render(answers map[string]string, format Format, generatedAt time.Time) string {
	switch format {
	case FormatFormatted:
		return renderFormatted(answers, generatedAt)
	case FormatCSV:
		return renderCSV(answers)
	default:
		return renderJSON(answers)
	}
}

func renderJSON(answers map[string]string) string {
	if answers == nil {
		answers = map[string]string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	// A map of strings always encodes.
	_ = enc.Encode(answers)
	return strings.TrimSuffix(buf.String(), "\n")
}

func renderFormatted(answers map[string]string, generatedAt time.Time) string {
	var sb strings.Builder
	sb.WriteString("PODCAST GUEST INTAKE FORM\n")
	sb.WriteString("Generated: " + generatedAt.Format("2006-01-02") + "\n")

	for i, s := range sections {
		v := answers[s.field]
		if v == "" {
			v = notProvided
		}
		// Inline sections share one block, the rest are separated.
		if i == 0 || !s.inline {
			sb.WriteString("\n")
		}
		if s.inline {
			sb.WriteString(s.title + ": " + v + "\n")
		} else {
			sb.WriteString(s.title + ":\n" + v + "\n")
		}
	}
	return sb.String()
}

func renderCSV(answers map[string]string) string {
	headers := make([]string, len(sections))
	values := make([]string, len(sections))
	for i, s := range sections {
		headers[i] = s.header
		values[i] = quoteCSV(answers[s.field])
	}
	return strings.Join(headers, ",") + "\n" + strings.Join(values, ",")
}

// quoteCSV always quotes so embedded commas and newlines survive.
func quoteCSV(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
