// Package export renders a finished answer map for hand-off: as structured
// JSON, as a human-readable form, or as a single-row CSV table.
package export

import (
	"slices"
	"strings"
)

// Format names an export shape.
type Format string

const (
	// FormatJSON produces indented JSON with sorted keys.
	FormatJSON Format = "json"

	// FormatFormatted produces a plain-text form with fixed sections.
	FormatFormatted Format = "formatted"

	// FormatCSV produces a header row and one value row.
	FormatCSV Format = "csv"
)

// DefaultFormat is used when no format is requested.
const DefaultFormat = FormatJSON

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	// Name is the format identifier.
	Name Format

	// MIMEType is the standard MIME type.
	MIMEType string

	// Extension is the file extension (with dot).
	Extension string

	// Description describes the format.
	Description string
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatJSON: {
		Name:        FormatJSON,
		MIMEType:    "application/json",
		Extension:   ".json",
		Description: "JSON - every answer keyed by field",
	},
	FormatFormatted: {
		Name:        FormatFormatted,
		MIMEType:    "text/plain",
		Extension:   ".txt",
		Description: "Formatted text - readable guest profile",
	},
	FormatCSV: {
		Name:        FormatCSV,
		MIMEType:    "text/csv",
		Extension:   ".csv",
		Description: "CSV - one row for spreadsheets",
	},
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	info, ok := FormatRegistry[format]
	return info, ok
}

// ParseFormat resolves a user-supplied format name, ignoring case.
func ParseFormat(name string) (Format, bool) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	_, ok := FormatRegistry[f]
	return f, ok
}

// Formats returns the supported formats in a stable order.
func Formats() []Format {
	out := make([]Format, 0, len(FormatRegistry))
	for f := range FormatRegistry {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// info returns the metadata for format, falling back to JSON like Render.
func info(format Format) FormatInfo {
	if fi, ok := FormatRegistry[format]; ok {
		return fi
	}
	return FormatRegistry[FormatJSON]
}
