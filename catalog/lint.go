package catalog

import (
	"fmt"
	"strings"
)

// Severity grades a lint issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a problem found by Lint.
type Issue struct {
	Severity Severity `json:"severity"`
	Field    string   `json:"field,omitempty"`
	Order    int      `json:"order"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	field := i.Field
	if field == "" {
		field = "?"
	}
	return fmt.Sprintf("%s: order %d (%s): %s", i.Severity, i.Order, field, i.Message)
}

// Lint checks a catalog for authoring mistakes. Issues come back in catalog
// order.
func Lint(qs []Question) []Issue {
	var issues []Issue
	add := func(q Question, sev Severity, format string, args ...any) {
		issues = append(issues, Issue{
			Severity: sev,
			Field:    q.Field,
			Order:    q.Order,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	orders := make(map[int]string, len(qs))
	fields := make(map[string]int, len(qs))

	for _, q := range qs {
		if strings.TrimSpace(q.Field) == "" {
			add(q, SeverityError, "missing field name")
		} else if prev, ok := fields[q.Field]; ok {
			add(q, SeverityError, "duplicate field, also used at order %d", prev)
		} else {
			fields[q.Field] = q.Order
		}

		if prev, ok := orders[q.Order]; ok {
			add(q, SeverityError, "duplicate order, also used by %q", prev)
		} else {
			orders[q.Order] = q.Field
		}

		if strings.TrimSpace(q.Text) == "" {
			add(q, SeverityError, "missing question text")
		}

		switch q.Type {
		case TypeText, TypeTextarea, TypeEmail, TypeURL:
		default:
			add(q, SeverityWarning, "unknown type %q, treated as text", q.Type)
		}

		minN, maxN := -1, -1
		hasPattern := false
		for _, r := range q.Rules {
			switch r := r.(type) {
			case MinLength:
				minN = r.N
			case MaxLength:
				maxN = r.N
			case Pattern:
				hasPattern = true
			}
		}
		if minN >= 0 && maxN >= 0 && minN > maxN {
			add(q, SeverityError, "minLength %d exceeds maxLength %d", minN, maxN)
		}
		if q.Type == TypeEmail && !hasPattern {
			add(q, SeverityWarning, "email question has no pattern, any text is accepted")
		}
	}
	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
