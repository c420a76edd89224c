// Package validation checks a respondent's answer against the rules of its
// question. Rules run in a fixed order and the first failure wins, so the
// respondent always sees a single, predictable message.
package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/c360studio/intake/catalog"
)

// Reason identifies which rule rejected an answer.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonRequired Reason = "required"
	ReasonTooShort Reason = "too_short"
	ReasonTooLong  Reason = "too_long"
	ReasonFormat   Reason = "format"
)

// Messages shown to the respondent.
const (
	MsgRequired     = "This field is required."
	MsgEmailFormat  = "Please enter a valid email address."
	MsgFormat       = "Please enter a valid format."
	msgTooShortTmpl = "Please provide at least %d characters."
	msgTooLongTmpl  = "Please keep your response under %d characters."
)

// order is the evaluation order of rule kinds, independent of how the
// catalog declares them.
var order = []catalog.RuleKind{
	catalog.KindRequired,
	catalog.KindMinLength,
	catalog.KindMaxLength,
	catalog.KindPattern,
}

// Result is the outcome of validating one answer.
type Result struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
}

func accept() Result {
	return Result{Accepted: true}
}

func reject(reason Reason, msg string) Result {
	return Result{Reason: reason, Message: msg}
}

// Validate checks raw against the rules of q. The answer is trimmed before
// any rule runs and lengths are counted in characters, not bytes.
// A question without rules accepts anything, including the empty string.
func Validate(q catalog.Question, raw string) Result {
	answer := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(answer)

	for _, kind := range order {
		for _, rule := range q.Rules {
			if rule.Kind() != kind {
				continue
			}
			switch r := rule.(type) {
			case catalog.Required:
				if answer == "" {
					return reject(ReasonRequired, MsgRequired)
				}
			case catalog.MinLength:
				if n < r.N {
					return reject(ReasonTooShort, fmt.Sprintf(msgTooShortTmpl, r.N))
				}
			case catalog.MaxLength:
				if n > r.N {
					return reject(ReasonTooLong, fmt.Sprintf(msgTooLongTmpl, r.N))
				}
			case catalog.Pattern:
				if !r.MatchString(answer) {
					return reject(ReasonFormat, formatMessage(q))
				}
			}
		}
	}
	return accept()
}

func formatMessage(q catalog.Question) string {
	if q.Type == catalog.TypeEmail {
		return MsgEmailFormat
	}
	return MsgFormat
}
