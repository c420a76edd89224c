// Package catalog loads the ordered list of questions that drives an intake
// conversation. A catalog is read once per session and never mutated.
package catalog

import (
	"regexp"
	"slices"
	"sync"
)

// QuestionType is the answer type tag of a question. It influences the input
// affordance and the wording of format errors.
type QuestionType string

const (
	TypeText     QuestionType = "text"
	TypeTextarea QuestionType = "textarea"
	TypeEmail    QuestionType = "email"
	TypeURL      QuestionType = "url"
)

// longFormFields are answered in a multi-line input even when the question
// carries no textarea tag. Older catalogs relied on this instead of the type.
var longFormFields = []string{"bio", "topics", "availability"}

// Question is one entry of the catalog.
type Question struct {
	ID          string       `json:"id" yaml:"id"`
	Order       int          `json:"order" yaml:"order"`
	Field       string       `json:"field" yaml:"field"`
	Text        string       `json:"text" yaml:"text"`
	Type        QuestionType `json:"type" yaml:"type"`
	Placeholder string       `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`

	// Multiline overrides long-form inference when set.
	Multiline *bool `json:"multiline,omitempty" yaml:"multiline,omitempty"`

	// Rules is the closed rule set parsed from the validation block.
	Rules []Rule `json:"-" yaml:"-"`
}

// IsLongForm reports whether the question expects a multi-line answer: the
// explicit flag when present, otherwise the textarea tag or a known
// long-form field name.
func (q Question) IsLongForm() bool {
	if q.Multiline != nil {
		return *q.Multiline
	}
	return q.Type == TypeTextarea || slices.Contains(longFormFields, q.Field)
}

// Required reports whether the question carries a Required rule.
func (q Question) Required() bool {
	for _, r := range q.Rules {
		if _, ok := r.(Required); ok {
			return true
		}
	}
	return false
}

// RuleKind orders rule evaluation.
type RuleKind int

const (
	KindRequired RuleKind = iota
	KindMinLength
	KindMaxLength
	KindPattern
)

func (k RuleKind) String() string {
	switch k {
	case KindRequired:
		return "required"
	case KindMinLength:
		return "minLength"
	case KindMaxLength:
		return "maxLength"
	case KindPattern:
		return "pattern"
	default:
		return "unknown"
	}
}

// Rule is a validation rule. The set of variants is closed: Required,
// MinLength, MaxLength and Pattern.
type Rule interface {
	Kind() RuleKind
	isRule()
}

// Required rejects empty answers.
type Required struct{}

// MinLength rejects answers shorter than N characters.
type MinLength struct{ N int }

// MaxLength rejects answers longer than N characters.
type MaxLength struct{ N int }

// Pattern rejects answers that do not match Expr in full.
type Pattern struct{ Expr *regexp.Regexp }

// anchoredExprs caches the ^(?:expr)$ form of each pattern source.
var anchoredExprs sync.Map

// MatchString reports whether the whole of s matches Expr. Patterns are
// matched as if wrapped in ^(?:...)$, so an unanchored expression never
// accepts an answer that merely contains a match. A nil Expr matches
// everything.
func (p Pattern) MatchString(s string) bool {
	if p.Expr == nil {
		return true
	}
	src := p.Expr.String()
	if re, ok := anchoredExprs.Load(src); ok {
		return re.(*regexp.Regexp).MatchString(s)
	}
	re := regexp.MustCompile(`^(?:` + src + `)$`)
	anchoredExprs.Store(src, re)
	return re.MatchString(s)
}

func (Required) Kind() RuleKind  { return KindRequired }
func (MinLength) Kind() RuleKind { return KindMinLength }
func (MaxLength) Kind() RuleKind { return KindMaxLength }
func (Pattern) Kind() RuleKind   { return KindPattern }

func (Required) isRule()  {}
func (MinLength) isRule() {}
func (MaxLength) isRule() {}
func (Pattern) isRule()   {}
