package catalog

import (
	"cmp"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// DefaultPattern selects catalog fragments inside a directory.
const DefaultPattern = "**/*.{yaml,yml,json}"

//go:embed questions.yaml
var defaultCatalog []byte

// Provider supplies the question catalog sorted by order.
type Provider interface {
	Load(ctx context.Context) ([]Question, error)
}

// New returns the provider for path: the embedded catalog when path is empty,
// a DirProvider for directories, and a FileProvider otherwise.
func New(path string, logger *slog.Logger) Provider {
	if path == "" {
		return &EmbeddedProvider{Logger: logger}
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return &DirProvider{Root: path, Logger: logger}
	}
	return &FileProvider{Path: path, Logger: logger}
}

// FileProvider reads a single YAML or JSON catalog file.
type FileProvider struct {
	Path   string
	Logger *slog.Logger
}

func (p *FileProvider) Load(ctx context.Context) ([]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(p.Path, err)
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, unavailable(p.Path, err)
	}
	qs, err := Parse(data)
	if err != nil {
		return nil, unavailable(p.Path, err)
	}
	return finalize(p.Path, qs, p.Logger)
}

// DirProvider merges every catalog fragment under Root matching Pattern.
// Fragments are read in lexical path order before the merged list is sorted.
type DirProvider struct {
	Root    string
	Pattern string
	Logger  *slog.Logger
}

func (p *DirProvider) Load(ctx context.Context) ([]Question, error) {
	pattern := p.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}

	matches, err := doublestar.Glob(os.DirFS(p.Root), pattern)
	if err != nil {
		return nil, unavailable(p.Root, fmt.Errorf("glob %q: %w", pattern, err))
	}
	sort.Strings(matches)

	var all []Question
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return nil, unavailable(p.Root, err)
		}
		path := filepath.Join(p.Root, m)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, unavailable(path, err)
		}
		qs, err := Parse(data)
		if err != nil {
			return nil, unavailable(path, err)
		}
		all = append(all, qs...)
	}
	return finalize(p.Root, all, p.Logger)
}

// EmbeddedProvider serves the built-in podcast guest catalog.
type EmbeddedProvider struct {
	Logger *slog.Logger
}

func (p *EmbeddedProvider) Load(ctx context.Context) ([]Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("embedded", err)
	}
	qs, err := Parse(defaultCatalog)
	if err != nil {
		return nil, unavailable("embedded", err)
	}
	return finalize("embedded", qs, p.Logger)
}

// Sort orders questions by Order, keeping file order among equal ranks.
func Sort(qs []Question) {
	slices.SortStableFunc(qs, func(a, b Question) int {
		return cmp.Compare(a.Order, b.Order)
	})
}

func finalize(source string, qs []Question, logger *slog.Logger) ([]Question, error) {
	if len(qs) == 0 {
		return nil, &UnavailableError{Source: source, Empty: true}
	}
	if logger == nil {
		logger = slog.Default()
	}

	Sort(qs)
	for i := 1; i < len(qs); i++ {
		if qs[i].Order == qs[i-1].Order {
			logger.Warn("duplicate question order, keeping file order",
				"source", source,
				"order", qs[i].Order,
				"fields", []string{qs[i-1].Field, qs[i].Field})
		}
	}

	logger.Debug("catalog loaded", "source", source, "questions", len(qs))
	return qs, nil
}

// rawID accepts integer or string identifiers.
type rawID string

func (r *rawID) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: id must be a scalar", n.Line)
	}
	*r = rawID(n.Value)
	return nil
}

type rawValidation struct {
	Required  bool   `yaml:"required"`
	MinLength int    `yaml:"minLength"`
	MaxLength int    `yaml:"maxLength"`
	Pattern   string `yaml:"pattern"`
}

type rawQuestion struct {
	ID          rawID         `yaml:"id"`
	LegacyID    rawID         `yaml:"Id"`
	Order       int           `yaml:"order"`
	Field       string        `yaml:"field"`
	Text        string        `yaml:"text"`
	Type        string        `yaml:"type"`
	Placeholder string        `yaml:"placeholder"`
	Multiline   *bool         `yaml:"multiline"`
	Validation  rawValidation `yaml:"validation"`
}

// Parse decodes catalog data. The document is either a list of questions or
// a mapping with a "questions" list; JSON documents are accepted as YAML.
// The result is in document order.
func Parse(data []byte) ([]Question, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	var raws []rawQuestion
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&raws); err != nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
	case yaml.MappingNode:
		var wrapped struct {
			Questions []rawQuestion `yaml:"questions"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
		raws = wrapped.Questions
	default:
		return nil, fmt.Errorf("line %d: catalog must be a list or a mapping with questions", root.Line)
	}

	qs := make([]Question, 0, len(raws))
	for i, r := range raws {
		q, err := r.question()
		if err != nil {
			return nil, fmt.Errorf("question %d (%s): %w", i+1, r.Field, err)
		}
		qs = append(qs, q)
	}
	return qs, nil
}

func (r rawQuestion) question() (Question, error) {
	id := string(r.ID)
	if id == "" {
		id = string(r.LegacyID)
	}
	if id == "" {
		id = fmt.Sprintf("%d", r.Order)
	}

	qt := QuestionType(strings.ToLower(strings.TrimSpace(r.Type)))
	if qt == "" {
		qt = TypeText
	}

	q := Question{
		ID:          id,
		Order:       r.Order,
		Field:       strings.TrimSpace(r.Field),
		Text:        r.Text,
		Type:        qt,
		Placeholder: r.Placeholder,
		Multiline:   r.Multiline,
	}

	v := r.Validation
	if v.MinLength < 0 || v.MaxLength < 0 {
		return Question{}, fmt.Errorf("length limits must not be negative")
	}
	if v.Required {
		q.Rules = append(q.Rules, Required{})
	}
	if v.MinLength > 0 {
		q.Rules = append(q.Rules, MinLength{N: v.MinLength})
	}
	if v.MaxLength > 0 {
		q.Rules = append(q.Rules, MaxLength{N: v.MaxLength})
	}
	if v.Pattern != "" {
		re, err := regexp.Compile(v.Pattern)
		if err != nil {
			return Question{}, fmt.Errorf("compile pattern: %w", err)
		}
		q.Rules = append(q.Rules, Pattern{Expr: re})
	}
	return q, nil
}
