package prompts

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"gopkg.in/yaml.v3"

	"metacurator/internal/document"
	"metacurator/internal/protocol"
	"metacurator/internal/session"
)

// Mode selects which protocol prompt list accompanies the general one.
type Mode string

const (
	ModeMetadata Mode = "metadata"
	ModeCurator  Mode = "curator"
)

const (
	// HistoryWindow is the number of trailing turns included in the prompt.
	HistoryWindow = 15
	// historyTokenBudget bounds the rendered history section.
	historyTokenBudget = 6000
)

// ComposeInput carries everything a single prompt is rendered from.
type ComposeInput struct {
	Document  document.Document
	History   []session.Turn
	Protocol  protocol.Effective
	UserInput string
	Mode      Mode
}

// Composer renders the per-turn prompt. Pure: no I/O beyond the embedded
// template lookup.
type Composer struct {
	loader *Loader

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// NewComposer builds a composer over the embedded templates.
func NewComposer() (*Composer, error) {
	loader, err := NewLoader()
	if err != nil {
		return nil, err
	}
	return &Composer{loader: loader}, nil
}

// Compose renders the curator template for one turn.
func (c *Composer) Compose(in ComposeInput) (string, error) {
	snapshot, err := renderDocument(in.Document)
	if err != nil {
		return "", fmt.Errorf("render document snapshot: %w", err)
	}

	history := in.History
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}

	variables := map[string]string{
		"Document":     snapshot,
		"LockedFields": strings.Join(lockedNames(in.Document), ", "),
		"History":      c.renderHistory(history),
		"Instructions": renderInstructions(in.Protocol, in.Mode),
		"Patterns":     renderPatterns(in.Protocol),
		"UserInput":    in.UserInput,
	}
	return c.loader.Render("curator", variables)
}

func lockedNames(doc document.Document) []string {
	names := make([]string, 0, len(doc.Locked))
	for _, name := range doc.SetFields() {
		if doc.IsLocked(name) {
			names = append(names, name)
		}
	}
	for name := range doc.Locked {
		if _, set := doc.Fields[name]; !set {
			names = append(names, name)
		}
	}
	return names
}

func renderDocument(doc document.Document) (string, error) {
	if len(doc.Fields) == 0 {
		return "(no fields captured yet)", nil
	}
	data, err := yaml.Marshal(doc.Fields)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func renderInstructions(effective protocol.Effective, mode Mode) string {
	lines := append([]string(nil), effective.GeneralPrompts...)
	switch mode {
	case ModeCurator:
		lines = append(lines, effective.CuratorPrompts...)
	default:
		lines = append(lines, effective.MetadataPrompts...)
	}
	if len(lines) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, line := range lines {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func renderPatterns(effective protocol.Effective) string {
	if len(effective.IncludePatterns) == 0 && len(effective.ExcludePatterns) == 0 {
		return "(none)"
	}
	var b strings.Builder
	if len(effective.IncludePatterns) > 0 {
		b.WriteString("Include: ")
		b.WriteString(strings.Join(effective.IncludePatterns, ", "))
		b.WriteString("\n")
	}
	if len(effective.ExcludePatterns) > 0 {
		b.WriteString("Exclude: ")
		b.WriteString(strings.Join(effective.ExcludePatterns, ", "))
	}
	return strings.TrimSpace(b.String())
}

// renderHistory renders the trailing turns oldest-first, dropping the oldest
// entries when the section would exceed the token budget.
func (c *Composer) renderHistory(turns []session.Turn) string {
	if len(turns) == 0 {
		return "(empty)"
	}
	rendered := make([]string, len(turns))
	for i, turn := range turns {
		rendered[i] = fmt.Sprintf("%s: %s", turn.Role, turn.Text)
	}
	for len(rendered) > 1 && c.countTokens(strings.Join(rendered, "\n")) > historyTokenBudget {
		rendered = rendered[1:]
	}
	return strings.Join(rendered, "\n")
}

// countTokens uses the cl100k_base encoder when it can be initialised and
// falls back to a rune-count estimate otherwise (the encoder may need a
// network fetch on first use).
func (c *Composer) countTokens(text string) int {
	c.encOnce.Do(func() {
		if enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE); err == nil {
			c.enc = enc
		}
	})
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return len([]rune(text)) / 4
}
