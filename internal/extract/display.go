package extract

import (
	"fmt"
	"strings"

	"metacurator/internal/document"
)

// defaultModelReply is the canned sentence some models emit alongside a flat
// update payload; it carries no information, so it is treated like empty
// display text. A legitimate reply that happens to equal it is suppressed
// too (known quirk, kept).
const defaultModelReply = "I have updated the metadata."

// displayBlacklist keys never show up in the fields-updated message.
var displayBlacklist = map[string]struct{}{
	"status":  {},
	"error":   {},
	"message": {},
}

// synthesizeAnalysisDisplay renders the analysis into display text:
// suggestion banner, bold summary, packaging hint, bullet lines, question
// nudge. Any question text the model put after the QUESTION marker follows
// at the end.
func synthesizeAnalysisDisplay(analysis *document.AnalysisResult, doc document.Document, questionText string) string {
	var b strings.Builder

	if n := len(analysis.FileSuggestions); n > 0 {
		fmt.Fprintf(&b, "Suggested %d file(s) to include in the dataset.\n\n", n)
	}
	if analysis.Summary != "" {
		fmt.Fprintf(&b, "**%s**\n", analysis.Summary)
	}
	if len(analysis.MissingFields) == 0 && !missingMandatory(doc) {
		b.WriteString("\nAll mandatory fields are filled - the dataset looks ready to package.\n")
	}
	for _, field := range analysis.MissingFields {
		fmt.Fprintf(&b, "- Missing: %s\n", field)
	}
	for _, entry := range analysis.NonCompliant {
		fmt.Fprintf(&b, "- Non-compliant: %s\n", entry)
	}
	for _, conflict := range analysis.Conflicts {
		fmt.Fprintf(&b, "- Conflict: %s\n", conflict)
	}
	if n := len(analysis.Questions); n > 0 {
		fmt.Fprintf(&b, "\nPlease answer the question(s) below so curation can continue (%d open).\n", n)
	}
	if questionText != "" {
		b.WriteString("\n")
		b.WriteString(questionText)
	}
	return strings.TrimSpace(b.String())
}

func missingMandatory(doc document.Document) bool {
	for _, field := range document.MandatoryFields {
		if _, ok := doc.Get(field); !ok {
			return true
		}
	}
	return false
}

// synthesizeUpdateDisplay builds the fallback message for flat legacy
// payloads whose display text is empty or the canned default sentence. It
// lists every normalized update key outside the blacklist, whether or not
// the merge kept it; dropped keys are visible in the debug log instead.
func synthesizeUpdateDisplay(updates map[string]any, keys []string) string {
	if errValue, ok := updates["error"]; ok {
		return fmt.Sprintf("The assistant reported an error: %v", errValue)
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, skip := displayBlacklist[key]; skip {
			continue
		}
		names = append(names, document.HumanName(key))
	}
	if len(names) == 0 {
		return "No metadata changes were detected."
	}
	return "Updated fields: " + strings.Join(names, ", ") + "."
}
