package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"metacurator/internal/document"
	"metacurator/internal/logging"
)

func newTestExtractor() *Extractor {
	return New(logging.Nop())
}

func TestExtractPlainConversationPassesThrough(t *testing.T) {
	doc := document.New()
	doc.Set(document.FieldTitle, "Existing title")

	result := newTestExtractor().Extract("Sure, tell me more about your dataset.", doc)

	require.Equal(t, KindPassThrough, result.Kind)
	require.Equal(t, "Sure, tell me more about your dataset.", result.Display)
	require.True(t, result.Doc.Equal(doc))
}

func TestExtractEmptyResponse(t *testing.T) {
	result := newTestExtractor().Extract("   \n  ", document.New())

	require.Equal(t, KindPassThrough, result.Kind)
	require.Equal(t, emptyResponseMessage, result.Display)
}

func TestExtractErrorPrefixedResponse(t *testing.T) {
	result := newTestExtractor().Extract("Error: upstream quota exhausted", document.New())

	require.Equal(t, KindPassThrough, result.Kind)
	require.Equal(t, "Error: upstream quota exhausted", result.Display)
}

func TestExtractStripsInteractionIDSuffix(t *testing.T) {
	raw := "Hello there <!-- interaction-id: 52ab-ff1 -->"
	result := newTestExtractor().Extract(raw, document.New())

	require.Equal(t, "Hello there", result.Display)
}

func TestExtractEndToEndFlatPayload(t *testing.T) {
	raw := "METADATA:\n{\"title\": \"A study of {111} planes\", \"keywords\": [\"x\",\"y\",]}\nQUESTION: ok?"

	result := newTestExtractor().Extract(raw, document.New())

	require.Equal(t, KindUpdated, result.Kind)
	title, _ := result.Doc.Get(document.FieldTitle)
	require.Equal(t, "A study of {111} planes", title)
	keywords, _ := result.Doc.Get(document.FieldKeywords)
	require.Equal(t, []any{"x", "y"}, keywords)
	require.Equal(t, "ok?", result.Display)
}

func TestExtractBraceScannerHandlesLiteralBraces(t *testing.T) {
	payload := `text before {"title": "Surfaces with {111} and {100} facets"} text after`

	obj, ok := extractBalancedObject(payload)

	require.True(t, ok)
	require.Equal(t, `{"title": "Surfaces with {111} and {100} facets"}`, obj)
}

func TestExtractKeepsPythonLiteralSpellingsInsideStrings(t *testing.T) {
	raw := `METADATA: {"title": "True Grit", "notes": "None of the runs failed", "published": True}`

	result := newTestExtractor().Extract(raw, document.New())

	require.Equal(t, KindUpdated, result.Kind)
	title, _ := result.Doc.Get(document.FieldTitle)
	require.Equal(t, "True Grit", title)
	notes, _ := result.Doc.Get(document.FieldNotes)
	require.Equal(t, "None of the runs failed", notes)
	published, _ := result.Doc.Get("published")
	require.Equal(t, true, published, "bare tokens outside strings are still rewritten")
}

func TestExtractStrictPayloadIsAppliedVerbatim(t *testing.T) {
	raw := `METADATA: {"title": "False alarms in True coincidence counting"}`

	result := newTestExtractor().Extract(raw, document.New())

	require.Equal(t, KindUpdated, result.Kind)
	title, _ := result.Doc.Get(document.FieldTitle)
	require.Equal(t, "False alarms in True coincidence counting", title)
}

func TestExtractPythonLiteralPayload(t *testing.T) {
	raw := "METADATA: {\"title\": \"T\", \"published\": False, \"license\": None}"

	result := newTestExtractor().Extract(raw, document.New())

	require.Equal(t, KindUpdated, result.Kind)
	published, _ := result.Doc.Get("published")
	require.Equal(t, false, published)
	_, hasLicense := result.Doc.Get(document.FieldLicense)
	require.False(t, hasLicense, "null values must be skipped, not stored")
}

func TestExtractSingleQuoteRecovery(t *testing.T) {
	raw := "METADATA: {'title': 'Single quoted', 'keywords': ['a', 'b',],}"

	result := newTestExtractor().Extract(raw, document.New())

	require.Equal(t, KindUpdated, result.Kind)
	title, _ := result.Doc.Get(document.FieldTitle)
	require.Equal(t, "Single quoted", title)
}

func TestExtractUnparseablePayloadKeepsDocument(t *testing.T) {
	doc := document.New()
	doc.Set(document.FieldTitle, "Keep me")
	raw := "METADATA: {\"title\": \"broken"

	result := newTestExtractor().Extract(raw, doc)

	require.Equal(t, KindFailed, result.Kind)
	require.Equal(t, raw, result.Display, "raw text is surfaced for debugging")
	title, _ := result.Doc.Get(document.FieldTitle)
	require.Equal(t, "Keep me", title)
}

func TestExtractGarbagePayloadPassesThrough(t *testing.T) {
	doc := document.New()
	doc.Set(document.FieldTitle, "Keep me")
	raw := "METADATA:\n: : definitely not yaml: [unbalanced"

	result := newTestExtractor().Extract(raw, doc)

	require.NotEqual(t, KindUpdated, result.Kind)
	title, _ := result.Doc.Get(document.FieldTitle)
	require.Equal(t, "Keep me", title)
}

func TestExtractYAMLPayload(t *testing.T) {
	raw := "METADATA:\ntitle: YAML title\nkeywords:\n  - alpha\n  - beta\n"

	result := newTestExtractor().Extract(raw, document.New())

	require.Equal(t, KindUpdated, result.Kind)
	title, _ := result.Doc.Get(document.FieldTitle)
	require.Equal(t, "YAML title", title)
}

func TestExtractYAMLScalarDegradesToPassThrough(t *testing.T) {
	raw := "METADATA:\njust a sentence, not a mapping"

	result := newTestExtractor().Extract(raw, document.New())

	require.Equal(t, KindPassThrough, result.Kind)
}

func TestExtractSectionedPayload(t *testing.T) {
	raw := `METADATA:
{
  "analysis": {
    "summary": "Two fields still need attention",
    "missing": ["license"],
    "non_compliant": [{"field": "keywords", "reason": "too generic"}],
    "questions": [{"field": "license", "prompt": "Which license applies?", "type": "choice", "choices": ["MIT", "CC0"]}],
    "suggested_files": [{"path": "data/results.csv", "reason": "primary measurements"}]
  },
  "field_updates": {"title": "Sectioned title"}
}`

	result := newTestExtractor().Extract(raw, document.New())

	require.Equal(t, KindUpdated, result.Kind)
	require.NotNil(t, result.Analysis)
	require.Equal(t, []string{"license"}, result.Analysis.MissingFields)
	require.Equal(t, []string{"keywords: too generic"}, result.Analysis.NonCompliant)
	require.Len(t, result.Analysis.Questions, 1)
	require.Equal(t, []string{"MIT", "CC0"}, result.Analysis.Questions[0].Choices)
	require.Len(t, result.Analysis.FileSuggestions, 1)

	title, _ := result.Doc.Get(document.FieldTitle)
	require.Equal(t, "Sectioned title", title)

	require.Contains(t, result.Display, "**Two fields still need attention**")
	require.Contains(t, result.Display, "- Missing: license")
	require.Contains(t, result.Display, "- Non-compliant: keywords: too generic")
	require.Contains(t, result.Display, "question(s)")
}

func TestExtractLockedFieldsAreNeverWritten(t *testing.T) {
	doc := document.New()
	doc.Set(document.FieldTitle, "Pinned title")
	doc.Lock(document.FieldTitle)
	doc.Lock(document.FieldKeywords)

	raw := `METADATA: {"title": "Sneaky rewrite", "keywords": ["spam"]}`
	result := newTestExtractor().Extract(raw, doc)

	require.Equal(t, KindUpdated, result.Kind)
	require.True(t, result.Doc.Equal(doc), "merge of only-locked updates must be a no-op")
	require.Empty(t, result.Updated)
	require.Equal(t, 2, result.Skips["locked"])
}

func TestExtractPlaceholderGuard(t *testing.T) {
	long := strings.Repeat("x", 150)
	doc := document.New()
	doc.Set(document.FieldAbstract, long)

	raw := `METADATA: {"abstract": "same..."}`
	result := newTestExtractor().Extract(raw, doc)

	require.Equal(t, KindUpdated, result.Kind)
	abstract, _ := result.Doc.Get(document.FieldAbstract)
	require.Equal(t, long, abstract, "ellipsis placeholder must not replace rich content")
}

func TestExtractFieldsUpdatedFallbackMessage(t *testing.T) {
	raw := `METADATA: {"title": "T", "keywords": ["k"], "status": "done"}`

	result := newTestExtractor().Extract(raw, document.New())

	require.Equal(t, KindUpdated, result.Kind)
	require.Contains(t, result.Display, "Title")
	require.Contains(t, result.Display, "Keywords")
	require.NotContains(t, result.Display, "status")
}

func TestExtractErrorKeySurfacesAIError(t *testing.T) {
	raw := `METADATA: {"error": "model overloaded"}`

	result := newTestExtractor().Extract(raw, document.New())

	require.Equal(t, KindUpdated, result.Kind)
	require.Contains(t, result.Display, "model overloaded")
}

func TestExtractDefaultSentenceIsReplaced(t *testing.T) {
	raw := "METADATA: {\"title\": \"T\"}\nQUESTION: " + defaultModelReply

	result := newTestExtractor().Extract(raw, document.New())

	require.Contains(t, result.Display, "Updated fields: Title")
}
