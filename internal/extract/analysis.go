package extract

import (
	"fmt"

	"metacurator/internal/document"
)

// Canonical section keys of a sectioned payload.
const (
	analysisKey = "analysis"
	updatesKey  = "field_updates"
)

// legacyAnalysisKeys maps older key spellings to the canonical ones.
var legacyAnalysisKeys = map[string]string{
	"missing":         "missing_fields",
	"non_compliant":   "non_compliant_entries",
	"conflicts":       "conflicting_data",
	"suggested_files": "file_suggestions",
}

// isSectioned reports whether payload uses the analysis/field_updates shape
// rather than the flat legacy shape.
func isSectioned(payload map[string]any) bool {
	if _, ok := payload[analysisKey]; ok {
		return true
	}
	_, ok := payload[updatesKey]
	return ok
}

// parseAnalysis converts the analysis section into an AnalysisResult,
// tolerating legacy key spellings and object-form entries.
func parseAnalysis(value any) *document.AnalysisResult {
	section, ok := value.(map[string]any)
	if !ok {
		return nil
	}

	canonical := make(map[string]any, len(section))
	for key, item := range section {
		if renamed, ok := legacyAnalysisKeys[key]; ok {
			key = renamed
		}
		canonical[key] = item
	}

	analysis := &document.AnalysisResult{}
	if summary, ok := canonical["summary"].(string); ok {
		analysis.Summary = summary
	}
	analysis.MissingFields = entryStrings(canonical["missing_fields"])
	analysis.NonCompliant = entryStrings(canonical["non_compliant_entries"])
	analysis.Conflicts = entryStrings(canonical["conflicting_data"])
	analysis.Questions = parseQuestions(canonical["questions"])
	analysis.FileSuggestions = parseSuggestions(canonical["file_suggestions"])
	return analysis
}

// entryStrings flattens a list whose entries are strings or {field, reason}
// objects into formatted strings.
func entryStrings(value any) []string {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case map[string]any:
			field, _ := v["field"].(string)
			reason, _ := v["reason"].(string)
			switch {
			case field != "" && reason != "":
				out = append(out, fmt.Sprintf("%s: %s", field, reason))
			case field != "":
				out = append(out, field)
			case reason != "":
				out = append(out, reason)
			}
		}
	}
	return out
}

func parseQuestions(value any) []document.Question {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]document.Question, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, document.Question{Prompt: v})
		case map[string]any:
			question := document.Question{}
			question.Field, _ = v["field"].(string)
			question.Prompt, _ = v["prompt"].(string)
			if question.Prompt == "" {
				question.Prompt, _ = v["question"].(string)
			}
			question.Type, _ = v["type"].(string)
			if choices, ok := v["choices"].([]any); ok {
				for _, choice := range choices {
					question.Choices = append(question.Choices, fmt.Sprintf("%v", choice))
				}
			}
			if question.Prompt != "" {
				out = append(out, question)
			}
		}
	}
	return out
}

func parseSuggestions(value any) []document.FileSuggestion {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]document.FileSuggestion, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			out = append(out, document.FileSuggestion{Path: v})
		case map[string]any:
			path, _ := v["path"].(string)
			if path == "" {
				path, _ = v["file"].(string)
			}
			if path == "" {
				continue
			}
			reason, _ := v["reason"].(string)
			out = append(out, document.FileSuggestion{Path: path, Reason: reason})
		}
	}
	return out
}
