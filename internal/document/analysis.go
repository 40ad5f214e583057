package document

// Question is a follow-up the model wants the user to answer for a field.
type Question struct {
	Field   string   `json:"field" yaml:"field"`
	Prompt  string   `json:"prompt" yaml:"prompt"`
	Type    string   `json:"type,omitempty" yaml:"type,omitempty"`
	Choices []string `json:"choices,omitempty" yaml:"choices,omitempty"`
}

// FileSuggestion points at a project-relative path the model thinks belongs
// in the dataset, with the model's stated reason.
type FileSuggestion struct {
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// AnalysisResult is the narrative half of a sectioned model response: what
// the model found wrong or missing, questions for the user, and files it
// suggests including.
type AnalysisResult struct {
	Summary         string
	MissingFields   []string
	NonCompliant    []string // formatted "field: reason" strings
	Conflicts       []string
	Questions       []Question
	FileSuggestions []FileSuggestion
}

// Empty reports whether the analysis carries no content at all.
func (a *AnalysisResult) Empty() bool {
	if a == nil {
		return true
	}
	return a.Summary == "" &&
		len(a.MissingFields) == 0 &&
		len(a.NonCompliant) == 0 &&
		len(a.Conflicts) == 0 &&
		len(a.Questions) == 0 &&
		len(a.FileSuggestions) == 0
}
