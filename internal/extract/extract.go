// Package extract turns free-form model output into structured metadata
// updates and merges them into the document. The input stream is adversarial
// and loosely structured; this package tolerates it without ever corrupting
// or losing previously captured state. Extraction failures are ordinary
// result values, never errors or panics at the boundary.
package extract

import (
	"regexp"
	"sort"
	"strings"

	"metacurator/internal/document"
	"metacurator/internal/logging"
)

// Literal tokens of the reply protocol.
const (
	PayloadMarker  = "METADATA:"
	QuestionMarker = "QUESTION:"
	errorPrefix    = "Error:"
)

const emptyResponseMessage = "The assistant returned an empty response. Please try again."

// interactionIDRe matches the HTML-comment interaction-id suffix some
// transports append; it is stripped before any other processing.
var interactionIDRe = regexp.MustCompile(`(?s)<!--\s*interaction[-_]?id:.*?-->\s*$`)

// ResultKind classifies what the extractor did with a response.
type ResultKind int

const (
	// KindPassThrough - plain conversational turn, no payload applied.
	KindPassThrough ResultKind = iota
	// KindUpdated - a payload was parsed and merged.
	KindUpdated
	// KindFailed - a payload was present but could not be applied; the
	// document is unchanged and the raw text is surfaced for debugging.
	KindFailed
)

// Result is the extractor's complete answer for one response.
type Result struct {
	Display  string
	Analysis *document.AnalysisResult
	Doc      document.Document
	Kind     ResultKind
	Updated  []string       // normalized update keys the merge actually applied
	Skips    map[string]int // update keys dropped during merge, by reason
}

// Extractor classifies, parses, normalizes and merges model output.
type Extractor struct {
	logger logging.Logger
}

// New returns an extractor logging through the given logger.
func New(logger logging.Logger) *Extractor {
	return &Extractor{logger: logging.OrNop(logger)}
}

// Extract processes one raw model response against the current document.
// It never panics past this boundary: any internal failure converts to a
// pass-through or error-display result with the input document returned
// unchanged.
func (e *Extractor) Extract(raw string, doc document.Document) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panicked: %v", r)
			result = Result{Display: raw, Doc: doc, Kind: KindFailed}
		}
	}()
	return e.extract(raw, doc)
}

func (e *Extractor) extract(raw string, doc document.Document) Result {
	raw = strings.TrimSpace(interactionIDRe.ReplaceAllString(raw, ""))

	if !strings.Contains(raw, PayloadMarker) {
		trimmed := strings.TrimSpace(raw)
		switch {
		case trimmed == "":
			return Result{Display: emptyResponseMessage, Doc: doc, Kind: KindPassThrough}
		case strings.HasPrefix(trimmed, errorPrefix):
			return Result{Display: trimmed, Doc: doc, Kind: KindPassThrough}
		default:
			return Result{Display: raw, Doc: doc, Kind: KindPassThrough}
		}
	}

	remainder := raw[strings.Index(raw, PayloadMarker)+len(PayloadMarker):]
	payload := remainder
	display := ""
	if qIdx := strings.Index(remainder, QuestionMarker); qIdx >= 0 {
		payload = remainder[:qIdx]
		display = strings.TrimSpace(remainder[qIdx+len(QuestionMarker):])
	}

	var parsed map[string]any
	if isJSONLike(payload) {
		var err error
		parsed, err = parseJSONPayload(payload)
		if err != nil {
			e.logger.Warn("payload rejected: %v", err)
			return Result{Display: raw, Doc: doc, Kind: KindFailed}
		}
	} else {
		var ok bool
		parsed, ok = parseYAMLPayload(payload)
		if !ok {
			e.logger.Debug("payload is not a YAML mapping, passing through")
			return Result{Display: raw, Doc: doc, Kind: KindPassThrough}
		}
	}

	var analysis *document.AnalysisResult
	updatesRaw := parsed
	if isSectioned(parsed) {
		analysis = parseAnalysis(parsed[analysisKey])
		section, _ := parsed[updatesKey].(map[string]any)
		updatesRaw = section
	}

	updates := normalizeUpdates(updatesRaw)

	merged, report, err := mergeUpdates(doc, updates, e.logger)
	if err != nil {
		e.logger.Error("merged document failed validation: %v", err)
		logging.DumpRejected(e.logger, raw)
		return Result{Display: raw, Analysis: analysis, Doc: doc, Kind: KindFailed}
	}
	if len(report.skippedLocked) > 0 {
		e.logger.Info("merge: %d update(s) dropped for locked fields: %s",
			len(report.skippedLocked), strings.Join(report.skippedLocked, ", "))
	}

	if analysis != nil {
		display = synthesizeAnalysisDisplay(analysis, merged, display)
	} else if display == "" || display == defaultModelReply {
		keys := make([]string, 0, len(updates))
		for key := range updates {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		display = synthesizeUpdateDisplay(updates, keys)
	}

	return Result{
		Display:  display,
		Analysis: analysis,
		Doc:      merged,
		Kind:     KindUpdated,
		Updated:  report.applied,
		Skips:    report.skips(),
	}
}
