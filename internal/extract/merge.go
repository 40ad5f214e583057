package extract

import (
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"metacurator/internal/document"
	"metacurator/internal/logging"
)

// Placeholder guard thresholds: an incoming short elided string never
// replaces substantially richer existing content.
const (
	guardExistingMinLen = 100
	guardIncomingMaxLen = 50
)

type mergeReport struct {
	applied            []string
	skippedLocked      []string
	skippedEmpty       []string
	skippedPlaceholder []string
}

// skips summarises the dropped keys per reason for metric reporting.
func (r mergeReport) skips() map[string]int {
	out := map[string]int{}
	if n := len(r.skippedLocked); n > 0 {
		out["locked"] = n
	}
	if n := len(r.skippedEmpty); n > 0 {
		out["empty"] = n
	}
	if n := len(r.skippedPlaceholder); n > 0 {
		out["placeholder"] = n
	}
	return out
}

// mergeUpdates applies normalized updates onto the document's set fields.
// Locked keys are dropped before anything else, nil and empty values are
// skipped, and the placeholder guard rejects suspicious truncations. The
// result is rebuilt through document.FromFields so a corrupt merge can never
// replace the last valid document.
func mergeUpdates(doc document.Document, updates map[string]any, logger logging.Logger) (document.Document, mergeReport, error) {
	logger = logging.OrNop(logger)
	report := mergeReport{}

	fields := make(map[string]any, len(doc.Fields)+len(updates))
	for name, value := range doc.Fields {
		fields[name] = value
	}

	keys := make([]string, 0, len(updates))
	for key := range updates {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := updates[key]
		if doc.IsLocked(key) {
			logger.Debug("merge: dropping update for locked field %s", key)
			report.skippedLocked = append(report.skippedLocked, key)
			continue
		}
		if isEmptyValue(value) {
			report.skippedEmpty = append(report.skippedEmpty, key)
			continue
		}
		if existing, ok := fields[key]; ok && isPlaceholder(existing, value) {
			logger.Warn("merge: placeholder guard kept existing %s over %q", key, value)
			report.skippedPlaceholder = append(report.skippedPlaceholder, key)
			continue
		}
		logOverwriteDiff(logger, key, fields[key], value)
		fields[key] = value
		report.applied = append(report.applied, key)
	}

	merged, err := document.FromFields(fields)
	if err != nil {
		return document.Document{}, report, err
	}
	for name := range doc.Locked {
		merged.Lock(name)
	}
	return merged, report, nil
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

// isPlaceholder flags an incoming value that looks like an elided stand-in
// for existing content: existing is a long string, incoming is a short
// string containing an ellipsis.
func isPlaceholder(existing, incoming any) bool {
	existingStr, ok := existing.(string)
	if !ok || len(existingStr) <= guardExistingMinLen {
		return false
	}
	incomingStr, ok := incoming.(string)
	if !ok || len(incomingStr) >= guardIncomingMaxLen {
		return false
	}
	return strings.Contains(incomingStr, "...") || strings.Contains(incomingStr, "…")
}

// logOverwriteDiff records a compact diff when a long existing string is
// replaced, so unexpected rewrites can be audited from the debug log.
func logOverwriteDiff(logger logging.Logger, key string, existing, incoming any) {
	existingStr, ok := existing.(string)
	if !ok || len(existingStr) <= guardExistingMinLen {
		return
	}
	incomingStr, ok := incoming.(string)
	if !ok || incomingStr == existingStr {
		return
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(existingStr, incomingStr, false)
	logger.Debug("merge: overwriting %s, diff: %s", key, dmp.DiffPrettyText(diffs))
}
