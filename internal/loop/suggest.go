package loop

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"metacurator/internal/document"
	"metacurator/internal/logging"
)

// expandSuggestions replaces wildcard file suggestions with the actual paths
// they match under root. A direct glob runs first; when it matches nothing
// the pattern's basename is matched recursively against every file name.
// Expanded entries are deduplicated against the non-wildcard suggestions and
// their reasons annotated with the originating pattern.
func expandSuggestions(root string, suggestions []document.FileSuggestion, logger logging.Logger) []document.FileSuggestion {
	seen := make(map[string]struct{}, len(suggestions))
	for _, s := range suggestions {
		if !isWildcard(s.Path) {
			seen[filepath.ToSlash(s.Path)] = struct{}{}
		}
	}

	out := make([]document.FileSuggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if !isWildcard(s.Path) {
			out = append(out, s)
			continue
		}
		matches := globMatches(root, s.Path, logger)
		for _, match := range matches {
			if _, dup := seen[match]; dup {
				continue
			}
			seen[match] = struct{}{}
			out = append(out, document.FileSuggestion{
				Path:   match,
				Reason: annotateReason(s.Reason, s.Path),
			})
		}
	}
	return out
}

func isWildcard(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

// globMatches returns root-relative slash paths for a pattern: direct glob
// first, recursive walk fallback matching the pattern's basename.
func globMatches(root, pattern string, logger logging.Logger) []string {
	direct, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(pattern)))
	if err != nil {
		logger.Warn("bad suggestion pattern %q: %v", pattern, err)
		return nil
	}
	if len(direct) > 0 {
		return relPaths(root, direct)
	}

	base := path.Base(filepath.ToSlash(pattern))
	var found []string
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ok, _ := path.Match(base, d.Name()); ok {
			found = append(found, p)
		}
		return nil
	})
	if walkErr != nil {
		logger.Warn("recursive expansion of %q failed: %v", pattern, walkErr)
	}
	return relPaths(root, found)
}

func relPaths(root string, absolute []string) []string {
	out := make([]string, 0, len(absolute))
	for _, p := range absolute {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			rel = p
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func annotateReason(reason, pattern string) string {
	if reason == "" {
		return fmt.Sprintf("matched pattern %q", pattern)
	}
	return fmt.Sprintf("%s (matched pattern %q)", reason, pattern)
}
