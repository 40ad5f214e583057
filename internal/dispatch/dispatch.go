// Package dispatch recognises embedded tool requests: reference identifiers
// in raw user text (pre-pass) and READ_FILES directives in model output
// (mid-loop pass).
package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"metacurator/internal/logging"
	"metacurator/internal/lookup"
)

// ReadFilesToken is the literal, case-sensitive directive the model emits
// when it wants file contents before giving a final answer.
const ReadFilesToken = "READ_FILES:"

const readConcurrency = 4

// DirectiveKind tags the Directive variants.
type DirectiveKind int

const (
	DirectiveReadFiles DirectiveKind = iota
	DirectiveLookup
)

// Lookup kinds used by the pre-pass.
const (
	LookupArxiv     = "arxiv"
	LookupDOI       = "doi"
	LookupORCID     = "orcid"
	LookupORCIDName = "orcid-name"
)

// Directive is an embedded tool request extracted from text.
type Directive struct {
	Kind       DirectiveKind
	Paths      []string // DirectiveReadFiles
	LookupKind string   // DirectiveLookup
	Identifier string   // DirectiveLookup
}

// ReadFileFunc reads the full text of one project-relative file.
type ReadFileFunc func(ctx context.Context, path string) (string, error)

var (
	arxivRe     = regexp.MustCompile(`(?i)\barxiv[:\s/]+(\d{4}\.\d{4,5}(?:v\d+)?)\b`)
	doiRe       = regexp.MustCompile(`\b(10\.\d{4,9}/[^\s"'<>]+)`)
	orcidRe     = regexp.MustCompile(`\b(\d{4}-\d{4}-\d{4}-\d{3}[\dX])\b`)
	orcidNameRe = regexp.MustCompile(`(?i)\borcid\b[^.?!]*?\b(?:for|of)\s+([^.?!\n]+)`)
)

// Dispatcher wires the pattern matchers to the external lookup collaborators.
type Dispatcher struct {
	arxiv     lookup.Func
	doi       lookup.Func
	orcid     lookup.Func
	orcidName lookup.Func
	logger    logging.Logger
}

// NewDispatcher builds a dispatcher over explicit lookup functions so tests
// can stub the network.
func NewDispatcher(arxiv, doi, orcid, orcidName lookup.Func, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		arxiv:     arxiv,
		doi:       doi,
		orcid:     orcid,
		orcidName: orcidName,
		logger:    logging.OrNop(logger),
	}
}

// NewClientDispatcher wires a dispatcher to the real reference services.
func NewClientDispatcher(client *lookup.Client, logger logging.Logger) *Dispatcher {
	return NewDispatcher(client.Arxiv, client.DOI, client.ORCID, client.ORCIDSearch, logger)
}

// DetectReference tests text for a reference identifier in priority order:
// arXiv id, DOI, explicit ORCID iD, ORCID name-search phrase. At most one
// directive is returned; the first pattern that matches wins.
func DetectReference(text string) (Directive, bool) {
	if m := arxivRe.FindStringSubmatch(text); m != nil {
		return Directive{Kind: DirectiveLookup, LookupKind: LookupArxiv, Identifier: m[1]}, true
	}
	if m := doiRe.FindStringSubmatch(text); m != nil {
		return Directive{Kind: DirectiveLookup, LookupKind: LookupDOI, Identifier: strings.TrimRight(m[1], ".,;)")}, true
	}
	if m := orcidRe.FindStringSubmatch(text); m != nil {
		return Directive{Kind: DirectiveLookup, LookupKind: LookupORCID, Identifier: m[1]}, true
	}
	if m := orcidNameRe.FindStringSubmatch(text); m != nil {
		name := strings.TrimSpace(m[1])
		if name != "" {
			return Directive{Kind: DirectiveLookup, LookupKind: LookupORCIDName, Identifier: name}, true
		}
	}
	return Directive{}, false
}

// PrePass runs reference detection over raw user text. On a match it fetches
// the payload and returns the original text augmented with the fetched data
// and an instruction for downstream stages. Lookup failures degrade to
// pass-through. The second return reports whether the text was augmented.
func (d *Dispatcher) PrePass(ctx context.Context, text string) (string, bool) {
	directive, ok := DetectReference(text)
	if !ok {
		return text, false
	}

	fn := d.lookupFunc(directive.LookupKind)
	if fn == nil {
		return text, false
	}
	payload, err := fn(ctx, directive.Identifier)
	if err != nil {
		d.logger.Warn("%s lookup for %q failed: %v", directive.LookupKind, directive.Identifier, err)
		return text, false
	}

	d.logger.Info("%s lookup for %q returned %d bytes", directive.LookupKind, directive.Identifier, len(payload))
	augmented := fmt.Sprintf(
		"%s\n\n[Fetched %s record for %s]\n%s\n[Use the fetched record above to fill in metadata fields.]",
		text, directive.LookupKind, directive.Identifier, payload,
	)
	return augmented, true
}

func (d *Dispatcher) lookupFunc(kind string) lookup.Func {
	switch kind {
	case LookupArxiv:
		return d.arxiv
	case LookupDOI:
		return d.doi
	case LookupORCID:
		return d.orcid
	case LookupORCIDName:
		return d.orcidName
	default:
		return nil
	}
}

// ParseDirective scans model output for a READ_FILES directive: the literal
// token at the start of a line followed by a comma-separated path list on
// the same line.
func ParseDirective(modelOutput string) (Directive, bool) {
	for _, line := range strings.Split(modelOutput, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, ReadFilesToken) {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, ReadFilesToken))
		var paths []string
		for _, part := range strings.Split(rest, ",") {
			if part = strings.TrimSpace(part); part != "" {
				paths = append(paths, part)
			}
		}
		if len(paths) == 0 {
			continue
		}
		return Directive{Kind: DirectiveReadFiles, Paths: paths}, true
	}
	return Directive{}, false
}

// ReadFiles reads every requested path under root and renders a synthetic
// next-turn input summarising the results. Missing or unreadable files are
// reported inline as "not found" rather than failing the turn, as are paths
// that would escape the project root. Results keep the requested order
// regardless of read completion order.
func (d *Dispatcher) ReadFiles(ctx context.Context, root string, paths []string, read ReadFileFunc) string {
	contents := make([]string, len(paths))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(readConcurrency)
	for i, path := range paths {
		group.Go(func() error {
			full, ok := resolveUnderRoot(root, path)
			if !ok {
				d.logger.Warn("refusing to read %q: outside project root", path)
				contents[i] = fmt.Sprintf("### %s\nnot found", path)
				return nil
			}
			text, err := read(groupCtx, full)
			if err != nil || text == "" {
				if err != nil {
					d.logger.Debug("read %s failed: %v", path, err)
				}
				contents[i] = fmt.Sprintf("### %s\nnot found", path)
				return nil
			}
			contents[i] = fmt.Sprintf("### %s\n%s", path, text)
			return nil
		})
	}
	_ = group.Wait()

	var b strings.Builder
	b.WriteString("Requested file contents:\n\n")
	b.WriteString(strings.Join(contents, "\n\n"))
	b.WriteString("\n\nContinue with the original request using the file contents above.")
	return b.String()
}

// resolveUnderRoot joins a model-supplied relative path onto root, rejecting
// absolute paths and any path whose cleaned form escapes root.
func resolveUnderRoot(root, path string) (string, bool) {
	if filepath.IsAbs(path) || filepath.IsAbs(filepath.FromSlash(path)) {
		return "", false
	}
	full := filepath.Join(root, filepath.FromSlash(path))
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}
