package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"metacurator/internal/logging"
)

func TestDetectReferencePriority(t *testing.T) {
	cases := []struct {
		name       string
		text       string
		kind       string
		identifier string
	}{
		{"arxiv id", "see arXiv: 2301.01234 for details", LookupArxiv, "2301.01234"},
		{"arxiv with version", "paper arxiv/2104.09864v2 covers it", LookupArxiv, "2104.09864v2"},
		{"doi", "published at 10.1000/xyz123.", LookupDOI, "10.1000/xyz123"},
		{"orcid id", "my id is 0000-0002-1825-0097 thanks", LookupORCID, "0000-0002-1825-0097"},
		{"orcid id with X", "author 0000-0002-1694-233X contributed", LookupORCID, "0000-0002-1694-233X"},
		{"orcid name search", "find the ORCID for Jane Smith", LookupORCIDName, "Jane Smith"},
		{"arxiv beats doi", "arXiv:2301.01234 and 10.1000/xyz", LookupArxiv, "2301.01234"},
		{"doi beats orcid", "10.1000/xyz by 0000-0002-1825-0097", LookupDOI, "10.1000/xyz"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			directive, ok := DetectReference(tc.text)
			require.True(t, ok)
			require.Equal(t, DirectiveLookup, directive.Kind)
			require.Equal(t, tc.kind, directive.LookupKind)
			require.Equal(t, tc.identifier, directive.Identifier)
		})
	}
}

func TestDetectReferenceNoMatch(t *testing.T) {
	for _, text := range []string{
		"please curate my dataset",
		"the year 2301.0 was great",
		"",
	} {
		_, ok := DetectReference(text)
		require.False(t, ok, "unexpected match in %q", text)
	}
}

func TestPrePassAugmentsInput(t *testing.T) {
	var askedFor string
	doi := func(_ context.Context, id string) (string, error) {
		askedFor = id
		return `{"title": "Fetched paper"}`, nil
	}
	d := NewDispatcher(nil, doi, nil, nil, logging.Nop())

	out, augmented := d.PrePass(context.Background(), "cite 10.1000/xyz please")

	require.True(t, augmented)
	require.Equal(t, "10.1000/xyz", askedFor)
	require.Contains(t, out, "cite 10.1000/xyz please")
	require.Contains(t, out, "Fetched paper")
	require.Contains(t, out, "[Fetched doi record for 10.1000/xyz]")
}

func TestPrePassLookupFailurePassesThrough(t *testing.T) {
	doi := func(_ context.Context, _ string) (string, error) {
		return "", errors.New("service down")
	}
	d := NewDispatcher(nil, doi, nil, nil, logging.Nop())

	out, augmented := d.PrePass(context.Background(), "cite 10.1000/xyz please")

	require.False(t, augmented)
	require.Equal(t, "cite 10.1000/xyz please", out)
}

func TestPrePassNoReference(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil, logging.Nop())

	out, augmented := d.PrePass(context.Background(), "just chatting")

	require.False(t, augmented)
	require.Equal(t, "just chatting", out)
}

func TestParseDirective(t *testing.T) {
	directive, ok := ParseDirective("Let me check.\nREAD_FILES: a.txt, data/b.csv , \nmore text")
	require.True(t, ok)
	require.Equal(t, DirectiveReadFiles, directive.Kind)
	require.Equal(t, []string{"a.txt", "data/b.csv"}, directive.Paths)
}

func TestParseDirectiveRejectsNonDirectives(t *testing.T) {
	for _, text := range []string{
		"read_files: a.txt",    // token is case-sensitive
		"READ_FILES:",          // no paths
		"READ_FILES: , , ",     // only empty paths
		"I will READ_FILES: x", // token must start the line
		"plain reply",
	} {
		_, ok := ParseDirective(text)
		require.False(t, ok, "unexpected directive in %q", text)
	}
}

func TestReadFilesKeepsOrderAndReportsMissing(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "first.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "third.txt"), []byte("gamma"), 0o644))

	read := func(_ context.Context, path string) (string, error) {
		data, err := os.ReadFile(path)
		return string(data), err
	}
	d := NewDispatcher(nil, nil, nil, nil, logging.Nop())
	out := d.ReadFiles(context.Background(), root,
		[]string{"first.txt", "missing.txt", "third.txt"}, read)

	require.Contains(t, out, "### first.txt\nalpha")
	require.Contains(t, out, "### missing.txt\nnot found")
	require.Contains(t, out, "### third.txt\ngamma")
	require.Less(t, strings.Index(out, "first.txt"), strings.Index(out, "missing.txt"))
	require.Less(t, strings.Index(out, "missing.txt"), strings.Index(out, "third.txt"))
}

func TestReadFilesRefusesPathsOutsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "project")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("credentials"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "inside.txt"), []byte("fine"), 0o644))

	read := func(_ context.Context, path string) (string, error) {
		data, err := os.ReadFile(path)
		return string(data), err
	}
	d := NewDispatcher(nil, nil, nil, nil, logging.Nop())
	out := d.ReadFiles(context.Background(), root,
		[]string{"../secret.txt", "/etc/hostname", "a/../../secret.txt", "inside.txt"}, read)

	require.NotContains(t, out, "credentials")
	require.Contains(t, out, "### ../secret.txt\nnot found")
	require.Contains(t, out, "### /etc/hostname\nnot found")
	require.Contains(t, out, "### a/../../secret.txt\nnot found")
	require.Contains(t, out, "### inside.txt\nfine")
}

func TestReadFilesUsesInjectedReader(t *testing.T) {
	read := func(_ context.Context, path string) (string, error) {
		return "content of " + filepath.Base(path), nil
	}
	d := NewDispatcher(nil, nil, nil, nil, logging.Nop())

	out := d.ReadFiles(context.Background(), "/project", []string{"x.md"}, read)

	require.Contains(t, out, "content of x.md")
}
