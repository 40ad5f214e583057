package loop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"metacurator/internal/dispatch"
	"metacurator/internal/document"
	"metacurator/internal/logging"
	"metacurator/internal/metrics"
	"metacurator/internal/prompts"
	"metacurator/internal/protocol"
)

// stubModel replies with a fixed sequence of responses, then repeats the last.
type stubModel struct {
	replies []string
	err     error
	calls   int
	prompts []string
}

func (m *stubModel) Call(_ context.Context, prompt string, _ func(string)) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	idx := m.calls - 1
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	return m.replies[idx], nil
}

// recordingLogger captures formatted log lines for assertions.
type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) log(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *recordingLogger) Debug(format string, args ...any) { r.log(format, args...) }
func (r *recordingLogger) Info(format string, args ...any)  { r.log(format, args...) }
func (r *recordingLogger) Warn(format string, args ...any)  { r.log(format, args...) }
func (r *recordingLogger) Error(format string, args ...any) { r.log(format, args...) }

func newTestLoop(t *testing.T, model ModelClient, opts Options) *Loop {
	t.Helper()
	composer, err := prompts.NewComposer()
	require.NoError(t, err)
	dispatcher := dispatch.NewDispatcher(nil, nil, nil, nil, logging.Nop())
	resolver := protocol.NewResolver("", logging.Nop())
	if opts.Metrics == nil {
		opts.Metrics = metrics.MustNew(prometheus.NewRegistry())
	}
	return New(model, composer, dispatcher, resolver, opts)
}

func TestRunTurnSuccess(t *testing.T) {
	model := &stubModel{replies: []string{
		"METADATA: {\"title\": \"Neutron scattering runs\"}\nQUESTION: Which license applies?",
	}}
	loop := newTestLoop(t, model, Options{})

	result := loop.RunTurn(context.Background(), "please curate", document.New(), nil)

	require.Equal(t, OutcomeSuccess, result.Outcome)
	require.Equal(t, 1, result.ModelCalls)
	title, _ := result.Doc.Get(document.FieldTitle)
	require.Equal(t, "Neutron scattering runs", title)
	require.Equal(t, "Which license applies?", result.Display)
	require.Equal(t, 2, loop.History().Len(), "user turn plus assistant reply")
}

func TestRunTurnLogsRecordedTurnIDs(t *testing.T) {
	model := &stubModel{replies: []string{"METADATA: {\"title\": \"T\"}"}}
	logger := &recordingLogger{}
	loop := newTestLoop(t, model, Options{Logger: logger})

	result := loop.RunTurn(context.Background(), "go", document.New(), nil)
	require.Equal(t, OutcomeSuccess, result.Outcome)

	logged := strings.Join(logger.lines, "\n")
	for _, turn := range loop.History().Window(2) {
		require.NotEmpty(t, turn.ID)
		require.Contains(t, logged, turn.ID)
	}
}

func TestRunTurnBareJSONIsWrapped(t *testing.T) {
	model := &stubModel{replies: []string{`{"title": "Bare object"}`}}
	loop := newTestLoop(t, model, Options{})

	result := loop.RunTurn(context.Background(), "go", document.New(), nil)

	require.Equal(t, OutcomeSuccess, result.Outcome)
	title, _ := result.Doc.Get(document.FieldTitle)
	require.Equal(t, "Bare object", title)
}

func TestRunTurnModelErrorEndsTurn(t *testing.T) {
	model := &stubModel{err: errors.New("gateway timeout")}
	loop := newTestLoop(t, model, Options{})
	doc := document.New()
	doc.Set(document.FieldTitle, "unchanged")

	result := loop.RunTurn(context.Background(), "go", doc, nil)

	require.Equal(t, OutcomeError, result.Outcome)
	require.Contains(t, result.Display, "the assistant is unavailable")
	require.True(t, result.Doc.Equal(doc))
}

func TestRunTurnStopsAfterMaxCalls(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.txt"), []byte("hi"), 0o644))

	model := &stubModel{replies: []string{"READ_FILES: readme.txt"}}
	loop := newTestLoop(t, model, Options{ProjectRoot: root})

	result := loop.RunTurn(context.Background(), "curate this", document.New(), nil)

	require.Equal(t, OutcomeExceeded, result.Outcome)
	require.Equal(t, MaxModelCalls, result.ModelCalls)
	require.Equal(t, MaxModelCalls, model.calls)
	require.Contains(t, result.Display, "stopped after 5 calls")
}

func TestRunTurnDirectiveIgnoredWithoutProjectRoot(t *testing.T) {
	model := &stubModel{replies: []string{"READ_FILES: readme.txt"}}
	loop := newTestLoop(t, model, Options{})

	result := loop.RunTurn(context.Background(), "curate this", document.New(), nil)

	require.Equal(t, OutcomeSuccess, result.Outcome)
	require.Equal(t, 1, result.ModelCalls, "directive text is plain conversation without a root")
}

func TestRunTurnPreSetCancellation(t *testing.T) {
	model := &stubModel{replies: []string{`{"title": "never applied"}`}}
	loop := newTestLoop(t, model, Options{})
	cancel := NewCancel()
	cancel.Set()

	doc := document.New()
	doc.Set(document.FieldTitle, "original")

	result := loop.RunTurn(context.Background(), "go", doc, cancel)

	require.Equal(t, OutcomeCancelled, result.Outcome)
	require.Equal(t, 0, result.ModelCalls)
	require.Zero(t, model.calls)
	require.Equal(t, "Cancelled.", result.Display)
	require.True(t, result.Doc.Equal(doc))
}

func TestRunTurnReadFilesFeedContentBack(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("beamline 7"), 0o644))

	model := &stubModel{replies: []string{
		"READ_FILES: notes.md",
		"METADATA: {\"title\": \"From file\"}",
	}}
	loop := newTestLoop(t, model, Options{ProjectRoot: root})

	result := loop.RunTurn(context.Background(), "curate", document.New(), nil)

	require.Equal(t, OutcomeSuccess, result.Outcome)
	require.Equal(t, 2, result.ModelCalls)
	require.Contains(t, model.prompts[1], "beamline 7", "file content reaches the second prompt")
	title, _ := result.Doc.Get(document.FieldTitle)
	require.Equal(t, "From file", title)
}

func TestRunTurnExpandsWildcardSuggestions(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o755))
	for _, name := range []string{"a.csv", "b.csv"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, "data", name), []byte("1,2"), 0o644))
	}

	model := &stubModel{replies: []string{`METADATA:
{
  "analysis": {
    "summary": "Found tabular data",
    "file_suggestions": [{"path": "*.csv", "reason": "tabular data"}]
  },
  "field_updates": {}
}`}}
	loop := newTestLoop(t, model, Options{ProjectRoot: root})

	result := loop.RunTurn(context.Background(), "scan", document.New(), nil)

	require.Equal(t, OutcomeSuccess, result.Outcome)
	require.NotNil(t, result.Analysis)
	require.Len(t, result.Analysis.FileSuggestions, 2)
	paths := []string{result.Analysis.FileSuggestions[0].Path, result.Analysis.FileSuggestions[1].Path}
	require.ElementsMatch(t, []string{"data/a.csv", "data/b.csv"}, paths)
	for _, s := range result.Analysis.FileSuggestions {
		require.Contains(t, s.Reason, `matched pattern "*.csv"`)
		require.Contains(t, s.Reason, "tabular data")
	}
}

func TestNormalizeResponse(t *testing.T) {
	require.Equal(t, "METADATA:\n{\"a\": 1}", normalizeResponse(` {"a": 1} `))
	require.Equal(t, "METADATA: {}", normalizeResponse("METADATA: {}"))
	require.Equal(t, "plain text", normalizeResponse("plain text"))
}

func TestCancelNilSafety(t *testing.T) {
	var cancel *Cancel
	require.False(t, cancel.Cancelled())
	cancel.Set()

	cancel = NewCancel()
	require.False(t, cancel.Cancelled())
	cancel.Set()
	require.True(t, cancel.Cancelled())
}
