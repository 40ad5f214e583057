// Package loop drives one user turn through the bounded orchestration state
// machine: compose a prompt, call the model, classify the response, dispatch
// embedded tool requests, extract and merge updates.
package loop

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"metacurator/internal/dispatch"
	"metacurator/internal/document"
	"metacurator/internal/extract"
	"metacurator/internal/logging"
	"metacurator/internal/metrics"
	"metacurator/internal/prompts"
	"metacurator/internal/protocol"
	"metacurator/internal/session"
)

// MaxModelCalls bounds the tool loop: at most this many model calls per
// user turn, counting dispatch round-trips.
const MaxModelCalls = 5

// State names the stages of the per-turn machine.
type State int

const (
	StateComposing State = iota
	StateCalling
	StateClassifying
	StateDispatching
	StateExtracting
	StateDone
)

// Outcome is the terminal classification of a turn.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeError
	OutcomeCancelled
	OutcomeExceeded
)

func (s State) String() string {
	switch s {
	case StateComposing:
		return "composing"
	case StateCalling:
		return "calling"
	case StateClassifying:
		return "classifying"
	case StateDispatching:
		return "dispatching"
	case StateExtracting:
		return "extracting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeExceeded:
		return "exceeded"
	default:
		return "unknown"
	}
}

// ModelClient is the external text-generation collaborator. It handles its
// own rate limiting and retries; errors it returns are fatal for the turn.
type ModelClient interface {
	Call(ctx context.Context, prompt string, onStatus func(string)) (string, error)
}

// TurnResult is everything a caller gets back from one turn.
type TurnResult struct {
	Display    string
	Analysis   *document.AnalysisResult
	Doc        document.Document
	Outcome    Outcome
	ModelCalls int
}

// Options configure a Loop.
type Options struct {
	ProjectID   string
	FieldName   string // explicit user selection only, never auto-detected
	ProjectRoot string // enables READ_FILES dispatch and suggestion expansion
	Mode        prompts.Mode
	OnStatus    func(string)
	ReadFile    dispatch.ReadFileFunc // defaults to os.ReadFile
	Logger      logging.Logger
	Metrics     *metrics.Metrics
}

// Loop composes the per-turn collaborators. One Loop serves one conversation;
// calls against the same document must be serialized by the caller.
type Loop struct {
	model      ModelClient
	composer   *prompts.Composer
	extractor  *extract.Extractor
	dispatcher *dispatch.Dispatcher
	resolver   *protocol.Resolver
	history    *session.History
	opts       Options
	logger     logging.Logger
	metrics    *metrics.Metrics
}

// New assembles a loop. model, composer, dispatcher and resolver are
// required; nil options fall back to defaults.
func New(model ModelClient, composer *prompts.Composer, dispatcher *dispatch.Dispatcher,
	resolver *protocol.Resolver, opts Options) *Loop {
	if opts.ReadFile == nil {
		opts.ReadFile = func(_ context.Context, path string) (string, error) {
			data, err := os.ReadFile(path)
			return string(data), err
		}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default()
	}
	logger := logging.OrNop(opts.Logger)
	return &Loop{
		model:      model,
		composer:   composer,
		extractor:  extract.New(logger),
		dispatcher: dispatcher,
		resolver:   resolver,
		history:    session.NewHistory(),
		opts:       opts,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// History exposes the conversation log for callers that render it.
func (l *Loop) History() *session.History {
	return l.history
}

func (l *Loop) status(message string) {
	if l.opts.OnStatus != nil {
		l.opts.OnStatus(message)
	}
}

// RunTurn executes one user turn. The input document is never mutated; the
// returned document reflects all completed iterations. Cancellation is
// cooperative: the token is read once at the top of each iteration, so an
// in-flight model call finishes before the turn stops.
func (l *Loop) RunTurn(ctx context.Context, input string, doc document.Document, cancel *Cancel) TurnResult {
	effective := l.resolver.Resolve(l.opts.ProjectID, l.opts.FieldName)

	if augmented, ok := l.dispatcher.PrePass(ctx, input); ok {
		l.status("Fetched reference data")
		input = augmented
	}
	userTurn := l.history.Append(session.RoleUser, input)
	l.logger.Debug("turn %s recorded (user, %d chars)", userTurn.ID, len(input))

	current := input
	doc = doc.Clone()
	calls := 0

	for calls < MaxModelCalls {
		if cancel.Cancelled() {
			return l.finish(TurnResult{
				Display:    "Cancelled.",
				Doc:        doc,
				Outcome:    OutcomeCancelled,
				ModelCalls: calls,
			})
		}

		l.enter(StateComposing, calls)
		prompt, err := l.composer.Compose(prompts.ComposeInput{
			Document:  doc,
			History:   l.history.Window(prompts.HistoryWindow),
			Protocol:  effective,
			UserInput: current,
			Mode:      l.opts.Mode,
		})
		if err != nil {
			l.logger.Error("prompt composition failed: %v", err)
			return l.finish(TurnResult{
				Display:    fmt.Sprintf("Error: could not compose prompt: %v", err),
				Doc:        doc,
				Outcome:    OutcomeError,
				ModelCalls: calls,
			})
		}

		l.enter(StateCalling, calls)
		l.status("Waiting for the assistant...")
		started := time.Now()
		response, err := l.model.Call(ctx, prompt, l.opts.OnStatus)
		l.metrics.ObserveModelCall(time.Since(started))
		calls++
		if err != nil {
			l.logger.Error("model call %d failed: %v", calls, err)
			return l.finish(TurnResult{
				Display:    fmt.Sprintf("Error: the assistant is unavailable: %v", err),
				Doc:        doc,
				Outcome:    OutcomeError,
				ModelCalls: calls,
			})
		}

		l.enter(StateClassifying, calls)
		if directive, ok := dispatch.ParseDirective(response); ok && l.opts.ProjectRoot != "" {
			l.enter(StateDispatching, calls)
			l.logger.Info("model requested %d file(s), dispatching read", len(directive.Paths))
			l.status("Reading requested files...")
			current = l.dispatcher.ReadFiles(ctx, l.opts.ProjectRoot, directive.Paths, l.opts.ReadFile)
			continue
		}

		l.enter(StateExtracting, calls)
		result := l.extractor.Extract(normalizeResponse(response), doc)
		if result.Kind == extract.KindFailed {
			l.metrics.ObserveExtractionFailure()
		}
		for reason, count := range result.Skips {
			for i := 0; i < count; i++ {
				l.metrics.ObserveMergeSkip(reason)
			}
		}
		doc = result.Doc

		if result.Analysis != nil && l.opts.ProjectRoot != "" {
			result.Analysis.FileSuggestions = expandSuggestions(
				l.opts.ProjectRoot, result.Analysis.FileSuggestions, l.logger)
		}

		assistantTurn := l.history.Append(session.RoleAssistant, result.Display)
		l.logger.Debug("turn %s recorded (assistant, %d chars)", assistantTurn.ID, len(result.Display))
		return l.finish(TurnResult{
			Display:    result.Display,
			Analysis:   result.Analysis,
			Doc:        doc,
			Outcome:    OutcomeSuccess,
			ModelCalls: calls,
		})
	}

	return l.finish(TurnResult{
		Display: fmt.Sprintf(
			"The assistant kept requesting more context and was stopped after %d calls. Partial progress has been kept.",
			MaxModelCalls),
		Doc:        doc,
		Outcome:    OutcomeExceeded,
		ModelCalls: calls,
	})
}

func (l *Loop) enter(state State, calls int) {
	l.logger.Debug("state=%s model_calls=%d", state, calls)
}

func (l *Loop) finish(result TurnResult) TurnResult {
	l.metrics.ObserveOutcome(result.Outcome.String())
	l.logger.Debug("turn finished: outcome=%s model_calls=%d", result.Outcome, result.ModelCalls)
	return result
}

// normalizeResponse wraps a bare JSON object in the payload marker so the
// extractor treats it as an update instead of conversation.
func normalizeResponse(response string) string {
	trimmed := strings.TrimSpace(response)
	if strings.Contains(trimmed, extract.PayloadMarker) {
		return response
	}
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return extract.PayloadMarker + "\n" + trimmed
	}
	return response
}
