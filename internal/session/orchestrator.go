// Package session drives question answering turns and follow-up refinement.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"legalrag/internal/corpus"
	"legalrag/internal/domain"
	"legalrag/internal/logger"
	"legalrag/internal/metrics"
	"legalrag/internal/resolver"
	"legalrag/internal/router"
)

// Path is the branch a turn took.
type Path string

const (
	PathStructural Path = "structural"
	PathRetrieval  Path = "content/general"
	PathFollowUp   Path = "follow_up"
	PathNoResult   Path = "no_result"
	PathRejected   Path = "rejected"
	PathCommand    Path = "command"
	PathExit       Path = "exit"
)

// Fixed user-facing answers.
const (
	NoInformation    = "NO INFORMATION FOUND in the indexed documents."
	GenerationFailed = "An error occurred while generating the answer. Please try again."
	FollowUpRejected = "There is no previous answer to refine. Ask a new question first."
	Goodbye          = "Session closed."
)

// ErrNoPriorTurn marks a follow-up issued before any answered question.
var ErrNoPriorTurn = errors.New("session: no prior turn to refine")

var followUpPattern = regexp.MustCompile(`(?i)\b(sintetico|dettagliato|concise|detailed)\b`)

// Interaction is the last answered turn, kept for follow-ups. Exactly one
// of Context and Answer is set. It is never modified once stored.
type Interaction struct {
	Question string `json:"question"`
	// Context is the retrieval context of a content or general answer.
	Context string `json:"context,omitempty"`
	// Answer is the literal answer of a structural turn.
	Answer string `json:"answer,omitempty"`
}

// State is the per-session state threaded through Answer.
type State struct {
	Task  string       `json:"task"`
	Model string       `json:"model"`
	Last  *Interaction `json:"last,omitempty"`
}

// Trace describes how a turn was answered.
type Trace struct {
	Path     Path                  `json:"path"`
	Query    string                `json:"query,omitempty"`
	Analysis *domain.QueryAnalysis `json:"analysis,omitempty"`
	Degraded bool                  `json:"degraded,omitempty"`
	// Hits are all reranked hits; the context used only a prefix.
	Hits     []domain.SearchHit `json:"hits,omitempty"`
	Model    string             `json:"model,omitempty"`
	Style    string             `json:"style,omitempty"`
	Duration time.Duration      `json:"duration"`
	Err      error              `json:"-"`
}

// QueryAnalyzer classifies a question.
type QueryAnalyzer interface {
	Analyze(ctx context.Context, question string) router.Result
}

// Searcher retrieves ranked hits for content and general questions.
type Searcher interface {
	Retrieve(ctx context.Context, query string, qa domain.QueryAnalysis) []domain.SearchHit
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Corpus     corpus.Source
	Analyzer   QueryAnalyzer
	Resolver   *resolver.Resolver
	Retriever  Searcher
	Generators map[string]domain.Generator
	Tasks      *Tasks
	Metrics    *metrics.Metrics
}

// Config holds orchestrator settings.
type Config struct {
	ContextHits  int
	DefaultTask  string
	DefaultModel string
	// ModelAliases maps an in-question alias such as "@pro" to a model name.
	ModelAliases      map[string]string
	GenerationTimeout time.Duration
}

// DefaultModelAliases returns the aliases for the default model set.
func DefaultModelAliases() map[string]string {
	return map[string]string{"@flash": "default", "@gpt": "gpt", "@pro": "pro"}
}

// Orchestrator answers turns. It is safe for concurrent use by independent
// sessions; all per-session data lives in State.
type Orchestrator struct {
	deps    Deps
	cfg     Config
	aliases []modelAlias
	log     zerolog.Logger
}

type modelAlias struct {
	model   string
	pattern *regexp.Regexp
}

// New validates deps and cfg and creates an orchestrator.
func New(deps Deps, cfg Config, log zerolog.Logger) (*Orchestrator, error) {
	if deps.Corpus == nil || deps.Analyzer == nil || deps.Retriever == nil {
		return nil, errors.New("session: corpus, analyzer and retriever are required")
	}
	if deps.Resolver == nil {
		deps.Resolver = resolver.New(nil)
	}
	if deps.Tasks == nil {
		deps.Tasks = NewTasks(nil)
	}
	if cfg.ContextHits <= 0 {
		cfg.ContextHits = 15
	}
	if cfg.DefaultTask == "" {
		cfg.DefaultTask = DefaultTask
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "default"
	}
	if cfg.ModelAliases == nil {
		cfg.ModelAliases = DefaultModelAliases()
	}
	if _, ok := deps.Tasks.Prompt(cfg.DefaultTask); !ok {
		return nil, fmt.Errorf("session: default task %q has no prompt", cfg.DefaultTask)
	}
	if _, ok := deps.Generators[cfg.DefaultModel]; !ok {
		return nil, fmt.Errorf("session: default model %q has no generator", cfg.DefaultModel)
	}

	names := make([]string, 0, len(cfg.ModelAliases))
	for a := range cfg.ModelAliases {
		names = append(names, a)
	}
	sort.Strings(names)
	// an alias is a whole token: @pro must not match inside @professore
	aliases := make([]modelAlias, 0, len(names))
	for _, a := range names {
		aliases = append(aliases, modelAlias{
			model:   cfg.ModelAliases[a],
			pattern: regexp.MustCompile(`(?i)(^|\s)` + regexp.QuoteMeta(a) + `($|[^\p{L}\p{N}_])`),
		})
	}

	return &Orchestrator{
		deps:    deps,
		cfg:     cfg,
		aliases: aliases,
		log:     logger.Component(log, "session"),
	}, nil
}

// NewState returns the initial state of a session.
func (o *Orchestrator) NewState() State {
	return State{Task: o.cfg.DefaultTask, Model: o.cfg.DefaultModel}
}

// StateFor returns an initial state running task with model. Empty values
// take the defaults.
func (o *Orchestrator) StateFor(task, model string) (State, error) {
	st := o.NewState()
	if task != "" {
		if _, ok := o.deps.Tasks.Prompt(task); !ok {
			return State{}, fmt.Errorf("unknown task %q", task)
		}
		st.Task = task
	}
	if model != "" {
		if _, ok := o.deps.Generators[model]; !ok {
			return State{}, fmt.Errorf("unknown model %q", model)
		}
		st.Model = model
	}
	return st, nil
}

// Tasks returns the available task names.
func (o *Orchestrator) Tasks() []string { return o.deps.Tasks.Names() }

// Models returns the available generator names.
func (o *Orchestrator) Models() []string {
	out := make([]string, 0, len(o.deps.Generators))
	for name := range o.deps.Generators {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Answer runs one turn. It never returns an error: failures are reflected in
// the answer text and the trace.
func (o *Orchestrator) Answer(ctx context.Context, st State, question string) (string, State, Trace) {
	start := time.Now()
	answer, next, tr := o.turn(ctx, st, strings.TrimSpace(question))
	tr.Duration = time.Since(start)
	o.deps.Metrics.ObserveTurn(string(tr.Path), tr.Duration)
	o.log.Info().
		Str("path", string(tr.Path)).
		Str("model", tr.Model).
		Int("hits", len(tr.Hits)).
		Bool("degraded", tr.Degraded).
		Dur("took", tr.Duration).
		Msg("turn answered")
	return answer, next, tr
}

func (o *Orchestrator) turn(ctx context.Context, st State, q string) (string, State, Trace) {
	lower := strings.ToLower(q)
	switch {
	case q == "":
		return "Please enter a question.", st, Trace{Path: PathCommand}
	case lower == "exit" || lower == "quit":
		return Goodbye, st, Trace{Path: PathExit}
	case lower == "/tasks":
		return o.listTasks(st), st, Trace{Path: PathCommand}
	case lower == "/task" || strings.HasPrefix(lower, "/task "):
		return o.changeTask(st, strings.Fields(q)[1:])
	}

	model, q := o.modelOverride(q, st.Model)
	if m := followUpPattern.FindString(q); m != "" {
		return o.followUp(ctx, st, model, styleOf(m))
	}
	return o.newQuestion(ctx, st, model, q)
}

func (o *Orchestrator) listTasks(st State) string {
	return fmt.Sprintf("Tasks: %s (current: %s)\nModels: %s (current: %s)",
		strings.Join(o.Tasks(), ", "), st.Task, strings.Join(o.Models(), ", "), st.Model)
}

// changeTask handles "/task <name> [model]". Any change resets the prior turn.
func (o *Orchestrator) changeTask(st State, args []string) (string, State, Trace) {
	tr := Trace{Path: PathCommand}
	if len(args) == 0 {
		return "Usage: /task <name> [model]\n" + o.listTasks(st), st, tr
	}
	if _, ok := o.deps.Tasks.Prompt(args[0]); !ok {
		return fmt.Sprintf("Unknown task %q. %s", args[0], o.listTasks(st)), st, tr
	}
	next := State{Task: args[0], Model: st.Model}
	if len(args) > 1 {
		if _, ok := o.deps.Generators[args[1]]; !ok {
			return fmt.Sprintf("Unknown model %q. %s", args[1], o.listTasks(st)), st, tr
		}
		next.Model = args[1]
	}
	return fmt.Sprintf("Task %q active with model %q.", next.Task, next.Model), next, tr
}

// modelOverride finds an alias in q, returning the model it selects and q
// without the alias.
func (o *Orchestrator) modelOverride(q, current string) (string, string) {
	for _, a := range o.aliases {
		if !a.pattern.MatchString(q) {
			continue
		}
		stripped := a.pattern.ReplaceAllString(q, "${1}${2}")
		return a.model, strings.Join(strings.Fields(stripped), " ")
	}
	return current, q
}

func styleOf(keyword string) string {
	switch strings.ToLower(keyword) {
	case "sintetico", "concise":
		return "concise"
	default:
		return "detailed"
	}
}

// followUp restyles the previous answer without new retrieval. State is
// returned unchanged in every case.
func (o *Orchestrator) followUp(ctx context.Context, st State, model, style string) (string, State, Trace) {
	tr := Trace{Path: PathFollowUp, Model: model, Style: style}
	prior := st.Last
	if prior == nil {
		tr.Path = PathRejected
		tr.Err = ErrNoPriorTurn
		return FollowUpRejected, st, tr
	}
	tr.Query = prior.Question

	var prompt, genContext string
	if prior.Answer != "" {
		prompt = fmt.Sprintf("Rework the following answer in a more %s way:\n\nOriginal answer: \"%s\"\n\nOriginal question: \"%s\"",
			style, prior.Answer, prior.Question)
		genContext = "The original question was: " + prior.Question
	} else {
		prompt = fmt.Sprintf("Answer the following question in a more %s and well-structured way:\n\n%s", style, prior.Question)
		genContext = prior.Context
	}
	answer, err := o.generate(ctx, st.Task, model, genContext, prompt)
	tr.Err = err
	return answer, st, tr
}

func (o *Orchestrator) newQuestion(ctx context.Context, st State, model, q string) (string, State, Trace) {
	st.Last = nil
	snapshot := o.deps.Corpus.Current()

	res := o.deps.Analyzer.Analyze(ctx, q)
	tr := Trace{Query: res.Query, Analysis: &res.Analysis, Degraded: res.Degraded, Model: model}

	if res.Analysis.Intent == domain.IntentStructural {
		tr.Path = PathStructural
		tr.Model = ""
		answer := o.deps.Resolver.Resolve(res.Analysis, snapshot)
		st.Last = &Interaction{Question: res.Query, Answer: answer}
		return answer, st, tr
	}

	hits := o.deps.Retriever.Retrieve(ctx, res.Query, res.Analysis)
	tr.Hits = hits
	if len(hits) == 0 {
		tr.Path = PathNoResult
		tr.Model = ""
		return NoInformation, st, tr
	}

	tr.Path = PathRetrieval
	used := hits
	if len(used) > o.cfg.ContextHits {
		used = used[:o.cfg.ContextHits]
	}
	genContext := AssembleContext(used, snapshot)
	answer, err := o.generate(ctx, st.Task, model, genContext, res.Query)
	tr.Err = err
	st.Last = &Interaction{Question: res.Query, Context: genContext}
	return answer, st, tr
}

// generate calls the named generator under the task's system prompt. A
// failure yields GenerationFailed together with the cause.
func (o *Orchestrator) generate(ctx context.Context, task, model, genContext, question string) (string, error) {
	gen, ok := o.deps.Generators[model]
	if !ok {
		err := fmt.Errorf("unknown model %q", model)
		o.log.Error().Err(err).Msg("generation skipped")
		return GenerationFailed, err
	}
	system, ok := o.deps.Tasks.Prompt(task)
	if !ok {
		system, _ = o.deps.Tasks.Prompt(o.cfg.DefaultTask)
	}
	if o.cfg.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.GenerationTimeout)
		defer cancel()
	}
	out, err := gen.Generate(ctx, system, genContext, question)
	if err != nil {
		o.log.Error().Err(err).Str("model", model).Msg("generation failed")
		return GenerationFailed, fmt.Errorf("generate with %q: %w", model, err)
	}
	return out, nil
}
