// Package router classifies legal questions into intents and entities.
package router

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"legalrag/internal/domain"
	"legalrag/internal/logger"
	"legalrag/internal/metrics"
)

// Result is the outcome of analysing one question.
type Result struct {
	// Query is the question after ordinal normalization.
	Query    string
	Analysis domain.QueryAnalysis
	// Degraded is set when classification failed and the general fallback was used.
	Degraded bool
}

// Analyzer wraps a classifier with normalization and graceful degradation.
type Analyzer struct {
	classifier domain.Classifier
	timeout    time.Duration
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewAnalyzer creates an analyzer. A zero timeout leaves deadlines to ctx.
func NewAnalyzer(c domain.Classifier, timeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		classifier: c,
		timeout:    timeout,
		metrics:    m,
		log:        logger.Component(log, "router"),
	}
}

// Analyze normalizes ordinals and classifies the question. It never fails:
// any classifier or parsing error yields the general intent with no entities.
func (a *Analyzer) Analyze(ctx context.Context, question string) Result {
	query := PreprocessOrdinals(question)
	res := Result{Query: query, Analysis: domain.GeneralAnalysis()}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	out, err := a.classifier.Classify(ctx, BuildPrompt(query))
	if err != nil {
		a.log.Warn().Err(err).Msg("classifier call failed, using general intent")
		a.metrics.ObserveClassification("call_error")
		res.Degraded = true
		return res
	}
	qa, err := ParseAnalysis(out)
	if err != nil {
		a.log.Warn().Err(err).Str("output", truncate(out, 200)).Msg("unparseable classification, using general intent")
		a.metrics.ObserveClassification("parse_error")
		res.Degraded = true
		return res
	}

	a.metrics.ObserveClassification(string(qa.Intent))
	a.log.Debug().
		Str("intent", string(qa.Intent)).
		Str("document", qa.Entities.Document).
		Str("article", qa.Entities.Article.String()).
		Str("section", qa.Entities.SectionName).
		Msg("question classified")
	res.Analysis = qa
	return res
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
