// Package evaluation grades application answers with an external language
// model and applies the auto-reject policy.
package evaluation

import (
	"context"
	"errors"
	"time"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/common/logger"
	"induction-portal/internal/common/metrics"
	"induction-portal/internal/models"
	"induction-portal/internal/review"
	"induction-portal/internal/store"
)

// Defaults for GenerationOptions.
const (
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 2048
)

const alreadyEvaluatedFeedback = "Already evaluated"

// Result is what Evaluate reports to its caller.
type Result struct {
	Score        float64 `json:"score"`
	Feedback     string  `json:"feedback"`
	ShouldReject bool    `json:"shouldReject"`
	// Cached is set when the stored evaluation was returned without
	// calling the model.
	Cached bool `json:"cached"`
}

type Evaluator struct {
	store  store.Store
	model  ScoringModel
	opts   GenerationOptions
	logger logger.Logger
	now    func() time.Time
}

func NewEvaluator(s store.Store, model ScoringModel, opts GenerationOptions, log logger.Logger) *Evaluator {
	if opts.Temperature == nil {
		temperature := DefaultTemperature
		opts.Temperature = &temperature
	}
	if opts.MaxOutputTokens <= 0 {
		opts.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return &Evaluator{
		store:  s,
		model:  model,
		opts:   opts,
		logger: logger.Component(log, "evaluator"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate grades one application. An application is graded at most once;
// later calls return the stored result. Nothing is written unless the
// model produced a usable verdict, and then every evaluation field (plus
// the auto-reject fields) goes out in a single update.
func (e *Evaluator) Evaluate(ctx context.Context, id string) (*Result, error) {
	app, err := e.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if app.IsEvaluated {
		metrics.Evaluations.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return storedResult(app), nil
	}

	verdict, err := e.grade(ctx, app)
	if err != nil {
		metrics.Evaluations.WithLabelValues(metrics.OutcomeFailed).Inc()
		e.logger.Error("evaluation failed", map[string]interface{}{
			"applicationId": id,
			"error":         err,
		})
		return nil, err
	}

	now := e.now()
	patch := models.Patch{
		IsEvaluated:        models.Ptr(true),
		EvaluationScore:    models.Ptr(verdict.AverageScore),
		EvaluationFeedback: models.Ptr(verdict.Feedback),
		EvaluatedAt:        &now,
		UpdatedAt:          now,
	}
	if verdict.ShouldReject {
		review.AutoRejectPatch(&patch, verdict.AverageScore, verdict.Feedback, now)
	}

	if err := e.store.Update(ctx, id, patch); err != nil {
		metrics.Evaluations.WithLabelValues(metrics.OutcomeFailed).Inc()
		e.logger.Error("failed to persist evaluation", map[string]interface{}{
			"applicationId": id,
			"error":         err,
		})
		return nil, err
	}

	outcome := metrics.OutcomeEvaluated
	if verdict.ShouldReject {
		outcome = metrics.OutcomeRejected
		metrics.StatusTransitions.WithLabelValues(string(models.StatusRejected), "automated").Inc()
	}
	metrics.Evaluations.WithLabelValues(outcome).Inc()
	e.logger.Info("application evaluated", map[string]interface{}{
		"applicationId": id,
		"score":         verdict.AverageScore,
		"shouldReject":  verdict.ShouldReject,
	})

	return &Result{
		Score:        verdict.AverageScore,
		Feedback:     verdict.Feedback,
		ShouldReject: verdict.ShouldReject,
	}, nil
}

// grade asks the model for a verdict. An unparseable reply gets one more
// attempt with a JSON-only instruction; model call failures are returned
// as they are.
func (e *Evaluator) grade(ctx context.Context, app *models.Application) (*Verdict, error) {
	text, err := e.generate(ctx, BuildPrompt(app, false))
	if err != nil {
		return nil, err
	}
	verdict, err := ParseVerdict(text)
	if err == nil {
		return verdict, nil
	}
	if !errors.Is(err, apperrors.ErrEvaluationParse) {
		return nil, err
	}

	e.logger.Warn("unparseable model response, retrying with strict prompt", map[string]interface{}{
		"applicationId": app.ID,
		"error":         err,
	})
	text, err = e.generate(ctx, BuildPrompt(app, true))
	if err != nil {
		return nil, err
	}
	return ParseVerdict(text)
}

func (e *Evaluator) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := e.model.Generate(ctx, prompt, e.opts)
	result := "success"
	if err != nil {
		result = "error"
		if !apperrors.IsCode(err, apperrors.ErrCodeExternalServiceError) && !apperrors.IsCode(err, apperrors.ErrCodeExternalServiceTimeout) {
			err = apperrors.NewExternalServiceError(e.model.Name(), err)
		}
	}
	metrics.ScoringModelDuration.WithLabelValues(e.model.Name(), result).Observe(time.Since(start).Seconds())
	return text, err
}

func storedResult(app *models.Application) *Result {
	r := &Result{
		Feedback:     alreadyEvaluatedFeedback,
		ShouldReject: app.Status == models.StatusRejected,
		Cached:       true,
	}
	if app.EvaluationScore != nil {
		r.Score = *app.EvaluationScore
	}
	if app.EvaluationFeedback != nil && *app.EvaluationFeedback != "" {
		r.Feedback = *app.EvaluationFeedback
	}
	return r
}
