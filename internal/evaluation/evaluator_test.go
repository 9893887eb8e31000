package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/common/logger"
	"induction-portal/internal/models"
	"induction-portal/internal/review"
	"induction-portal/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helpers
// ==========================

// fakeModel answers prompts through respond and records every call.
type fakeModel struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string, call int) (string, error)
}

func (f *fakeModel) Name() string { return "fake" }

func (f *fakeModel) Generate(_ context.Context, prompt string, _ GenerationOptions) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	call := len(f.prompts)
	f.mu.Unlock()
	return f.respond(prompt, call)
}

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func verdictText(avg float64, reject bool, feedback string) string {
	scores := make([]string, ScoredQuestionCount)
	for i := range scores {
		scores[i] = fmt.Sprintf("%g", avg)
	}
	return fmt.Sprintf("Sure! Here is the evaluation:\n{\"scores\":[%s],\"averageScore\":%g,\"feedback\":%q,\"shouldReject\":%t}",
		strings.Join(scores, ","), avg, feedback, reject)
}

func scripted(responses ...string) *fakeModel {
	return &fakeModel{respond: func(_ string, call int) (string, error) {
		if call > len(responses) {
			return "", errors.New("unexpected call")
		}
		return responses[call-1], nil
	}}
}

var evalNow = time.Date(2025, 8, 12, 8, 0, 0, 0, time.UTC)

func newTestEvaluator(t *testing.T, model ScoringModel) (*Evaluator, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	e := NewEvaluator(s, model, GenerationOptions{}, logger.NewTestLogger(t))
	e.now = func() time.Time { return evalNow }
	return e, s
}

func seed(t *testing.T, s store.Store, bitsID string, status models.Status) string {
	t.Helper()
	id, err := s.Insert(context.Background(), &models.Application{
		FullName:               "Test Applicant",
		BitsID:                 bitsID,
		MobileNumber:           "9876543210",
		Email:                  "applicant@example.com",
		AssetsEquityAnswer:     "answer for " + bitsID,
		StockMarketExplanation: "stock market answer",
		Status:                 status,
	})
	require.NoError(t, err)
	return id
}

// ==========================
// Evaluate
// ==========================

func TestEvaluate_PassingScoreKeepsStatus(t *testing.T) {
	ctx := context.Background()
	model := scripted(verdictText(72, false, "Good conceptual answers."))
	e, s := newTestEvaluator(t, model)
	id := seed(t, s, "2023A7PS0001G", models.StatusWaitlisted)

	res, err := e.Evaluate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 72.0, res.Score)
	assert.False(t, res.ShouldReject)
	assert.False(t, res.Cached)

	app, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, app.IsEvaluated)
	assert.Equal(t, models.StatusWaitlisted, app.Status)
	assert.Equal(t, 72.0, *app.EvaluationScore)
	assert.Equal(t, "Good conceptual answers.", *app.EvaluationFeedback)
	assert.Equal(t, evalNow, *app.EvaluatedAt)
	assert.Nil(t, app.ReviewedBy)
	assert.Nil(t, app.AdminReview)
}

func TestEvaluate_AutoReject(t *testing.T) {
	ctx := context.Background()
	model := scripted(verdictText(25, true, "Answers were mostly off-topic."))
	e, s := newTestEvaluator(t, model)
	id := seed(t, s, "2023A7PS0001G", models.StatusPending)

	res, err := e.Evaluate(ctx, id)
	require.NoError(t, err)
	assert.True(t, res.ShouldReject)

	app, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, app.IsEvaluated)
	assert.Equal(t, models.StatusRejected, app.Status)
	assert.Equal(t, review.AutomatedReviewer, *app.ReviewedBy)
	assert.Equal(t, evalNow, *app.ReviewedAt)
	assert.Equal(t, "Auto-rejected: Score 25% (< 30% threshold). Answers were mostly off-topic.", *app.AdminReview)
}

func TestEvaluate_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	model := scripted(verdictText(64.5, false, "Decent."))
	e, s := newTestEvaluator(t, model)
	id := seed(t, s, "2023A7PS0001G", models.StatusPending)

	first, err := e.Evaluate(ctx, id)
	require.NoError(t, err)

	second, err := e.Evaluate(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, 1, model.calls())
	assert.True(t, second.Cached)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Feedback, second.Feedback)
	assert.Equal(t, first.ShouldReject, second.ShouldReject)
}

func TestEvaluate_CachedDefaults(t *testing.T) {
	ctx := context.Background()
	model := scripted()
	e, s := newTestEvaluator(t, model)
	id := seed(t, s, "2023A7PS0001G", models.StatusRejected)
	require.NoError(t, s.Update(ctx, id, models.Patch{IsEvaluated: models.Ptr(true), UpdatedAt: evalNow}))

	res, err := e.Evaluate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, "Already evaluated", res.Feedback)
	assert.True(t, res.ShouldReject)
	assert.Equal(t, 0, model.calls())
}

func TestEvaluate_NotFound(t *testing.T) {
	model := scripted()
	e, _ := newTestEvaluator(t, model)

	_, err := e.Evaluate(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Equal(t, 0, model.calls())
}

func TestEvaluate_RetriesOnceWithStrictPrompt(t *testing.T) {
	ctx := context.Background()
	model := scripted("I think the student did fine overall.", verdictText(55, false, "Fine."))
	e, s := newTestEvaluator(t, model)
	id := seed(t, s, "2023A7PS0001G", models.StatusPending)

	res, err := e.Evaluate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 55.0, res.Score)
	require.Equal(t, 2, model.calls())
	assert.NotContains(t, model.prompts[0], "Respond with ONLY the JSON object")
	assert.Contains(t, model.prompts[1], "Respond with ONLY the JSON object")
}

func TestEvaluate_ParseFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	model := scripted("no json here", `{"scores":[1,2],"averageScore":1}`)
	e, s := newTestEvaluator(t, model)
	id := seed(t, s, "2023A7PS0001G", models.StatusPending)

	_, err := e.Evaluate(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrEvaluationParse))
	assert.Equal(t, 2, model.calls())

	app, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, app.IsEvaluated)
	assert.Nil(t, app.EvaluationScore)
	assert.Equal(t, models.StatusPending, app.Status)
}

func TestEvaluate_ModelFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{respond: func(string, int) (string, error) {
		return "", apperrors.NewExternalServiceError("fake", errors.New("429 quota exceeded"))
	}}
	e, s := newTestEvaluator(t, model)
	id := seed(t, s, "2023A7PS0001G", models.StatusPending)

	_, err := e.Evaluate(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrExternalService))
	assert.Equal(t, 1, model.calls())

	app, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, app.IsEvaluated)
}

func TestEvaluate_UntypedModelErrorIsWrapped(t *testing.T) {
	model := &fakeModel{respond: func(string, int) (string, error) {
		return "", errors.New("boom")
	}}
	e, s := newTestEvaluator(t, model)
	id := seed(t, s, "2023A7PS0001G", models.StatusPending)

	_, err := e.Evaluate(context.Background(), id)
	assert.True(t, errors.Is(err, apperrors.ErrExternalService))
}

func TestNewEvaluator_DefaultOptions(t *testing.T) {
	e := NewEvaluator(store.NewMemoryStore(), scripted(), GenerationOptions{}, logger.NewNoOpLogger())
	require.NotNil(t, e.opts.Temperature)
	assert.Equal(t, DefaultTemperature, *e.opts.Temperature)
	assert.Equal(t, DefaultMaxOutputTokens, e.opts.MaxOutputTokens)
}

func TestNewEvaluator_KeepsZeroTemperature(t *testing.T) {
	zero := 0.0
	e := NewEvaluator(store.NewMemoryStore(), scripted(), GenerationOptions{Temperature: &zero}, logger.NewNoOpLogger())
	require.NotNil(t, e.opts.Temperature)
	assert.Equal(t, 0.0, *e.opts.Temperature)
	assert.Equal(t, DefaultMaxOutputTokens, e.opts.MaxOutputTokens)
}

// ==========================
// Prompt
// ==========================

func TestBuildPrompt(t *testing.T) {
	app := &models.Application{
		AssetsEquityAnswer:     "ANSWER-Q1",
		PePbRatioAnswer:        "ANSWER-Q5",
		LoanTransactionAnswer:  "ANSWER-C1",
		StockMarketExplanation: "ANSWER-C4",
		SofiPurposeAnswer:      "NOT-SCORED",
	}
	prompt := BuildPrompt(app, false)

	q1 := strings.Index(prompt, "Student Answer: ANSWER-Q1")
	q5 := strings.Index(prompt, "Student Answer: ANSWER-Q5")
	c1 := strings.Index(prompt, "Student Answer: ANSWER-C1")
	c4 := strings.Index(prompt, "Student Answer: ANSWER-C4")
	require.True(t, q1 >= 0 && q5 > q1 && c1 > q5 && c4 > c1)

	assert.Less(t, strings.Index(prompt, "BASIC QUESTIONS:"), q1)
	assert.Less(t, strings.Index(prompt, "CASE STUDIES:"), c1)
	assert.Greater(t, strings.Index(prompt, "CASE STUDIES:"), q5)
	assert.Equal(t, ScoredQuestionCount, strings.Count(prompt, "Reference Answer: "))
	assert.Contains(t, prompt, "Goodwill is not amortized")
	assert.Contains(t, prompt, "Conceptual understanding (50%)")
	assert.Contains(t, prompt, "should score below 15")
	assert.Contains(t, prompt, "average score < 30%")
	assert.NotContains(t, prompt, "NOT-SCORED")
	assert.NotContains(t, prompt, "previous reply")

	assert.Contains(t, BuildPrompt(app, true), "previous reply could not be parsed")
	assert.Len(t, Rubric, ScoredQuestionCount)
}
