// Package review applies reviewer decisions to applications.
package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/common/logger"
	"induction-portal/internal/common/metrics"
	"induction-portal/internal/models"
	"induction-portal/internal/store"
)

const (
	// AutomatedReviewer marks rejections made by the evaluation pipeline.
	AutomatedReviewer = "AI Auto-Evaluation"
	// DefaultReviewer is used when promoting an approved application that
	// carries no reviewer name.
	DefaultReviewer = "Admin"

	// RejectThreshold is the average score below which the model is asked
	// to recommend rejection.
	RejectThreshold = 30
)

type Service struct {
	store  store.Store
	logger logger.Logger
	now    func() time.Time
}

func NewService(s store.Store, log logger.Logger) *Service {
	return &Service{
		store:  s,
		logger: logger.Component(log, "review"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Transition moves an application to status on behalf of reviewer. Any
// status may follow any other. A nil comment keeps the previous admin
// review. Repeating a transition rewrites the review timestamps.
func (s *Service) Transition(ctx context.Context, id string, status models.Status, reviewer string, comment *string) (*models.Application, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, apperrors.NewValidationError("reviewer name is required", apperrors.FieldError{
			Field:   "reviewer",
			Code:    apperrors.FieldMissingRequired,
			Message: "Reviewer name is required",
		})
	}
	if !status.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown status %q", status), apperrors.FieldError{
			Field:   "status",
			Code:    apperrors.FieldInvalidFormat,
			Message: "Status must be one of pending, approved, rejected, waitlisted, selected",
		})
	}

	app, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, app, status, reviewer, comment)
}

// Select promotes an application to selected. An approved application
// keeps its existing reviewer when none is given, falling back to
// DefaultReviewer; any other status needs an explicit reviewer.
func (s *Service) Select(ctx context.Context, id, reviewer string) (*models.Application, error) {
	reviewer = strings.TrimSpace(reviewer)

	app, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != models.StatusApproved {
		return s.Transition(ctx, id, models.StatusSelected, reviewer, nil)
	}

	if reviewer == "" {
		reviewer = DefaultReviewer
		if app.ReviewedBy != nil && strings.TrimSpace(*app.ReviewedBy) != "" {
			reviewer = *app.ReviewedBy
		}
	}
	return s.apply(ctx, app, models.StatusSelected, reviewer, nil)
}

func (s *Service) apply(ctx context.Context, app *models.Application, status models.Status, reviewer string, comment *string) (*models.Application, error) {
	now := s.now()
	patch := models.Patch{
		Status:      &status,
		ReviewedAt:  &now,
		ReviewedBy:  &reviewer,
		AdminReview: comment,
		UpdatedAt:   now,
	}
	if err := s.store.Update(ctx, app.ID, patch); err != nil {
		s.logger.Error("failed to persist status change", map[string]interface{}{
			"applicationId": app.ID,
			"status":        string(status),
			"error":         err,
		})
		return nil, err
	}

	metrics.StatusTransitions.WithLabelValues(string(status), "reviewer").Inc()
	s.logger.Info("status changed", map[string]interface{}{
		"applicationId": app.ID,
		"from":          string(app.Status),
		"to":            string(status),
		"reviewer":      reviewer,
	})

	patch.ApplyTo(app)
	return app, nil
}

// AutoRejectPatch adds the automated rejection to an evaluation patch. It
// does not require a reviewer name.
func AutoRejectPatch(patch *models.Patch, score float64, feedback string, now time.Time) {
	rejected := models.StatusRejected
	patch.Status = &rejected
	patch.ReviewedAt = &now
	patch.ReviewedBy = models.Ptr(AutomatedReviewer)
	patch.AdminReview = models.Ptr(AutoRejectComment(score, feedback))
}

// AutoRejectComment is the admin review text recorded on auto-rejection.
func AutoRejectComment(score float64, feedback string) string {
	return fmt.Sprintf("Auto-rejected: Score %s%% (< %d%% threshold). %s", formatScore(score), RejectThreshold, feedback)
}

// formatScore prints whole scores without a decimal point.
func formatScore(score float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", score), "0"), ".")
}
