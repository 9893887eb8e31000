package models

import "time"

// Patch is a partial update of the mutable review and evaluation columns.
// Nil fields are left untouched. UpdatedAt is always written.
type Patch struct {
	Status             *Status
	ReviewedAt         *time.Time
	ReviewedBy         *string
	AdminReview        *string
	IsEvaluated        *bool
	EvaluationScore    *float64
	EvaluationFeedback *string
	EvaluatedAt        *time.Time
	UpdatedAt          time.Time
}

// Assignment is one column = value pair of a Patch.
type Assignment struct {
	Column string
	Value  interface{}
}

// Assignments returns the set columns in a fixed order, updated_at last.
func (p Patch) Assignments() []Assignment {
	var out []Assignment
	if p.Status != nil {
		out = append(out, Assignment{"status", string(*p.Status)})
	}
	if p.ReviewedAt != nil {
		out = append(out, Assignment{"reviewed_at", *p.ReviewedAt})
	}
	if p.ReviewedBy != nil {
		out = append(out, Assignment{"reviewed_by", *p.ReviewedBy})
	}
	if p.AdminReview != nil {
		out = append(out, Assignment{"admin_review", *p.AdminReview})
	}
	if p.IsEvaluated != nil {
		out = append(out, Assignment{"is_evaluated", *p.IsEvaluated})
	}
	if p.EvaluationScore != nil {
		out = append(out, Assignment{"evaluation_score", *p.EvaluationScore})
	}
	if p.EvaluationFeedback != nil {
		out = append(out, Assignment{"evaluation_feedback", *p.EvaluationFeedback})
	}
	if p.EvaluatedAt != nil {
		out = append(out, Assignment{"evaluated_at", *p.EvaluatedAt})
	}
	return append(out, Assignment{"updated_at", p.UpdatedAt})
}

// ApplyTo writes the set fields onto a.
func (p Patch) ApplyTo(a *Application) {
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.ReviewedAt != nil {
		t := *p.ReviewedAt
		a.ReviewedAt = &t
	}
	if p.ReviewedBy != nil {
		s := *p.ReviewedBy
		a.ReviewedBy = &s
	}
	if p.AdminReview != nil {
		s := *p.AdminReview
		a.AdminReview = &s
	}
	if p.IsEvaluated != nil {
		a.IsEvaluated = *p.IsEvaluated
	}
	if p.EvaluationScore != nil {
		s := *p.EvaluationScore
		a.EvaluationScore = &s
	}
	if p.EvaluationFeedback != nil {
		s := *p.EvaluationFeedback
		a.EvaluationFeedback = &s
	}
	if p.EvaluatedAt != nil {
		t := *p.EvaluatedAt
		a.EvaluatedAt = &t
	}
	a.UpdatedAt = p.UpdatedAt
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
