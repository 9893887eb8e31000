package store

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/models"

	"github.com/google/uuid"
)

// MemoryStore keeps applications in process. bits_id uniqueness is enforced
// under the same lock as the insert.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*models.Application
	bitsID map[string]string
	order  []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*models.Application),
		bitsID: make(map[string]string),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, app *models.Application) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.NewStoreError("insert", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.bitsID[app.BitsID]; taken {
		return "", apperrors.NewDuplicateApplicationError(app.BitsID)
	}

	rec := app.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}

	s.byID[rec.ID] = rec
	s.bitsID[rec.BitsID] = rec.ID
	s.order = append(s.order, rec.ID)
	return rec.ID, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("id", id)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) FindByField(ctx context.Context, field string, value interface{}) (*models.Application, error) {
	matches, err := s.QueryWhere(ctx, field, value)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, apperrors.NewNotFoundError(field, filterValue(value))
	}
	return &matches[0], nil
}

func (s *MemoryStore) QueryAll(ctx context.Context, orderBy string, dir Direction) ([]models.Application, error) {
	col, err := checkOrder(orderBy)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]models.Application, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id].Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if dir == Asc {
			return compare(&out[i], &out[j], col) < 0
		}
		return compare(&out[i], &out[j], col) > 0
	})
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, patch models.Patch) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStoreError("update", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return apperrors.NewNotFoundError("id", id)
	}
	patch.ApplyTo(rec)
	return nil
}

// QueryWhere returns matches in insertion order.
func (s *MemoryStore) QueryWhere(ctx context.Context, field string, value interface{}) ([]models.Application, error) {
	if err := checkFilter(field); err != nil {
		return nil, err
	}
	want := filterValue(value)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Application
	for _, id := range s.order {
		rec := s.byID[id]
		if got, ok := fieldValue(rec, field); ok && got == want {
			out = append(out, *rec.Clone())
		}
	}
	return out, nil
}

func fieldValue(a *models.Application, field string) (string, bool) {
	switch field {
	case "id":
		return a.ID, true
	case "bits_id":
		return a.BitsID, true
	case "email":
		return a.Email, true
	case "mobile_number":
		return a.MobileNumber, true
	case "status":
		return string(a.Status), true
	case "is_evaluated":
		return filterValue(a.IsEvaluated), true
	case "reviewed_by":
		if a.ReviewedBy == nil {
			return "", false
		}
		return *a.ReviewedBy, true
	}
	return "", false
}

// compare orders nil values first, like NULLS FIRST ascending.
func compare(a, b *models.Application, col string) int {
	switch col {
	case "created_at":
		return compareTime(&a.CreatedAt, &b.CreatedAt)
	case "updated_at":
		return compareTime(&a.UpdatedAt, &b.UpdatedAt)
	case "reviewed_at":
		return compareTime(a.ReviewedAt, b.ReviewedAt)
	case "evaluated_at":
		return compareTime(a.EvaluatedAt, b.EvaluatedAt)
	case "full_name":
		return compareString(a.FullName, b.FullName)
	case "bits_id":
		return compareString(a.BitsID, b.BitsID)
	case "status":
		return compareString(string(a.Status), string(b.Status))
	case "evaluation_score":
		switch {
		case a.EvaluationScore == nil && b.EvaluationScore == nil:
			return 0
		case a.EvaluationScore == nil:
			return -1
		case b.EvaluationScore == nil:
			return 1
		case *a.EvaluationScore < *b.EvaluationScore:
			return -1
		case *a.EvaluationScore > *b.EvaluationScore:
			return 1
		}
	}
	return 0
}

func compareTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
