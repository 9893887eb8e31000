package store

import (
	"context"
	"errors"
	"net/http"
	"time"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/common/logger"
	"induction-portal/internal/models"

	"github.com/google/uuid"
)

// SupabaseStore talks to a hosted Supabase table over PostgREST. A unique
// constraint on bits_id must exist on the table; PostgREST reports it as
// HTTP 409.
type SupabaseStore struct {
	client *restClient
	table  string
	logger logger.Logger
}

type SupabaseConfig struct {
	URL        string
	APIKey     string
	Table      string
	HTTPClient *http.Client
}

func NewSupabaseStore(cfg SupabaseConfig, log logger.Logger) (*SupabaseStore, error) {
	client, err := newRestClient(cfg.URL, cfg.APIKey, cfg.HTTPClient)
	if err != nil {
		return nil, err
	}
	table := cfg.Table
	if table == "" {
		table = "applications"
	}
	return &SupabaseStore{
		client: client,
		table:  table,
		logger: logger.Component(log, "supabase-store"),
	}, nil
}

func (s *SupabaseStore) Insert(ctx context.Context, app *models.Application) (string, error) {
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

	resp, err := s.client.from(s.table).insert(ctx, rec)
	if err != nil {
		return "", apperrors.NewStoreError("insert", err)
	}
	if err := resp.err(); err != nil {
		var restErr *restError
		if errors.As(err, &restErr) && (restErr.StatusCode == http.StatusConflict || restErr.Code == pgUniqueViolation) {
			return "", apperrors.NewDuplicateApplicationError(rec.BitsID)
		}
		s.logger.Error("insert failed", map[string]interface{}{"error": err.Error()})
		return "", apperrors.NewStoreError("insert", err)
	}

	var inserted []models.Application
	if err := resp.json(&inserted); err == nil && len(inserted) > 0 && inserted[0].ID != "" {
		return inserted[0].ID, nil
	}
	return rec.ID, nil
}

func (s *SupabaseStore) FindByID(ctx context.Context, id string) (*models.Application, error) {
	return s.findOne(ctx, "id", id)
}

func (s *SupabaseStore) FindByField(ctx context.Context, field string, value interface{}) (*models.Application, error) {
	if err := checkFilter(field); err != nil {
		return nil, err
	}
	return s.findOne(ctx, field, value)
}

func (s *SupabaseStore) findOne(ctx context.Context, field string, value interface{}) (*models.Application, error) {
	rows, err := s.fetch(ctx, s.client.from(s.table).selectCols("*").eq(field, value).limitTo(1))
	if err != nil {
		var restErr *restError
		// malformed uuid literals come back as 400 / 22P02
		if errors.As(err, &restErr) && restErr.Code == pgInvalidTextFormat {
			return nil, apperrors.NewNotFoundError(field, filterValue(value))
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.NewNotFoundError(field, filterValue(value))
	}
	return &rows[0], nil
}

func (s *SupabaseStore) QueryAll(ctx context.Context, orderBy string, dir Direction) ([]models.Application, error) {
	col, err := checkOrder(orderBy)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, s.client.from(s.table).selectCols("*").order(col, dir == Asc))
}

func (s *SupabaseStore) QueryWhere(ctx context.Context, field string, value interface{}) ([]models.Application, error) {
	if err := checkFilter(field); err != nil {
		return nil, err
	}
	return s.fetch(ctx, s.client.from(s.table).selectCols("*").eq(field, value).order("created_at", true))
}

func (s *SupabaseStore) fetch(ctx context.Context, q *queryBuilder) ([]models.Application, error) {
	resp, err := q.get(ctx)
	if err != nil {
		return nil, apperrors.NewStoreError("select", err)
	}
	if err := resp.err(); err != nil {
		return nil, apperrors.NewStoreError("select", err)
	}
	var rows []models.Application
	if err := resp.json(&rows); err != nil {
		return nil, apperrors.NewStoreError("decode", err)
	}
	return rows, nil
}

func (s *SupabaseStore) Update(ctx context.Context, id string, patch models.Patch) error {
	body := make(map[string]interface{})
	for _, a := range patch.Assignments() {
		body[a.Column] = a.Value
	}

	resp, err := s.client.from(s.table).eq("id", id).update(ctx, body)
	if err != nil {
		return apperrors.NewStoreError("update", err)
	}
	if err := resp.err(); err != nil {
		var restErr *restError
		if errors.As(err, &restErr) && restErr.Code == pgInvalidTextFormat {
			return apperrors.NewNotFoundError("id", id)
		}
		return apperrors.NewStoreError("update", err)
	}

	var updated []models.Application
	if err := resp.json(&updated); err != nil {
		return apperrors.NewStoreError("decode", err)
	}
	if len(updated) == 0 {
		return apperrors.NewNotFoundError("id", id)
	}
	return nil
}
