package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/common/logger"
	"induction-portal/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	pgUniqueViolation   = "23505"
	pgInvalidTextFormat = "22P02"
)

const selectColumns = `id, full_name, bits_id, mobile_number, whatsapp_number, email,
	assets_equity_answer, financial_statements_answer, net_worth_answer,
	balance_income_difference, pe_pb_ratio_answer, loan_transaction_answer,
	life_annual_report_answer, tinder_portfolio_answer, stock_market_explanation,
	sofi_platforms_answer, sofi_purpose_answer,
	status, reviewed_at, reviewed_by, admin_review,
	is_evaluated, evaluation_score, evaluation_feedback, evaluated_at,
	created_at, updated_at`

const insertQuery = `
	INSERT INTO applications (
		id, full_name, bits_id, mobile_number, whatsapp_number, email,
		assets_equity_answer, financial_statements_answer, net_worth_answer,
		balance_income_difference, pe_pb_ratio_answer, loan_transaction_answer,
		life_annual_report_answer, tinder_portfolio_answer, stock_market_explanation,
		sofi_platforms_answer, sofi_purpose_answer,
		status, is_evaluated, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
`

// PostgresStore persists applications in the applications table. The
// unique constraint on bits_id makes Insert the atomic duplicate guard.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger.Component(log, "postgres-store"),
	}
}

func (s *PostgresStore) Insert(ctx context.Context, app *models.Application) (string, error) {
	id := app.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	createdAt, updatedAt := app.CreatedAt, app.UpdatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	status := app.Status
	if status == "" {
		status = models.StatusPending
	}

	_, err := s.db.ExecContext(ctx, insertQuery,
		id, app.FullName, app.BitsID, app.MobileNumber, nullString(app.WhatsappNumber), app.Email,
		app.AssetsEquityAnswer, app.FinancialStatementsAnswer, app.NetWorthAnswer,
		app.BalanceIncomeDifference, app.PePbRatioAnswer, app.LoanTransactionAnswer,
		app.LifeAnnualReportAnswer, app.TinderPortfolioAnswer, app.StockMarketExplanation,
		app.SofiPlatformsAnswer, app.SofiPurposeAnswer,
		string(status), app.IsEvaluated, createdAt, updatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return "", apperrors.NewDuplicateApplicationError(app.BitsID)
		}
		s.logger.Error("insert failed", map[string]interface{}{"error": err.Error()})
		return "", apperrors.NewStoreError("insert", err)
	}
	return id, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Application, error) {
	return s.findOne(ctx, "id", id)
}

func (s *PostgresStore) FindByField(ctx context.Context, field string, value interface{}) (*models.Application, error) {
	if err := checkFilter(field); err != nil {
		return nil, err
	}
	return s.findOne(ctx, field, value)
}

func (s *PostgresStore) findOne(ctx context.Context, field string, value interface{}) (*models.Application, error) {
	query := fmt.Sprintf("SELECT %s FROM applications WHERE %s = $1 LIMIT 1", selectColumns, field)
	app, err := scanApplication(s.db.QueryRowContext(ctx, query, filterArg(value)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
			return nil, apperrors.NewNotFoundError(field, filterValue(value))
		}
		return nil, apperrors.NewStoreError("find", err)
	}
	return app, nil
}

func (s *PostgresStore) QueryAll(ctx context.Context, orderBy string, dir Direction) ([]models.Application, error) {
	col, err := checkOrder(orderBy)
	if err != nil {
		return nil, err
	}
	order := "DESC"
	if dir == Asc {
		order = "ASC"
	}
	query := fmt.Sprintf("SELECT %s FROM applications ORDER BY %s %s", selectColumns, col, order)
	return s.queryMany(ctx, query)
}

func (s *PostgresStore) QueryWhere(ctx context.Context, field string, value interface{}) ([]models.Application, error) {
	if err := checkFilter(field); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM applications WHERE %s = $1 ORDER BY created_at ASC", selectColumns, field)
	return s.queryMany(ctx, query, filterArg(value))
}

func (s *PostgresStore) queryMany(ctx context.Context, query string, args ...interface{}) ([]models.Application, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreError("query", err)
	}
	defer rows.Close()

	var out []models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, apperrors.NewStoreError("scan", err)
		}
		out = append(out, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError("query", err)
	}
	return out, nil
}

// Update writes every set column of patch in one statement.
func (s *PostgresStore) Update(ctx context.Context, id string, patch models.Patch) error {
	assignments := patch.Assignments()
	sets := make([]string, 0, len(assignments))
	args := make([]interface{}, 0, len(assignments)+1)
	for i, a := range assignments {
		sets = append(sets, fmt.Sprintf("%s = $%d", a.Column, i+1))
		args = append(args, a.Value)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE applications SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isInvalidText(err) {
			return apperrors.NewNotFoundError("id", id)
		}
		return apperrors.NewStoreError("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewStoreError("update", err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError("id", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app                                   models.Application
		status                                string
		whatsapp, reviewedBy, adminReview, fb sql.NullString
		reviewedAt, evaluatedAt               sql.NullTime
		score                                 sql.NullFloat64
	)
	err := row.Scan(
		&app.ID, &app.FullName, &app.BitsID, &app.MobileNumber, &whatsapp, &app.Email,
		&app.AssetsEquityAnswer, &app.FinancialStatementsAnswer, &app.NetWorthAnswer,
		&app.BalanceIncomeDifference, &app.PePbRatioAnswer, &app.LoanTransactionAnswer,
		&app.LifeAnnualReportAnswer, &app.TinderPortfolioAnswer, &app.StockMarketExplanation,
		&app.SofiPlatformsAnswer, &app.SofiPurposeAnswer,
		&status, &reviewedAt, &reviewedBy, &adminReview,
		&app.IsEvaluated, &score, &fb, &evaluatedAt,
		&app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	app.Status = models.Status(status)
	app.WhatsappNumber = stringPtr(whatsapp)
	app.ReviewedBy = stringPtr(reviewedBy)
	app.AdminReview = stringPtr(adminReview)
	app.EvaluationFeedback = stringPtr(fb)
	if reviewedAt.Valid {
		app.ReviewedAt = &reviewedAt.Time
	}
	if evaluatedAt.Valid {
		app.EvaluatedAt = &evaluatedAt.Time
	}
	if score.Valid {
		app.EvaluationScore = &score.Float64
	}
	return &app, nil
}

func filterArg(v interface{}) interface{} {
	switch val := v.(type) {
	case models.Status:
		return string(val)
	case bool:
		return val
	default:
		return filterValue(val)
	}
}

func isInvalidText(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgInvalidTextFormat
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
