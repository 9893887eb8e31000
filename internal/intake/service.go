package intake

import (
	"context"
	"errors"
	"time"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/common/logger"
	"induction-portal/internal/common/metrics"
	"induction-portal/internal/models"
	"induction-portal/internal/store"

	"github.com/google/uuid"
)

// Service accepts applicant submissions.
type Service struct {
	store  store.Store
	rules  *Rules
	logger logger.Logger
	now    func() time.Time
}

func NewService(s store.Store, log logger.Logger) *Service {
	log = logger.Component(log, "intake")
	return &Service{
		store:  s,
		rules:  NewRules(s, log),
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithLookupTimeout bounds the duplicate lookup made before inserts and
// during section checks.
func (s *Service) WithLookupTimeout(d time.Duration) *Service {
	s.rules.lookupTimeout = d
	return s
}

// CheckSection validates one step of the form for the step-by-step UI.
func (s *Service) CheckSection(ctx context.Context, section Section, form *Form) error {
	if fields := s.rules.ValidateSection(ctx, section, form); len(fields) > 0 {
		if len(fields) == 1 && fields[0].Code == apperrors.FieldDuplicate {
			return apperrors.NewDuplicateApplicationError(form.BitsID)
		}
		return apperrors.NewValidationError("section "+section.String()+" is incomplete", fields...)
	}
	return nil
}

// Submit validates every section and records the application as pending.
// The store's unique insert is authoritative for duplicates; the lookup
// beforehand only produces an earlier, friendlier error.
func (s *Service) Submit(ctx context.Context, form *Form) (*models.Application, error) {
	var fields []apperrors.FieldError
	fields = append(fields, s.rules.validatePersonalInfo(ctx, &form.PersonalInfo, false)...)
	for section := SectionFundamentals; section < sectionCount; section++ {
		fields = append(fields, s.rules.ValidateSection(ctx, section, form)...)
	}
	if len(fields) > 0 {
		metrics.ApplicationsSubmitted.WithLabelValues("invalid").Inc()
		s.logger.Info("submission rejected", map[string]interface{}{
			"bitsId":     form.BitsID,
			"errorCount": len(fields),
		})
		return nil, apperrors.NewValidationError("application is incomplete or malformed", fields...)
	}

	if s.rules.CheckDuplicateID(ctx, form.BitsID) {
		metrics.ApplicationsSubmitted.WithLabelValues("duplicate").Inc()
		return nil, apperrors.NewDuplicateApplicationError(form.BitsID)
	}

	app := buildApplication(form, s.now())
	id, err := s.store.Insert(ctx, app)
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			metrics.ApplicationsSubmitted.WithLabelValues("duplicate").Inc()
		} else {
			metrics.ApplicationsSubmitted.WithLabelValues("error").Inc()
			s.logger.Error("failed to store application", map[string]interface{}{
				"bitsId": form.BitsID,
				"error":  err,
			})
		}
		return nil, err
	}
	app.ID = id

	metrics.ApplicationsSubmitted.WithLabelValues("accepted").Inc()
	s.logger.Info("application submitted", map[string]interface{}{
		"applicationId": id,
		"bitsId":        app.BitsID,
	})
	return app, nil
}

func buildApplication(form *Form, now time.Time) *models.Application {
	app := &models.Application{
		ID:           uuid.NewString(),
		FullName:     form.FullName,
		BitsID:       form.BitsID,
		MobileNumber: form.MobileNumber,
		Email:        form.Email,

		AssetsEquityAnswer:        form.AssetsEquityAnswer,
		FinancialStatementsAnswer: form.FinancialStatementsAnswer,
		NetWorthAnswer:            form.NetWorthAnswer,
		BalanceIncomeDifference:   form.BalanceIncomeDifference,
		PePbRatioAnswer:           form.PePbRatioAnswer,

		LoanTransactionAnswer:  form.LoanTransactionAnswer,
		LifeAnnualReportAnswer: form.LifeAnnualReportAnswer,
		TinderPortfolioAnswer:  form.TinderPortfolioAnswer,
		StockMarketExplanation: form.StockMarketExplanation,

		SofiPlatformsAnswer: form.SofiPlatformsAnswer,
		SofiPurposeAnswer:   form.SofiPurposeAnswer,

		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if form.WhatsappNumber != "" {
		app.WhatsappNumber = models.Ptr(form.WhatsappNumber)
	}
	return app
}
