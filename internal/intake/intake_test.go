package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/common/logger"
	"induction-portal/internal/models"
	"induction-portal/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Store
// ==========================

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Insert(ctx context.Context, app *models.Application) (string, error) {
	args := m.Called(ctx, app)
	return args.String(0), args.Error(1)
}

func (m *MockStore) FindByID(ctx context.Context, id string) (*models.Application, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Application), args.Error(1)
}

func (m *MockStore) FindByField(ctx context.Context, field string, value interface{}) (*models.Application, error) {
	args := m.Called(ctx, field, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Application), args.Error(1)
}

func (m *MockStore) QueryAll(ctx context.Context, orderBy string, dir store.Direction) ([]models.Application, error) {
	args := m.Called(ctx, orderBy, dir)
	return args.Get(0).([]models.Application), args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, id string, patch models.Patch) error {
	return m.Called(ctx, id, patch).Error(0)
}

func (m *MockStore) QueryWhere(ctx context.Context, field string, value interface{}) ([]models.Application, error) {
	args := m.Called(ctx, field, value)
	return args.Get(0).([]models.Application), args.Error(1)
}

// ==========================
// Test Helpers
// ==========================

func createValidForm() *Form {
	return &Form{
		PersonalInfo: PersonalInfo{
			FullName:     "Asha Rao",
			BitsID:       "2023A7PS0001G",
			MobileNumber: "9876543210",
			Email:        "f20230001@goa.bits-pilani.ac.in",
		},
		Fundamentals: Fundamentals{
			AssetsEquityAnswer:        "Assets are what the company owns; equity is the owners' residual claim.",
			FinancialStatementsAnswer: "Income statement, balance sheet and cash flow statement.",
			NetWorthAnswer:            "Assets minus liabilities.",
			BalanceIncomeDifference:   "Balance sheet is a snapshot; income statement covers a period.",
			PePbRatioAnswer:           "Price over earnings and price over book value per share.",
		},
		CaseStudies: CaseStudies{
			LoanTransactionAnswer:  "Cash and liabilities both rise by the loan amount.",
			LifeAnnualReportAnswer: "My week as an annual report would show...",
			TinderPortfolioAnswer:  "Swipe right on a diversified index fund.",
			StockMarketExplanation: "A market where people buy small slices of companies.",
		},
		Awareness: Awareness{
			SofiPlatformsAnswer: "Instagram and LinkedIn.",
			SofiPurposeAnswer:   "Financial literacy on campus.",
		},
	}
}

func newTestService() (*Service, *store.MemoryStore) {
	s := store.NewMemoryStore()
	return NewService(s, logger.NewNoOpLogger()), s
}

func fieldCodes(fields []apperrors.FieldError) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Field] = f.Code
	}
	return out
}

// ==========================
// Format Rules
// ==========================

func TestValidateStructuredID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"2023A7PS0001G", true},
		{"2021B3PS0456P", true},
		{"2021B3A70456P", false},
		{"2022PHXF0012H", false},
		{"2022PHPS0012H", true},
		{"2020H1MM0123G", true},
		{"2020A1MMA70123G", true},
		{"2019D2UB0999P", true},
		{"2023X7PS0001G", false}, // bad campus code
		{"2023A7PS001G", false},  // short serial
		{"2023A7PS0001X", false}, // bad suffix
		{"2023a7ps0001g", false}, // no case folding
		{" 2023A7PS0001G", false},
		{"23A7PS0001G", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidateStructuredID(tt.id))
		})
	}
}

func TestValidatePhone(t *testing.T) {
	assert.True(t, ValidatePhone("9876543210"))
	assert.False(t, ValidatePhone("98765432100"))
	assert.False(t, ValidatePhone("987654321a"))
	assert.False(t, ValidatePhone("+919876543210"))
	assert.False(t, ValidatePhone("98765 43210"))
	assert.False(t, ValidatePhone("９８７６５４３２１０"))
	assert.False(t, ValidatePhone(""))
}

// ==========================
// Duplicate Check
// ==========================

func TestCheckDuplicateID(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	assert.False(t, svc.rules.CheckDuplicateID(ctx, "2023A7PS0001G"))

	_, err := svc.Submit(ctx, createValidForm())
	require.NoError(t, err)

	assert.True(t, svc.rules.CheckDuplicateID(ctx, "2023A7PS0001G"))
	assert.False(t, svc.rules.CheckDuplicateID(ctx, "2023A7PS0002G"))
}

func TestCheckDuplicateID_FailsOpen(t *testing.T) {
	ms := new(MockStore)
	ms.On("FindByField", mock.Anything, "bits_id", "2023A7PS0001G").
		Return(nil, apperrors.NewStoreError("select", errors.New("connection reset")))

	rules := NewRules(ms, logger.NewNoOpLogger())
	assert.False(t, rules.CheckDuplicateID(context.Background(), "2023A7PS0001G"))
	ms.AssertExpectations(t)
}

func TestCheckDuplicateID_LookupTimeout(t *testing.T) {
	ms := new(MockStore)
	ms.On("FindByField", mock.Anything, "bits_id", "2023A7PS0001G").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, ok := ctx.Deadline()
			assert.True(t, ok)
		}).
		Return(nil, apperrors.NewNotFoundError("bits_id", "2023A7PS0001G"))

	svc := NewService(ms, logger.NewNoOpLogger()).WithLookupTimeout(time.Second)
	assert.False(t, svc.rules.CheckDuplicateID(context.Background(), "2023A7PS0001G"))
	ms.AssertExpectations(t)
}

// ==========================
// Section Validation
// ==========================

func TestValidateSection(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	tests := []struct {
		name    string
		section Section
		mutate  func(f *Form)
		want    map[string]string
	}{
		{
			name:    "complete personal info",
			section: SectionPersonalInfo,
			mutate:  func(f *Form) {},
			want:    map[string]string{},
		},
		{
			name:    "blank name and bad email",
			section: SectionPersonalInfo,
			mutate: func(f *Form) {
				f.FullName = "   "
				f.Email = "not-an-email"
			},
			want: map[string]string{
				"full_name": apperrors.FieldMissingRequired,
				"email":     apperrors.FieldInvalidFormat,
			},
		},
		{
			name:    "malformed identifiers",
			section: SectionPersonalInfo,
			mutate: func(f *Form) {
				f.BitsID = "2023X7PS0001G"
				f.MobileNumber = "98765"
				f.WhatsappNumber = "abc"
			},
			want: map[string]string{
				"bits_id":         apperrors.FieldInvalidFormat,
				"mobile_number":   apperrors.FieldInvalidFormat,
				"whatsapp_number": apperrors.FieldInvalidFormat,
			},
		},
		{
			name:    "missing bits id is not also a format error",
			section: SectionPersonalInfo,
			mutate:  func(f *Form) { f.BitsID = "" },
			want:    map[string]string{"bits_id": apperrors.FieldMissingRequired},
		},
		{
			name:    "missing fundamentals",
			section: SectionFundamentals,
			mutate: func(f *Form) {
				f.NetWorthAnswer = ""
				f.PePbRatioAnswer = "\n"
			},
			want: map[string]string{
				"net_worth_answer":   apperrors.FieldMissingRequired,
				"pe_pb_ratio_answer": apperrors.FieldMissingRequired,
			},
		},
		{
			name:    "missing case study",
			section: SectionCaseStudies,
			mutate:  func(f *Form) { f.TinderPortfolioAnswer = "" },
			want:    map[string]string{"tinder_portfolio_answer": apperrors.FieldMissingRequired},
		},
		{
			name:    "missing awareness",
			section: SectionAwareness,
			mutate:  func(f *Form) { f.SofiPurposeAnswer = "" },
			want:    map[string]string{"sofi_purpose_answer": apperrors.FieldMissingRequired},
		},
		{
			name:    "unknown section",
			section: Section(7),
			mutate:  func(f *Form) {},
			want:    map[string]string{"section": apperrors.FieldInvalidFormat},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := createValidForm()
			tt.mutate(form)
			got := svc.rules.ValidateSection(ctx, tt.section, form)
			assert.Equal(t, tt.want, fieldCodes(got))
		})
	}
}

func TestValidateSection_DuplicateHint(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.Submit(ctx, createValidForm())
	require.NoError(t, err)

	got := svc.rules.ValidateSection(ctx, SectionPersonalInfo, createValidForm())
	assert.Equal(t, map[string]string{"bits_id": apperrors.FieldDuplicate}, fieldCodes(got))

	err = svc.CheckSection(ctx, SectionPersonalInfo, createValidForm())
	assert.True(t, errors.Is(err, apperrors.ErrDuplicate))
}

func TestParseSection(t *testing.T) {
	s, ok := ParseSection("2")
	assert.True(t, ok)
	assert.Equal(t, SectionCaseStudies, s)

	s, ok = ParseSection("awareness")
	assert.True(t, ok)
	assert.Equal(t, SectionAwareness, s)

	_, ok = ParseSection("9")
	assert.False(t, ok)
}

// ==========================
// Submit
// ==========================

func TestSubmit_Success(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService()

	form := createValidForm()
	form.WhatsappNumber = "9123456780"

	app, err := svc.Submit(ctx, form)
	require.NoError(t, err)
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, models.StatusPending, app.Status)
	assert.False(t, app.IsEvaluated)

	stored, err := s.FindByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, app, stored)
	require.NotNil(t, stored.WhatsappNumber)
	assert.Equal(t, "9123456780", *stored.WhatsappNumber)
	assert.Equal(t, form.StockMarketExplanation, stored.StockMarketExplanation)
	assert.Equal(t, form.SofiPurposeAnswer, stored.SofiPurposeAnswer)
	assert.Nil(t, stored.EvaluationScore)
	assert.Nil(t, stored.ReviewedBy)
}

func TestSubmit_Duplicate(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService()

	_, err := svc.Submit(ctx, createValidForm())
	require.NoError(t, err)

	_, err = svc.Submit(ctx, createValidForm())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDuplicate))

	all, err := s.QueryAll(ctx, "", store.Desc)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSubmit_DuplicateCaughtByStore(t *testing.T) {
	ms := new(MockStore)
	ms.On("FindByField", mock.Anything, "bits_id", "2023A7PS0001G").
		Return(nil, apperrors.NewStoreError("select", errors.New("timeout")))
	ms.On("Insert", mock.Anything, mock.AnythingOfType("*models.Application")).
		Return("", apperrors.NewDuplicateApplicationError("2023A7PS0001G"))

	svc := NewService(ms, logger.NewNoOpLogger())
	_, err := svc.Submit(context.Background(), createValidForm())
	assert.True(t, errors.Is(err, apperrors.ErrDuplicate))
	ms.AssertExpectations(t)
}

func TestSubmit_Incomplete(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService()

	form := createValidForm()
	form.MobileNumber = "12345"
	form.LoanTransactionAnswer = ""
	form.SofiPlatformsAnswer = ""

	_, err := svc.Submit(ctx, form)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	stdErr := apperrors.AsStandard(err)
	assert.Equal(t, map[string]string{
		"mobile_number":           apperrors.FieldInvalidFormat,
		"loan_transaction_answer": apperrors.FieldMissingRequired,
		"sofi_platforms_answer":   apperrors.FieldMissingRequired,
	}, fieldCodes(stdErr.Fields))

	all, err := s.QueryAll(ctx, "", store.Desc)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSubmit_StoreFailure(t *testing.T) {
	ms := new(MockStore)
	ms.On("FindByField", mock.Anything, "bits_id", "2023A7PS0001G").
		Return(nil, apperrors.NewNotFoundError("bits_id", "2023A7PS0001G"))
	ms.On("Insert", mock.Anything, mock.Anything).
		Return("", apperrors.NewStoreError("insert", errors.New("disk full")))

	svc := NewService(ms, logger.NewNoOpLogger())
	_, err := svc.Submit(context.Background(), createValidForm())
	assert.True(t, errors.Is(err, apperrors.ErrStore))
	ms.AssertExpectations(t)
}
