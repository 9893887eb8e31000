// internal/models/application.go
package models

import "time"

// Status is the review state of an application.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusWaitlisted Status = "waitlisted"
	StatusSelected   Status = "selected"
)

// Statuses lists every valid status.
var Statuses = []Status{StatusPending, StatusApproved, StatusRejected, StatusWaitlisted, StatusSelected}

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// Application is one submitted induction form plus its review and
// evaluation state. JSON names match the table columns.
type Application struct {
	ID             string  `json:"id"`
	FullName       string  `json:"full_name"`
	BitsID         string  `json:"bits_id"`
	MobileNumber   string  `json:"mobile_number"`
	WhatsappNumber *string `json:"whatsapp_number"`
	Email          string  `json:"email"`

	// Financial fundamentals.
	AssetsEquityAnswer        string `json:"assets_equity_answer"`
	FinancialStatementsAnswer string `json:"financial_statements_answer"`
	NetWorthAnswer            string `json:"net_worth_answer"`
	BalanceIncomeDifference   string `json:"balance_income_difference"`
	PePbRatioAnswer           string `json:"pe_pb_ratio_answer"`

	// Case studies.
	LoanTransactionAnswer  string `json:"loan_transaction_answer"`
	LifeAnnualReportAnswer string `json:"life_annual_report_answer"`
	TinderPortfolioAnswer  string `json:"tinder_portfolio_answer"`
	StockMarketExplanation string `json:"stock_market_explanation"`

	// Organization awareness. Not scored.
	SofiPlatformsAnswer string `json:"sofi_platforms_answer"`
	SofiPurposeAnswer   string `json:"sofi_purpose_answer"`

	Status      Status     `json:"status"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	ReviewedBy  *string    `json:"reviewed_by"`
	AdminReview *string    `json:"admin_review"`

	IsEvaluated        bool       `json:"is_evaluated"`
	EvaluationScore    *float64   `json:"evaluation_score"`
	EvaluationFeedback *string    `json:"evaluation_feedback"`
	EvaluatedAt        *time.Time `json:"evaluated_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScoredAnswers returns the nine scored answers in rubric order: the five
// fundamentals followed by the four case studies.
func (a *Application) ScoredAnswers() []string {
	return []string{
		a.AssetsEquityAnswer,
		a.FinancialStatementsAnswer,
		a.NetWorthAnswer,
		a.BalanceIncomeDifference,
		a.PePbRatioAnswer,
		a.LoanTransactionAnswer,
		a.LifeAnnualReportAnswer,
		a.TinderPortfolioAnswer,
		a.StockMarketExplanation,
	}
}

// Clone returns a deep copy so callers cannot alias stored pointers.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	c.WhatsappNumber = cloneString(a.WhatsappNumber)
	c.ReviewedBy = cloneString(a.ReviewedBy)
	c.AdminReview = cloneString(a.AdminReview)
	c.EvaluationFeedback = cloneString(a.EvaluationFeedback)
	c.ReviewedAt = cloneTime(a.ReviewedAt)
	c.EvaluatedAt = cloneTime(a.EvaluatedAt)
	if a.EvaluationScore != nil {
		s := *a.EvaluationScore
		c.EvaluationScore = &s
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
