package intake

import (
	"context"
	"fmt"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/common/validation"
)

// Section indexes the steps of the application form.
type Section int

const (
	SectionPersonalInfo Section = iota
	SectionFundamentals
	SectionCaseStudies
	SectionAwareness

	sectionCount
)

var sectionNames = map[Section]string{
	SectionPersonalInfo: "personal_info",
	SectionFundamentals: "fundamentals",
	SectionCaseStudies:  "case_studies",
	SectionAwareness:    "awareness",
}

func (s Section) String() string {
	if name, ok := sectionNames[s]; ok {
		return name
	}
	return fmt.Sprintf("section(%d)", int(s))
}

// ParseSection accepts either the numeric index or the section name.
func ParseSection(v string) (Section, bool) {
	for s, name := range sectionNames {
		if v == name || v == fmt.Sprint(int(s)) {
			return s, true
		}
	}
	return 0, false
}

type PersonalInfo struct {
	FullName       string `json:"full_name" validate:"notblank"`
	BitsID         string `json:"bits_id" validate:"notblank"`
	MobileNumber   string `json:"mobile_number" validate:"notblank"`
	WhatsappNumber string `json:"whatsapp_number,omitempty"`
	Email          string `json:"email" validate:"notblank,email"`
}

type Fundamentals struct {
	AssetsEquityAnswer        string `json:"assets_equity_answer" validate:"notblank"`
	FinancialStatementsAnswer string `json:"financial_statements_answer" validate:"notblank"`
	NetWorthAnswer            string `json:"net_worth_answer" validate:"notblank"`
	BalanceIncomeDifference   string `json:"balance_income_difference" validate:"notblank"`
	PePbRatioAnswer           string `json:"pe_pb_ratio_answer" validate:"notblank"`
}

type CaseStudies struct {
	LoanTransactionAnswer  string `json:"loan_transaction_answer" validate:"notblank"`
	LifeAnnualReportAnswer string `json:"life_annual_report_answer" validate:"notblank"`
	TinderPortfolioAnswer  string `json:"tinder_portfolio_answer" validate:"notblank"`
	StockMarketExplanation string `json:"stock_market_explanation" validate:"notblank"`
}

type Awareness struct {
	SofiPlatformsAnswer string `json:"sofi_platforms_answer" validate:"notblank"`
	SofiPurposeAnswer   string `json:"sofi_purpose_answer" validate:"notblank"`
}

// Form is the applicant's submission. Sections are embedded so the JSON
// body is flat and keyed by column name.
type Form struct {
	PersonalInfo
	Fundamentals
	CaseStudies
	Awareness
}

// ValidateSection returns the field errors for one form section. An empty
// result means the section is complete. Personal info additionally gets the
// format checks and the duplicate hint.
func (r *Rules) ValidateSection(ctx context.Context, section Section, form *Form) []apperrors.FieldError {
	switch section {
	case SectionPersonalInfo:
		return r.validatePersonalInfo(ctx, &form.PersonalInfo, true)
	case SectionFundamentals:
		return validation.Struct(form.Fundamentals)
	case SectionCaseStudies:
		return validation.Struct(form.CaseStudies)
	case SectionAwareness:
		return validation.Struct(form.Awareness)
	default:
		return []apperrors.FieldError{{
			Field:   "section",
			Code:    apperrors.FieldInvalidFormat,
			Message: fmt.Sprintf("unknown form section %d", int(section)),
		}}
	}
}

func (r *Rules) validatePersonalInfo(ctx context.Context, p *PersonalInfo, duplicateHint bool) []apperrors.FieldError {
	errs := validation.Struct(p)
	failed := make(map[string]bool, len(errs))
	for _, fe := range errs {
		failed[fe.Field] = true
	}

	if !failed["bits_id"] {
		switch {
		case !ValidateStructuredID(p.BitsID):
			errs = append(errs, apperrors.FieldError{
				Field:   "bits_id",
				Code:    apperrors.FieldInvalidFormat,
				Message: "Invalid BITS ID format (e.g. 2023A7PS0001G)",
			})
		case duplicateHint && r.CheckDuplicateID(ctx, p.BitsID):
			errs = append(errs, apperrors.FieldError{
				Field:   "bits_id",
				Code:    apperrors.FieldDuplicate,
				Message: "An application with this BITS ID already exists",
			})
		}
	}
	if !failed["mobile_number"] && !ValidatePhone(p.MobileNumber) {
		errs = append(errs, apperrors.FieldError{
			Field:   "mobile_number",
			Code:    apperrors.FieldInvalidFormat,
			Message: "Mobile number must be exactly 10 digits",
		})
	}
	// optional, but must be well formed when given
	if p.WhatsappNumber != "" && !ValidatePhone(p.WhatsappNumber) {
		errs = append(errs, apperrors.FieldError{
			Field:   "whatsapp_number",
			Code:    apperrors.FieldInvalidFormat,
			Message: "WhatsApp number must be exactly 10 digits",
		})
	}
	return errs
}
