package evaluation

import (
	"fmt"
	"strings"

	"induction-portal/internal/models"
	"induction-portal/internal/review"
)

// Question is one scored item of the application with its model answer.
type Question struct {
	Heading   string
	Reference string
}

// Rubric lists the scored questions in the order of
// models.Application.ScoredAnswers: five fundamentals, then four case studies.
var Rubric = []Question{
	{
		Heading: "Question 1: Depreciation flow through financial statements",
		Reference: `Depreciation is a non-cash expense that impacts all three statements:
- Income Statement: Reduces operating income by ₹10 Cr
- Balance Sheet: Reduces PP&E (accumulated depreciation increases), reduces retained earnings
- Cash Flow Statement: Added back to net income in operating activities (non-cash expense)
Net effect: Reduces net income and equity, but no cash impact.`,
	},
	{
		Heading: "Question 2: Cash Flow from Operations vs Net Income analysis",
		Reference: `Higher CFO than Net Income indicates:
- Strong earnings quality (cash-backed profits)
- Efficient working capital management (collecting receivables quickly, managing inventory well, delaying payables)
- Potential aggressive revenue recognition being offset by actual cash collections
- Could indicate declining growth (less investment in working capital)
Overall, this is generally positive but needs context on growth stage.`,
	},
	{
		Heading: "Question 3: Liquidity ratios analysis (Current vs Quick ratio)",
		Reference: `Current Ratio 2.5 vs Quick Ratio 0.8 indicates:
- Significant inventory (2.5 - 0.8 = 1.7x inventory relative to current liabilities)
- Potential liquidity concerns if inventory is slow-moving
- Red flags: Inventory may be obsolete, overstocked, or hard to liquidate
- Company heavily dependent on inventory sales for liquidity
- Should investigate inventory turnover ratio and days inventory outstanding`,
	},
	{
		Heading: "Question 4: Positive income but negative cash flow scenarios",
		Reference: `Scenarios for positive income but negative operating cash flow:
1. Rapid growth in receivables: Booking revenue but not collecting cash (credit sales growing faster than collections)
2. Inventory buildup: Purchasing inventory but not yet sold, tying up cash in working capital
Other scenarios: Prepaid expenses, accrued revenue, significant non-cash income items being reversed in cash flow`,
	},
	{
		Heading: "Question 5: Leverage and ROE relationship",
		Reference: `Increasing D/E (0.5 to 1.2) with increasing ROE (12% to 18%) suggests:
- Company is successfully using financial leverage to boost returns
- Leveraging effect: Borrowing at lower cost than return on assets
- Increased financial risk: Higher debt obligations, interest coverage concerns
- May indicate aggressive growth strategy or financial engineering
- Need to assess: Interest coverage ratio, debt covenants, sustainability of returns
- Risk-return tradeoff: Higher returns but more volatile, riskier capital structure`,
	},
	{
		Heading: "Case Study 1: M&A and Goodwill accounting",
		Reference: `The ₹200 Cr excess is recorded as Goodwill (intangible asset):
- Balance Sheet: Goodwill of ₹200 Cr in assets
- Future implications: Annual impairment testing required
- If fair value < carrying value: Impairment charge hits income statement
- Other intangibles (patents, trademarks, customer relationships) might be separately identified
- Goodwill is not amortized but tested for impairment annually`,
	},
	{
		Heading: "Case Study 2: Inventory and margin analysis",
		Reference: `Key questions and red flags:
- Inventory valuation method: FIFO vs LIFO? Change in method?
- Pricing power: Can they pass costs to customers?
- Gross margin stability suspicious: Should decline with 40% cost increase unless pricing increased proportionally
- Potential issues: Channel stuffing, obsolete inventory not written down, aggressive revenue recognition
- Check: Inventory turnover ratio, days inventory outstanding, compare to industry
- Investigate: Are they building inventory ahead of expected sales?`,
	},
	{
		Heading: "Case Study 3: Startup valuation and cash flow analysis",
		Reference: `Assessment framework:
- Burn rate analysis: How long until cash runs out?
- Unit economics: CAC (Customer Acquisition Cost) vs LTV (Lifetime Value)
- Flat gross margins concerning: No operating leverage, scaling issues
- Revenue growth without margin expansion: Buying growth, not sustainable
- Path to profitability: When will operating leverage kick in?
- Comparable analysis: Similar companies' trajectories
- Bubble indicators: Valuation disconnect from fundamentals, cash burn unsustainable
- Viable if: Clear path to profitability, strong unit economics, defensible competitive advantage`,
	},
	{
		Heading: "Case Study 4: Valuation multiples comparison",
		Reference: `Valuation gap justifications:
1. Growth rates: Company X has higher revenue/EBITDA growth prospects
2. Capital intensity: Company Y requires more capex, lower free cash flow conversion
3. Working capital efficiency: Company X has better cash conversion cycle
4. Market position: Company X has stronger competitive moat, brand value
5. Management quality: Better capital allocation track record
6. Margin expansion potential: Company X has more operating leverage
7. Geographic mix: Better exposure to high-growth markets
8. E-commerce penetration: Higher online sales, better margins`,
	},
}

// ScoredQuestionCount is the length of the scores array the model returns.
const ScoredQuestionCount = 9

const fundamentalsCount = 5

// BuildPrompt renders the grading prompt for app. strict adds the
// JSON-only instruction used when a previous reply could not be parsed.
func BuildPrompt(app *models.Application, strict bool) string {
	answers := app.ScoredAnswers()

	var parts []string
	parts = append(parts, "You are an expert financial analyst evaluating student responses for a finance society induction. Be lenient and give credit for partially correct or conceptually sound answers. Evaluate the following answers and provide:")
	parts = append(parts, "1. A score out of 100 for each answer")
	parts = append(parts, "2. Overall feedback")
	parts = append(parts, fmt.Sprintf("3. Whether the application should be rejected (if average score < %d%%)", review.RejectThreshold))

	for i, q := range Rubric {
		switch i {
		case 0:
			parts = append(parts, "\nBASIC QUESTIONS:")
		case fundamentalsCount:
			parts = append(parts, "\nCASE STUDIES:")
		}
		parts = append(parts, "\n"+q.Heading)
		parts = append(parts, "Reference Answer: "+q.Reference)
		parts = append(parts, "Student Answer: "+answers[i])
	}

	parts = append(parts, "\nPlease respond in JSON format:")
	parts = append(parts, `{
  "scores": [score1, score2, score3, score4, score5, case1, case2, case3, case4],
  "averageScore": number,
  "feedback": "detailed feedback on strengths and weaknesses",
  "shouldReject": boolean (true if averageScore < 30)
}`)

	parts = append(parts, "\nCriteria for scoring:")
	parts = append(parts, "- Conceptual understanding (50%) - Give credit for showing basic understanding")
	parts = append(parts, "- Effort and thought process (25%) - Reward genuine attempts")
	parts = append(parts, "- Practical application (15%) - Partial credit for related examples")
	parts = append(parts, "- Clarity of explanation (10%)")
	parts = append(parts, "\nBe lenient and encouraging. Give partial credit for somewhat correct answers. Only completely irrelevant or nonsensical answers should score below 15.")

	if strict {
		parts = append(parts, "\nIMPORTANT: Your previous reply could not be parsed. Respond with ONLY the JSON object described above. No prose, no markdown fences, no comments.")
	}
	return strings.Join(parts, "\n")
}
