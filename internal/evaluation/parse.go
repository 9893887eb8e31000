package evaluation

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "induction-portal/internal/common/errors"
	"induction-portal/internal/common/validation"

	"github.com/tidwall/gjson"
)

// Verdict is the model's grading of one application.
type Verdict struct {
	Scores       []float64 `json:"scores"`
	AverageScore float64   `json:"averageScore"`
	Feedback     string    `json:"feedback"`
	ShouldReject bool      `json:"shouldReject"`
}

const verdictSchema = `{
  "type": "object",
  "required": ["scores", "averageScore", "feedback", "shouldReject"],
  "properties": {
    "scores": {
      "type": "array",
      "minItems": 9,
      "maxItems": 9,
      "items": {"type": "number", "minimum": 0, "maximum": 100}
    },
    "averageScore": {"type": "number", "minimum": 0, "maximum": 100},
    "feedback": {"type": "string"},
    "shouldReject": {"type": "boolean"}
  }
}`

var verdictValidator = validation.MustCompile(verdictSchema)

// ParseVerdict finds the first balanced JSON object in text that satisfies
// the verdict schema. Models often wrap the object in prose or fences.
func ParseVerdict(text string) (*Verdict, error) {
	candidates := jsonObjects(text)
	if len(candidates) == 0 {
		return nil, apperrors.NewEvaluationParseError("no JSON object in model response")
	}

	var firstProblem string
	for _, c := range candidates {
		problems, err := verdictValidator.Validate([]byte(c))
		if err != nil {
			return nil, apperrors.NewEvaluationParseError(err.Error())
		}
		if len(problems) == 0 {
			var v Verdict
			if err := json.Unmarshal([]byte(c), &v); err != nil {
				return nil, apperrors.NewEvaluationParseError(err.Error())
			}
			return &v, nil
		}
		if firstProblem == "" {
			firstProblem = strings.Join(problems, "; ")
		}
	}
	return nil, apperrors.NewEvaluationParseError(fmt.Sprintf("response does not match the verdict shape: %s", firstProblem))
}

// jsonObjects returns every balanced {...} span of text that is valid JSON,
// in order of appearance. Braces inside strings are ignored.
func jsonObjects(text string) []string {
	var out []string
	for start := strings.IndexByte(text, '{'); start >= 0; {
		end := matchingBrace(text, start)
		if end < 0 {
			// a stray opening brace in prose; later objects may still close
			start = nextBrace(text, start+1)
			continue
		}
		if candidate := text[start : end+1]; gjson.Valid(candidate) {
			out = append(out, candidate)
			start = nextBrace(text, end+1)
			continue
		}
		start = nextBrace(text, start+1)
	}
	return out
}

func nextBrace(text string, from int) int {
	if from >= len(text) {
		return -1
	}
	i := strings.IndexByte(text[from:], '{')
	if i < 0 {
		return -1
	}
	return from + i
}

// matchingBrace returns the index of the brace closing the one at start,
// or -1 if it is never closed.
func matchingBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
