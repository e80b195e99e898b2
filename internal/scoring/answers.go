package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/assessment-platform/assessment-api/internal/db/models"
)

// ErrInvalidAnswer is wrapped by ValidateAnswer failures.
var ErrInvalidAnswer = errors.New("invalid answer")

// ValidateAnswer checks that raw is an acceptable answer to q.
func ValidateAnswer(q models.Question, raw json.RawMessage) error {
	switch q.Type {
	case models.QuestionTypeScale:
		v, ok := asNumber(raw)
		if !ok {
			return fmt.Errorf("%w: question %s expects a number", ErrInvalidAnswer, q.ID)
		}
		if q.Min != nil && v < *q.Min {
			return fmt.Errorf("%w: question %s expects a value >= %v", ErrInvalidAnswer, q.ID, *q.Min)
		}
		if q.Max != nil && v > *q.Max {
			return fmt.Errorf("%w: question %s expects a value <= %v", ErrInvalidAnswer, q.ID, *q.Max)
		}
	case models.QuestionTypeSingleChoice:
		v, ok := asString(raw)
		if !ok {
			return fmt.Errorf("%w: question %s expects one option value", ErrInvalidAnswer, q.ID)
		}
		if _, found := q.Option(v); !found {
			return fmt.Errorf("%w: %q is not an option of question %s", ErrInvalidAnswer, v, q.ID)
		}
	case models.QuestionTypeMultipleChoice:
		vs, ok := asStrings(raw)
		if !ok || len(vs) == 0 {
			return fmt.Errorf("%w: question %s expects an array of option values", ErrInvalidAnswer, q.ID)
		}
		for _, v := range vs {
			if _, found := q.Option(v); !found {
				return fmt.Errorf("%w: %q is not an option of question %s", ErrInvalidAnswer, v, q.ID)
			}
		}
	case models.QuestionTypeText:
		if _, ok := asString(raw); !ok {
			return fmt.Errorf("%w: question %s expects a string", ErrInvalidAnswer, q.ID)
		}
	default:
		return fmt.Errorf("%w: question %s has unsupported type %q", ErrInvalidAnswer, q.ID, q.Type)
	}
	return nil
}

func asNumber(raw json.RawMessage) (float64, bool) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

func asString(raw json.RawMessage) (string, bool) {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

func asStrings(raw json.RawMessage) ([]string, bool) {
	var v []string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// decode turns a raw answer into a generic JSON value.
func decode(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// equalValues compares two decoded JSON values, treating all numbers as float64.
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && strings.EqualFold(av, bv)
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
