package scoring

import (
	"fmt"
	"strings"

	"github.com/assessment-platform/assessment-api/internal/db/models"
)

// Rule condition operators.
const (
	OpEquals    = "equals"
	OpNotEquals = "not_equals"
	OpIn        = "in"
	OpContains  = "contains"
	OpGTE       = "gte"
	OpLTE       = "lte"
	OpAnswered  = "answered"
)

var operators = map[string]bool{
	OpEquals: true, OpNotEquals: true, OpIn: true, OpContains: true,
	OpGTE: true, OpLTE: true, OpAnswered: true,
}

func init() {
	Register(ruleBased{})
}

// ruleBased walks the configured rules in order. The first rule whose conditions all
// match assigns its profile and fixed score.
type ruleBased struct{}

func (ruleBased) Name() string { return models.StrategyRuleBased }

func (ruleBased) Validate(questions models.QuestionSections, logic models.ScoringLogic) error {
	if len(logic.Rules) == 0 && logic.DefaultProfile == "" {
		return fmt.Errorf("rule_based scoring needs at least one rule or a default_profile")
	}
	for i, rule := range logic.Rules {
		if rule.Profile == "" {
			return fmt.Errorf("rule %d has no profile", i)
		}
		if len(rule.Conditions) == 0 {
			return fmt.Errorf("rule %d has no conditions", i)
		}
		for _, c := range rule.Conditions {
			if !operators[c.Operator] {
				return fmt.Errorf("rule %d uses unknown operator %q", i, c.Operator)
			}
			if _, ok := questions.Find(c.QuestionID); !ok {
				return fmt.Errorf("rule %d references unknown question %q", i, c.QuestionID)
			}
		}
	}
	return nil
}

func (ruleBased) Score(in *Input) (*Outcome, error) {
	for i, rule := range in.Logic.Rules {
		matched := true
		for _, c := range rule.Conditions {
			ok, err := matchCondition(c, in.Answers)
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			if !ok {
				matched = false
				break
			}
		}
		if matched {
			return &Outcome{Profile: rule.Profile, Scores: map[string]float64{rule.Profile: rule.Score}}, nil
		}
	}
	profile := fallbackProfile(in.Logic)
	return &Outcome{Profile: profile, Scores: map[string]float64{profile: 0}}, nil
}

func matchCondition(c models.RuleCondition, answers Answers) (bool, error) {
	raw, present := answers[c.QuestionID]
	if c.Operator == OpAnswered {
		want := true
		if b, ok := c.Value.(bool); ok {
			want = b
		}
		return present == want, nil
	}
	if !present {
		return false, nil
	}
	answer, ok := decode(raw)
	if !ok {
		return false, nil
	}

	switch c.Operator {
	case OpEquals:
		return equalValues(answer, c.Value), nil
	case OpNotEquals:
		return !equalValues(answer, c.Value), nil
	case OpIn:
		candidates, ok := c.Value.([]any)
		if !ok {
			return false, fmt.Errorf("operator in needs an array value")
		}
		for _, v := range candidates {
			if equalValues(answer, v) {
				return true, nil
			}
		}
		return false, nil
	case OpContains:
		switch av := answer.(type) {
		case []any:
			for _, v := range av {
				if equalValues(v, c.Value) {
					return true, nil
				}
			}
			return false, nil
		case string:
			needle, ok := c.Value.(string)
			return ok && strings.Contains(strings.ToLower(av), strings.ToLower(needle)), nil
		}
		return false, nil
	case OpGTE, OpLTE:
		a, ok := toFloat(answer)
		if !ok {
			return false, nil
		}
		b, ok := toFloat(c.Value)
		if !ok {
			return false, fmt.Errorf("operator %s needs a numeric value", c.Operator)
		}
		if c.Operator == OpGTE {
			return a >= b, nil
		}
		return a <= b, nil
	}
	return false, fmt.Errorf("unknown operator %q", c.Operator)
}
