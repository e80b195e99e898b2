package scoring

import (
	"fmt"

	"github.com/assessment-platform/assessment-api/internal/db/models"
)

func init() {
	Register(weighted{})
}

// weighted accumulates per-category weights from every answer. The highest category
// becomes the profile; ties go to the category that appears first in the template.
type weighted struct{}

func (weighted) Name() string { return models.StrategyWeighted }

func (weighted) Validate(questions models.QuestionSections, _ models.ScoringLogic) error {
	for _, q := range questions.Flatten() {
		if q.Category != "" {
			continue
		}
		for _, o := range q.Options {
			if len(o.Weights) == 0 {
				return fmt.Errorf("question %s has no category and option %q has no weights", q.ID, o.Value)
			}
		}
		if len(q.Options) == 0 {
			return fmt.Errorf("question %s has no category", q.ID)
		}
	}
	return nil
}

func (weighted) Score(in *Input) (*Outcome, error) {
	order := in.Questions.Categories()
	scores := make(map[string]float64, len(order))
	for _, c := range order {
		scores[c] = 0
	}

	answered := false
	for _, q := range in.Questions.Flatten() {
		raw, ok := in.Answers[q.ID]
		if !ok {
			continue
		}
		answered = true
		w := q.EffectiveWeight()

		switch q.Type {
		case models.QuestionTypeSingleChoice:
			if v, ok := asString(raw); ok {
				addOption(scores, q, v, w)
			}
		case models.QuestionTypeMultipleChoice:
			if vs, ok := asStrings(raw); ok {
				for _, v := range vs {
					addOption(scores, q, v, w)
				}
			}
		case models.QuestionTypeScale:
			if v, ok := asNumber(raw); ok && q.Category != "" {
				scores[q.Category] += v * w
			}
		case models.QuestionTypeText:
			if v, ok := asString(raw); ok && v != "" && q.Category != "" {
				scores[q.Category] += w
			}
		}
	}

	profile := ""
	best := 0.0
	for _, c := range order {
		if s := scores[c]; profile == "" || s > best {
			profile, best = c, s
		}
	}
	if !answered || profile == "" || best <= 0 {
		profile = fallbackProfile(in.Logic)
	}
	return &Outcome{Profile: profile, Scores: scores}, nil
}

func addOption(scores map[string]float64, q models.Question, value string, weight float64) {
	opt, ok := q.Option(value)
	if ok && len(opt.Weights) > 0 {
		for c, w := range opt.Weights {
			scores[c] += w
		}
		return
	}
	if q.Category != "" {
		scores[q.Category] += weight
	}
}
