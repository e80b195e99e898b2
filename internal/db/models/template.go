// Package models - template.go defines AssessmentTemplate and the typed JSONB
// documents it carries: question sections, scoring logic and recommendation maps.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"sort"
	"time"
)

// Question types accepted by response ingestion.
const (
	QuestionTypeSingleChoice   = "single_choice"
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeScale          = "scale"
	QuestionTypeText           = "text"
)

// Scoring strategy tags stored in ScoringLogic.Strategy.
const (
	StrategyWeighted  = "weighted"
	StrategyRuleBased = "rule_based"
)

// AssessmentTemplate is an organization's versioned question flow and scoring configuration.
type AssessmentTemplate struct {
	ID                    string           `db:"id" json:"id"`
	OrganizationID        string           `db:"organization_id" json:"organization_id"`
	Name                  string           `db:"name" json:"name"`
	Description           *string          `db:"description" json:"description,omitempty"`
	Version               int              `db:"version" json:"version"`
	IsDefault             bool             `db:"is_default" json:"is_default"`
	IsActive              bool             `db:"is_active" json:"is_active"`
	Questions             QuestionSections `db:"questions" json:"questions"`
	ScoringLogic          ScoringLogic     `db:"scoring_logic" json:"scoring_logic"`
	Branding              JSONMap          `db:"branding" json:"branding"`
	Languages             StringList       `db:"languages" json:"languages"`
	SessionTimeoutMinutes *int             `db:"session_timeout_minutes" json:"session_timeout_minutes,omitempty"`
	RetryPolicy           JSONMap          `db:"retry_policy" json:"retry_policy"`
	PageSize              *int             `db:"page_size" json:"page_size,omitempty"`
	CreatedAt             time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time        `db:"updated_at" json:"updated_at"`
}

// TemplateVersion is the frozen question flow and scoring logic of one template version.
type TemplateVersion struct {
	TemplateID   string           `db:"template_id" json:"template_id"`
	Version      int              `db:"version" json:"version"`
	Questions    QuestionSections `db:"questions" json:"questions"`
	ScoringLogic ScoringLogic     `db:"scoring_logic" json:"scoring_logic"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}

// QuestionSection groups an ordered run of questions under one category.
type QuestionSection struct {
	Category  string     `json:"category"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

// Question is a single prompt in a template.
type Question struct {
	ID       string           `json:"id"`
	Text     string           `json:"text"`
	Type     string           `json:"type"`
	Category string           `json:"category,omitempty"`
	Required bool             `json:"required"`
	Weight   float64          `json:"weight,omitempty"`
	Min      *float64         `json:"min,omitempty"`
	Max      *float64         `json:"max,omitempty"`
	Options  []QuestionOption `json:"options,omitempty"`
}

// QuestionOption is one selectable answer of a choice question.
type QuestionOption struct {
	Value   string             `json:"value"`
	Label   string             `json:"label,omitempty"`
	Weights map[string]float64 `json:"weights,omitempty"`
}

// Option returns the option with the given value.
func (q *Question) Option(value string) (QuestionOption, bool) {
	for _, o := range q.Options {
		if o.Value == value {
			return o, true
		}
	}
	return QuestionOption{}, false
}

// EffectiveWeight is the question weight, defaulting to 1.
func (q *Question) EffectiveWeight() float64 {
	if q.Weight == 0 {
		return 1
	}
	return q.Weight
}

// QuestionSections is the ordered question set of a template.
type QuestionSections []QuestionSection

// Value implements driver.Valuer.
func (s QuestionSections) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *QuestionSections) Scan(src any) error {
	return scanJSON(src, s)
}

// Flatten returns every question in template order with Category filled from its section.
func (s QuestionSections) Flatten() []Question {
	var out []Question
	for _, section := range s {
		for _, q := range section.Questions {
			if q.Category == "" {
				q.Category = section.Category
			}
			out = append(out, q)
		}
	}
	return out
}

// Find looks up a question by id.
func (s QuestionSections) Find(id string) (Question, bool) {
	for _, q := range s.Flatten() {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Total is the number of questions across all sections.
func (s QuestionSections) Total() int {
	n := 0
	for _, section := range s {
		n += len(section.Questions)
	}
	return n
}

// RequiredIDs returns the ids of required questions in template order.
func (s QuestionSections) RequiredIDs() []string {
	var ids []string
	for _, q := range s.Flatten() {
		if q.Required {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// Categories returns the distinct categories in first-seen order, including
// categories referenced only by option weights.
func (s QuestionSections) Categories() []string {
	seen := map[string]bool{}
	var out []string
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, q := range s.Flatten() {
		add(q.Category)
		for _, o := range q.Options {
			keys := make([]string, 0, len(o.Weights))
			for c := range o.Weights {
				keys = append(keys, c)
			}
			sort.Strings(keys)
			for _, c := range keys {
				add(c)
			}
		}
	}
	return out
}

// Page returns up to size questions starting at offset.
func (s QuestionSections) Page(offset, size int) []Question {
	all := s.Flatten()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []Question{}
	}
	end := offset + size
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// ScoringLogic describes how a completed session is scored.
type ScoringLogic struct {
	Strategy         string                          `json:"strategy"`
	EngineConstraint string                          `json:"engine_constraint,omitempty"`
	DefaultProfile   string                          `json:"default_profile,omitempty"`
	Rules            []ScoringRule                   `json:"rules,omitempty"`
	Recommendations  map[string][]RecommendationSpec `json:"recommendations,omitempty"`
}

// Value implements driver.Valuer.
func (l ScoringLogic) Value() (driver.Value, error) {
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *ScoringLogic) Scan(src any) error {
	return scanJSON(src, l)
}

// ScoringRule assigns Profile and Score when every condition matches.
type ScoringRule struct {
	Name       string          `json:"name,omitempty"`
	Conditions []RuleCondition `json:"conditions"`
	Profile    string          `json:"profile"`
	Score      float64         `json:"score"`
}

// RuleCondition tests one answer.
type RuleCondition struct {
	QuestionID string `json:"question_id"`
	Operator   string `json:"operator"`
	Value      any    `json:"value,omitempty"`
}

// RecommendationSpec is a configured recommendation for a profile.
type RecommendationSpec struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	MatchScore  float64        `json:"match_score"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}
