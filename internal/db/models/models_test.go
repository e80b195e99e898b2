package models

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func sampleSections() QuestionSections {
	return QuestionSections{
		{
			Category: "realistic",
			Questions: []Question{
				{ID: "q1", Text: "Build things?", Type: QuestionTypeScale, Required: true},
				{ID: "q2", Text: "Favourite tool", Type: QuestionTypeSingleChoice, Options: []QuestionOption{
					{Value: "hammer", Weights: map[string]float64{"realistic": 2}},
					{Value: "pen", Weights: map[string]float64{"social": 1, "artistic": 2}},
				}},
			},
		},
		{
			Category: "social",
			Questions: []Question{
				{ID: "q3", Text: "Help people?", Type: QuestionTypeScale, Required: true, Category: "helping"},
			},
		},
	}
}

// ---------------------------------------------------------------------------
// QuestionSections helpers
// ---------------------------------------------------------------------------

func TestQuestionSections_FlattenInheritsCategory(t *testing.T) {
	flat := sampleSections().Flatten()
	if len(flat) != 3 {
		t.Fatalf("Flatten() len = %d, want 3", len(flat))
	}
	if flat[0].Category != "realistic" {
		t.Errorf("q1 category = %q, want realistic", flat[0].Category)
	}
	if flat[2].Category != "helping" {
		t.Errorf("explicit category overwritten: got %q, want helping", flat[2].Category)
	}
}

func TestQuestionSections_FindAndTotal(t *testing.T) {
	s := sampleSections()
	if s.Total() != 3 {
		t.Errorf("Total() = %d, want 3", s.Total())
	}
	if _, ok := s.Find("q2"); !ok {
		t.Error("Find(q2) = false, want true")
	}
	if _, ok := s.Find("nope"); ok {
		t.Error("Find(nope) = true, want false")
	}
}

func TestQuestionSections_RequiredIDs(t *testing.T) {
	got := sampleSections().RequiredIDs()
	want := []string{"q1", "q3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RequiredIDs() = %v, want %v", got, want)
	}
}

func TestQuestionSections_CategoriesFirstSeenOrder(t *testing.T) {
	got := sampleSections().Categories()
	want := []string{"realistic", "artistic", "social", "helping"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Categories() = %v, want %v", got, want)
	}
}

func TestQuestionSections_Page(t *testing.T) {
	s := sampleSections()
	if got := s.Page(0, 2); len(got) != 2 || got[0].ID != "q1" {
		t.Errorf("Page(0,2) = %+v", got)
	}
	if got := s.Page(2, 5); len(got) != 1 || got[0].ID != "q3" {
		t.Errorf("Page(2,5) = %+v", got)
	}
	if got := s.Page(3, 5); len(got) != 0 {
		t.Errorf("Page past end should be empty, got %d", len(got))
	}
}

func TestQuestion_EffectiveWeightDefaultsToOne(t *testing.T) {
	q := Question{}
	if q.EffectiveWeight() != 1 {
		t.Errorf("EffectiveWeight() = %v, want 1", q.EffectiveWeight())
	}
	q.Weight = 2.5
	if q.EffectiveWeight() != 2.5 {
		t.Errorf("EffectiveWeight() = %v, want 2.5", q.EffectiveWeight())
	}
}

// ---------------------------------------------------------------------------
// AssessmentSession.State
// ---------------------------------------------------------------------------

func TestAssessmentSession_State(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	tests := []struct {
		name string
		s    AssessmentSession
		want string
	}{
		{"fresh session is created", AssessmentSession{IsActive: true, ExpiresAt: future}, SessionStateCreated},
		{"started session is active", AssessmentSession{IsActive: true, ExpiresAt: future, StartedAt: &past}, SessionStateActive},
		{"past expiry is expired", AssessmentSession{IsActive: true, ExpiresAt: past}, SessionStateExpired},
		{"inactive is expired", AssessmentSession{IsActive: false, ExpiresAt: future}, SessionStateExpired},
		{"paused wins over expiry", AssessmentSession{IsActive: true, ExpiresAt: past, PausedAt: &past}, SessionStatePaused},
		{"completed wins over everything", AssessmentSession{ExpiresAt: past, CompletedAt: &past, PausedAt: &past}, SessionStateCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.State(now); got != tt.want {
				t.Errorf("State() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// APIKey.IsUsable
// ---------------------------------------------------------------------------

func TestAPIKey_IsUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if !(&APIKey{IsActive: true}).IsUsable(now) {
		t.Error("active key without expiry should be usable")
	}
	if (&APIKey{IsActive: false}).IsUsable(now) {
		t.Error("inactive key should not be usable")
	}
	if (&APIKey{IsActive: true, RevokedAt: &past}).IsUsable(now) {
		t.Error("revoked key should not be usable")
	}
	if (&APIKey{IsActive: true, ExpiresAt: &past}).IsUsable(now) {
		t.Error("expired key should not be usable")
	}
	if !(&APIKey{IsActive: true, ExpiresAt: &future}).IsUsable(now) {
		t.Error("key expiring in the future should be usable")
	}
}

// ---------------------------------------------------------------------------
// JSON column scanning
// ---------------------------------------------------------------------------

func TestJSONColumns_ScanNilLeavesZero(t *testing.T) {
	var m JSONMap
	if err := m.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) error: %v", err)
	}
	if m != nil {
		t.Errorf("Scan(nil) = %v, want nil map", m)
	}
}

func TestJSONColumns_ScanRejectsUnknownType(t *testing.T) {
	var s ScoreMap
	if err := s.Scan(42); err == nil {
		t.Error("Scan(int) expected error, got nil")
	}
}

func TestProgressData_ScanFromBytes(t *testing.T) {
	var p ProgressData
	if err := p.Scan([]byte(`{"responses_count":3,"extensions":1}`)); err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if p.ResponsesCount != 3 || p.Extensions != 1 {
		t.Errorf("ProgressData = %+v", p)
	}
}

func TestScoringLogic_ValueIsJSON(t *testing.T) {
	l := ScoringLogic{Strategy: StrategyWeighted, DefaultProfile: "explorer"}
	v, err := l.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}
	var back ScoringLogic
	if err := json.Unmarshal(v.([]byte), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Strategy != StrategyWeighted || back.DefaultProfile != "explorer" {
		t.Errorf("round trip = %+v", back)
	}
}
