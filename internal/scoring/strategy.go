// Package scoring turns a session's answers into a detected profile and per-category scores.
//
// Strategies are selected by the strategy tag stored in a template's scoring logic.
// New strategies register themselves from an init() function in their own file:
//
//	func init() {
//	    Register(myStrategy{})
//	}
package scoring

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/validation"
)

// EngineVersion is the release of the scoring rules implemented by this package.
// Templates may pin a range of engine versions with scoring_logic.engine_constraint.
const EngineVersion = "1.2.0"

// UndeterminedProfile is reported when no strategy outcome and no default profile exist.
const UndeterminedProfile = "undetermined"

// Answers maps a question id to its raw JSON answer.
type Answers map[string]json.RawMessage

// AnswersFromResponses indexes stored responses by question id.
func AnswersFromResponses(responses []*models.AssessmentResponse) Answers {
	a := make(Answers, len(responses))
	for _, r := range responses {
		a[r.QuestionID] = r.Answer
	}
	return a
}

// Input is everything a strategy may look at.
type Input struct {
	Questions models.QuestionSections
	Logic     models.ScoringLogic
	Answers   Answers
}

// Outcome is the result of running a strategy.
type Outcome struct {
	Profile string
	Scores  map[string]float64
}

// Strategy computes a profile and scores from a session's answers.
type Strategy interface {
	Name() string
	Score(in *Input) (*Outcome, error)
	// Validate checks the template configuration the strategy depends on.
	Validate(questions models.QuestionSections, logic models.ScoringLogic) error
}

var (
	mu         sync.RWMutex
	strategies = make(map[string]Strategy)
)

// Register registers a scoring strategy under its name
func Register(s Strategy) {
	mu.Lock()
	defer mu.Unlock()
	strategies[s.Name()] = s
}

// Lookup returns the strategy registered under name.
func Lookup(name string) (Strategy, error) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("unsupported scoring strategy: %q (must be one of %v)", name, namesLocked())
	}
	return s, nil
}

// Names lists the registered strategy names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(strategies))
	for n := range strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CheckEngine verifies that EngineVersion satisfies a template's engine constraint.
// An empty constraint always passes.
func CheckEngine(constraint string) error {
	if constraint == "" {
		return nil
	}
	ok, err := validation.ConstraintSatisfied(constraint, EngineVersion)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("scoring engine %s does not satisfy template constraint %q", EngineVersion, constraint)
	}
	return nil
}

// Run checks the engine constraint, then scores in with the strategy named by its logic.
func Run(in *Input) (*Outcome, error) {
	if err := CheckEngine(in.Logic.EngineConstraint); err != nil {
		return nil, err
	}
	s, err := Lookup(in.Logic.Strategy)
	if err != nil {
		return nil, err
	}
	return s.Score(in)
}

func fallbackProfile(logic models.ScoringLogic) string {
	if logic.DefaultProfile != "" {
		return logic.DefaultProfile
	}
	return UndeterminedProfile
}
