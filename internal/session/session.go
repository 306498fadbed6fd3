// Package session holds the per-user conversational state: the active wizard
// draft or the active search, never both.
package session

import (
	"time"

	"epibot/pkg/domain"
)

// Step is a position in the linear wizard order.
type Step string

// Wizard steps in order.
const (
	StepNone      Step = ""
	StepSubject   Step = "subject"
	StepMother    Step = "mother"
	StepFather    Step = "father"
	StepSex       Step = "sex"
	StepBirthDate Step = "birth_date"
	StepConfirm   Step = "confirm"
)

var stepOrder = []Step{StepSubject, StepMother, StepFather, StepSex, StepBirthDate, StepConfirm}

// Steps returns the wizard steps in order.
func Steps() []Step {
	return append([]Step(nil), stepOrder...)
}

func (s Step) index() int {
	for i, step := range stepOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// Next returns the following step. Confirm and unknown steps return StepNone.
func (s Step) Next() Step {
	i := s.index()
	if i < 0 || i+1 >= len(stepOrder) {
		return StepNone
	}
	return stepOrder[i+1]
}

// Prev returns the preceding step. Subject returns StepNone (leave the wizard).
func (s Step) Prev() Step {
	i := s.index()
	if i <= 0 {
		return StepNone
	}
	return stepOrder[i-1]
}

// Substate refines the current step while a confirmation prompt is showing.
type Substate string

const (
	SubstateNone              Substate = ""
	SubstateEmptyFieldConfirm Substate = "empty_field_confirm"
	SubstateCancelConfirm     Substate = "cancel_confirm"
)

// Wizard is the in-progress questionnaire.
type Wizard struct {
	Step     Step          `json:"step"`
	Substate Substate      `json:"substate,omitempty"`
	Pending  domain.Field  `json:"pending,omitempty"`
	Draft    domain.Record `json:"draft"`
}

// SearchStep tracks where the user is inside the search flow.
type SearchStep string

const (
	SearchAwaitingQuery SearchStep = "awaiting_query"
	SearchNoMatches     SearchStep = "no_matches"
	SearchResults       SearchStep = "results"
	SearchDetail        SearchStep = "detail"
)

// Search is the active search. Results holds the last search only.
type Search struct {
	Step    SearchStep             `json:"step"`
	Query   string                 `json:"query,omitempty"`
	Results []domain.RecordSummary `json:"results,omitempty"`
}

// Session is one user's state. The zero value means nothing is active.
type Session struct {
	User    domain.UserID `json:"user"`
	Wizard  *Wizard       `json:"wizard,omitempty"`
	Search  *Search       `json:"search,omitempty"`
	Touched time.Time     `json:"touched"`
}

// Active reports whether a wizard or a search is in progress.
func (s Session) Active() bool {
	return s.Wizard != nil || s.Search != nil
}

// BeginWizard starts a fresh wizard at the subject step and drops any search.
func (s *Session) BeginWizard() *Wizard {
	s.Search = nil
	s.Wizard = &Wizard{Step: StepSubject, Draft: domain.Record{OwnerID: s.User}}
	return s.Wizard
}

// BeginSearch starts a fresh search awaiting a query and drops any wizard.
func (s *Session) BeginSearch() *Search {
	s.Wizard = nil
	s.Search = &Search{Step: SearchAwaitingQuery}
	return s.Search
}

// Reset clears everything except the owner.
func (s *Session) Reset() {
	s.Wizard = nil
	s.Search = nil
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	if s.Wizard != nil {
		w := *s.Wizard
		out.Wizard = &w
	}
	if s.Search != nil {
		sr := *s.Search
		if s.Search.Results != nil {
			sr.Results = append([]domain.RecordSummary(nil), s.Search.Results...)
		}
		out.Search = &sr
	}
	return out
}
