package core

import (
	"epibot/internal/validation"
	"epibot/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in save policy:
// parentage eligibility, reference link shape and birth date validity.
func NewDefaultRulesEngine(links validation.LinkValidator) *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewEligibilityRule())
	engine.Register(NewReferenceLinkRule(links))
	engine.Register(NewBirthDateRule())
	return engine
}
