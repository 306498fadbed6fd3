package core

import (
	"context"

	"epibot/pkg/domain"
)

// NewEligibilityRule blocks records that lack a name, or that have neither a
// reference link nor both parent names.
func NewEligibilityRule() domain.Rule {
	return eligibilityRule{}
}

type eligibilityRule struct{}

func (eligibilityRule) Name() string { return "eligibility" }

func (eligibilityRule) Evaluate(_ context.Context, record domain.Record) (domain.Result, error) {
	res := domain.Result{}
	if record.Eligible() {
		return res, nil
	}
	if record.Name == "" {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "eligibility",
			Severity: domain.SeverityBlock,
			Field:    domain.FieldName,
			Message:  "subject name is required",
		})
		return res, nil
	}
	res.Violations = append(res.Violations, eligibilityViolation())
	return res, nil
}

func eligibilityViolation() domain.Violation {
	return domain.Violation{
		Rule:     "eligibility",
		Severity: domain.SeverityBlock,
		Field:    domain.FieldNone,
		Message:  "a reference link or both parent names are required",
	}
}
