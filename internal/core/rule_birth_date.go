package core

import (
	"context"
	"fmt"

	"epibot/internal/validation"
	"epibot/pkg/domain"
)

// NewBirthDateRule blocks records whose birth date is set but not a real
// calendar date.
func NewBirthDateRule() domain.Rule {
	return birthDateRule{}
}

type birthDateRule struct{}

func (birthDateRule) Name() string { return "birth_date" }

func (birthDateRule) Evaluate(_ context.Context, record domain.Record) (domain.Result, error) {
	res := domain.Result{}
	if record.BirthDate == "" {
		return res, nil
	}
	if _, err := validation.ParseDate(record.BirthDate); err != nil {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "birth_date",
			Severity: domain.SeverityBlock,
			Field:    domain.FieldBirthDate,
			Message:  fmt.Sprintf("birth date %q: %v", record.BirthDate, err),
		})
	}
	return res, nil
}
