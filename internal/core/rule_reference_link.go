package core

import (
	"context"
	"fmt"

	"epibot/internal/validation"
	"epibot/pkg/domain"
)

// NewReferenceLinkRule blocks records carrying a link outside the allowed
// pedigree database prefixes.
func NewReferenceLinkRule(links validation.LinkValidator) domain.Rule {
	return referenceLinkRule{links: links}
}

type referenceLinkRule struct {
	links validation.LinkValidator
}

func (referenceLinkRule) Name() string { return "reference_link" }

func (r referenceLinkRule) Evaluate(_ context.Context, record domain.Record) (domain.Result, error) {
	res := domain.Result{}
	checks := []struct {
		field domain.Field
		label string
		value string
	}{
		{domain.FieldLink, "subject", record.Link},
		{domain.FieldMother, "mother", record.MotherLink},
		{domain.FieldFather, "father", record.FatherLink},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		if err := r.links.Check(c.value); err != nil {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "reference_link",
				Severity: domain.SeverityBlock,
				Field:    c.field,
				Message:  fmt.Sprintf("%s link %q: %v", c.label, c.value, err),
			})
		}
	}
	return res, nil
}
