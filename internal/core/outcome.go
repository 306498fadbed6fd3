package core

import (
	"context"
	"errors"

	"epibot/pkg/domain"
)

// Outcome classifies the error returned by a handled action for logs and metrics.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeValidation   Outcome = "validation"
	OutcomeInsufficient Outcome = "insufficient_data"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeRateLimited  Outcome = "rate_limited"
	OutcomeUnavailable  Outcome = "unavailable"
	OutcomeInternal     Outcome = "internal"
)

// Handled reports whether the action was answered as designed, including
// rejections of bad user input.
func (o Outcome) Handled() bool {
	switch o {
	case OutcomeUnavailable, OutcomeInternal:
		return false
	}
	return true
}

// Classify maps an error from Service.Handle to an Outcome.
func Classify(err error) Outcome {
	var (
		verr domain.ValidationError
		ierr domain.InsufficientDataError
	)
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &verr):
		return OutcomeValidation
	case errors.As(err, &ierr):
		return OutcomeInsufficient
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, domain.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return OutcomeUnavailable
	}
	return OutcomeInternal
}
