package core

import (
	"context"
	"errors"
	"strings"

	"epibot/internal/session"
	"epibot/internal/validation"
	"epibot/pkg/domain"
)

// startForm enters the wizard unless one is already running, in which case the
// current step is shown again and the draft is kept.
func (s *Service) startForm(ctx context.Context, sess *session.Session) (Reply, error) {
	if w := sess.Wizard; w != nil {
		return s.renderWizard(w), nil
	}
	w := sess.BeginWizard()
	return reply(renderStep(w)), nil
}

// renderWizard renders whatever prompt is currently showing.
func (s *Service) renderWizard(w *session.Wizard) Reply {
	switch w.Substate {
	case session.SubstateEmptyFieldConfirm:
		return reply(renderEmptyConfirm(w.Pending))
	case session.SubstateCancelConfirm:
		return reply(renderCancelConfirm())
	}
	return reply(renderStep(w))
}

func (s *Service) wizardButton(ctx context.Context, sess *session.Session, id string) (Reply, error) {
	w := sess.Wizard
	switch w.Substate {
	case session.SubstateCancelConfirm:
		switch id {
		case ActWizardCancelYes:
			sess.Reset()
			return reply(notice(cancelledText), renderMenu(welcomeText)), nil
		case ActWizardCancelNo:
			w.Substate = session.SubstateNone
			return reply(renderStep(w)), nil
		}
		return Reply{}, nil
	case session.SubstateEmptyFieldConfirm:
		switch id {
		case ActWizardEmptyOK:
			w.Substate = session.SubstateNone
			w.Pending = domain.FieldNone
			w.Step = w.Step.Next()
			return reply(renderStep(w)), nil
		case ActWizardEmptyBack:
			w.Substate = session.SubstateNone
			w.Pending = domain.FieldNone
			return reply(renderStep(w)), nil
		}
		return Reply{}, nil
	}

	switch id {
	case ActWizardCancel:
		w.Substate = session.SubstateCancelConfirm
		return reply(renderCancelConfirm()), nil
	case ActWizardBack:
		prev := w.Step.Prev()
		if prev == session.StepNone {
			sess.Reset()
			return reply(renderMenu(welcomeText)), nil
		}
		w.Step = prev
		return reply(renderStep(w)), nil
	case ActWizardNext:
		return s.wizardNext(w)
	case ActWizardSexMale, ActWizardSexFemale:
		if w.Step != session.StepSex {
			return reply(renderStep(w)), nil
		}
		w.Draft.Sex = domain.SexMale
		if id == ActWizardSexFemale {
			w.Draft.Sex = domain.SexFemale
		}
		return reply(renderStep(w)), nil
	case ActWizardSave:
		if w.Step != session.StepConfirm {
			return reply(renderStep(w)), nil
		}
		return s.save(ctx, sess)
	}
	return reply(renderStep(w)), nil
}

func (s *Service) wizardNext(w *session.Wizard) (Reply, error) {
	d := w.Draft
	switch w.Step {
	case session.StepSubject:
		if strings.TrimSpace(d.Name) == "" {
			return invalid(w, domain.ValidationError{Field: domain.FieldName, Reason: reasonNameRequired})
		}
	case session.StepMother:
		if d.MotherName == "" && d.MotherLink == "" {
			return askEmpty(w, domain.FieldMother), nil
		}
	case session.StepFather:
		if d.FatherName == "" && d.FatherLink == "" {
			return askEmpty(w, domain.FieldFather), nil
		}
	case session.StepSex:
		if d.Sex == domain.SexUnspecified {
			return askEmpty(w, domain.FieldSex), nil
		}
	case session.StepConfirm:
		return reply(renderStep(w)), nil
	}
	w.Step = w.Step.Next()
	return reply(renderStep(w)), nil
}

func askEmpty(w *session.Wizard, field domain.Field) Reply {
	w.Substate = session.SubstateEmptyFieldConfirm
	w.Pending = field
	return reply(renderEmptyConfirm(field))
}

// invalid re-renders the unchanged step below an inline error.
func invalid(w *session.Wizard, verr domain.ValidationError) (Reply, error) {
	return reply(notice(validationText(verr)), renderStep(w)), verr
}

func (s *Service) wizardText(_ context.Context, sess *session.Session, text string) (Reply, error) {
	w := sess.Wizard
	if w.Substate != session.SubstateNone {
		return Reply{}, nil
	}
	text = strings.TrimSpace(text)
	switch w.Step {
	case session.StepSubject:
		return s.capture(w, &w.Draft.Name, &w.Draft.Link, text)
	case session.StepMother:
		return s.capture(w, &w.Draft.MotherName, &w.Draft.MotherLink, text)
	case session.StepFather:
		return s.capture(w, &w.Draft.FatherName, &w.Draft.FatherLink, text)
	case session.StepBirthDate:
		if text == "" {
			return reply(renderStep(w)), nil
		}
		if _, err := validation.ParseDate(text); err != nil {
			reason := reasonBadDateFormat
			if errors.Is(err, validation.ErrDateCalendar) {
				reason = reasonBadDateCalendar
			}
			return invalid(w, domain.ValidationError{Field: domain.FieldBirthDate, Reason: reason})
		}
		w.Draft.BirthDate = text
		w.Step = session.StepConfirm
		return reply(renderStep(w)), nil
	}
	// Sex is chosen with buttons and confirm takes no text.
	return reply(renderStep(w)), nil
}

// capture fills one name/link block. A valid link always goes to the link slot;
// other text becomes the name only while the name is still empty.
func (s *Service) capture(w *session.Wizard, name, link *string, text string) (Reply, error) {
	switch {
	case text == "":
	case s.links.Valid(text):
		*link = text
	case *name == "":
		*name = text
	default:
		return invalid(w, domain.ValidationError{Field: domain.FieldLink, Reason: reasonBadLink})
	}
	return reply(renderStep(w)), nil
}

// save persists the draft when every blocking rule passes. On a store failure
// the returned error rolls the session back to the confirm step.
func (s *Service) save(ctx context.Context, sess *session.Session) (Reply, error) {
	w := sess.Wizard
	record := w.Draft
	record.OwnerID = sess.User
	record.ID = ""
	record.CreatedAt = s.clock.Now().UTC()

	res, err := s.engine.Evaluate(ctx, record)
	if err != nil {
		return reply(notice(unavailableText), renderStep(w)), err
	}
	blocking := res.Blocking()
	if len(blocking) == 0 && !record.Eligible() {
		blocking = append(blocking, eligibilityViolation())
	}
	if len(blocking) > 0 {
		return reply(notice(insufficientText), renderStep(w)), domain.InsufficientDataError{Violations: blocking}
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	start := s.clock.Now()
	id, err := s.records.Insert(storeCtx, record)
	if err != nil {
		s.recordAudit(ctx, "save_record", sess.User, "", s.clock.Now().Sub(start), err)
		return reply(notice(unavailableText), renderStep(w)), err
	}
	s.recordAudit(ctx, "save_record", sess.User, id, s.clock.Now().Sub(start), nil)
	s.logger.Info("record saved", "record_id", id, "user_id", int64(sess.User))
	sess.Reset()
	return reply(notice(savedText), renderMenu(welcomeText)), nil
}
