package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"epibot/internal/session"
	"epibot/pkg/domain"
)

func TestWizardStepsFollowLinearOrder(t *testing.T) {
	h := newHarness(t)
	h.must(h.svc.StartForm(context.Background(), testUser))
	h.must(h.text("Rex"))
	h.must(h.text("https://canecorsopedigree.com/rex"))

	want := session.Steps()
	for i, step := range want {
		if got := h.step(); got != step {
			t.Fatalf("forward %d: expected %s, got %s", i, step, got)
		}
		if step == session.StepConfirm {
			break
		}
		h.must(h.press(ActWizardNext))
		if w := h.wizard(); w != nil && w.Substate == session.SubstateEmptyFieldConfirm {
			h.must(h.press(ActWizardEmptyOK))
		}
	}
	for i := len(want) - 1; i > 0; i-- {
		h.must(h.press(ActWizardBack))
		if got := h.step(); got != want[i-1] {
			t.Fatalf("back from %s: expected %s, got %s", want[i], want[i-1], got)
		}
	}
	r := h.must(h.press(ActWizardBack))
	if h.step() != session.StepNone {
		t.Fatalf("back from first step must leave the wizard, got %s", h.step())
	}
	if diff := cmp.Diff(actionIDs(renderMenu(welcomeText)), actionIDs(r.Last())); diff != "" {
		t.Fatalf("expected main menu (-want +got):\n%s", diff)
	}
}

func TestWizardHappyPathPersistsRecord(t *testing.T) {
	h := newHarness(t)
	h.must(h.svc.StartForm(context.Background(), testUser))
	h.must(h.text("Rex"))
	h.must(h.press(ActWizardNext))
	h.must(h.text("Luna"))
	h.must(h.press(ActWizardNext))
	h.must(h.text("Max"))
	h.must(h.press(ActWizardNext))
	h.must(h.press(ActWizardSexMale))
	h.must(h.press(ActWizardNext))
	r := h.must(h.text("2021.03.27"))
	if h.step() != session.StepConfirm {
		t.Fatalf("valid birth date must advance to confirm, got %s", h.step())
	}
	if !strings.Contains(r.Last().Text, "Birth date: 2021.03.27") {
		t.Fatalf("confirm must list the birth date: %q", r.Last().Text)
	}

	r = h.must(h.press(ActWizardSave))
	if !containsText(r, savedText) {
		t.Fatalf("expected saved notice, got %+v", r)
	}
	if _, ok := h.svc.Sessions().Get(testUser); ok {
		t.Fatalf("session must be cleared after save")
	}
	records, err := h.mem.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(records))
	}
	got := records[0]
	want := domain.Record{
		ID:         got.ID,
		Name:       "Rex",
		MotherName: "Luna",
		FatherName: "Max",
		Sex:        domain.SexMale,
		BirthDate:  "2021.03.27",
		OwnerID:    testUser,
		CreatedAt:  got.CreatedAt,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
	if got.ID == "" || got.CreatedAt.IsZero() {
		t.Fatalf("store must assign id and timestamp: %+v", got)
	}
}

func TestWizardSaveWithoutParentageIsRejected(t *testing.T) {
	h := newHarness(t)
	h.must(h.svc.StartForm(context.Background(), testUser))
	h.must(h.text("Rex"))
	h.must(h.press(ActWizardNext))
	h.must(h.press(ActWizardNext))
	h.must(h.press(ActWizardEmptyOK))
	h.must(h.press(ActWizardNext))
	h.must(h.press(ActWizardEmptyOK))
	h.must(h.press(ActWizardNext))
	h.must(h.press(ActWizardEmptyOK))
	h.must(h.press(ActWizardNext))
	if h.step() != session.StepConfirm {
		t.Fatalf("expected confirm, got %s", h.step())
	}

	r, err := h.press(ActWizardSave)
	var ierr domain.InsufficientDataError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if len(ierr.Violations) == 0 {
		t.Fatalf("expected violations on the error")
	}
	if !containsText(r, insufficientText) {
		t.Fatalf("expected insufficient data notice, got %+v", r)
	}
	if inserts, _, _ := h.store.counts(); inserts != 0 {
		t.Fatalf("no insert may happen, got %d", inserts)
	}
	if h.step() != session.StepConfirm {
		t.Fatalf("draft must stay at confirm, got %s", h.step())
	}
}

func TestWizardBirthDateCalendarCheck(t *testing.T) {
	h := newHarness(t)
	h.must(h.svc.StartForm(context.Background(), testUser))
	h.must(h.text("Rex"))
	for h.step() != session.StepBirthDate {
		h.must(h.press(ActWizardNext))
		if w := h.wizard(); w.Substate == session.SubstateEmptyFieldConfirm {
			h.must(h.press(ActWizardEmptyOK))
		}
	}

	r, err := h.text("2021.02.30")
	var verr domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != domain.FieldBirthDate {
		t.Fatalf("expected birth date validation error, got %v", err)
	}
	if !containsText(r, badDateCalText) {
		t.Fatalf("expected calendar notice, got %+v", r)
	}
	if h.step() != session.StepBirthDate || h.wizard().Draft.BirthDate != "" {
		t.Fatalf("state must remain at birth_date with no date stored")
	}

	_, err = h.text("27/03/2021")
	if !errors.As(err, &verr) || verr.Reason != reasonBadDateFormat {
		t.Fatalf("expected format error, got %v", err)
	}

	h.must(h.text("2021.02.28"))
	if h.step() != session.StepConfirm {
		t.Fatalf("expected confirm after a valid date, got %s", h.step())
	}
	if got := h.wizard().Draft.BirthDate; got != "2021.02.28" {
		t.Fatalf("expected stored birth date, got %q", got)
	}
}

func TestWizardEmptyParentsWithSubjectLinkSaves(t *testing.T) {
	h := newHarness(t)
	h.must(h.svc.StartForm(context.Background(), testUser))
	h.must(h.text("Rex"))
	h.must(h.text("https://canecorsopedigree.com/rex"))
	h.must(h.press(ActWizardNext))

	r := h.must(h.press(ActWizardNext))
	if diff := cmp.Diff([]string{ActWizardEmptyOK, ActWizardEmptyBack}, actionIDs(r.Last())); diff != "" {
		t.Fatalf("expected empty-field prompt (-want +got):\n%s", diff)
	}
	h.must(h.press(ActWizardEmptyOK))
	if h.step() != session.StepFather {
		t.Fatalf("expected father, got %s", h.step())
	}
	h.must(h.press(ActWizardNext))
	h.must(h.press(ActWizardEmptyOK))
	h.must(h.press(ActWizardSexFemale))
	h.must(h.press(ActWizardNext))
	h.must(h.press(ActWizardNext))
	if h.step() != session.StepConfirm {
		t.Fatalf("expected confirm, got %s", h.step())
	}
	h.must(h.press(ActWizardSave))

	records, _ := h.mem.List(context.Background())
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0].Link != "https://canecorsopedigree.com/rex" || records[0].MotherName != "" || records[0].Sex != domain.SexFemale {
		t.Fatalf("unexpected record %+v", records[0])
	}
}

func TestWizardEmptyFieldGoBackKeepsStep(t *testing.T) {
	h := newHarness(t)
	h.must(h.svc.StartForm(context.Background(), testUser))
	h.must(h.text("Rex"))
	before := h.must(h.press(ActWizardNext))
	h.must(h.press(ActWizardNext))
	r := h.must(h.press(ActWizardEmptyBack))
	if h.step() != session.StepMother {
		t.Fatalf("expected mother, got %s", h.step())
	}
	if diff := cmp.Diff(before.Last(), r.Last()); diff != "" {
		t.Fatalf("go back must re-render the step (-want +got):\n%s", diff)
	}
	// Text is ignored while a prompt is showing.
	h.must(h.press(ActWizardNext))
	if r := h.must(h.text("Luna")); !r.Empty() {
		t.Fatalf("text during a prompt must be ignored, got %+v", r)
	}
	if h.wizard().Draft.MotherName != "" {
		t.Fatalf("ignored text must not be captured")
	}
}

func TestWizardCancelNoRestoresRendering(t *testing.T) {
	for _, target := range []session.Step{session.StepSubject, session.StepMother, session.StepSex, session.StepConfirm} {
		t.Run(string(target), func(t *testing.T) {
			h := newHarness(t)
			h.must(h.svc.StartForm(context.Background(), testUser))
			h.must(h.text("Rex"))
			h.must(h.text("https://canecorsopedigree.com/rex"))
			for h.step() != target {
				h.must(h.press(ActWizardNext))
				if h.wizard().Substate == session.SubstateEmptyFieldConfirm {
					h.must(h.press(ActWizardEmptyOK))
				}
			}
			last := h.must(h.press(ActWizardSexMale))
			if target != session.StepSex {
				// Sex buttons outside the sex step only re-render.
				if h.wizard().Draft.Sex != domain.SexUnspecified {
					t.Fatalf("sex must only be set on its own step")
				}
			}
			draft := h.wizard().Draft

			r := h.must(h.press(ActWizardCancel))
			if diff := cmp.Diff([]string{ActWizardCancelYes, ActWizardCancelNo}, actionIDs(r.Last())); diff != "" {
				t.Fatalf("expected cancel prompt (-want +got):\n%s", diff)
			}
			r = h.must(h.press(ActWizardCancelNo))
			if diff := cmp.Diff(last.Last(), r.Last()); diff != "" {
				t.Fatalf("rendering changed after cancel/no (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(draft, h.wizard().Draft); diff != "" {
				t.Fatalf("draft changed (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWizardCancelYesClearsSession(t *testing.T) {
	h := newHarness(t)
	h.must(h.svc.StartForm(context.Background(), testUser))
	h.must(h.text("Rex"))
	h.must(h.press(ActWizardCancel))
	r := h.must(h.press(ActWizardCancelYes))
	if !containsText(r, cancelledText) {
		t.Fatalf("expected cancelled notice, got %+v", r)
	}
	if _, ok := h.svc.Sessions().Get(testUser); ok {
		t.Fatalf("session must be cleared")
	}
	for _, id := range []string{ActWizardNext, ActWizardBack, ActWizardSave, ActWizardCancelNo} {
		if r := h.must(h.press(id)); !r.Empty() {
			t.Fatalf("%s after cancel must be a no-op, got %+v", id, r)
		}
	}
	if h.svc.Sessions().Len() != 0 {
		t.Fatalf("no-op actions must not retain sessions")
	}
	h.must(h.svc.StartForm(context.Background(), testUser))
	if w := h.wizard(); w == nil || w.Draft.Name != "" {
		t.Fatalf("new flow must start with an empty draft")
	}
}

func TestWizardNameLinkCapture(t *testing.T) {
	h := newHarness(t)
	h.must(h.svc.StartForm(context.Background(), testUser))

	_, err := h.press(ActWizardNext)
	var verr domain.ValidationError
	if !errors.As(err, &verr) || verr.Reason != reasonNameRequired {
		t.Fatalf("next without a name must fail validation, got %v", err)
	}

	h.must(h.text("https://canecorsopedigree.com/rex"))
	d := h.wizard().Draft
	if d.Link == "" || d.Name != "" {
		t.Fatalf("a link sent first must fill only the link slot: %+v", d)
	}
	h.must(h.text("Rex"))
	if h.wizard().Draft.Name != "Rex" {
		t.Fatalf("expected name to be captured")
	}
	_, err = h.text("Another Name")
	if !errors.As(err, &verr) || verr.Reason != reasonBadLink {
		t.Fatalf("second non-link text must be a bad link, got %v", err)
	}
	if h.wizard().Draft.Name != "Rex" {
		t.Fatalf("name must not be overwritten")
	}
	h.must(h.text("https://canecorsopedigree.com/rex-2"))
	if got := h.wizard().Draft.Link; got != "https://canecorsopedigree.com/rex-2" {
		t.Fatalf("a later valid link replaces the earlier one, got %q", got)
	}
	if r := h.must(h.text("   ")); !strings.HasPrefix(r.Last().Text, "Step 1 of 6.") {
		t.Fatalf("blank text must re-render the step, got %q", r.Last().Text)
	}
}

func TestStartFormWhileActiveKeepsDraft(t *testing.T) {
	h := newHarness(t)
	h.must(h.svc.StartForm(context.Background(), testUser))
	h.must(h.text("Rex"))
	r := h.must(h.press(ActMenuForm))
	if h.wizard().Draft.Name != "Rex" {
		t.Fatalf("draft must survive a repeated start")
	}
	if !strings.Contains(r.Last().Text, "Name: Rex") {
		t.Fatalf("expected current step, got %q", r.Last().Text)
	}
}

func TestWizardSaveStoreFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.must(h.svc.StartForm(context.Background(), testUser))
	h.must(h.text("Rex"))
	h.must(h.text("https://canecorsopedigree.com/rex"))
	for h.step() != session.StepConfirm {
		h.must(h.press(ActWizardNext))
		if h.wizard().Substate == session.SubstateEmptyFieldConfirm {
			h.must(h.press(ActWizardEmptyOK))
		}
	}
	draft := h.wizard().Draft

	h.store.failOn("insert", true)
	r, err := h.press(ActWizardSave)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if !containsText(r, unavailableText) {
		t.Fatalf("expected unavailable notice, got %+v", r)
	}
	if h.step() != session.StepConfirm {
		t.Fatalf("session must remain at confirm, got %s", h.step())
	}
	if diff := cmp.Diff(draft, h.wizard().Draft); diff != "" {
		t.Fatalf("draft changed (-want +got):\n%s", diff)
	}

	h.store.failOn("insert", false)
	h.must(h.press(ActWizardSave))
	if records, _ := h.mem.List(context.Background()); len(records) != 1 {
		t.Fatalf("retry must persist exactly once, got %d", len(records))
	}
}

func TestCustomRulesEngineCannotBypassEligibility(t *testing.T) {
	h := newHarness(t, WithRulesEngine(domain.NewRulesEngine()))
	h.must(h.svc.StartForm(context.Background(), testUser))
	h.must(h.text("Rex"))
	for h.step() != session.StepConfirm {
		h.must(h.press(ActWizardNext))
		if h.wizard().Substate == session.SubstateEmptyFieldConfirm {
			h.must(h.press(ActWizardEmptyOK))
		}
	}
	if _, err := h.press(ActWizardSave); Classify(err) != OutcomeInsufficient {
		t.Fatalf("expected insufficient data, got %v", err)
	}
}
