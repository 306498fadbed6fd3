package core

import (
	"fmt"
	"strings"

	"epibot/internal/session"
	"epibot/pkg/domain"
)

const notSpecified = "not specified"

const welcomeText = "Hello. I am a bot that helps you check Cane Corso pedigrees for epilepsy cases found in the bloodline.\n\n" +
	"Dear user,\n" +
	"epilepsy in the Cane Corso breed is unfortunately not rare. If you do not find information in our database, " +
	"it does not mean that epilepsy has never occurred in this pedigree. It may simply mean that no such cases " +
	"have been reported to us yet.\n\n" +
	"If you do find epilepsy cases in the database, this also does not confirm any genetic origin. " +
	"At this time, there is no genetic test of any kind that can diagnose epilepsy or determine whether it is inherited. " +
	"Epilepsy may have hereditary or acquired causes.\n\n" +
	"Choose an option from the menu below."

const helpText = "Add record walks you through a short form: the dog's name and pedigree link, its mother, its father, sex and birth date.\n" +
	"A record needs the dog's name plus either both parent names or at least one pedigree link.\n\n" +
	"Search finds stored records whose name contains the text you send."

const (
	fallbackText       = "I didn't understand. Use the menu below."
	savedText          = "Record saved. Thank you!"
	cancelledText      = "Form cancelled."
	cancelPromptText   = "Cancel the form? Everything entered so far will be lost."
	insufficientText   = "Not enough data to save. Provide the dog's name and either both parent names or at least one pedigree link."
	unavailableText    = "The database is temporarily unavailable. Please try again."
	slowDownText       = "Too many messages, please slow down."
	searchPromptText   = "Send a name, or part of one, to search for."
	notFoundText       = "Record not found. It may have been removed."
	emptyQueryText     = "The search query cannot be empty."
	nameRequiredText   = "Please send the dog's name first."
	badLinkText        = "That does not look like a pedigree database link."
	badDateFormatText  = "Send the date as YYYY.MM.DD, for example 2021.03.27."
	badDateCalText     = "That date does not exist in the calendar."
	labelNext          = "Next"
	labelBack          = "Back"
	labelCancel        = "Cancel"
	labelSave          = "Save"
	labelLeaveEmpty    = "Leave empty"
	labelGoBack        = "Go back"
	labelCancelYes     = "Yes, cancel"
	labelCancelNo      = "No, continue"
	labelMale          = "Male"
	labelFemale        = "Female"
	labelAddRecord     = "Add record"
	labelSearch        = "Search"
	labelHelp          = "Help"
	labelRetry         = "Try again"
	labelMenu          = "Back to menu"
	labelBackToResults = "Back to results"
	labelNewSearch     = "New search"
)

var (
	btnNext    = Button{Label: labelNext, ID: ActWizardNext}
	btnBack    = Button{Label: labelBack, ID: ActWizardBack}
	btnCancel  = Button{Label: labelCancel, ID: ActWizardCancel}
	btnMenu    = Button{Label: labelMenu, ID: ActMenuMain}
	menuAction = []Button{
		{Label: labelAddRecord, ID: ActMenuForm},
		{Label: labelSearch, ID: ActMenuSearch},
		{Label: labelHelp, ID: ActMenuHelp},
	}
)

func notice(text string) Message {
	return Message{Text: text}
}

func renderMenu(text string) Message {
	return Message{Text: text, Actions: append([]Button(nil), menuAction...)}
}

func show(value string) string {
	if strings.TrimSpace(value) == "" {
		return notSpecified
	}
	return value
}

func showSex(sex domain.Sex) string {
	switch sex {
	case domain.SexMale:
		return "male"
	case domain.SexFemale:
		return "female"
	default:
		return notSpecified
	}
}

func stepNumber(step session.Step) int {
	for i, s := range session.Steps() {
		if s == step {
			return i + 1
		}
	}
	return 0
}

// renderStep is a pure function of the wizard state so re-rendering after a
// dismissed prompt reproduces the same message.
func renderStep(w *session.Wizard) Message {
	d := w.Draft
	total := len(session.Steps())
	header := fmt.Sprintf("Step %d of %d. ", stepNumber(w.Step), total)
	switch w.Step {
	case session.StepSubject:
		return Message{
			Text: header + "Send the dog's name, then optionally a link to its pedigree page. Press Next when done.\n\n" +
				"Name: " + show(d.Name) + "\nLink: " + show(d.Link),
			Actions: []Button{btnBack, btnNext, btnCancel},
		}
	case session.StepMother:
		return Message{
			Text: header + "Send the mother's name and/or a link to her pedigree page. Press Next when done.\n\n" +
				"Mother: " + show(d.MotherName) + "\nMother's link: " + show(d.MotherLink),
			Actions: []Button{btnBack, btnNext, btnCancel},
		}
	case session.StepFather:
		return Message{
			Text: header + "Send the father's name and/or a link to his pedigree page. Press Next when done.\n\n" +
				"Father: " + show(d.FatherName) + "\nFather's link: " + show(d.FatherLink),
			Actions: []Button{btnBack, btnNext, btnCancel},
		}
	case session.StepSex:
		return Message{
			Text: header + "Select the dog's sex.\n\nSex: " + showSex(d.Sex),
			Actions: []Button{
				{Label: labelMale, ID: ActWizardSexMale},
				{Label: labelFemale, ID: ActWizardSexFemale},
				btnBack, btnNext, btnCancel,
			},
		}
	case session.StepBirthDate:
		return Message{
			Text:    header + "Send the birth date as YYYY.MM.DD, or press Next to skip.\n\nBirth date: " + show(d.BirthDate),
			Actions: []Button{btnBack, btnNext, btnCancel},
		}
	case session.StepConfirm:
		return Message{
			Text: "Please check the record before saving.\n\n" + recordLines(d),
			Actions: []Button{
				btnBack,
				btnCancel,
				{Label: labelSave, ID: ActWizardSave},
			},
		}
	}
	return Message{}
}

func recordLines(r domain.Record) string {
	lines := []string{
		"Name: " + show(r.Name),
		"Link: " + show(r.Link),
		"Mother: " + show(r.MotherName),
		"Mother's link: " + show(r.MotherLink),
		"Father: " + show(r.FatherName),
		"Father's link: " + show(r.FatherLink),
		"Sex: " + showSex(r.Sex),
		"Birth date: " + show(r.BirthDate),
	}
	return strings.Join(lines, "\n")
}

func fieldLabel(f domain.Field) string {
	switch f {
	case domain.FieldMother:
		return "mother"
	case domain.FieldFather:
		return "father"
	case domain.FieldSex:
		return "sex"
	default:
		return string(f)
	}
}

func renderEmptyConfirm(field domain.Field) Message {
	return Message{
		Text: fmt.Sprintf("You left the %s empty. Leave it empty and continue?", fieldLabel(field)),
		Actions: []Button{
			{Label: labelLeaveEmpty, ID: ActWizardEmptyOK},
			{Label: labelGoBack, ID: ActWizardEmptyBack},
		},
	}
}

func renderCancelConfirm() Message {
	return Message{
		Text: cancelPromptText,
		Actions: []Button{
			{Label: labelCancelYes, ID: ActWizardCancelYes},
			{Label: labelCancelNo, ID: ActWizardCancelNo},
		},
	}
}

func renderSearchPrompt() Message {
	return Message{Text: searchPromptText, Actions: []Button{{Label: labelMenu, ID: ActSearchBack}}}
}

func renderNoMatches(query string) Message {
	return Message{
		Text: fmt.Sprintf("No records match %q.", query),
		Actions: []Button{
			{Label: labelRetry, ID: ActSearchRetry},
			{Label: labelMenu, ID: ActSearchBack},
		},
	}
}

func summaryLine(i int, s domain.RecordSummary) string {
	return fmt.Sprintf("%d. %s (%s × %s)", i+1, s.Name, show(s.MotherName), show(s.FatherName))
}

func renderResults(results []domain.RecordSummary) Message {
	lines := make([]string, 0, len(results)+1)
	lines = append(lines, fmt.Sprintf("Found %d records:", len(results)))
	actions := make([]Button, 0, len(results)+1)
	for i, r := range results {
		lines = append(lines, summaryLine(i, r))
		actions = append(actions, Button{Label: fmt.Sprintf("%d. %s", i+1, r.Name), ID: OpenResult(r.ID)})
	}
	actions = append(actions, Button{Label: labelMenu, ID: ActSearchBack})
	return Message{Text: strings.Join(lines, "\n"), Actions: actions}
}

// renderDetail shows a stored record. withList adds the way back to a
// multi-result list.
func renderDetail(r domain.Record, withList bool) Message {
	actions := make([]Button, 0, 2)
	if withList {
		actions = append(actions, Button{Label: labelBackToResults, ID: ActSearchResults})
	} else {
		actions = append(actions, Button{Label: labelNewSearch, ID: ActSearchRetry})
	}
	actions = append(actions, Button{Label: labelMenu, ID: ActSearchBack})
	return Message{Text: recordLines(r) + "\nAdded: " + r.CreatedAt.Format("2006.01.02"), Actions: actions}
}

// validationText maps a validation failure to the inline message shown above
// the re-rendered step.
func validationText(err domain.ValidationError) string {
	switch err.Reason {
	case reasonNameRequired:
		return nameRequiredText
	case reasonBadLink:
		return badLinkText
	case reasonBadDateCalendar:
		return badDateCalText
	case reasonBadDateFormat:
		return badDateFormatText
	case reasonEmptyQuery:
		return emptyQueryText
	}
	return err.Reason
}

const (
	reasonNameRequired    = "name required"
	reasonBadLink         = "bad link format"
	reasonBadDateFormat   = "bad date format"
	reasonBadDateCalendar = "date does not exist"
	reasonEmptyQuery      = "empty query"
)
