package core

import (
	"strings"

	"epibot/pkg/domain"
)

// ActionKind distinguishes free text from button presses.
type ActionKind string

const (
	ActionText   ActionKind = "text"
	ActionButton ActionKind = "button"
)

// Action is one inbound user event. For buttons Payload carries the action id
// reported back by the transport.
type Action struct {
	UserID  domain.UserID
	Kind    ActionKind
	Payload string
}

// Text builds a free-text action.
func Text(user domain.UserID, text string) Action {
	return Action{UserID: user, Kind: ActionText, Payload: text}
}

// Press builds a button action.
func Press(user domain.UserID, id string) Action {
	return Action{UserID: user, Kind: ActionButton, Payload: id}
}

// Action ids exchanged with the transport. They are opaque to users.
const (
	ActWizardNext        = "wizard:next"
	ActWizardBack        = "wizard:back"
	ActWizardCancel      = "wizard:cancel"
	ActWizardCancelYes   = "wizard:cancel:yes"
	ActWizardCancelNo    = "wizard:cancel:no"
	ActWizardEmptyOK     = "wizard:empty:confirm"
	ActWizardEmptyBack   = "wizard:empty:back"
	ActWizardSexMale     = "wizard:sex:male"
	ActWizardSexFemale   = "wizard:sex:female"
	ActWizardSave        = "wizard:save"
	ActSearchRetry       = "search:retry"
	ActSearchBack        = "search:back"
	ActSearchResults     = "search:results"
	ActSearchOpenPrefix  = "search:open:"
	ActMenuForm          = "menu:form"
	ActMenuSearch        = "menu:search"
	ActMenuMain          = "menu:main"
	ActMenuHelp          = "menu:help"
	wizardActionPrefix   = "wizard:"
	searchActionPrefix   = "search:"
	operationUnknownName = "unknown"
)

// OpenResult returns the action id that opens the record with the given id.
func OpenResult(id string) string {
	return ActSearchOpenPrefix + id
}

// Button is one selectable action.
type Button struct {
	Label string `json:"label"`
	ID    string `json:"id"`
}

// Message is a rendered (text, action set) pair.
type Message struct {
	Text    string   `json:"text"`
	Actions []Button `json:"actions,omitempty"`
}

// Reply is everything the transport should show in response to one action.
// An empty reply means the action was ignored.
type Reply struct {
	Messages []Message `json:"messages,omitempty"`
}

// Empty reports whether nothing should be shown.
func (r Reply) Empty() bool { return len(r.Messages) == 0 }

// Last returns the final message, which carries the active action set.
func (r Reply) Last() Message {
	if len(r.Messages) == 0 {
		return Message{}
	}
	return r.Messages[len(r.Messages)-1]
}

func reply(msgs ...Message) Reply {
	return Reply{Messages: msgs}
}

// operationName maps an action to a bounded metrics label.
func operationName(a Action) string {
	if a.Kind == ActionText {
		return "text"
	}
	id := a.Payload
	if strings.HasPrefix(id, ActSearchOpenPrefix) {
		return "search_open"
	}
	if _, ok := knownActions[id]; ok {
		return strings.ReplaceAll(id, ":", "_")
	}
	return operationUnknownName
}

var knownActions = map[string]struct{}{
	ActWizardNext: {}, ActWizardBack: {}, ActWizardCancel: {}, ActWizardCancelYes: {},
	ActWizardCancelNo: {}, ActWizardEmptyOK: {}, ActWizardEmptyBack: {}, ActWizardSexMale: {},
	ActWizardSexFemale: {}, ActWizardSave: {}, ActSearchRetry: {}, ActSearchBack: {},
	ActSearchResults: {}, ActMenuForm: {}, ActMenuSearch: {}, ActMenuMain: {}, ActMenuHelp: {},
}
