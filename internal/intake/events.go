package intake

// EventKind classifies an inbound conversation event.
type EventKind string

const (
	EventCommand EventKind = "command"
	EventChoice  EventKind = "choice"
	EventText    EventKind = "text"
)

// Event is one inbound action by one user, already stripped of
// chat-platform framing.
type Event struct {
	Kind        EventKind
	UserID      int64
	DisplayName string
	Command     string // set for EventCommand, e.g. "start"
	Choice      string // set for EventChoice, an opaque identifier
	Text        string // set for EventText
}

// Command names understood by the controller.
const CommandStart = "start"

// Choice identifiers attached to inline keyboards.
const (
	ChoiceConsentAgree     = "consent_agree"
	ChoiceConsentDisagree  = "consent_disagree"
	ChoiceServiceGasgolder = "service_gasgolder"
	ChoiceServiceStation   = "service_ags"
	ChoiceConfirmYes       = "confirm_yes"
	ChoiceConfirmNo        = "confirm_no"
)
