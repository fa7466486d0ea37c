package session

import "context"

// Step is the position within the linear intake wizard.
type Step string

const (
	StepAwaitingConsent       Step = "consent"
	StepAwaitingServiceChoice Step = "service_selection"
	StepAwaitingAddress       Step = "address"
	StepAwaitingQuantity      Step = "gas_amount"
	StepAwaitingPhone         Step = "phone"
	StepAwaitingConfirmation  Step = "confirmation"
	StepFree                  Step = "free"
)

// Service identifies which delivery service the user picked.
type Service string

const (
	ServiceUnset     Service = ""
	ServiceGasgolder Service = "gasgolder"
	ServiceStation   Service = "ags"
)

// Session tracks one user's in-progress conversation.
type Session struct {
	Step      Step    `json:"step"`
	Service   Service `json:"service"`
	Consented bool    `json:"consented"`
}

// Default returns the session implied by absence: a fresh conversation
// waiting for the consent choice.
func Default() Session {
	return Session{Step: StepAwaitingConsent}
}

// Intake is the form data being assembled for one user. Fields are free
// text and are only ever overwritten wholesale by the matching step.
type Intake struct {
	Address      string `json:"address"`
	Quantity     string `json:"gas_amount"`
	Phone        string `json:"phone"`
	ServiceLabel string `json:"service_type"`
}

// Empty reports whether no field has been written yet.
func (i Intake) Empty() bool {
	return i == Intake{}
}

// Store keeps per-user sessions and intake records. Get returns the
// default session when the user has never been seen; Reset returns the
// user to that state and zeroes the intake record.
type Store interface {
	Get(ctx context.Context, userID int64) (Session, error)
	Set(ctx context.Context, userID int64, s Session) error
	GetIntake(ctx context.Context, userID int64) (Intake, error)
	SetIntake(ctx context.Context, userID int64, rec Intake) error
	Reset(ctx context.Context, userID int64) error
}
