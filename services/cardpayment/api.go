package cardpayment

import "context"

type IntentStatus string

const (
	IntentStatusUnknown              IntentStatus = "unknown"
	IntentStatusRequiresConfirmation IntentStatus = "requires_confirmation"
	IntentStatusRequiresAction       IntentStatus = "requires_action"
	IntentStatusProcessing           IntentStatus = "processing"
	IntentStatusSucceeded            IntentStatus = "succeeded"
	IntentStatusDeclined             IntentStatus = "declined"
)

// Intent is the processor-side payment intent belonging to one checkout
// attempt.
type Intent struct {
	UID           string
	Status        IntentStatus
	AmountInCents int64
	Currency      string
	ClientSecret  string
}

func (i Intent) IsAuthorized() bool {
	return i.Status == IntentStatusSucceeded || i.Status == IntentStatusProcessing
}

// CardAuthorizer wraps the card processor's confirm/retrieve round trip.
// Only the card branch of a checkout ever holds one of these: the cash
// branch has no reference to this package at all.
type CardAuthorizer interface {
	RetrieveIntent(c context.Context, intentUID string) (Intent, error)
	Confirm(c context.Context, intent Intent, paymentMethodUID string) (Intent, error)
}
