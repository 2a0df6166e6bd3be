package checkoutorchestrator

import (
	"github.com/MarcGrol/marketcheckout/services/checkoutapi"
)

// State is the explicit position of a checkout attempt in its lifecycle.
// Card and cash are two branches of the same machine:
//
//	ChoosingMethod -> (card: PreviewingPrice -> AwaitingCardAuthorization -> Submitting)
//	               -> (cash: CollectingContactInfo -> Submitting)
//	               -> Resolved | Failed
type State string

const (
	StateChoosingMethod            State = "choosing-method"
	StatePreviewingPrice           State = "previewing-price"
	StateAwaitingCardAuthorization State = "awaiting-card-authorization"
	StateCollectingContactInfo     State = "collecting-contact-info"
	StateSubmitting                State = "submitting"
	StateResolved                  State = "resolved"
	StateFailed                    State = "failed"
)

// IsTerminal reports whether the attempt is over: a fresh attempt starts at
// ChoosingMethod again.
func (s State) IsTerminal() bool {
	return s == StateResolved || s == StateFailed
}

// stateOf derives the resting state from persisted context. Submitting,
// Resolved and Failed are transient outcomes of operations, never derived
// from stored state.
func stateOf(checkoutContext checkoutapi.CheckoutContext) State {
	switch checkoutContext.Order.PaymentMethod {
	case checkoutapi.PaymentMethodCard:
		if checkoutContext.Transaction == nil {
			return StatePreviewingPrice
		}
		return StateAwaitingCardAuthorization
	case checkoutapi.PaymentMethodCash:
		return StateCollectingContactInfo
	default:
		return StateChoosingMethod
	}
}
