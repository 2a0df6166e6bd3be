package transactionprocess

import (
	"github.com/MarcGrol/marketcheckout/lib/myerrors"
	"github.com/MarcGrol/marketcheckout/services/checkoutapi"
)

// Transition names of the booking processes.
const (
	TransitionRequestPayment   = "transition/request-payment"
	TransitionConfirmPayment   = "transition/confirm-payment"
	TransitionRequestCashOrder = "transition/request-cash-order"
)

// TransitionSpec statically describes one named transition. Whether a
// transition is privileged is a property of the transition itself, looked up
// here, never a flag supplied by callers.
type TransitionSpec struct {
	Name       string
	Privileged bool
}

// Process is the named sequence of legal transitions a transaction follows.
type Process struct {
	Name        string
	Alias       string
	Transitions []TransitionSpec
}

func (p Process) Transition(name string) (TransitionSpec, bool) {
	for _, t := range p.Transitions {
		if t.Name == name {
			return t, true
		}
	}
	return TransitionSpec{}, false
}

// FirstTransition is the one an initiate call runs.
func (p Process) FirstTransition() TransitionSpec {
	return p.Transitions[0]
}

// FinalTransition completes the checkout side of the process.
func (p Process) FinalTransition() TransitionSpec {
	return p.Transitions[len(p.Transitions)-1]
}

var (
	// CardBooking takes payment through the card processor: the order is
	// requested together with a payment intent, and confirmed server-side
	// once the processor has authorized it.
	CardBooking = Process{
		Name:  "card-booking",
		Alias: "card-booking/release-1",
		Transitions: []TransitionSpec{
			{Name: TransitionRequestPayment},
			{Name: TransitionConfirmPayment, Privileged: true},
		},
	}

	// CashBooking skips the processor entirely: the order is placed in one
	// transition and settled in person.
	CashBooking = Process{
		Name:  "cash-booking",
		Alias: "cash-booking/release-1",
		Transitions: []TransitionSpec{
			{Name: TransitionRequestCashOrder},
		},
	}
)

var all = []Process{CardBooking, CashBooking}

func ByName(name string) (Process, bool) {
	for _, p := range all {
		if p.Name == name || p.Alias == name {
			return p, true
		}
	}
	return Process{}, false
}

// ForPaymentMethod maps the shopper's payment-method choice onto a process.
// An unset method has no process: callers must force an explicit choice
// first.
func ForPaymentMethod(method checkoutapi.PaymentMethod) (Process, error) {
	switch method {
	case checkoutapi.PaymentMethodCard:
		return CardBooking, nil
	case checkoutapi.PaymentMethodCash:
		return CashBooking, nil
	default:
		return Process{}, myerrors.NewInvalidInputErrorf("no process for payment method %q", method)
	}
}
