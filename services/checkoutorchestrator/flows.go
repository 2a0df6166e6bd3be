package checkoutorchestrator

import (
	"context"
	"fmt"

	"github.com/MarcGrol/marketcheckout/lib/myerrors"
	"github.com/MarcGrol/marketcheckout/services/cardpayment"
	"github.com/MarcGrol/marketcheckout/services/checkoutapi"
	"github.com/MarcGrol/marketcheckout/services/orderparams"
	"github.com/MarcGrol/marketcheckout/services/transactiongateway"
	"github.com/MarcGrol/marketcheckout/services/transactionprocess"
)

// cardFlow submits a card checkout: initiate (once), authorize the payment
// intent with the processor, then run the privileged confirming transition.
// It is the only type in this service holding a CardAuthorizer.
type cardFlow struct {
	gateway    transactiongateway.TransactionGateway
	authorizer cardpayment.CardAuthorizer
}

// submit advances the attempt to a confirmed transaction. checkpoint is
// called right after a transaction is created, so a failure later in the
// round trip leaves the committed transaction id behind for retry: the next
// submit then continues with a transition instead of a second initiate.
func (f cardFlow) submit(c context.Context, checkoutContext checkoutapi.CheckoutContext, params orderparams.OrderParams,
	paymentMethodUID string, checkpoint func(checkoutapi.TransactionSnapshot) error) (checkoutapi.TransactionSnapshot, error) {
	process := transactionprocess.CardBooking

	var snapshot checkoutapi.TransactionSnapshot
	if checkoutContext.HasCommittedTransaction() {
		snapshot = *checkoutContext.Transaction
	} else {
		created, err := f.gateway.Initiate(c, transactiongateway.NewCreationRequest(process, transactionprocess.TransitionRequestPayment, params))
		if err != nil {
			return snapshot, err
		}
		snapshot = created

		err = checkpoint(snapshot)
		if err != nil {
			return snapshot, err
		}
	}

	intentUID := snapshot.ProtectedData[orderparams.KeyStripePaymentIntent]
	if intentUID == "" {
		return snapshot, myerrors.NewUnavailableError(fmt.Errorf("transaction %s carries no payment intent", snapshot.UID))
	}

	intent, err := f.authorizer.RetrieveIntent(c, intentUID)
	if err != nil {
		return snapshot, err
	}

	if !intent.IsAuthorized() {
		intent, err = f.authorizer.Confirm(c, intent, paymentMethodUID)
		if err != nil {
			return snapshot, err
		}
		if !intent.IsAuthorized() {
			return snapshot, myerrors.NewDeclinedError(fmt.Errorf("payment intent %s ended in status %s", intent.UID, intent.Status))
		}
	}

	confirmed, err := f.gateway.Transition(c, transactiongateway.NewContinuationRequest(process, snapshot.UID, transactionprocess.TransitionConfirmPayment, params))
	if err != nil {
		return snapshot, err
	}

	return confirmed, nil
}

// cashFlow submits a cash checkout in a single transition. No processor is
// involved: the type has no reference to the card-payment package at all.
type cashFlow struct {
	gateway transactiongateway.TransactionGateway
}

func (f cashFlow) submit(c context.Context, checkoutContext checkoutapi.CheckoutContext, params orderparams.OrderParams) (checkoutapi.TransactionSnapshot, error) {
	process := transactionprocess.CashBooking

	if checkoutContext.HasCommittedTransaction() {
		return f.gateway.Transition(c, transactiongateway.NewContinuationRequest(process, checkoutContext.Transaction.UID, transactionprocess.TransitionRequestCashOrder, params))
	}

	return f.gateway.Initiate(c, transactiongateway.NewCreationRequest(process, transactionprocess.TransitionRequestCashOrder, params))
}
