package cardpayment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/paymentintent"

	"github.com/MarcGrol/marketcheckout/lib/myerrors"
	"github.com/MarcGrol/marketcheckout/lib/mylog"
	"github.com/MarcGrol/marketcheckout/lib/myuuid"
)

// maxConfirmAttempts bounds retries of transiently-failed confirmations. A
// definitive decline is never retried.
const maxConfirmAttempts = 3

type stripeAuthorizer struct {
	logger mylog.Logger
	uuider myuuid.UUIDer
}

func NewAuthorizer(apiKey string) CardAuthorizer {
	stripe.Key = apiKey
	return &stripeAuthorizer{
		logger: mylog.New("cardpayment"),
		uuider: myuuid.RealUUIDer{},
	}
}

func (a *stripeAuthorizer) RetrieveIntent(c context.Context, intentUID string) (Intent, error) {
	stripeIntent, err := paymentintent.Get(intentUID, nil)
	if err != nil {
		return Intent{}, mapStripeError(err)
	}

	return fromStripeIntent(stripeIntent), nil
}

func (a *stripeAuthorizer) Confirm(c context.Context, intent Intent, paymentMethodUID string) (Intent, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodUID),
	}
	// One idempotency key across the retry loop: the processor collapses
	// retried confirms of the same attempt into a single confirmation.
	params.SetIdempotencyKey(a.uuider.Create())

	var lastErr error
	for attempt := 1; attempt <= maxConfirmAttempts; attempt++ {
		stripeIntent, err := paymentintent.Confirm(intent.UID, params)
		if err == nil {
			confirmed := fromStripeIntent(stripeIntent)
			if confirmed.Status == IntentStatusDeclined {
				return confirmed, myerrors.NewDeclinedError(fmt.Errorf("payment intent %s was not authorized", intent.UID))
			}
			return confirmed, nil
		}

		lastErr = mapStripeError(err)
		if !myerrors.IsRetryable(lastErr) {
			return Intent{}, lastErr
		}

		a.logger.Log(c, intent.UID, mylog.SeverityWarn, "Transient confirm failure (attempt %d of %d): %s", attempt, maxConfirmAttempts, err)
	}

	return Intent{}, lastErr
}

func fromStripeIntent(stripeIntent *stripe.PaymentIntent) Intent {
	return Intent{
		UID:           stripeIntent.ID,
		Status:        statusFromStripe(stripeIntent.Status),
		AmountInCents: stripeIntent.Amount,
		Currency:      string(stripeIntent.Currency),
		ClientSecret:  stripeIntent.ClientSecret,
	}
}

func statusFromStripe(status stripe.PaymentIntentStatus) IntentStatus {
	switch status {
	case stripe.PaymentIntentStatusRequiresConfirmation:
		return IntentStatusRequiresConfirmation
	case stripe.PaymentIntentStatusRequiresAction:
		return IntentStatusRequiresAction
	case stripe.PaymentIntentStatusProcessing:
		return IntentStatusProcessing
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture:
		return IntentStatusSucceeded
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusCanceled:
		// after a confirm attempt these mean the card did not go through
		return IntentStatusDeclined
	default:
		return IntentStatusUnknown
	}
}

func mapStripeError(err error) error {
	stripeErr, ok := err.(*stripe.Error)
	if !ok {
		return myerrors.NewUnavailableError(fmt.Errorf("error calling card processor: %s", err))
	}

	switch stripeErr.Type {
	case stripe.ErrorTypeCard:
		return myerrors.NewDeclinedError(fmt.Errorf("card declined: %s", stripeErr.Msg))
	case stripe.ErrorTypeInvalidRequest:
		return myerrors.NewInvalidInputError(fmt.Errorf("invalid processor request: %s", stripeErr.Msg))
	case stripe.ErrorTypeAuthentication:
		return myerrors.NewAuthenticationError(fmt.Errorf("processor authentication failed: %s", stripeErr.Msg))
	default:
		return myerrors.NewUnavailableError(fmt.Errorf("processor error: %s", stripeErr.Msg))
	}
}
