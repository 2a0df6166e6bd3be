package orderparams

import (
	"strconv"
	"time"

	"github.com/MarcGrol/marketcheckout/lib/myerrors"
	"github.com/MarcGrol/marketcheckout/services/checkoutapi"
)

// Protected-data keys understood by the transaction backend.
const (
	KeyPaymentMethod           = "paymentMethod"
	KeyPriceVariantName        = "priceVariantName"
	KeyPriceVariantAmount      = "priceVariantAmountInCents"
	KeyPriceVariantCurrency    = "priceVariantCurrency"
	KeyPriceVariantBillingUnit = "priceVariantBillingUnit"
	KeyContactName             = "contactName"
	KeyContactPhone            = "contactPhone"
	KeyContactNote             = "contactNote"
	KeyStripePaymentMethod     = "stripePaymentMethodId"
	KeyStripePaymentIntent     = "stripePaymentIntentId"
	KeyMessageToSeller         = "messageToSeller"
)

// PaymentExtras is the single hook through which a payment branch injects
// its own protected-data fields. The builder merges the bag verbatim and
// knows nothing about payment internals.
type PaymentExtras map[string]string

func CashExtras(name, phone, note string) PaymentExtras {
	extras := PaymentExtras{
		KeyContactName:  name,
		KeyContactPhone: phone,
	}
	if note != "" {
		extras[KeyContactNote] = note
	}
	return extras
}

func CardExtras(paymentMethodUID, messageToSeller string) PaymentExtras {
	extras := PaymentExtras{}
	if paymentMethodUID != "" {
		extras[KeyStripePaymentMethod] = paymentMethodUID
	}
	if messageToSeller != "" {
		extras[KeyMessageToSeller] = messageToSeller
	}
	return extras
}

// OrderParams is the params object of a transition request. Absent fields
// are omitted on the wire, never rendered as null.
type OrderParams struct {
	BookingStart     *time.Time        `json:"bookingStart,omitempty"`
	BookingEnd       *time.Time        `json:"bookingEnd,omitempty"`
	Quantity         *int              `json:"quantity,omitempty"`
	DeliveryMethod   string            `json:"deliveryMethod,omitempty"`
	PriceVariantName string            `json:"priceVariantName,omitempty"`
	ProtectedData    map[string]string `json:"protectedData,omitempty"`
}

// Build assembles the transition payload from the checkout context. It is
// deterministic: the same context and extras always produce the same
// payload, which makes retried submissions byte-identical.
//
// A malformed context (unresolved payment method, half a booking window) is
// a programming error upstream and fails loudly here.
func Build(checkoutContext checkoutapi.CheckoutContext, extras PaymentExtras) (OrderParams, error) {
	order := checkoutContext.Order

	if !order.PaymentMethod.IsResolved() {
		return OrderParams{}, myerrors.NewInvalidInputErrorf("payment method must be resolved before building order params")
	}

	if (order.BookingStart == nil) != (order.BookingEnd == nil) {
		return OrderParams{}, myerrors.NewInvalidInputErrorf("booking window requires both start and end")
	}

	if order.Quantity != nil && *order.Quantity <= 0 {
		return OrderParams{}, myerrors.NewInvalidInputErrorf("quantity must be positive")
	}

	params := OrderParams{
		BookingStart:   order.BookingStart,
		BookingEnd:     order.BookingEnd,
		Quantity:       order.Quantity,
		DeliveryMethod: string(order.DeliveryMethod),
		ProtectedData: map[string]string{
			KeyPaymentMethod: string(order.PaymentMethod),
		},
	}

	if order.PriceVariantName != "" {
		variant, found := checkoutContext.Listing.FindPriceVariant(order.PriceVariantName)
		if !found {
			return OrderParams{}, myerrors.NewInvalidInputErrorf("listing has no price variant named %s", order.PriceVariantName)
		}

		// Variants are resolved client-side; expand their attributes so the
		// backend can re-derive and verify the exact amount.
		params.PriceVariantName = variant.Name
		params.ProtectedData[KeyPriceVariantName] = variant.Name
		params.ProtectedData[KeyPriceVariantAmount] = strconv.FormatInt(variant.AmountInCents, 10)
		params.ProtectedData[KeyPriceVariantCurrency] = variant.Currency
		params.ProtectedData[KeyPriceVariantBillingUnit] = variant.BillingUnit
	}

	for k, v := range extras {
		params.ProtectedData[k] = v
	}

	return params, nil
}
