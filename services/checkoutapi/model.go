package checkoutapi

import (
	"time"
)

type PaymentMethod string

const (
	PaymentMethodUnset PaymentMethod = ""
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodCash  PaymentMethod = "cash"
)

func (m PaymentMethod) IsResolved() bool {
	return m == PaymentMethodCard || m == PaymentMethodCash
}

type DeliveryMethod string

const (
	DeliveryMethodNone     DeliveryMethod = ""
	DeliveryMethodShipping DeliveryMethod = "shipping"
	DeliveryMethodPickup   DeliveryMethod = "pickup"
)

// PriceVariant is a seller-defined pricing option on a listing. Variants are
// resolved client-side, so their attributes travel along with the order so
// the backend can verify the amount.
type PriceVariant struct {
	Name          string
	AmountInCents int64
	Currency      string
	BillingUnit   string
}

// ListingRef is a read-only snapshot of the listing taken when the shopper
// opened checkout. Display fields only; the remote listing stays
// authoritative.
type ListingRef struct {
	UID           string
	Title         string
	Author        string
	ImageURLs     []string
	Location      string
	AmountInCents int64
	Currency      string
	TimeBound     bool
	PriceVariants []PriceVariant
}

func (l ListingRef) FindPriceVariant(name string) (PriceVariant, bool) {
	for _, v := range l.PriceVariants {
		if v.Name == name {
			return v, true
		}
	}
	return PriceVariant{}, false
}

// OrderData holds the shopper-chosen order parameters. Nil means "not
// selected"; absent fields are omitted from outgoing payloads.
type OrderData struct {
	BookingStart     *time.Time
	BookingEnd       *time.Time
	Quantity         *int
	DeliveryMethod   DeliveryMethod
	PriceVariantName string
	PaymentMethod    PaymentMethod
}

type LineItem struct {
	Code          string
	AmountInCents int64
	Currency      string
	Quantity      int
}

// TransactionSnapshot mirrors the remote transaction resource as last
// returned by the gateway. A snapshot without a UID is a speculative preview
// and must never be treated as an orderable entity.
type TransactionSnapshot struct {
	UID            string
	LastTransition string
	ProcessName    string
	LineItems      []LineItem
	ProtectedData  map[string]string
	PrivateData    map[string]string
	BookingStart   *time.Time
	BookingEnd     *time.Time
}

func (t TransactionSnapshot) PayinTotal() (int64, string) {
	var total int64
	currency := ""
	for _, li := range t.LineItems {
		total += li.AmountInCents * int64(li.Quantity)
		if currency == "" {
			currency = li.Currency
		}
	}
	return total, currency
}

// CheckoutContext is the aggregate root for one checkout attempt. It is
// seeded when the shopper opens checkout for a listing, mutated by method
// selection and gateway responses, and cleared only when the final
// transition succeeds or the shopper abandons.
type CheckoutContext struct {
	Listing      ListingRef
	Order        OrderData
	Transaction  *TransactionSnapshot
	CreatedAt    time.Time
	LastModified *time.Time
}

func NewCheckoutContext(listing ListingRef, now time.Time) CheckoutContext {
	return CheckoutContext{
		Listing:   listing,
		CreatedAt: now,
	}
}

// HasCommittedTransaction reports whether at least one initiate or
// transition call succeeded for this attempt.
func (c CheckoutContext) HasCommittedTransaction() bool {
	return c.Transaction != nil && c.Transaction.UID != ""
}
