package pricebreakdown

import (
	"fmt"
	"strings"

	"github.com/MarcGrol/marketcheckout/lib/myerrors"
	"github.com/MarcGrol/marketcheckout/services/checkoutapi"
)

type Amount struct {
	Currency string
	Value    int64
}

func (a Amount) String() string {
	return fmt.Sprintf("%s %.2f", a.Currency, float64(a.Value)/100.0)
}

type Line struct {
	Code     string
	Label    string
	Quantity int
	Amount   Amount
}

// Breakdown is a human-facing projection of a transaction's line items.
// Read-only: it never recomputes prices, it only presents what the backend
// returned.
type Breakdown struct {
	Lines []Line
	Total Amount
}

// FromTransaction derives the breakdown from a transaction snapshot,
// speculative or committed. Line order is preserved as returned by the
// backend.
func FromTransaction(tx checkoutapi.TransactionSnapshot) (Breakdown, error) {
	if len(tx.LineItems) == 0 {
		return Breakdown{}, myerrors.NewInvalidInputErrorf("transaction has no line items")
	}

	breakdown := Breakdown{
		Lines: make([]Line, 0, len(tx.LineItems)),
	}

	for _, li := range tx.LineItems {
		if breakdown.Total.Currency != "" && li.Currency != breakdown.Total.Currency {
			return Breakdown{}, myerrors.NewInvalidInputErrorf("mixed currencies in line items: %s and %s", breakdown.Total.Currency, li.Currency)
		}

		breakdown.Lines = append(breakdown.Lines, Line{
			Code:     li.Code,
			Label:    labelFor(li.Code),
			Quantity: li.Quantity,
			Amount: Amount{
				Currency: li.Currency,
				Value:    li.AmountInCents * int64(li.Quantity),
			},
		})

		breakdown.Total.Currency = li.Currency
		breakdown.Total.Value += li.AmountInCents * int64(li.Quantity)
	}

	return breakdown, nil
}

// labelFor turns a line-item code like "line-item/cleaning-fee" into a
// display label. Translation happens elsewhere; this is the fallback.
func labelFor(code string) string {
	label := strings.TrimPrefix(code, "line-item/")
	label = strings.ReplaceAll(label, "-", " ")
	if label == "" {
		return code
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
