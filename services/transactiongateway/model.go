package transactiongateway

import (
	"time"

	"github.com/MarcGrol/marketcheckout/services/checkoutapi"
	"github.com/MarcGrol/marketcheckout/services/orderparams"
	"github.com/MarcGrol/marketcheckout/services/transactionprocess"
)

// TransitionRequest is either a creation request (no transaction exists yet)
// or a continuation request (advancing an existing transaction). The two
// forms are mutually exclusive by construction: only the constructors below
// can produce a request.
type TransitionRequest struct {
	process        transactionprocess.Process
	transactionUID string
	transition     string
	params         orderparams.OrderParams
}

// NewCreationRequest shapes a request that starts a new transaction on the
// process's first transition.
func NewCreationRequest(process transactionprocess.Process, transition string, params orderparams.OrderParams) TransitionRequest {
	return TransitionRequest{
		process:    process,
		transition: transition,
		params:     params,
	}
}

// NewContinuationRequest shapes a request that advances transaction
// transactionUID by the named transition.
func NewContinuationRequest(process transactionprocess.Process, transactionUID string, transition string, params orderparams.OrderParams) TransitionRequest {
	return TransitionRequest{
		process:        process,
		transactionUID: transactionUID,
		transition:     transition,
		params:         params,
	}
}

func (r TransitionRequest) IsCreation() bool {
	return r.transactionUID == ""
}

func (r TransitionRequest) Transition() string {
	return r.transition
}

// Wire format towards the transaction API.

type transitionRequestBody struct {
	ProcessAlias   string                  `json:"processAlias,omitempty"`
	TransactionUID string                  `json:"id,omitempty"`
	Transition     string                  `json:"transition"`
	Params         orderparams.OrderParams `json:"params"`
}

func (r TransitionRequest) body() transitionRequestBody {
	body := transitionRequestBody{
		Transition: r.transition,
		Params:     r.params,
	}
	if r.IsCreation() {
		body.ProcessAlias = r.process.Alias
	} else {
		body.TransactionUID = r.transactionUID
	}
	return body
}

// responseEnvelope is the one documented response shape. Anything that does
// not match is treated as an unknown error, not probed for alternatives.
type responseEnvelope struct {
	Data struct {
		UID        string `json:"id"`
		Attributes struct {
			LastTransition string            `json:"lastTransition"`
			ProcessName    string            `json:"processName"`
			LineItems      []wireLineItem    `json:"lineItems"`
			ProtectedData  map[string]string `json:"protectedData"`
			PrivateData    map[string]string `json:"privateData"`
		} `json:"attributes"`
		Booking *wireBooking `json:"booking"`
	} `json:"data"`
}

type wireLineItem struct {
	Code          string `json:"code"`
	AmountInCents int64  `json:"amountInCents"`
	Currency      string `json:"currency"`
	Quantity      int    `json:"quantity"`
}

type wireBooking struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (e responseEnvelope) toSnapshot() checkoutapi.TransactionSnapshot {
	snapshot := checkoutapi.TransactionSnapshot{
		UID:            e.Data.UID,
		LastTransition: e.Data.Attributes.LastTransition,
		ProcessName:    e.Data.Attributes.ProcessName,
		ProtectedData:  e.Data.Attributes.ProtectedData,
		PrivateData:    e.Data.Attributes.PrivateData,
	}
	for _, li := range e.Data.Attributes.LineItems {
		snapshot.LineItems = append(snapshot.LineItems, checkoutapi.LineItem{
			Code:          li.Code,
			AmountInCents: li.AmountInCents,
			Currency:      li.Currency,
			Quantity:      li.Quantity,
		})
	}
	if e.Data.Booking != nil {
		start := e.Data.Booking.Start
		end := e.Data.Booking.End
		snapshot.BookingStart = &start
		snapshot.BookingEnd = &end
	}
	return snapshot
}
