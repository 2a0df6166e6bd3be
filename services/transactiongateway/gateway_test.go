package transactiongateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MarcGrol/marketcheckout/lib/myerrors"
	"github.com/MarcGrol/marketcheckout/services/orderparams"
	"github.com/MarcGrol/marketcheckout/services/transactionprocess"
)

const (
	baseURL        = "https://api.example.com"
	trustedBaseURL = "https://trusted.example.com"
)

var okResponse = `{
	"data": {
		"id": "tx-1",
		"attributes": {
			"lastTransition": "transition/request-payment",
			"processName": "card-booking",
			"lineItems": [
				{"code": "line-item/night", "amountInCents": 10000, "currency": "EUR", "quantity": 2}
			],
			"protectedData": {"paymentMethod": "card"}
		},
		"booking": {"start": "2024-06-01T00:00:00Z", "end": "2024-06-03T00:00:00Z"}
	}
}`

func cardParams(t *testing.T) orderparams.OrderParams {
	t.Helper()
	return orderparams.OrderParams{
		ProtectedData: map[string]string{orderparams.KeyPaymentMethod: "card"},
	}
}

func TestInitiate(t *testing.T) {
	c := context.TODO()

	// given
	sender := &fakeHTTPSender{status: http.StatusOK, payload: okResponse}
	sut := New(baseURL, trustedBaseURL, sender)
	req := NewCreationRequest(transactionprocess.CardBooking, transactionprocess.TransitionRequestPayment, cardParams(t))

	// when
	snapshot, err := sut.Initiate(c, req)

	// then
	assert.NoError(t, err)
	assert.Equal(t, "tx-1", snapshot.UID)
	assert.Equal(t, "transition/request-payment", snapshot.LastTransition)
	assert.Equal(t, "card-booking", snapshot.ProcessName)
	assert.Len(t, snapshot.LineItems, 1)
	assert.NotNil(t, snapshot.BookingStart)

	assert.Equal(t, baseURL+"/v1/transactions/initiate", sender.lastURL)

	var body map[string]any
	assert.NoError(t, json.Unmarshal(sender.lastBody, &body))
	assert.Equal(t, "card-booking/release-1", body["processAlias"])
	assert.NotContains(t, body, "id")
}

func TestTransitionUsesContinuationForm(t *testing.T) {
	c := context.TODO()

	sender := &fakeHTTPSender{status: http.StatusOK, payload: okResponse}
	sut := New(baseURL, trustedBaseURL, sender)
	req := NewContinuationRequest(transactionprocess.CashBooking, "tx-1", transactionprocess.TransitionRequestCashOrder, cardParams(t))

	_, err := sut.Transition(c, req)
	assert.NoError(t, err)

	var body map[string]any
	assert.NoError(t, json.Unmarshal(sender.lastBody, &body))
	assert.Equal(t, "tx-1", body["id"])
	assert.NotContains(t, body, "processAlias")
}

func TestSpeculateIsEphemeral(t *testing.T) {
	c := context.TODO()

	sender := &fakeHTTPSender{status: http.StatusOK, payload: okResponse}
	sut := New(baseURL, trustedBaseURL, sender)
	req := NewCreationRequest(transactionprocess.CardBooking, transactionprocess.TransitionRequestPayment, cardParams(t))

	snapshot, err := sut.Speculate(c, req)

	assert.NoError(t, err)
	// the backend echoed an id; a preview must never carry one
	assert.Empty(t, snapshot.UID)
	assert.Len(t, snapshot.LineItems, 1)
	assert.Equal(t, baseURL+"/v1/transactions/initiate_speculative", sender.lastURL)
}

func TestPrivilegedTransitionRoutesThroughTrustedPath(t *testing.T) {
	c := context.TODO()

	sender := &fakeHTTPSender{status: http.StatusOK, payload: okResponse}
	sut := New(baseURL, trustedBaseURL, sender)
	req := NewContinuationRequest(transactionprocess.CardBooking, "tx-1", transactionprocess.TransitionConfirmPayment, cardParams(t))

	_, err := sut.Transition(c, req)
	assert.NoError(t, err)
	assert.Equal(t, trustedBaseURL+"/v1/transactions/transition", sender.lastURL)
}

func TestPrivilegedTransitionWithoutTrustedPathFailsFast(t *testing.T) {
	c := context.TODO()

	sender := &fakeHTTPSender{status: http.StatusOK, payload: okResponse}
	sut := New(baseURL, "", sender)
	req := NewContinuationRequest(transactionprocess.CardBooking, "tx-1", transactionprocess.TransitionConfirmPayment, cardParams(t))

	_, err := sut.Transition(c, req)
	assert.Error(t, err)
	assert.True(t, myerrors.IsAuthenticationError(err))
	// never silently downgraded to the unprivileged path
	assert.Equal(t, 0, sender.calls)
}

func TestErrorMapping(t *testing.T) {
	c := context.TODO()

	tests := []struct {
		name      string
		status    int
		predicate func(error) bool
	}{
		{"validation failed", http.StatusBadRequest, myerrors.IsInvalidInputError},
		{"listing not found", http.StatusNotFound, myerrors.IsNotFoundError},
		{"invalid transition", http.StatusConflict, myerrors.IsConflictError},
		{"rate limited", http.StatusTooManyRequests, myerrors.IsTooManyRequestsError},
		{"unknown", http.StatusBadGateway, myerrors.IsRetryable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sender := &fakeHTTPSender{status: tc.status, payload: `{"errors":[{"title":"nope"}]}`}
			sut := New(baseURL, trustedBaseURL, sender)
			req := NewCreationRequest(transactionprocess.CashBooking, transactionprocess.TransitionRequestCashOrder, cardParams(t))

			_, err := sut.Initiate(c, req)
			assert.Error(t, err)
			assert.True(t, tc.predicate(err))
		})
	}
}

func TestNetworkErrorIsRetryable(t *testing.T) {
	c := context.TODO()

	sender := &fakeHTTPSender{err: assert.AnError}
	sut := New(baseURL, trustedBaseURL, sender)
	req := NewCreationRequest(transactionprocess.CashBooking, transactionprocess.TransitionRequestCashOrder, cardParams(t))

	_, err := sut.Initiate(c, req)
	assert.Error(t, err)
	assert.True(t, myerrors.IsRetryable(err))
}

func TestDeviatingResponseShapeIsUnknownError(t *testing.T) {
	c := context.TODO()

	sender := &fakeHTTPSender{status: http.StatusOK, payload: `{"result": {"order": {"uuid": "tx-1"}}}`}
	sut := New(baseURL, trustedBaseURL, sender)
	req := NewCreationRequest(transactionprocess.CashBooking, transactionprocess.TransitionRequestCashOrder, cardParams(t))

	// the envelope parses but carries no transaction id where one is
	// required: deviation, not something to probe around
	_, err := sut.Initiate(c, req)
	assert.Error(t, err)
	assert.True(t, myerrors.IsRetryable(err))
}

func TestRequestFormsAreMutuallyExclusive(t *testing.T) {
	c := context.TODO()

	sender := &fakeHTTPSender{status: http.StatusOK, payload: okResponse}
	sut := New(baseURL, trustedBaseURL, sender)

	t.Run("initiate rejects continuation form", func(t *testing.T) {
		req := NewContinuationRequest(transactionprocess.CashBooking, "tx-1", transactionprocess.TransitionRequestCashOrder, cardParams(t))
		_, err := sut.Initiate(c, req)
		assert.True(t, myerrors.IsInvalidInputError(err))
	})

	t.Run("transition rejects creation form", func(t *testing.T) {
		req := NewCreationRequest(transactionprocess.CashBooking, transactionprocess.TransitionRequestCashOrder, cardParams(t))
		_, err := sut.Transition(c, req)
		assert.True(t, myerrors.IsInvalidInputError(err))
	})
}

type fakeHTTPSender struct {
	status  int
	payload string
	err     error

	calls    int
	lastURL  string
	lastBody []byte
}

func (f *fakeHTTPSender) Send(ctx context.Context, method string, url string, body []byte) (int, []byte, error) {
	f.calls++
	f.lastURL = url
	f.lastBody = body
	if f.err != nil {
		return 0, []byte{}, f.err
	}
	return f.status, []byte(f.payload), nil
}
