package checkoutorchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcGrol/marketcheckout/lib/myerrors"
	"github.com/MarcGrol/marketcheckout/lib/myevents"
	"github.com/MarcGrol/marketcheckout/lib/mystore"
	"github.com/MarcGrol/marketcheckout/lib/mytime"
	"github.com/MarcGrol/marketcheckout/services/cardpayment"
	"github.com/MarcGrol/marketcheckout/services/checkoutapi"
	"github.com/MarcGrol/marketcheckout/services/checkoutevents"
	"github.com/MarcGrol/marketcheckout/services/orderparams"
	"github.com/MarcGrol/marketcheckout/services/routes"
	"github.com/MarcGrol/marketcheckout/services/sessionstore"
	"github.com/MarcGrol/marketcheckout/services/transactiongateway"
	"github.com/MarcGrol/marketcheckout/services/transactionprocess"
)

func TestStartAndResume(t *testing.T) {
	c := context.TODO()
	sut, _, _, publisher, cleanup := setup(t)
	defer cleanup()

	// given: no checkout in progress

	// when
	result, err := sut.Start(c, exampleListing())

	// then
	require.NoError(t, err)
	assert.Equal(t, StateChoosingMethod, result.State)
	assert.Equal(t, "listing-1", result.Context.Listing.UID)
	require.Len(t, publisher.published, 1)
	assert.IsType(t, checkoutevents.CheckoutStarted{}, publisher.published[0])

	// when: the shopper returns
	resumed, err := sut.Resume(c, "listing-1")

	// then: the attempt is rehydrated, not restarted
	require.NoError(t, err)
	assert.Equal(t, StateChoosingMethod, resumed.State)
	assert.Equal(t, result.Context.Listing, resumed.Context.Listing)
}

func TestResumeWithoutCheckout(t *testing.T) {
	c := context.TODO()
	sut, _, _, _, cleanup := setup(t)
	defer cleanup()

	_, err := sut.Resume(c, "listing-unknown")

	assert.True(t, myerrors.IsNotFoundError(err))
}

func TestSelectPaymentMethod(t *testing.T) {
	c := context.TODO()
	sut, _, _, _, cleanup := setup(t)
	defer cleanup()

	_, err := sut.Start(c, exampleListing())
	require.NoError(t, err)

	t.Run("unset method never falls through", func(t *testing.T) {
		_, err := sut.SelectPaymentMethod(c, "listing-1", checkoutapi.PaymentMethodUnset)
		assert.True(t, myerrors.IsInvalidInputError(err))
	})

	t.Run("card enters previewing", func(t *testing.T) {
		result, err := sut.SelectPaymentMethod(c, "listing-1", checkoutapi.PaymentMethodCard)
		require.NoError(t, err)
		assert.Equal(t, StatePreviewingPrice, result.State)
	})

	t.Run("cash enters contact collection", func(t *testing.T) {
		result, err := sut.SelectPaymentMethod(c, "listing-1", checkoutapi.PaymentMethodCash)
		require.NoError(t, err)
		assert.Equal(t, StateCollectingContactInfo, result.State)
	})
}

func TestPreviewStoresEphemeralSnapshot(t *testing.T) {
	c := context.TODO()
	sut, gateway, _, _, cleanup := setup(t)
	defer cleanup()

	// given: a card checkout
	_, err := sut.Start(c, exampleListing())
	require.NoError(t, err)
	gateway.speculateResponse = speculativeSnapshot(11500)

	// when
	result, err := sut.Preview(c, "listing-1", cardOrderForm(""))

	// then
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingCardAuthorization, result.State)
	assert.Equal(t, 1, gateway.speculateCount)
	assert.Equal(t, 0, gateway.initiateCount)
	require.NotNil(t, result.Breakdown)
	assert.Equal(t, int64(11500), result.Breakdown.Total.Value)

	// and: the preview is stored but never looks committed
	resumed, err := sut.Resume(c, "listing-1")
	require.NoError(t, err)
	require.NotNil(t, resumed.Context.Transaction)
	assert.Empty(t, resumed.Context.Transaction.UID)
	assert.False(t, resumed.Context.HasCommittedTransaction())
}

func TestPreviewLastRequestWins(t *testing.T) {
	c := context.TODO()
	sut, gateway, _, _, cleanup := setup(t)
	defer cleanup()

	_, err := sut.Start(c, exampleListing())
	require.NoError(t, err)

	startedA := make(chan struct{})
	releaseA := make(chan struct{})
	calls := 0
	gateway.speculateFunc = func(transactiongateway.TransitionRequest) (checkoutapi.TransactionSnapshot, error) {
		calls++
		if calls == 1 {
			close(startedA)
			<-releaseA
			return speculativeSnapshot(11100), nil
		}
		return speculativeSnapshot(22200), nil
	}

	// given: preview A in flight
	resultA := make(chan Result)
	go func() {
		result, err := sut.Preview(c, "listing-1", cardOrderForm(""))
		require.NoError(t, err)
		resultA <- result
	}()
	<-startedA

	// when: preview B is issued and resolves first
	resultB, err := sut.Preview(c, "listing-1", cardOrderForm(""))
	require.NoError(t, err)
	require.NotNil(t, resultB.Breakdown)
	assert.Equal(t, int64(22200), resultB.Breakdown.Total.Value)

	// and: the superseded A response arrives late
	close(releaseA)
	late := <-resultA

	// then: A's price is never shown and the stored state reflects B
	if late.Breakdown != nil {
		assert.Equal(t, int64(22200), late.Breakdown.Total.Value)
	}
	resumed, err := sut.Resume(c, "listing-1")
	require.NoError(t, err)
	require.NotNil(t, resumed.Context.Transaction)
	assert.Equal(t, int64(22200), resumed.Context.Transaction.LineItems[0].AmountInCents)
}

func TestPreviewOnWithdrawnListing(t *testing.T) {
	c := context.TODO()
	sut, gateway, _, _, cleanup := setup(t)
	defer cleanup()

	_, err := sut.Start(c, exampleListing())
	require.NoError(t, err)
	gateway.speculateErr = myerrors.NewNotFoundError(assert.AnError)

	result, err := sut.Preview(c, "listing-1", cardOrderForm(""))

	// then: fatal to the attempt, shopper is sent back to the listing
	assert.True(t, myerrors.IsNotFoundError(err))
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, "/l/listing-1", result.NextPath)
}

func TestSubmitCashHappyPath(t *testing.T) {
	c := context.TODO()
	sut, gateway, authorizer, publisher, cleanup := setup(t)
	defer cleanup()

	// given
	_, err := sut.Start(c, exampleListing())
	require.NoError(t, err)
	gateway.initiateResponse = committedSnapshot("tx-cash", transactionprocess.TransitionRequestCashOrder, nil)

	// when
	result, err := sut.SubmitCash(c, "listing-1", cashOrderForm())

	// then
	require.NoError(t, err)
	assert.Equal(t, StateResolved, result.State)
	assert.Equal(t, "tx-cash", result.TransactionUID)
	assert.Equal(t, "/order/tx-cash", result.NextPath)
	assert.Equal(t, 1, gateway.initiateCount)
	assert.Equal(t, 0, gateway.transitionCount)

	// and: the processor is never touched on the cash branch
	assert.Equal(t, 0, authorizer.retrieveCount)
	assert.Equal(t, 0, authorizer.confirmCount)

	// and: resume state is gone, order event is out
	_, err = sut.Resume(c, "listing-1")
	assert.True(t, myerrors.IsNotFoundError(err))
	require.Len(t, publisher.published, 2)
	confirmed, ok := publisher.published[1].(checkoutevents.OrderConfirmed)
	require.True(t, ok)
	assert.Equal(t, "tx-cash", confirmed.TransactionUID)
	assert.Equal(t, "cash", confirmed.PaymentMethod)
}

func TestSubmitCashRequiresContactInfo(t *testing.T) {
	c := context.TODO()
	sut, gateway, _, _, cleanup := setup(t)
	defer cleanup()

	_, err := sut.Start(c, exampleListing())
	require.NoError(t, err)

	form := cashOrderForm()
	form.Contact.Phone = ""
	_, err = sut.SubmitCash(c, "listing-1", form)

	assert.True(t, myerrors.IsInvalidInputError(err))
	assert.Equal(t, 0, gateway.initiateCount)
}

func TestSubmitCardHappyPath(t *testing.T) {
	c := context.TODO()
	sut, gateway, authorizer, _, cleanup := setup(t)
	defer cleanup()

	// given
	_, err := sut.Start(c, exampleListing())
	require.NoError(t, err)
	gateway.initiateResponse = committedSnapshot("tx-card", transactionprocess.TransitionRequestPayment,
		map[string]string{orderparams.KeyStripePaymentIntent: "pi-1"})
	gateway.transitionResponse = committedSnapshot("tx-card", transactionprocess.TransitionConfirmPayment, nil)
	authorizer.retrieveResponse = cardpayment.Intent{UID: "pi-1", Status: cardpayment.IntentStatusRequiresConfirmation}
	authorizer.confirmResponse = cardpayment.Intent{UID: "pi-1", Status: cardpayment.IntentStatusSucceeded}

	// when
	result, err := sut.SubmitCard(c, "listing-1", cardOrderForm("pm-1"))

	// then: initiate, authorize, confirm - in that order, each once
	require.NoError(t, err)
	assert.Equal(t, StateResolved, result.State)
	assert.Equal(t, "tx-card", result.TransactionUID)
	assert.Equal(t, 1, gateway.initiateCount)
	assert.Equal(t, 1, authorizer.retrieveCount)
	assert.Equal(t, 1, authorizer.confirmCount)
	assert.Equal(t, 1, gateway.transitionCount)
	assert.Equal(t, transactionprocess.TransitionConfirmPayment, gateway.lastTransitionName)
}

func TestSubmitCardRetryNeverInitiatesTwice(t *testing.T) {
	c := context.TODO()
	sut, gateway, authorizer, _, cleanup := setup(t)
	defer cleanup()

	// given: the confirming transition is rejected as stale
	_, err := sut.Start(c, exampleListing())
	require.NoError(t, err)
	gateway.initiateResponse = committedSnapshot("tx-card", transactionprocess.TransitionRequestPayment,
		map[string]string{orderparams.KeyStripePaymentIntent: "pi-1"})
	gateway.transitionErr = myerrors.NewConflictError(assert.AnError)
	authorizer.retrieveResponse = cardpayment.Intent{UID: "pi-1", Status: cardpayment.IntentStatusSucceeded}

	// when
	result, err := sut.SubmitCard(c, "listing-1", cardOrderForm("pm-1"))

	// then: the attempt stays on the card branch with session intact
	assert.True(t, myerrors.IsConflictError(err))
	assert.Equal(t, StateAwaitingCardAuthorization, result.State)
	resumed, err := sut.Resume(c, "listing-1")
	require.NoError(t, err)
	assert.True(t, resumed.Context.HasCommittedTransaction())
	assert.Equal(t, "tx-card", resumed.Context.Transaction.UID)

	// when: the shopper retries after a refresh
	gateway.transitionErr = nil
	gateway.transitionResponse = committedSnapshot("tx-card", transactionprocess.TransitionConfirmPayment, nil)
	retried, err := sut.SubmitCard(c, "listing-1", cardOrderForm("pm-1"))

	// then: the existing transaction is advanced, never re-created
	require.NoError(t, err)
	assert.Equal(t, StateResolved, retried.State)
	assert.Equal(t, 1, gateway.initiateCount)
	assert.Equal(t, 2, gateway.transitionCount)
}

func TestSubmitCardDecline(t *testing.T) {
	c := context.TODO()
	sut, gateway, authorizer, _, cleanup := setup(t)
	defer cleanup()

	_, err := sut.Start(c, exampleListing())
	require.NoError(t, err)
	gateway.initiateResponse = committedSnapshot("tx-card", transactionprocess.TransitionRequestPayment,
		map[string]string{orderparams.KeyStripePaymentIntent: "pi-1"})
	authorizer.retrieveResponse = cardpayment.Intent{UID: "pi-1", Status: cardpayment.IntentStatusRequiresConfirmation}
	authorizer.confirmErr = myerrors.NewDeclinedError(assert.AnError)

	result, err := sut.SubmitCard(c, "listing-1", cardOrderForm("pm-1"))

	// then: decline surfaces to the shopper, no confirming transition runs
	assert.True(t, myerrors.IsDeclinedError(err))
	assert.Equal(t, StateAwaitingCardAuthorization, result.State)
	assert.Equal(t, 0, gateway.transitionCount)

	// and: session survives so a new card can reuse the same transaction
	resumed, err := sut.Resume(c, "listing-1")
	require.NoError(t, err)
	assert.True(t, resumed.Context.HasCommittedTransaction())
}

func TestDoubleClickSubmitRejectedLocally(t *testing.T) {
	c := context.TODO()
	sut, gateway, _, _, cleanup := setup(t)
	defer cleanup()

	_, err := sut.Start(c, exampleListing())
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	gateway.initiateHook = func() {
		close(started)
		<-release
	}
	gateway.initiateResponse = committedSnapshot("tx-cash", transactionprocess.TransitionRequestCashOrder, nil)

	// given: the first submit is in flight
	firstDone := make(chan error)
	go func() {
		_, err := sut.SubmitCash(c, "listing-1", cashOrderForm())
		firstDone <- err
	}()
	<-started

	// when: the shopper double-clicks
	_, err = sut.SubmitCash(c, "listing-1", cashOrderForm())

	// then: rejected locally, no second network call
	assert.True(t, myerrors.IsConflictError(err))
	assert.Equal(t, 1, gateway.initiateCount)

	close(release)
	assert.NoError(t, <-firstDone)
}

func TestAbandonClearsSession(t *testing.T) {
	c := context.TODO()
	sut, _, _, publisher, cleanup := setup(t)
	defer cleanup()

	_, err := sut.Start(c, exampleListing())
	require.NoError(t, err)

	err = sut.Abandon(c, "listing-1")

	require.NoError(t, err)
	_, err = sut.Resume(c, "listing-1")
	assert.True(t, myerrors.IsNotFoundError(err))
	require.Len(t, publisher.published, 2)
	assert.IsType(t, checkoutevents.CheckoutAbandoned{}, publisher.published[1])
}

// setup wires the orchestrator against an in-memory session store and
// hand-rolled fakes for everything remote.
func setup(t *testing.T) (Service, *fakeGateway, *fakeAuthorizer, *fakePublisher, func()) {
	c := context.TODO()

	store, storeCleanup, err := mystore.NewInMemoryStore[checkoutapi.CheckoutContext](c)
	require.NoError(t, err)

	gateway := &fakeGateway{}
	authorizer := &fakeAuthorizer{}
	publisher := &fakePublisher{}

	sut, err := New(c, sessionstore.New(store), gateway, authorizer, publisher, routes.New(), fixedNower{})
	require.NoError(t, err)

	return sut, gateway, authorizer, publisher, storeCleanup
}

func exampleListing() checkoutapi.ListingRef {
	return checkoutapi.ListingRef{
		UID:           "listing-1",
		Title:         "Canal view apartment",
		AmountInCents: 11100,
		Currency:      "EUR",
		TimeBound:     true,
	}
}

func cardOrderForm(paymentMethodUID string) checkoutapi.OrderForm {
	quantity := 1
	return checkoutapi.OrderForm{
		BookingStart:  "2024-06-01T00:00:00Z",
		BookingEnd:    "2024-06-03T00:00:00Z",
		Quantity:      &quantity,
		PaymentMethod: "card",
		CardToken:     paymentMethodUID,
	}
}

func cashOrderForm() checkoutapi.OrderForm {
	quantity := 1
	return checkoutapi.OrderForm{
		BookingStart:  "2024-06-01T00:00:00Z",
		BookingEnd:    "2024-06-03T00:00:00Z",
		Quantity:      &quantity,
		PaymentMethod: "cash",
		Contact: checkoutapi.ContactForm{
			Name:  "A. Dupont",
			Phone: "0600000000",
		},
	}
}

func speculativeSnapshot(amountInCents int64) checkoutapi.TransactionSnapshot {
	return checkoutapi.TransactionSnapshot{
		LastTransition: transactionprocess.TransitionRequestPayment,
		ProcessName:    transactionprocess.CardBooking.Name,
		LineItems: []checkoutapi.LineItem{
			{Code: "line-item/night", AmountInCents: amountInCents, Currency: "EUR", Quantity: 1},
		},
	}
}

func committedSnapshot(uid string, lastTransition string, protectedData map[string]string) checkoutapi.TransactionSnapshot {
	return checkoutapi.TransactionSnapshot{
		UID:            uid,
		LastTransition: lastTransition,
		LineItems: []checkoutapi.LineItem{
			{Code: "line-item/night", AmountInCents: 11100, Currency: "EUR", Quantity: 1},
		},
		ProtectedData: protectedData,
	}
}

type fixedNower struct{}

func (n fixedNower) Now() time.Time {
	return mytime.ExampleTime
}

type fakeGateway struct {
	mutex              sync.Mutex
	speculateFunc      func(req transactiongateway.TransitionRequest) (checkoutapi.TransactionSnapshot, error)
	speculateResponse  checkoutapi.TransactionSnapshot
	speculateErr       error
	initiateHook       func()
	initiateResponse   checkoutapi.TransactionSnapshot
	initiateErr        error
	transitionResponse checkoutapi.TransactionSnapshot
	transitionErr      error
	speculateCount     int
	initiateCount      int
	transitionCount    int
	lastTransitionName string
}

func (g *fakeGateway) Speculate(c context.Context, req transactiongateway.TransitionRequest) (checkoutapi.TransactionSnapshot, error) {
	g.mutex.Lock()
	g.speculateCount++
	speculateFunc := g.speculateFunc
	g.mutex.Unlock()

	if speculateFunc != nil {
		return speculateFunc(req)
	}
	return g.speculateResponse, g.speculateErr
}

func (g *fakeGateway) Initiate(c context.Context, req transactiongateway.TransitionRequest) (checkoutapi.TransactionSnapshot, error) {
	g.mutex.Lock()
	g.initiateCount++
	g.lastTransitionName = req.Transition()
	initiateHook := g.initiateHook
	g.mutex.Unlock()

	if initiateHook != nil {
		initiateHook()
	}
	return g.initiateResponse, g.initiateErr
}

func (g *fakeGateway) Transition(c context.Context, req transactiongateway.TransitionRequest) (checkoutapi.TransactionSnapshot, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.transitionCount++
	g.lastTransitionName = req.Transition()
	return g.transitionResponse, g.transitionErr
}

type fakeAuthorizer struct {
	retrieveResponse cardpayment.Intent
	retrieveErr      error
	confirmResponse  cardpayment.Intent
	confirmErr       error
	retrieveCount    int
	confirmCount     int
}

func (a *fakeAuthorizer) RetrieveIntent(c context.Context, intentUID string) (cardpayment.Intent, error) {
	a.retrieveCount++
	return a.retrieveResponse, a.retrieveErr
}

func (a *fakeAuthorizer) Confirm(c context.Context, intent cardpayment.Intent, paymentMethodUID string) (cardpayment.Intent, error) {
	a.confirmCount++
	return a.confirmResponse, a.confirmErr
}

type fakePublisher struct {
	mutex     sync.Mutex
	topics    []string
	published []myevents.Event
}

func (p *fakePublisher) CreateTopic(c context.Context, topicName string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.topics = append(p.topics, topicName)
	return nil
}

func (p *fakePublisher) Publish(c context.Context, topic string, event myevents.Event) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.published = append(p.published, event)
	return nil
}
