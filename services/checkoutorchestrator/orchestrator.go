package checkoutorchestrator

import (
	"context"
	"fmt"

	"github.com/MarcGrol/marketcheckout/lib/myerrors"
	"github.com/MarcGrol/marketcheckout/lib/mylog"
	"github.com/MarcGrol/marketcheckout/lib/mypublisher"
	"github.com/MarcGrol/marketcheckout/lib/mytime"
	"github.com/MarcGrol/marketcheckout/services/cardpayment"
	"github.com/MarcGrol/marketcheckout/services/checkoutapi"
	"github.com/MarcGrol/marketcheckout/services/checkoutevents"
	"github.com/MarcGrol/marketcheckout/services/orderparams"
	"github.com/MarcGrol/marketcheckout/services/pricebreakdown"
	"github.com/MarcGrol/marketcheckout/services/routes"
	"github.com/MarcGrol/marketcheckout/services/sessionstore"
	"github.com/MarcGrol/marketcheckout/services/transactiongateway"
	"github.com/MarcGrol/marketcheckout/services/transactionprocess"
)

// Service drives one checkout attempt per listing from method choice to a
// confirmed order. All remote effects go through the transaction gateway;
// the session store only carries resume state.
type Service interface {
	Start(c context.Context, listing checkoutapi.ListingRef) (Result, error)
	Resume(c context.Context, listingUID string) (Result, error)
	SelectPaymentMethod(c context.Context, listingUID string, method checkoutapi.PaymentMethod) (Result, error)
	Preview(c context.Context, listingUID string, form checkoutapi.OrderForm) (Result, error)
	SubmitCard(c context.Context, listingUID string, form checkoutapi.OrderForm) (Result, error)
	SubmitCash(c context.Context, listingUID string, form checkoutapi.OrderForm) (Result, error)
	Abandon(c context.Context, listingUID string) error
}

// Result is the outcome of one orchestrator operation: where the attempt
// stands now, and what the caller should render or navigate to next.
type Result struct {
	State          State
	Context        checkoutapi.CheckoutContext
	Breakdown      *pricebreakdown.Breakdown
	TransactionUID string
	NextPath       string
}

type service struct {
	logger    mylog.Logger
	sessions  sessionstore.SessionStore
	card      cardFlow
	cash      cashFlow
	publisher mypublisher.Publisher
	navigator routes.Navigator
	nower     mytime.Nower
	guards    *guardRegistry
}

func New(c context.Context, sessions sessionstore.SessionStore, gateway transactiongateway.TransactionGateway,
	authorizer cardpayment.CardAuthorizer, publisher mypublisher.Publisher, navigator routes.Navigator,
	nower mytime.Nower) (Service, error) {
	err := publisher.CreateTopic(c, checkoutevents.TopicName)
	if err != nil {
		return nil, fmt.Errorf("error creating topic %s: %s", checkoutevents.TopicName, err)
	}

	return &service{
		logger:    mylog.New("checkoutorchestrator"),
		sessions:  sessions,
		card:      cardFlow{gateway: gateway, authorizer: authorizer},
		cash:      cashFlow{gateway: gateway},
		publisher: publisher,
		navigator: navigator,
		nower:     nower,
		guards:    newGuardRegistry(),
	}, nil
}

// Start seeds a fresh checkout context for the listing, or rehydrates the
// existing one so a returning shopper continues where they left off.
func (s *service) Start(c context.Context, listing checkoutapi.ListingRef) (Result, error) {
	if listing.UID == "" {
		return Result{}, myerrors.NewInvalidInputErrorf("listing UID is required")
	}

	existing, found := s.sessions.Load(c, listing.UID)
	if found {
		return Result{State: stateOf(existing), Context: existing}, nil
	}

	checkoutContext := checkoutapi.NewCheckoutContext(listing, s.nower.Now())
	err := s.sessions.Save(c, listing.UID, checkoutContext)
	if err != nil {
		return Result{}, err
	}

	err = s.publisher.Publish(c, checkoutevents.TopicName, checkoutevents.CheckoutStarted{
		ListingUID: listing.UID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("error publishing checkout-started event: %s", err)
	}

	return Result{State: StateChoosingMethod, Context: checkoutContext}, nil
}

func (s *service) Resume(c context.Context, listingUID string) (Result, error) {
	checkoutContext, found := s.sessions.Load(c, listingUID)
	if !found {
		return Result{}, myerrors.NewNotFoundError(fmt.Errorf("no checkout in progress for listing %s", listingUID))
	}

	return Result{State: stateOf(checkoutContext), Context: checkoutContext}, nil
}

// SelectPaymentMethod is the only way out of ChoosingMethod. An unset method
// never falls through to a default.
func (s *service) SelectPaymentMethod(c context.Context, listingUID string, method checkoutapi.PaymentMethod) (Result, error) {
	if !method.IsResolved() {
		return Result{}, myerrors.NewInvalidInputErrorf("payment method must be card or cash, got %q", method)
	}

	checkoutContext, found := s.sessions.Load(c, listingUID)
	if !found {
		return Result{}, myerrors.NewNotFoundError(fmt.Errorf("no checkout in progress for listing %s", listingUID))
	}

	checkoutContext.Order.PaymentMethod = method
	s.touch(&checkoutContext)

	err := s.sessions.Save(c, listingUID, checkoutContext)
	if err != nil {
		return Result{}, err
	}

	return Result{State: stateOf(checkoutContext), Context: checkoutContext}, nil
}

// Preview runs a non-committing speculate so the shopper sees the exact
// price before authorizing a card. Rapid successive previews are resolved
// last-request-wins: a response superseded by a newer request is discarded.
func (s *service) Preview(c context.Context, listingUID string, form checkoutapi.OrderForm) (Result, error) {
	checkoutContext, found := s.sessions.Load(c, listingUID)
	if !found {
		return Result{}, myerrors.NewNotFoundError(fmt.Errorf("no checkout in progress for listing %s", listingUID))
	}

	err := form.ApplyTo(&checkoutContext.Order)
	if err != nil {
		return Result{}, err
	}

	if checkoutContext.Order.PaymentMethod != checkoutapi.PaymentMethodCard {
		return Result{}, myerrors.NewInvalidInputErrorf("price preview applies to the card flow only")
	}

	params, err := orderparams.Build(checkoutContext, nil)
	if err != nil {
		return Result{}, err
	}

	guard := s.guards.guardFor(listingUID)
	seq := guard.issuePreview()

	process := transactionprocess.CardBooking
	var request transactiongateway.TransitionRequest
	if checkoutContext.HasCommittedTransaction() {
		request = transactiongateway.NewContinuationRequest(process, checkoutContext.Transaction.UID, process.FinalTransition().Name, params)
	} else {
		request = transactiongateway.NewCreationRequest(process, process.FirstTransition().Name, params)
	}

	snapshot, err := s.card.gateway.Speculate(c, request)
	if err != nil {
		return s.failureResult(checkoutContext, StatePreviewingPrice, err)
	}

	applied, err := guard.applyPreview(seq, func() error {
		s.touch(&checkoutContext)
		// An ephemeral preview never replaces a committed transaction.
		if !checkoutContext.HasCommittedTransaction() {
			checkoutContext.Transaction = &snapshot
		}
		return s.sessions.Save(c, listingUID, checkoutContext)
	})
	if err != nil {
		return Result{}, err
	}
	if !applied {
		// A newer preview was issued while this one was in flight; show
		// whatever the latest one produced.
		s.logger.Log(c, listingUID, mylog.SeverityInfo, "Discarding superseded price preview %d", seq)
		return s.latestResult(c, listingUID)
	}

	breakdown, err := pricebreakdown.FromTransaction(snapshot)
	if err != nil {
		return Result{}, err
	}

	return Result{State: StateAwaitingCardAuthorization, Context: checkoutContext, Breakdown: &breakdown}, nil
}

// SubmitCard runs the card branch to completion: initiate at most once,
// authorize the payment intent, then confirm. The in-flight request survives
// the caller walking away: a submit that commits server-side is always
// recorded locally.
func (s *service) SubmitCard(c context.Context, listingUID string, form checkoutapi.OrderForm) (Result, error) {
	guard := s.guards.guardFor(listingUID)
	if !guard.beginSubmit() {
		return Result{}, myerrors.NewConflictError(fmt.Errorf("a submission for listing %s is already in flight", listingUID))
	}
	defer guard.endSubmit()

	checkoutContext, found := s.sessions.Load(c, listingUID)
	if !found {
		return Result{}, myerrors.NewNotFoundError(fmt.Errorf("no checkout in progress for listing %s", listingUID))
	}

	err := form.ApplyTo(&checkoutContext.Order)
	if err != nil {
		return Result{}, err
	}

	if checkoutContext.Order.PaymentMethod != checkoutapi.PaymentMethodCard {
		return Result{}, myerrors.NewInvalidInputErrorf("card submission requires the card payment method")
	}
	if form.CardToken == "" {
		return Result{}, myerrors.NewInvalidInputErrorf("card payment method id is required")
	}

	params, err := orderparams.Build(checkoutContext, orderparams.CardExtras(form.CardToken, form.MessageToSeller))
	if err != nil {
		return Result{}, err
	}

	// Detached from the caller: navigating away must not cancel a call that
	// may already have committed server-side.
	detached := context.WithoutCancel(c)

	confirmed, err := s.card.submit(detached, checkoutContext, params, form.CardToken, func(created checkoutapi.TransactionSnapshot) error {
		checkoutContext.Transaction = &created
		s.touch(&checkoutContext)
		return s.sessions.Save(detached, listingUID, checkoutContext)
	})
	if err != nil {
		return s.failureResult(checkoutContext, StateAwaitingCardAuthorization, err)
	}

	return s.resolve(detached, listingUID, checkoutContext, confirmed)
}

// SubmitCash places the order in a single transition. Contact details come
// straight from the shopper, not from account data.
func (s *service) SubmitCash(c context.Context, listingUID string, form checkoutapi.OrderForm) (Result, error) {
	guard := s.guards.guardFor(listingUID)
	if !guard.beginSubmit() {
		return Result{}, myerrors.NewConflictError(fmt.Errorf("a submission for listing %s is already in flight", listingUID))
	}
	defer guard.endSubmit()

	checkoutContext, found := s.sessions.Load(c, listingUID)
	if !found {
		return Result{}, myerrors.NewNotFoundError(fmt.Errorf("no checkout in progress for listing %s", listingUID))
	}

	err := form.ApplyTo(&checkoutContext.Order)
	if err != nil {
		return Result{}, err
	}

	if checkoutContext.Order.PaymentMethod != checkoutapi.PaymentMethodCash {
		return Result{}, myerrors.NewInvalidInputErrorf("cash submission requires the cash payment method")
	}
	if form.Contact.Name == "" || form.Contact.Phone == "" {
		return Result{}, myerrors.NewInvalidInputErrorf("contact name and phone are required for a cash order")
	}

	params, err := orderparams.Build(checkoutContext, orderparams.CashExtras(form.Contact.Name, form.Contact.Phone, form.Contact.Note))
	if err != nil {
		return Result{}, err
	}

	detached := context.WithoutCancel(c)

	confirmed, err := s.cash.submit(detached, checkoutContext, params)
	if err != nil {
		return s.failureResult(checkoutContext, StateCollectingContactInfo, err)
	}

	return s.resolve(detached, listingUID, checkoutContext, confirmed)
}

func (s *service) Abandon(c context.Context, listingUID string) error {
	_, found := s.sessions.Load(c, listingUID)

	err := s.sessions.Clear(c, listingUID)
	if err != nil {
		return err
	}

	if found {
		err = s.publisher.Publish(c, checkoutevents.TopicName, checkoutevents.CheckoutAbandoned{
			ListingUID: listingUID,
		})
		if err != nil {
			return fmt.Errorf("error publishing checkout-abandoned event: %s", err)
		}
	}

	return nil
}

// resolve finalizes a successful submit: record the order, drop the resume
// state and hand back the order-details path. The transaction is committed
// remotely at this point, so local follow-up failures are logged, never
// surfaced as a failed checkout.
func (s *service) resolve(c context.Context, listingUID string, checkoutContext checkoutapi.CheckoutContext,
	confirmed checkoutapi.TransactionSnapshot) (Result, error) {
	checkoutContext.Transaction = &confirmed
	s.touch(&checkoutContext)

	err := s.sessions.Clear(c, listingUID)
	if err != nil {
		s.logger.Log(c, listingUID, mylog.SeverityWarn, "Error clearing session after resolve: %s", err)
	}

	total, currency := confirmed.PayinTotal()
	err = s.publisher.Publish(c, checkoutevents.TopicName, checkoutevents.OrderConfirmed{
		ListingUID:     listingUID,
		TransactionUID: confirmed.UID,
		PaymentMethod:  string(checkoutContext.Order.PaymentMethod),
		AmountInCents:  total,
		Currency:       currency,
	})
	if err != nil {
		s.logger.Log(c, listingUID, mylog.SeverityWarn, "Error publishing order-confirmed event: %s", err)
	}

	path, err := s.navigator.PathTo(routes.DestinationOrderDetails, map[string]string{"orderUID": confirmed.UID})
	if err != nil {
		s.logger.Log(c, listingUID, mylog.SeverityWarn, "Error resolving order-details path: %s", err)
	}

	s.logger.Log(c, listingUID, mylog.SeverityInfo, "Checkout resolved into order %s", confirmed.UID)

	return Result{
		State:          StateResolved,
		Context:        checkoutContext,
		TransactionUID: confirmed.UID,
		NextPath:       path,
	}, nil
}

// failureResult routes a typed gateway or processor error. Session state is
// left intact so a retry reuses the already-validated parameters; only a
// withdrawn listing or a privilege violation forces the shopper out.
func (s *service) failureResult(checkoutContext checkoutapi.CheckoutContext, origin State, err error) (Result, error) {
	result := Result{State: origin, Context: checkoutContext}

	if myerrors.IsNotFoundError(err) || myerrors.IsAuthenticationError(err) {
		result.State = StateFailed
		path, pathErr := s.navigator.PathTo(routes.DestinationListingDetail, map[string]string{"listingUID": checkoutContext.Listing.UID})
		if pathErr == nil {
			result.NextPath = path
		}
	}

	return result, err
}

func (s *service) latestResult(c context.Context, listingUID string) (Result, error) {
	checkoutContext, found := s.sessions.Load(c, listingUID)
	if !found {
		return Result{State: StateChoosingMethod}, nil
	}

	result := Result{State: stateOf(checkoutContext), Context: checkoutContext}
	if checkoutContext.Transaction != nil {
		breakdown, err := pricebreakdown.FromTransaction(*checkoutContext.Transaction)
		if err == nil {
			result.Breakdown = &breakdown
		}
	}
	return result, nil
}

func (s *service) touch(checkoutContext *checkoutapi.CheckoutContext) {
	now := s.nower.Now()
	checkoutContext.LastModified = &now
}
