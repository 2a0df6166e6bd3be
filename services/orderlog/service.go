package orderlog

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcGrol/marketcheckout/lib/myerrors"
	"github.com/MarcGrol/marketcheckout/lib/myhttp"
	"github.com/MarcGrol/marketcheckout/lib/mylog"
	"github.com/MarcGrol/marketcheckout/lib/mypubsub"
	"github.com/MarcGrol/marketcheckout/lib/mystore"
	"github.com/MarcGrol/marketcheckout/lib/mytime"
	"github.com/MarcGrol/marketcheckout/services/checkoutevents"
)

// OrderRecord is the per-order ledger entry kept for operations: what was
// ordered, through which payment method, for how much.
type OrderRecord struct {
	TransactionUID string
	ListingUID     string
	PaymentMethod  string
	AmountInCents  int64
	Currency       string
	ConfirmedAt    time.Time
}

// service subscribes to the checkout topic and keeps a ledger of confirmed
// orders. It only consumes events; the orchestrator never depends on it.
type service struct {
	logger mylog.Logger
	store  mystore.Store[OrderRecord]
	pubsub mypubsub.PubSub
	nower  mytime.Nower
}

func NewService(store mystore.Store[OrderRecord], pubsub mypubsub.PubSub, nower mytime.Nower) *service {
	return &service{
		logger: mylog.New("orderlog"),
		store:  store,
		pubsub: pubsub,
		nower:  nower,
	}
}

func (s *service) Subscribe(c context.Context) error {
	err := s.pubsub.CreateTopic(c, checkoutevents.TopicName)
	if err != nil {
		return fmt.Errorf("error creating topic %s: %s", checkoutevents.TopicName, err)
	}

	err = s.pubsub.Subscribe(c, checkoutevents.TopicName, myhttp.GuessHostnameWithScheme()+"/orderlog/event")
	if err != nil {
		return fmt.Errorf("error subscribing to topic %s: %s", checkoutevents.TopicName, err)
	}

	return nil
}

func (s *service) OnCheckoutStarted(c context.Context, topic string, event checkoutevents.CheckoutStarted) error {
	s.logger.Log(c, event.ListingUID, mylog.SeverityInfo, "Webhook: checkout started on listing %s", event.ListingUID)
	return nil
}

// OnOrderConfirmed records the order. Pushes are at-least-once, so the write
// must be idempotent: an already-recorded order is left untouched.
func (s *service) OnOrderConfirmed(c context.Context, topic string, event checkoutevents.OrderConfirmed) error {
	s.logger.Log(c, event.TransactionUID, mylog.SeverityInfo, "Webhook: order %s confirmed on listing %s", event.TransactionUID, event.ListingUID)

	return s.store.RunInTransaction(c, func(c context.Context) error {
		_, found, err := s.store.Get(c, event.TransactionUID)
		if err != nil {
			return myerrors.NewInternalError(err)
		}
		if found {
			return nil
		}

		err = s.store.Put(c, event.TransactionUID, OrderRecord{
			TransactionUID: event.TransactionUID,
			ListingUID:     event.ListingUID,
			PaymentMethod:  event.PaymentMethod,
			AmountInCents:  event.AmountInCents,
			Currency:       event.Currency,
			ConfirmedAt:    s.nower.Now(),
		})
		if err != nil {
			return myerrors.NewInternalError(err)
		}
		return nil
	})
}

func (s *service) OnCheckoutAbandoned(c context.Context, topic string, event checkoutevents.CheckoutAbandoned) error {
	s.logger.Log(c, event.ListingUID, mylog.SeverityInfo, "Webhook: checkout abandoned on listing %s", event.ListingUID)
	return nil
}

func (s *service) listOrders(c context.Context) ([]OrderRecord, error) {
	records, err := s.store.List(c)
	if err != nil {
		return nil, myerrors.NewInternalError(err)
	}
	return records, nil
}
