package checkoutevents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/MarcGrol/marketcheckout/lib/myerrors"
	"github.com/MarcGrol/marketcheckout/lib/myevents"
)

const (
	TopicName             = "checkout"
	checkoutStartedName   = TopicName + ".started"
	orderConfirmedName    = TopicName + ".orderConfirmed"
	checkoutAbandonedName = TopicName + ".abandoned"
)

// CheckoutEventService is implemented by subscribers of the checkout topic.
type CheckoutEventService interface {
	Subscribe(c context.Context) error
	OnCheckoutStarted(c context.Context, topic string, event CheckoutStarted) error
	OnOrderConfirmed(c context.Context, topic string, event OrderConfirmed) error
	OnCheckoutAbandoned(c context.Context, topic string, event CheckoutAbandoned) error
}

// DispatchEvent parses a pushed event envelope and routes it to the matching
// handler of the service.
func DispatchEvent(c context.Context, reader io.Reader, service CheckoutEventService) error {
	envelope, err := myevents.ParseEventEnvelope(reader)
	if err != nil {
		return myerrors.NewInvalidInputError(err)
	}

	switch envelope.EventTypeName {
	case checkoutStartedName:
		{
			event := CheckoutStarted{}
			err := json.Unmarshal([]byte(envelope.EventPayload), &event)
			if err != nil {
				return myerrors.NewInvalidInputError(err)
			}
			return service.OnCheckoutStarted(c, envelope.Topic, event)
		}
	case orderConfirmedName:
		{
			event := OrderConfirmed{}
			err := json.Unmarshal([]byte(envelope.EventPayload), &event)
			if err != nil {
				return myerrors.NewInvalidInputError(err)
			}
			return service.OnOrderConfirmed(c, envelope.Topic, event)
		}
	case checkoutAbandonedName:
		{
			event := CheckoutAbandoned{}
			err := json.Unmarshal([]byte(envelope.EventPayload), &event)
			if err != nil {
				return myerrors.NewInvalidInputError(err)
			}
			return service.OnCheckoutAbandoned(c, envelope.Topic, event)
		}
	default:
		return myerrors.NewNotImplementedError(fmt.Errorf("unknown event type %s", envelope.EventTypeName))
	}
}

type CheckoutStarted struct {
	ListingUID    string
	PaymentMethod string
}

func (e CheckoutStarted) GetEventTypeName() string {
	return checkoutStartedName
}

func (e CheckoutStarted) GetAggregateName() string {
	return e.ListingUID
}

type OrderConfirmed struct {
	ListingUID     string
	TransactionUID string
	PaymentMethod  string
	AmountInCents  int64
	Currency       string
}

func (e OrderConfirmed) GetEventTypeName() string {
	return orderConfirmedName
}

func (e OrderConfirmed) GetAggregateName() string {
	return e.TransactionUID
}

type CheckoutAbandoned struct {
	ListingUID string
}

func (e CheckoutAbandoned) GetEventTypeName() string {
	return checkoutAbandonedName
}

func (e CheckoutAbandoned) GetAggregateName() string {
	return e.ListingUID
}
