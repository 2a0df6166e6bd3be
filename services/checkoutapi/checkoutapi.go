package checkoutapi

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	formcodec "github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"

	"github.com/MarcGrol/marketcheckout/lib/myerrors"
)

var validate = validator.New()

// OrderForm is the wire surface for the checkout pages. Everything arrives
// as a form post; the decoded form is applied onto OrderData.
type OrderForm struct {
	BookingStart    string      `form:"bookingStart" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	BookingEnd      string      `form:"bookingEnd" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Quantity        *int        `form:"quantity" validate:"omitempty,gt=0"`
	DeliveryMethod  string      `form:"deliveryMethod" validate:"omitempty,oneof=shipping pickup"`
	PriceVariant    string      `form:"priceVariant"`
	PaymentMethod   string      `form:"paymentMethod" validate:"omitempty,oneof=card cash"`
	Contact         ContactForm `form:"contact"`
	CardToken       string      `form:"card.paymentMethodId"`
	MessageToSeller string      `form:"card.message"`
}

type ContactForm struct {
	Name  string `form:"name"`
	Phone string `form:"phone"`
	Note  string `form:"note"`
}

func NewOrderFormFromRequest(r *http.Request) (OrderForm, error) {
	err := r.ParseForm()
	if err != nil {
		return OrderForm{}, myerrors.NewInvalidInputError(err)
	}
	return NewOrderFormFromValues(r.Form)
}

func NewOrderFormFromValues(values url.Values) (OrderForm, error) {
	form := OrderForm{}
	err := formcodec.NewDecoder().Decode(&form, values)
	if err != nil {
		return form, myerrors.NewInvalidInputError(fmt.Errorf("error decoding form: %s", err))
	}

	err = validate.Struct(form)
	if err != nil {
		return form, myerrors.NewInvalidInputError(fmt.Errorf("error validating form: %s", err))
	}

	return form, nil
}

// ApplyTo merges the shopper's edits onto the order. Empty form fields leave
// the corresponding order fields untouched.
func (f OrderForm) ApplyTo(order *OrderData) error {
	if f.BookingStart != "" || f.BookingEnd != "" {
		if f.BookingStart == "" || f.BookingEnd == "" {
			return myerrors.NewInvalidInputErrorf("booking window requires both start and end")
		}
		start, err := time.Parse(time.RFC3339, f.BookingStart)
		if err != nil {
			return myerrors.NewInvalidInputError(fmt.Errorf("error parsing bookingStart: %s", err))
		}
		end, err := time.Parse(time.RFC3339, f.BookingEnd)
		if err != nil {
			return myerrors.NewInvalidInputError(fmt.Errorf("error parsing bookingEnd: %s", err))
		}
		if !end.After(start) {
			return myerrors.NewInvalidInputErrorf("booking window must end after it starts")
		}
		order.BookingStart = &start
		order.BookingEnd = &end
	}

	if f.Quantity != nil {
		order.Quantity = f.Quantity
	}

	if f.DeliveryMethod != "" {
		order.DeliveryMethod = DeliveryMethod(f.DeliveryMethod)
	}

	if f.PriceVariant != "" {
		order.PriceVariantName = f.PriceVariant
	}

	if f.PaymentMethod != "" {
		order.PaymentMethod = PaymentMethod(f.PaymentMethod)
	}

	return nil
}
