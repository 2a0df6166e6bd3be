package routes

import (
	"strings"

	"github.com/MarcGrol/marketcheckout/lib/myerrors"
)

type Destination string

const (
	DestinationOrderDetails  Destination = "order-details"
	DestinationListingDetail Destination = "listing-detail"
	DestinationCheckout      Destination = "checkout"
)

// Navigator turns a named destination plus parameters into a path. Services
// never build paths themselves, so the route table can change in one place.
type Navigator interface {
	PathTo(destination Destination, params map[string]string) (string, error)
}

var pathTemplates = map[Destination]string{
	DestinationOrderDetails:  "/order/{orderUID}",
	DestinationListingDetail: "/l/{listingUID}",
	DestinationCheckout:      "/l/{listingUID}/checkout",
}

type navigator struct{}

func New() Navigator {
	return navigator{}
}

func (n navigator) PathTo(destination Destination, params map[string]string) (string, error) {
	template, found := pathTemplates[destination]
	if !found {
		return "", myerrors.NewInvalidInputErrorf("unknown destination %s", destination)
	}

	path := template
	for key, value := range params {
		path = strings.ReplaceAll(path, "{"+key+"}", value)
	}

	if strings.Contains(path, "{") {
		return "", myerrors.NewInvalidInputErrorf("missing parameter for destination %s: %s", destination, path)
	}

	return path, nil
}
