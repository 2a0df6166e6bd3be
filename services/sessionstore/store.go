package sessionstore

import (
	"context"
	"time"

	"github.com/MarcGrol/marketcheckout/lib/myerrors"
	"github.com/MarcGrol/marketcheckout/lib/mylog"
	"github.com/MarcGrol/marketcheckout/lib/mystore"
	"github.com/MarcGrol/marketcheckout/services/checkoutapi"
)

// Namespace is the fixed key prefix under which in-flight checkout state is
// persisted. One entry per checkout attempt.
const Namespace = "CheckoutPage"

// SessionStore keeps the in-flight checkout context across page loads. It is
// not a source of truth: once a transaction exists remotely, the remote
// resource is authoritative and the session is only a resume hint.
type SessionStore interface {
	Load(c context.Context, attemptUID string) (checkoutapi.CheckoutContext, bool)
	Save(c context.Context, attemptUID string, checkoutContext checkoutapi.CheckoutContext) error
	Clear(c context.Context, attemptUID string) error
}

type sessionStore struct {
	store  mystore.Store[checkoutapi.CheckoutContext]
	logger mylog.Logger
}

func New(store mystore.Store[checkoutapi.CheckoutContext]) SessionStore {
	return &sessionStore{
		store:  store,
		logger: mylog.New("sessionstore"),
	}
}

func key(attemptUID string) string {
	return Namespace + "/" + attemptUID
}

// Load never fails towards the caller: absent or unreadable state is an
// empty session, so a shopper with a broken session simply starts over.
func (s *sessionStore) Load(c context.Context, attemptUID string) (checkoutapi.CheckoutContext, bool) {
	checkoutContext, found, err := s.store.Get(c, key(attemptUID))
	if err != nil {
		s.logger.Log(c, attemptUID, mylog.SeverityWarn, "Treating unreadable session state as empty: %s", err)
		return checkoutapi.CheckoutContext{}, false
	}
	if !found {
		return checkoutapi.CheckoutContext{}, false
	}
	if checkoutContext.Listing.UID == "" {
		// corrupt entry
		s.logger.Log(c, attemptUID, mylog.SeverityWarn, "Treating session state without listing as empty")
		return checkoutapi.CheckoutContext{}, false
	}

	return checkoutContext, true
}

// Save persists the latest context. After a transaction id was assigned,
// only fields the next transition may amend are allowed to change locally.
func (s *sessionStore) Save(c context.Context, attemptUID string, checkoutContext checkoutapi.CheckoutContext) error {
	existing, found := s.Load(c, attemptUID)
	if found {
		err := validateAmendment(existing, checkoutContext)
		if err != nil {
			return err
		}
	}

	err := s.store.Put(c, key(attemptUID), checkoutContext)
	if err != nil {
		return myerrors.NewInternalError(err)
	}

	return nil
}

func (s *sessionStore) Clear(c context.Context, attemptUID string) error {
	err := s.store.Remove(c, key(attemptUID))
	if err != nil {
		return myerrors.NewInternalError(err)
	}

	return nil
}

func validateAmendment(existing checkoutapi.CheckoutContext, updated checkoutapi.CheckoutContext) error {
	if updated.Listing.UID != existing.Listing.UID {
		return myerrors.NewInvalidInputErrorf("listing identity of a checkout attempt cannot change")
	}

	if !existing.HasCommittedTransaction() {
		return nil
	}

	// A committed transaction pins the booking window.
	if !sameTimePtr(existing.Order.BookingStart, updated.Order.BookingStart) ||
		!sameTimePtr(existing.Order.BookingEnd, updated.Order.BookingEnd) {
		return myerrors.NewInvalidInputErrorf("booking window cannot change once a transaction exists")
	}

	return nil
}

func sameTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
