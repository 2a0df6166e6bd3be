package transactiongateway

import (
	"context"

	"github.com/MarcGrol/marketcheckout/services/checkoutapi"
)

// TransactionGateway is the single choke point towards the remote
// transaction API.
//
// Initiate must only be called when no transaction id is known yet for the
// checkout attempt: a second initiate creates a second, independent
// transaction. The orchestrator gates on the presence of a transaction id.
type TransactionGateway interface {
	// Speculate is a non-committing dry run used for price previews. It is
	// safe to call repeatedly and never creates billable side effects.
	Speculate(c context.Context, req TransitionRequest) (checkoutapi.TransactionSnapshot, error)

	// Initiate creates a new transaction at its process's first transition.
	Initiate(c context.Context, req TransitionRequest) (checkoutapi.TransactionSnapshot, error)

	// Transition advances an existing transaction by name.
	Transition(c context.Context, req TransitionRequest) (checkoutapi.TransactionSnapshot, error)
}
