package transactiongateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/MarcGrol/marketcheckout/lib/myerrors"
	"github.com/MarcGrol/marketcheckout/lib/myhttpclient"
	"github.com/MarcGrol/marketcheckout/lib/mylog"
	"github.com/MarcGrol/marketcheckout/services/checkoutapi"
)

const (
	initiatePath              = "/v1/transactions/initiate"
	transitionPath            = "/v1/transactions/transition"
	initiateSpeculativePath   = "/v1/transactions/initiate_speculative"
	transitionSpeculativePath = "/v1/transactions/transition_speculative"
)

type gateway struct {
	baseURL        string
	trustedBaseURL string
	httpSender     myhttpclient.HTTPSender
	logger         mylog.Logger
}

// New creates a gateway. trustedBaseURL carries the server-brokered
// credentials for privileged transitions; leave it empty for a gateway that
// may only run shopper-initiated transitions.
func New(baseURL string, trustedBaseURL string, httpSender myhttpclient.HTTPSender) TransactionGateway {
	return &gateway{
		baseURL:        baseURL,
		trustedBaseURL: trustedBaseURL,
		httpSender:     httpSender,
		logger:         mylog.New("transactiongateway"),
	}
}

func (g *gateway) Speculate(c context.Context, req TransitionRequest) (checkoutapi.TransactionSnapshot, error) {
	path := transitionSpeculativePath
	if req.IsCreation() {
		path = initiateSpeculativePath
	}

	snapshot, err := g.execute(c, path, req)
	if err != nil {
		return checkoutapi.TransactionSnapshot{}, err
	}

	// A speculative transaction is never persisted under a stable id: clear
	// whatever the backend echoed so it cannot be mistaken for a committed
	// transaction.
	snapshot.UID = ""

	return snapshot, nil
}

func (g *gateway) Initiate(c context.Context, req TransitionRequest) (checkoutapi.TransactionSnapshot, error) {
	if !req.IsCreation() {
		return checkoutapi.TransactionSnapshot{}, myerrors.NewInvalidInputErrorf("initiate requires a creation request")
	}

	snapshot, err := g.execute(c, initiatePath, req)
	if err != nil {
		return checkoutapi.TransactionSnapshot{}, err
	}

	if snapshot.UID == "" {
		return checkoutapi.TransactionSnapshot{}, myerrors.NewUnavailableError(fmt.Errorf("initiate response carries no transaction id"))
	}

	return snapshot, nil
}

func (g *gateway) Transition(c context.Context, req TransitionRequest) (checkoutapi.TransactionSnapshot, error) {
	if req.IsCreation() {
		return checkoutapi.TransactionSnapshot{}, myerrors.NewInvalidInputErrorf("transition requires a continuation request")
	}

	snapshot, err := g.execute(c, transitionPath, req)
	if err != nil {
		return checkoutapi.TransactionSnapshot{}, err
	}

	if snapshot.UID == "" {
		return checkoutapi.TransactionSnapshot{}, myerrors.NewUnavailableError(fmt.Errorf("transition response carries no transaction id"))
	}

	return snapshot, nil
}

func (g *gateway) execute(c context.Context, path string, req TransitionRequest) (checkoutapi.TransactionSnapshot, error) {
	baseURL, err := g.resolveBaseURL(req)
	if err != nil {
		return checkoutapi.TransactionSnapshot{}, err
	}

	jsonBytes, err := json.Marshal(req.body())
	if err != nil {
		return checkoutapi.TransactionSnapshot{}, myerrors.NewInternalError(fmt.Errorf("error marshalling transition request: %s", err))
	}

	g.logger.Log(c, req.transactionUID, mylog.SeverityInfo, "Calling transaction-api %s for transition %s", path, req.transition)

	status, respPayload, err := g.httpSender.Send(c, http.MethodPost, baseURL+path, jsonBytes)
	if err != nil {
		return checkoutapi.TransactionSnapshot{}, myerrors.NewUnavailableError(fmt.Errorf("error calling transaction-api: %s", err))
	}

	err = errorFromStatus(status, respPayload)
	if err != nil {
		return checkoutapi.TransactionSnapshot{}, err
	}

	envelope := responseEnvelope{}
	err = json.Unmarshal(respPayload, &envelope)
	if err != nil {
		return checkoutapi.TransactionSnapshot{}, myerrors.NewUnavailableError(fmt.Errorf("unexpected response shape from transaction-api: %s", err))
	}

	return envelope.toSnapshot(), nil
}

// resolveBaseURL routes the request to the trusted execution path when the
// named transition is privileged. Privilege comes from the process metadata,
// so a caller can never pair the wrong flag with a transition. A privileged
// transition on a gateway without trusted credentials fails fast instead of
// silently downgrading.
func (g *gateway) resolveBaseURL(req TransitionRequest) (string, error) {
	spec, found := req.process.Transition(req.transition)
	if !found {
		return "", myerrors.NewInvalidInputErrorf("process %s has no transition %s", req.process.Name, req.transition)
	}

	if !spec.Privileged {
		return g.baseURL, nil
	}

	if g.trustedBaseURL == "" {
		return "", myerrors.NewAuthenticationError(fmt.Errorf("transition %s is privileged and cannot run through the unprivileged path", req.transition))
	}

	return g.trustedBaseURL, nil
}

func errorFromStatus(status int, respPayload []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	detail := errorDetail(respPayload)

	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return myerrors.NewInvalidInputError(fmt.Errorf("transaction-api rejected params: %s", detail))
	case http.StatusNotFound:
		return myerrors.NewNotFoundError(fmt.Errorf("listing no longer available: %s", detail))
	case http.StatusConflict:
		return myerrors.NewConflictError(fmt.Errorf("transition not legal from current state: %s", detail))
	case http.StatusUnauthorized, http.StatusForbidden:
		return myerrors.NewAuthenticationError(fmt.Errorf("transaction-api denied request: %s", detail))
	case http.StatusTooManyRequests:
		return myerrors.NewTooManyRequestsError(fmt.Errorf("transaction-api rate limited request: %s", detail))
	default:
		return myerrors.NewUnavailableError(fmt.Errorf("transaction-api returned status %d: %s", status, detail))
	}
}

type errorEnvelope struct {
	Errors []struct {
		Title string `json:"title"`
	} `json:"errors"`
}

func errorDetail(respPayload []byte) string {
	envelope := errorEnvelope{}
	err := json.Unmarshal(respPayload, &envelope)
	if err != nil || len(envelope.Errors) == 0 {
		return string(respPayload)
	}
	return envelope.Errors[0].Title
}
