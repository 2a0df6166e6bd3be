package checkoutorchestrator

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/marketcheckout/lib/mycontext"
	"github.com/MarcGrol/marketcheckout/lib/myerrors"
	"github.com/MarcGrol/marketcheckout/lib/myhttp"
	"github.com/MarcGrol/marketcheckout/lib/mylog"
	"github.com/MarcGrol/marketcheckout/services/checkoutapi"
	"github.com/MarcGrol/marketcheckout/services/pricebreakdown"
)

type webService struct {
	logger  mylog.Logger
	service Service
}

func NewWebService(service Service) *webService {
	return &webService{
		logger:  mylog.New("checkoutWebService"),
		service: service,
	}
}

func (ws *webService) RegisterEndpoints(c context.Context, router *mux.Router) {
	router.HandleFunc("/checkout/{listingUID}", ws.startPage()).Methods("POST")
	router.HandleFunc("/checkout/{listingUID}", ws.resumePage()).Methods("GET")
	router.HandleFunc("/checkout/{listingUID}", ws.abandonPage()).Methods("DELETE")
	router.HandleFunc("/checkout/{listingUID}/method", ws.selectMethodPage()).Methods("PUT")
	router.HandleFunc("/checkout/{listingUID}/preview", ws.previewPage()).Methods("POST")
	router.HandleFunc("/checkout/{listingUID}/submit/card", ws.submitCardPage()).Methods("POST")
	router.HandleFunc("/checkout/{listingUID}/submit/cash", ws.submitCashPage()).Methods("POST")
}

// checkoutResponse is what every checkout endpoint returns: the attempt's
// state plus what to render or navigate to next.
type checkoutResponse struct {
	State          string
	ListingUID     string
	PaymentMethod  string
	TransactionUID string
	NextPath       string                    `json:",omitempty"`
	Breakdown      *pricebreakdown.Breakdown `json:",omitempty"`
}

func responseFromResult(result Result) checkoutResponse {
	resp := checkoutResponse{
		State:          string(result.State),
		ListingUID:     result.Context.Listing.UID,
		PaymentMethod:  string(result.Context.Order.PaymentMethod),
		TransactionUID: result.TransactionUID,
		NextPath:       result.NextPath,
		Breakdown:      result.Breakdown,
	}
	if resp.TransactionUID == "" && result.Context.HasCommittedTransaction() {
		resp.TransactionUID = result.Context.Transaction.UID
	}
	return resp
}

func (ws *webService) startPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(ws.logger)

		listing := checkoutapi.ListingRef{}
		err := json.NewDecoder(r.Body).Decode(&listing)
		if err != nil {
			responseWriter.WriteError(c, w, 1, myerrors.NewInvalidInputErrorf("error parsing listing: %s", err))
			return
		}
		listing.UID = mux.Vars(r)["listingUID"]

		result, err := ws.service.Start(c, listing)
		if err != nil {
			responseWriter.WriteError(c, w, 2, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, responseFromResult(result))
	}
}

func (ws *webService) resumePage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(ws.logger)

		result, err := ws.service.Resume(c, mux.Vars(r)["listingUID"])
		if err != nil {
			responseWriter.WriteError(c, w, 3, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, responseFromResult(result))
	}
}

func (ws *webService) abandonPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(ws.logger)

		err := ws.service.Abandon(c, mux.Vars(r)["listingUID"])
		if err != nil {
			responseWriter.WriteError(c, w, 4, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{
			Message: "Checkout abandoned",
		})
	}
}

func (ws *webService) selectMethodPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(ws.logger)

		err := r.ParseForm()
		if err != nil {
			responseWriter.WriteError(c, w, 5, myerrors.NewInvalidInputError(err))
			return
		}

		method := checkoutapi.PaymentMethod(r.Form.Get("paymentMethod"))
		result, err := ws.service.SelectPaymentMethod(c, mux.Vars(r)["listingUID"], method)
		if err != nil {
			responseWriter.WriteError(c, w, 6, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, responseFromResult(result))
	}
}

func (ws *webService) previewPage() http.HandlerFunc {
	return ws.formPage(7, ws.service.Preview)
}

func (ws *webService) submitCardPage() http.HandlerFunc {
	return ws.formPage(8, ws.service.SubmitCard)
}

func (ws *webService) submitCashPage() http.HandlerFunc {
	return ws.formPage(9, ws.service.SubmitCash)
}

func (ws *webService) formPage(errorCode int, operation func(c context.Context, listingUID string, form checkoutapi.OrderForm) (Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(ws.logger)

		form, err := checkoutapi.NewOrderFormFromRequest(r)
		if err != nil {
			responseWriter.WriteError(c, w, errorCode, err)
			return
		}

		result, err := operation(c, mux.Vars(r)["listingUID"], form)
		if err != nil {
			responseWriter.WriteError(c, w, errorCode, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, responseFromResult(result))
	}
}
