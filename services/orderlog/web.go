package orderlog

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/marketcheckout/lib/mycontext"
	"github.com/MarcGrol/marketcheckout/lib/myhttp"
	"github.com/MarcGrol/marketcheckout/lib/mylog"
	"github.com/MarcGrol/marketcheckout/services/checkoutevents"
)

type webService struct {
	logger  mylog.Logger
	service *service
}

func NewWebService(service *service) *webService {
	return &webService{
		logger:  mylog.New("orderlogWebService"),
		service: service,
	}
}

func (ws *webService) RegisterEndpoints(c context.Context, router *mux.Router) {
	router.HandleFunc("/orderlog/event", ws.eventPage()).Methods("POST")
	router.HandleFunc("/orderlog", ws.listPage()).Methods("GET")
}

func (ws *webService) eventPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(ws.logger)

		err := checkoutevents.DispatchEvent(c, r.Body, ws.service)
		if err != nil {
			responseWriter.WriteError(c, w, 1, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{
			Message: "Successfully processed event",
		})
	}
}

func (ws *webService) listPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		responseWriter := myhttp.NewWriter(ws.logger)

		records, err := ws.service.listOrders(c)
		if err != nil {
			responseWriter.WriteError(c, w, 2, err)
			return
		}

		responseWriter.Write(c, w, http.StatusOK, records)
	}
}
