package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/caarlos0/env/v10"
	"github.com/gorilla/mux"

	"github.com/MarcGrol/marketcheckout/lib/myhttpclient"
	"github.com/MarcGrol/marketcheckout/lib/mypublisher"
	"github.com/MarcGrol/marketcheckout/lib/mypubsub"
	"github.com/MarcGrol/marketcheckout/lib/myqueue"
	"github.com/MarcGrol/marketcheckout/lib/mystore"
	"github.com/MarcGrol/marketcheckout/lib/mytime"
	"github.com/MarcGrol/marketcheckout/services/cardpayment"
	"github.com/MarcGrol/marketcheckout/services/checkoutapi"
	"github.com/MarcGrol/marketcheckout/services/checkoutorchestrator"
	"github.com/MarcGrol/marketcheckout/services/orderlog"
	"github.com/MarcGrol/marketcheckout/services/routes"
	"github.com/MarcGrol/marketcheckout/services/sessionstore"
	"github.com/MarcGrol/marketcheckout/services/transactiongateway"
)

type config struct {
	Port                     string `env:"PORT" envDefault:"8080"`
	TransactionAPIURL        string `env:"TRANSACTION_API_URL,required"`
	TransactionAPITrustedURL string `env:"TRANSACTION_API_TRUSTED_URL"`
	StripeAPIKey             string `env:"STRIPE_API_KEY,required"`
}

func main() {
	c := context.Background()

	cfg := config{}
	err := env.Parse(&cfg)
	if err != nil {
		log.Fatalf("Error parsing config: %s", err)
	}

	router := mux.NewRouter()
	nower := mytime.RealNower{}

	pubsub, pubsubCleanup, err := mypubsub.New(c)
	if err != nil {
		log.Fatalf("Error creating pubsub: %s", err)
	}
	defer pubsubCleanup()

	queue, queueCleanup, err := myqueue.New(c)
	if err != nil {
		log.Fatalf("Error creating task queue: %s", err)
	}
	defer queueCleanup()

	publisher, publisherCleanup, err := mypublisher.New(c, pubsub, queue, nower)
	if err != nil {
		log.Fatalf("Error creating publisher: %s", err)
	}
	defer publisherCleanup()
	publisher.RegisterEndpoints(c, router)

	sessionStore, sessionStoreCleanup, err := mystore.New[checkoutapi.CheckoutContext](c)
	if err != nil {
		log.Fatalf("Error creating session store: %s", err)
	}
	defer sessionStoreCleanup()

	gateway := transactiongateway.New(cfg.TransactionAPIURL, cfg.TransactionAPITrustedURL,
		myhttpclient.NewJSONHTTPClient("transactiongateway"))

	checkoutService, err := checkoutorchestrator.New(c,
		sessionstore.New(sessionStore),
		gateway,
		cardpayment.NewAuthorizer(cfg.StripeAPIKey),
		publisher,
		routes.New(),
		nower)
	if err != nil {
		log.Fatalf("Error creating checkout service: %s", err)
	}
	checkoutorchestrator.NewWebService(checkoutService).RegisterEndpoints(c, router)

	orderStore, orderStoreCleanup, err := mystore.New[orderlog.OrderRecord](c)
	if err != nil {
		log.Fatalf("Error creating order store: %s", err)
	}
	defer orderStoreCleanup()

	orderlogService := orderlog.NewService(orderStore, pubsub, nower)
	err = orderlogService.Subscribe(c)
	if err != nil {
		log.Fatalf("Error subscribing to checkout events: %s", err)
	}
	orderlog.NewWebService(orderlogService).RegisterEndpoints(c, router)

	startWebServerBlocking(router, cfg.Port)
}

func startWebServerBlocking(router *mux.Router, port string) {
	log.Printf("Starting webserver on port %s (try http://localhost:%s)", port, port)
	err := http.ListenAndServe(fmt.Sprintf(":%s", port), router)
	if err != nil {
		log.Fatalf("Error starting webserver on port %s: %s", port, err)
	}
}
