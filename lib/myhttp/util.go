package myhttp

import (
	"fmt"
	"net/http"
	"os"
)

func HostnameWithScheme(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}

	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

// GuessHostnameWithScheme is for contexts without an incoming request, such
// as registering push subscriptions at startup.
func GuessHostnameWithScheme() string {
	baseURL := os.Getenv("PUBLIC_BASE_URL")
	if baseURL != "" {
		return baseURL
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return fmt.Sprintf("http://localhost:%s", port)
}
