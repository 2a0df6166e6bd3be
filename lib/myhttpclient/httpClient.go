package myhttpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	timeout = 10 * time.Second
)

type sendResult struct {
	statusCode int
	payload    []byte
}

type jsonHTTPClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[sendResult]
}

// NewJSONHTTPClient returns a sender that talks JSON and stops hammering a
// remote that keeps failing.
func NewJSONHTTPClient(name string) HTTPSender {
	return &jsonHTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		breaker: gobreaker.NewCircuitBreaker[sendResult](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 5 &&
					float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
			},
		}),
	}
}

func (c *jsonHTTPClient) Send(ctx context.Context, method string, url string, body []byte) (int, []byte, error) {
	result, err := c.breaker.Execute(func() (sendResult, error) {
		return c.send(ctx, method, url, body)
	})
	if err != nil {
		return 0, []byte{}, err
	}

	return result.statusCode, result.payload, nil
}

func (c *jsonHTTPClient) send(ctx context.Context, method string, url string, body []byte) (sendResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return sendResult{}, fmt.Errorf("error creating http request for %s %s: %s", method, url, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return sendResult{}, fmt.Errorf("error sending %s %s: %s", method, url, err)
	}

	defer httpResp.Body.Close()

	respPayload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return sendResult{}, fmt.Errorf("error reading response %s %s: %s", method, url, err)
	}

	return sendResult{
		statusCode: httpResp.StatusCode,
		payload:    respPayload,
	}, nil
}
