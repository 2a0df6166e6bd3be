package myhttpclient

import "context"

type HTTPSender interface {
	Send(ctx context.Context, method string, url string, body []byte) (int, []byte, error)
}
