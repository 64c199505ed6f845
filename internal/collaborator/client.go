package collaborator

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ClientConfig contains the connection settings of an upstream HTTP API
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
}

// errorBody is the error payload both upstream APIs return.
type errorBody struct {
	Error string `json:"error"`
}

func newRestyClient(cfg ClientConfig) *resty.Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && (r.StatusCode() >= http.StatusInternalServerError || r.StatusCode() == http.StatusTooManyRequests)
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return client
}
