package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-tierprice/internal/quote"
	"github.com/noah-isme/toko-tierprice/internal/resilience"
)

// maxResponseBytes bounds how much of a quote response is read.
const maxResponseBytes = 1 << 20

// ErrCancelled marks a request superseded by a newer one or by Close.
var ErrCancelled = errors.New("client: request cancelled")

// Transport fetches a quote for a product and quantity.
type Transport interface {
	Fetch(ctx context.Context, productID int64, qty int) (quote.Payload, error)
}

// TransportError is a recoverable failure talking to the quote endpoint:
// timeouts, network errors, non-2xx statuses and success:false bodies.
type TransportError struct {
	StatusCode int
	Message    string
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return "client: quote request timed out"
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("client: quote endpoint returned %d: %s", e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("client: quote endpoint returned %d", e.StatusCode)
	case e.Err != nil:
		return "client: " + e.Err.Error()
	default:
		return "client: " + e.Message
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPTransport posts the get_dynamic_price form to the ajax endpoint.
type HTTPTransport struct {
	URL   string
	Nonce string
	HTTP  resilience.HTTPClient
}

// NewHTTPTransport builds a transport that sends a single attempt per quote
// through a circuit breaker. Retries are left to the user's next keystroke.
func NewHTTPTransport(ajaxURL, nonce string, logger *zerolog.Logger) *HTTPTransport {
	return &HTTPTransport{
		URL:   ajaxURL,
		Nonce: nonce,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("quote-api"),
			MaxAttempts: 1,
			Target:      "quote-api",
			Logger:      logger,
		},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// Fetch implements Transport.
func (t *HTTPTransport) Fetch(ctx context.Context, productID int64, qty int) (quote.Payload, error) {
	form := url.Values{}
	form.Set("action", quote.ActionGetDynamicPrice)
	form.Set("product_id", strconv.FormatInt(productID, 10))
	form.Set("quantity", strconv.Itoa(qty))
	form.Set("nonce", t.Nonce)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return quote.Payload{}, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.HTTP.Do(ctx, req)
	if err != nil {
		return quote.Payload{}, classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return quote.Payload{}, classify(ctx, err)
	}
	var env envelope
	decodeErr := json.Unmarshal(body, &env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return quote.Payload{}, &TransportError{StatusCode: resp.StatusCode, Message: failureMessage(env.Data)}
	}
	if decodeErr != nil {
		return quote.Payload{}, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if !env.Success {
		return quote.Payload{}, &TransportError{StatusCode: resp.StatusCode, Message: failureMessage(env.Data)}
	}
	var payload quote.Payload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return quote.Payload{}, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode payload: %w", err)}
	}
	return payload, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	var statusErr *resilience.StatusError
	if errors.As(err, &statusErr) {
		return &TransportError{StatusCode: statusErr.StatusCode, Err: err}
	}
	return &TransportError{Timeout: errors.Is(err, context.DeadlineExceeded), Err: err}
}

func failureMessage(data json.RawMessage) string {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		return msg
	}
	return ""
}
