package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-tierprice/internal/client"
	"github.com/noah-isme/toko-tierprice/internal/obs"
	"github.com/noah-isme/toko-tierprice/internal/quote"
	"github.com/noah-isme/toko-tierprice/internal/resilience"
)

func main() {
	var (
		apiBase   = flag.String("api", "http://localhost:8080", "base URL of the pricing api")
		productID = flag.Int64("product", 12, "product to watch")
		logLevel  = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger := obs.NewLogger("console", *logLevel).With().Str("component", "quotewatch").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	widget, err := fetchWidget(ctx, *apiBase, *productID)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Int64("product_id", *productID).Msg("load widget bootstrap")
	}

	transports := &productTransports{
		api:    strings.TrimRight(*apiBase, "/"),
		logger: logger,
		byID:   map[int64]*client.HTTPTransport{},
	}
	transports.add(widget)

	coord := client.NewCoordinator(
		client.ConfigFromDefaults(*productID, widget.ClientDefaults),
		transports,
		client.WithLogger(logger),
		client.WithSubscriber(func(o client.Outcome) { printOutcome(os.Stdout, o) }),
	)
	defer coord.Close()

	fmt.Println("commands: <qty> | + | - | p <product> | stats | clear | q")
	qty := 1
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "q", "quit", "exit":
			return
		case "+":
			qty++
			coord.RequestQuoteQuick(qty)
		case "-":
			if qty > 1 {
				qty--
			}
			coord.RequestQuoteQuick(qty)
		case "p":
			if len(fields) < 2 {
				fmt.Println("usage: p <product>")
				continue
			}
			id, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil || id <= 0 {
				fmt.Println("invalid product id")
				continue
			}
			coord.ChangeProduct(id)
		case "stats":
			s := coord.CacheStats()
			fmt.Printf("cache: total=%d active=%d expired=%d ttl=%s\n", s.Total, s.Active, s.Expired, s.TTL)
		case "clear":
			coord.ClearCache()
			fmt.Println("cache cleared")
		default:
			n, err := strconv.Atoi(fields[0])
			if err != nil || n < 1 {
				fmt.Println("unknown command")
				continue
			}
			qty = n
			coord.RequestQuote(qty)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error().Err(err).Msg("read stdin")
	}
}

// productTransports keeps one nonce-bound transport per product, fetching the
// widget bootstrap the first time a product is quoted.
type productTransports struct {
	api    string
	logger zerolog.Logger

	mu   sync.Mutex
	byID map[int64]*client.HTTPTransport
}

func (p *productTransports) add(w quote.WidgetConfig) *client.HTTPTransport {
	ajaxURL := w.AjaxURL
	if !strings.HasPrefix(ajaxURL, "http://") && !strings.HasPrefix(ajaxURL, "https://") {
		ajaxURL = p.api + "/" + strings.TrimLeft(ajaxURL, "/")
	}
	t := client.NewHTTPTransport(ajaxURL, w.Nonce, &p.logger)
	p.mu.Lock()
	p.byID[w.ProductID] = t
	p.mu.Unlock()
	return t
}

func (p *productTransports) Fetch(ctx context.Context, productID int64, qty int) (quote.Payload, error) {
	p.mu.Lock()
	t, ok := p.byID[productID]
	p.mu.Unlock()
	if !ok {
		w, err := fetchWidget(ctx, p.api, productID)
		if err != nil {
			return quote.Payload{}, err
		}
		t = p.add(w)
	}
	return t.Fetch(ctx, productID, qty)
}

func fetchWidget(ctx context.Context, apiBase string, productID int64) (quote.WidgetConfig, error) {
	endpoint := fmt.Sprintf("%s/api/v1/pricing/widget/%d", strings.TrimRight(apiBase, "/"), productID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return quote.WidgetConfig{}, err
	}
	req.Header.Set("Accept", "application/json")

	httpClient := resilience.HTTPClient{
		Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		MaxAttempts: 3,
		Target:      "widget-bootstrap",
	}
	resp, err := httpClient.Do(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return quote.WidgetConfig{}, fmt.Errorf("%w: %v", client.ErrCancelled, err)
		}
		return quote.WidgetConfig{}, &client.TransportError{Err: err}
	}
	defer resp.Body.Close()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return quote.WidgetConfig{}, &client.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode bootstrap: %w", err)}
	}
	if !env.Success {
		var msg string
		_ = json.Unmarshal(env.Data, &msg)
		return quote.WidgetConfig{}, &client.TransportError{StatusCode: resp.StatusCode, Message: msg}
	}
	var widget quote.WidgetConfig
	if err := json.Unmarshal(env.Data, &widget); err != nil {
		return quote.WidgetConfig{}, &client.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode bootstrap: %w", err)}
	}
	if widget.ProductID == 0 {
		widget.ProductID = productID
	}
	return widget, nil
}

func printOutcome(w io.Writer, o client.Outcome) {
	switch o.Kind {
	case client.OutcomeError:
		fmt.Fprintf(w, "product %d x%d: error: %v\n", o.ProductID, o.Quantity, o.Err)
	case client.OutcomeNoDiscount:
		fmt.Fprintf(w, "product %d x%d: no discount\n", o.ProductID, o.Quantity)
	case client.OutcomeDiscount:
		p := o.Payload
		source := "api"
		if o.FromCache {
			source = "cache"
		}
		fmt.Fprintf(w, "product %d x%d [%s]: %s -> %s each, total %s (save %s, %d%%)\n",
			o.ProductID, o.Quantity, source, p.OriginalPrice, p.DiscountedPrice, p.TotalDiscounted, p.TotalSavings, p.SavingsPercentage)
		view := client.Progress(p)
		switch {
		case view.MaximumReached:
			fmt.Fprintln(w, "  maximum discount reached")
		case view.Visible && view.Next != nil:
			fmt.Fprintf(w, "  add %d more for %d%% off (%d%% of the way)\n", view.Remaining, view.Next.Discount, view.Percent)
		}
	}
}
