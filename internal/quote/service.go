package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-tierprice/internal/catalog"
	"github.com/noah-isme/toko-tierprice/internal/common"
	"github.com/noah-isme/toko-tierprice/internal/obs"
	"github.com/noah-isme/toko-tierprice/internal/pricing"
)

// Failure messages returned to the widget.
const (
	MsgSecurityCheckFailed = "Security check failed"
	MsgInvalidParameters   = "Invalid parameters"
	MsgProductNotFound     = "Product not found"
	MsgNoDynamicPricing    = "Product has no dynamic pricing"

	noDiscountReason = "No pricing rules matched or price not lower"
)

// Verifier checks the integrity token sent with a quote request.
type Verifier interface {
	Verify(token string) bool
	VerifyProduct(token string, productID int64) bool
}

// Cache is the server side quote store. *pricecache.Store satisfies it.
type Cache interface {
	Key(productID int64, qty int) string
	Get(ctx context.Context, productID int64, qty int) (pricing.Quote, bool, error)
	Put(ctx context.Context, productID int64, qty int, quote pricing.Quote, ttl time.Duration) error
}

// Request is a single quote lookup.
type Request struct {
	ProductID int64 `validate:"gt=0"`
	Quantity  int   `validate:"gt=0"`
	Token     string
}

// Debug is the diagnostic record attached to every successful response.
type Debug struct {
	ProductID        int64  `json:"product_id"`
	Quantity         int    `json:"quantity"`
	OriginalPrice    string `json:"original_price"`
	CalculatedPrice  string `json:"calculated_price"`
	CacheKey         string `json:"cache_key"`
	FromCache        bool   `json:"from_cache"`
	RulesEvaluated   int    `json:"rules_evaluated"`
	RulesSkipped     int    `json:"rules_skipped"`
	NoDiscountReason string `json:"no_discount_reason,omitempty"`
}

// Result is the outcome of Service.Quote.
type Result struct {
	Quote     pricing.Quote
	FromCache bool
	Debug     Debug
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Products     catalog.Products
	Cache        Cache
	Verifier     Verifier
	CacheTTL     time.Duration
	CacheEnabled bool
	Logger       zerolog.Logger
	Validator    *validator.Validate
}

// Service answers quote requests using the product store, the pricing engine
// and the quote cache.
type Service struct {
	products     catalog.Products
	cache        Cache
	verifier     Verifier
	ttl          time.Duration
	cacheEnabled bool
	logger       zerolog.Logger
	validate     *validator.Validate
	now          func() time.Time
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Products == nil {
		return nil, errors.New("quote: products store is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("quote: token verifier is required")
	}
	v := cfg.Validator
	if v == nil {
		v = validator.New()
	}
	return &Service{
		products:     cfg.Products,
		cache:        cfg.Cache,
		verifier:     cfg.Verifier,
		ttl:          cfg.CacheTTL,
		cacheEnabled: cfg.CacheEnabled && cfg.Cache != nil && cfg.CacheTTL > 0,
		logger:       cfg.Logger.With().Str("component", "quote").Logger(),
		validate:     v,
		now:          time.Now,
	}, nil
}

// Quote validates req and returns the priced result, served from cache when possible.
func (s *Service) Quote(ctx context.Context, req Request) (res Result, err error) {
	start := s.now()
	ctx, span := otel.Tracer("tierprice/quote").Start(ctx, "quote.Service.Quote")
	span.SetAttributes(
		attribute.Int64("pricing.product_id", req.ProductID),
		attribute.Int("pricing.quantity", req.Quantity),
	)
	defer func() {
		span.SetAttributes(attribute.Bool("pricing.from_cache", res.FromCache))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		obs.ObserveQuote(resultLabel(res, err), obs.DurationMillis(s.now().Sub(start)))
	}()

	if !s.verifier.Verify(req.Token) {
		return Result{}, common.AuthError(MsgSecurityCheckFailed)
	}
	if err := s.validate.Struct(req); err != nil {
		return Result{}, &common.AppError{
			Code:       common.CodeValidation,
			Message:    MsgInvalidParameters,
			HTTPStatus: http.StatusBadRequest,
			Err:        err,
		}
	}
	// a nonce only unlocks quotes for the product page it was rendered on
	if !s.verifier.VerifyProduct(req.Token, req.ProductID) {
		return Result{}, common.AuthError(MsgSecurityCheckFailed)
	}

	key := ""
	if s.cache != nil {
		key = s.cache.Key(req.ProductID, req.Quantity)
	}

	if s.cacheEnabled {
		cached, ok, cacheErr := s.cache.Get(ctx, req.ProductID, req.Quantity)
		switch {
		case cacheErr != nil:
			obs.ObserveCacheEvent(obs.CacheEventError)
			s.logger.Warn().Err(cacheErr).Str("cache_key", key).Msg("quote cache read failed")
		case ok:
			obs.ObserveCacheEvent(obs.CacheEventHit)
			res = Result{Quote: cached, FromCache: true, Debug: debugFor(cached, key, true, 0, 0)}
			s.logDebug(res)
			return res, nil
		default:
			obs.ObserveCacheEvent(obs.CacheEventMiss)
		}
	}

	base, err := s.products.BasePrice(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return Result{}, common.NotFoundError(MsgProductNotFound, err)
		}
		return Result{}, fmt.Errorf("quote: base price: %w", err)
	}

	groups, err := s.products.RuleGroups(ctx, req.ProductID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("product_id", req.ProductID).Msg("load pricing rules failed, quoting without discount")
		groups = nil
	}
	rules, skipped := pricing.Flatten(groups)
	for _, skipErr := range skipped {
		s.logger.Debug().Err(skipErr).Int64("product_id", req.ProductID).Msg("pricing rule skipped")
	}

	q := pricing.NewQuote(req.ProductID, req.Quantity, base, rules)

	if s.cacheEnabled {
		if err := s.cache.Put(ctx, req.ProductID, req.Quantity, q, s.ttl); err != nil {
			obs.ObserveCacheEvent(obs.CacheEventError)
			s.logger.Warn().Err(err).Str("cache_key", key).Msg("quote cache write failed")
		} else {
			obs.ObserveCacheEvent(obs.CacheEventWrite)
		}
	}

	res = Result{Quote: q, Debug: debugFor(q, key, false, len(rules), len(skipped))}
	s.logDebug(res)
	return res, nil
}

func (s *Service) logDebug(res Result) {
	evt := s.logger.Debug().
		Int64("product_id", res.Debug.ProductID).
		Int("quantity", res.Debug.Quantity).
		Str("original_price", res.Debug.OriginalPrice).
		Str("calculated_price", res.Debug.CalculatedPrice).
		Str("cache_key", res.Debug.CacheKey).
		Bool("from_cache", res.FromCache).
		Int("rules_evaluated", res.Debug.RulesEvaluated)
	if res.Debug.NoDiscountReason != "" {
		evt = evt.Str("no_discount_reason", res.Debug.NoDiscountReason)
	}
	evt.Msg("quote")
}

func debugFor(q pricing.Quote, key string, fromCache bool, evaluated, skipped int) Debug {
	d := Debug{
		ProductID:       q.ProductID,
		Quantity:        q.Quantity,
		OriginalPrice:   q.BasePrice.String(),
		CalculatedPrice: q.DiscountedPrice.String(),
		CacheKey:        key,
		FromCache:       fromCache,
		RulesEvaluated:  evaluated,
		RulesSkipped:    skipped,
	}
	if !q.HasDiscount {
		d.NoDiscountReason = noDiscountReason
	}
	return d
}

func resultLabel(res Result, err error) string {
	if err == nil {
		if res.FromCache {
			return obs.QuoteResultCacheHit
		}
		return obs.QuoteResultComputed
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case common.CodeValidation:
			return obs.QuoteResultInvalid
		case common.CodeForbidden:
			return obs.QuoteResultForbidden
		case common.CodeNotFound:
			return obs.QuoteResultNotFound
		}
	}
	return obs.QuoteResultError
}
