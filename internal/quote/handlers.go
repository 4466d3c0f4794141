package quote

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-tierprice/internal/catalog"
	"github.com/noah-isme/toko-tierprice/internal/common"
	"github.com/noah-isme/toko-tierprice/internal/config"
	"github.com/noah-isme/toko-tierprice/internal/events"
)

// ActionGetDynamicPrice is the form action accepted by the ajax endpoints.
const ActionGetDynamicPrice = "get_dynamic_price"

// Issuer mints integrity tokens for the widget bootstrap.
type Issuer interface {
	Issue(productID int64) (string, error)
}

// Emitter publishes product change events.
type Emitter interface {
	Emit(ctx context.Context, topic string, productID int64) (events.ProductChanged, error)
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service    *Service
	Products   catalog.Products
	Formatter  MoneyFormatter
	Issuer     Issuer
	Bus        Emitter
	Client     config.ClientDefaults
	AjaxURL    string
	AdminToken string
	Logger     zerolog.Logger
}

// Handler exposes the quote endpoints.
type Handler struct {
	service    *Service
	products   catalog.Products
	formatter  MoneyFormatter
	issuer     Issuer
	bus        Emitter
	client     config.ClientDefaults
	ajaxURL    string
	adminToken string
	logger     zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		service:    cfg.Service,
		products:   cfg.Products,
		formatter:  cfg.Formatter,
		issuer:     cfg.Issuer,
		bus:        cfg.Bus,
		client:     cfg.Client,
		ajaxURL:    cfg.AjaxURL,
		adminToken: cfg.AdminToken,
		logger:     cfg.Logger.With().Str("component", "quote_handler").Logger(),
	}
}

// Ajax handles the form encoded get_dynamic_price action.
func (h *Handler) Ajax(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		common.Failure(w, common.ValidationError(MsgInvalidParameters))
		return
	}
	if action := strings.TrimSpace(r.PostFormValue("action")); action != "" && action != ActionGetDynamicPrice {
		common.Failure(w, common.ValidationError("Unknown action"))
		return
	}
	h.respond(w, r, Request{
		ProductID: common.ParseID(r.PostFormValue("product_id")),
		Quantity:  common.AtoiDefault(r.PostFormValue("quantity"), 0),
		Token:     r.PostFormValue("nonce"),
	})
}

type quoteBody struct {
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	Token     string `json:"token"`
}

// Quote handles POST /api/v1/pricing/quote with a JSON body.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var body quoteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.Failure(w, common.ValidationError(MsgInvalidParameters))
		return
	}
	h.respond(w, r, Request(body))
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, req Request) {
	if h.service == nil {
		common.Failure(w, errors.New("quote service not configured"))
		return
	}
	res, err := h.service.Quote(r.Context(), req)
	if err != nil {
		h.writeError(w, err, req)
		return
	}
	common.Success(w, BuildPayload(res, h.formatter))
}

// WidgetConfig is returned by the bootstrap endpoint.
type WidgetConfig struct {
	ProductID int64  `json:"product_id"`
	Nonce     string `json:"nonce"`
	AjaxURL   string `json:"ajax_url,omitempty"`
	config.ClientDefaults
}

// Widget handles GET /api/v1/pricing/widget/{productId}.
func (h *Handler) Widget(w http.ResponseWriter, r *http.Request) {
	productID := common.ParseID(chi.URLParam(r, "productId"))
	if productID == 0 {
		common.Failure(w, common.ValidationError(MsgInvalidParameters))
		return
	}
	if h.products == nil || h.issuer == nil {
		common.Failure(w, errors.New("widget bootstrap not configured"))
		return
	}
	ok, err := h.products.HasRules(r.Context(), productID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			common.Failure(w, common.NotFoundError(MsgProductNotFound, err))
			return
		}
		h.writeError(w, err, Request{ProductID: productID})
		return
	}
	if !ok {
		common.Failure(w, common.NotFoundError(MsgNoDynamicPricing, nil))
		return
	}
	nonce, err := h.issuer.Issue(productID)
	if err != nil {
		h.writeError(w, err, Request{ProductID: productID})
		return
	}
	common.Success(w, WidgetConfig{
		ProductID:      productID,
		Nonce:          nonce,
		AjaxURL:        h.ajaxURL,
		ClientDefaults: h.client,
	})
}

// ProductChanged handles POST /api/v1/admin/products/{id}/changed?source=updated|saved.
func (h *Handler) ProductChanged(w http.ResponseWriter, r *http.Request) {
	if !h.authorisedAdmin(r) {
		common.Failure(w, common.AuthError(MsgSecurityCheckFailed))
		return
	}
	productID := common.ParseID(chi.URLParam(r, "id"))
	if productID == 0 {
		common.Failure(w, common.ValidationError(MsgInvalidParameters))
		return
	}
	source := strings.TrimSpace(r.URL.Query().Get("source"))
	if source == "" {
		source = "updated"
	}
	topic, ok := events.TopicForSource(source)
	if !ok {
		common.Failure(w, common.ValidationError("Unknown source"))
		return
	}
	if h.bus == nil {
		common.Failure(w, errors.New("event bus not configured"))
		return
	}
	ev, err := h.bus.Emit(r.Context(), topic, productID)
	if err != nil {
		// subscribers that succeeded already ran; report the partial failure
		h.logger.Error().Err(err).Int64("product_id", productID).Str("topic", topic).Msg("product change dispatch failed")
		common.Failure(w, err)
		return
	}
	common.Success(w, ev)
}

func (h *Handler) authorisedAdmin(r *http.Request) bool {
	if h.adminToken == "" {
		return false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(h.adminToken)) == 1
}

func (h *Handler) writeError(w http.ResponseWriter, err error, req Request) {
	appErr := common.AsAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Int64("product_id", req.ProductID).Int("quantity", req.Quantity).Msg("quote request failed")
	}
	common.Failure(w, appErr)
}
