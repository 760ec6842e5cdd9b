// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/olegiv/oportal-go/internal/backend"
	"github.com/olegiv/oportal-go/internal/metrics"
	"github.com/olegiv/oportal-go/internal/middleware"
	"github.com/olegiv/oportal-go/internal/model"
	"github.com/olegiv/oportal-go/internal/policy"
	pagerender "github.com/olegiv/oportal-go/internal/render"
	"github.com/olegiv/oportal-go/internal/service"
	"github.com/olegiv/oportal-go/internal/session"
)

// Payment stages recorded in metrics.
const (
	stageCreate = "create"
	stageVerify = "verify"
	stageStatus = "status"
)

// PaymentsConfig holds the purchase limits and checkout script.
type PaymentsConfig struct {
	MinAmount         int
	MaxAmount         int
	CheckoutScriptURL string
}

// PaymentsHandler serves the coin purchase flow. The browser talks to the
// checkout widget directly; order creation and verification go through
// here so the backend cookies never leave the server.
type PaymentsHandler struct {
	renderer     *pagerender.Renderer
	manager      *session.Manager
	eventService *service.EventService
	validate     *validator.Validate
	cfg          PaymentsConfig
}

// NewPaymentsHandler creates a new PaymentsHandler. es may be nil.
func NewPaymentsHandler(renderer *pagerender.Renderer, m *session.Manager, es *service.EventService, cfg PaymentsConfig) *PaymentsHandler {
	return &PaymentsHandler{
		renderer:     renderer,
		manager:      m,
		eventService: es,
		validate:     newValidator(),
		cfg:          cfg,
	}
}

// PaymentsPageData holds data for the payments template.
type PaymentsPageData struct {
	Wallet            *model.Wallet
	MinAmount         int
	MaxAmount         int
	DefaultAmount     int
	CheckoutScriptURL string
	FeatureCode       string
	ProductName       string
}

// PaymentSuccessData holds data for the success template.
type PaymentSuccessData struct {
	Order  *model.PaymentOrder
	Wallet *model.Wallet
}

// CheckoutPrefill is passed to the checkout widget.
type CheckoutPrefill struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CheckoutResponse is returned by CreateOrder. It carries everything the
// checkout widget needs to open.
type CheckoutResponse struct {
	Success      bool                `json:"success"`
	Order        *model.PaymentOrder `json:"order"`
	KeyID        string              `json:"key_id"`
	AmountPaise  int64               `json:"amount_paise"`
	Currency     string              `json:"currency"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Prefill      CheckoutPrefill     `json:"prefill"`
	Notes        map[string]string   `json:"notes"`
	ExchangeRate string              `json:"exchange_rate,omitempty"`
}

// VerifyResponse is returned by Verify.
type VerifyResponse struct {
	Success       bool                `json:"success"`
	Message       string              `json:"message"`
	Order         *model.PaymentOrder `json:"order,omitempty"`
	WalletBalance int64               `json:"wallet_balance"`
	RedirectURL   string              `json:"redirect_url"`
}

// Page handles GET /payments.
func (h *PaymentsHandler) Page(w http.ResponseWriter, r *http.Request) {
	handle := middleware.GetHandle(r)

	data := PaymentsPageData{
		MinAmount:         h.cfg.MinAmount,
		MaxAmount:         h.cfg.MaxAmount,
		DefaultAmount:     max(100, h.cfg.MinAmount),
		CheckoutScriptURL: h.cfg.CheckoutScriptURL,
	}
	if data.DefaultAmount > h.cfg.MaxAmount {
		data.DefaultAmount = h.cfg.MaxAmount
	}

	if code := r.URL.Query().Get("feature"); code != "" {
		data.FeatureCode = code
		data.ProductName = strings.TrimSpace(r.URL.Query().Get("product"))
		if data.ProductName == "" {
			data.ProductName = policy.FeatureDisplayName(code)
		}
	}

	if wallet, err := handle.Conn.Wallet(r.Context()); err != nil {
		slog.Debug("wallet unavailable", "error", err)
	} else {
		data.Wallet = wallet
	}

	h.renderer.Page(w, r, "pages/payments", pagerender.TemplateData{
		Title: "Buy coins",
		Data:  data,
	})
}

// CreateOrder handles POST /payments/orders.
func (h *PaymentsHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req model.CreateOrderRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSONFieldErrors(w, r, "Invalid order", fieldErrors(err))
		return
	}
	if msg := h.checkAmount(req.Amount); msg != "" {
		writeJSONError(w, r, http.StatusUnprocessableEntity, msg)
		return
	}

	handle := middleware.GetHandle(r)
	user := handle.Store.User()

	resp, err := handle.Conn.CreateOrder(r.Context(), req)
	metrics.PaymentOrders.WithLabelValues(stageCreate, metrics.Result(err)).Inc()
	if err != nil {
		h.logPayment(r, model.EventLevelWarning, "Order creation failed", user, map[string]any{
			"amount": req.Amount,
			"reason": backend.Message(err, backend.PaymentErrorMessage),
		})
		writeJSONError(w, r, paymentErrorStatus(err), backend.Message(err, backend.PaymentErrorMessage))
		return
	}

	order := resp.Order
	h.manager.RememberOrder(r.Context(), order.OrderID)
	if order.RazorpayOrderID != "" {
		h.manager.RememberOrder(r.Context(), order.RazorpayOrderID)
	}
	h.logPayment(r, model.EventLevelInfo, "Order created", user, map[string]any{
		"order_id": order.OrderID,
		"amount":   order.Amount,
	})

	currency := order.Currency
	if currency == "" {
		currency = "INR"
	}
	writeJSON(w, r, http.StatusOK, CheckoutResponse{
		Success:      true,
		Order:        order,
		KeyID:        resp.RazorpayKeyID,
		AmountPaise:  toPaise(order.Amount),
		Currency:     currency,
		Name:         "Coin Purchase",
		Description:  fmt.Sprintf("Purchase %d coins", order.CoinsToCredit),
		Prefill:      CheckoutPrefill{Name: user.FullName(), Email: user.Email},
		Notes:        map[string]string{"order_id": order.OrderID},
		ExchangeRate: resp.ExchangeRate,
	})
}

// checkAmount returns a user-facing message when amount is out of bounds.
func (h *PaymentsHandler) checkAmount(amount float64) string {
	if amount < float64(h.cfg.MinAmount) {
		return "Minimum amount is " + pagerender.FormatAmount(float64(h.cfg.MinAmount))
	}
	if amount > float64(h.cfg.MaxAmount) {
		return "Maximum amount is " + pagerender.FormatAmount(float64(h.cfg.MaxAmount))
	}
	return ""
}

// Verify handles POST /payments/verify. Only callbacks for orders created
// by this session are forwarded.
func (h *PaymentsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyPaymentRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSONFieldErrors(w, r, "Invalid payment confirmation", fieldErrors(err))
		return
	}

	handle := middleware.GetHandle(r)
	user := handle.Store.User()

	if !h.manager.OwnsOrder(r.Context(), req.RazorpayOrderID) {
		h.logPayment(r, model.EventLevelWarning, "Verification for unknown order", user, map[string]any{
			"razorpay_order_id": req.RazorpayOrderID,
		})
		writeJSONError(w, r, http.StatusForbidden, "Unknown order.")
		return
	}

	resp, err := handle.Conn.VerifyPayment(r.Context(), req)
	metrics.PaymentOrders.WithLabelValues(stageVerify, metrics.Result(err)).Inc()
	if err != nil {
		h.logPayment(r, model.EventLevelWarning, "Payment verification failed", user, map[string]any{
			"razorpay_order_id": req.RazorpayOrderID,
			"reason":            backend.Message(err, backend.PaymentErrorMessage),
		})
		writeJSONError(w, r, paymentErrorStatus(err), backend.Message(err, backend.PaymentErrorMessage))
		return
	}

	if err := handle.Store.Reload(r.Context()); err != nil {
		slog.Warn("profile reload after payment failed", "error", err)
	}

	out := VerifyResponse{
		Success:       true,
		Message:       resp.Message,
		Order:         resp.Order,
		WalletBalance: resp.WalletBalance,
		RedirectURL:   RoutePaymentsSuccess,
	}
	meta := map[string]any{"razorpay_order_id": req.RazorpayOrderID, "wallet_balance": resp.WalletBalance}
	if resp.Order != nil {
		out.RedirectURL = RoutePaymentsSuccess + "?order=" + url.QueryEscape(resp.Order.OrderID)
		meta["order_id"] = resp.Order.OrderID
		meta["coins"] = resp.Order.CoinsToCredit
		if out.Message == "" {
			out.Message = fmt.Sprintf("Payment successful! %d coins added to your wallet.", resp.Order.CoinsToCredit)
		}
	}
	if out.Message == "" {
		out.Message = "Payment successful!"
	}
	h.logPayment(r, model.EventLevelInfo, "Payment verified", user, meta)

	writeJSON(w, r, http.StatusOK, out)
}

// Success handles GET /payments/success.
func (h *PaymentsHandler) Success(w http.ResponseWriter, r *http.Request) {
	handle := middleware.GetHandle(r)
	var data PaymentSuccessData

	if id := r.URL.Query().Get("order"); id != "" && h.manager.OwnsOrder(r.Context(), id) {
		if resp, err := handle.Conn.OrderStatus(r.Context(), id); err != nil {
			slog.Debug("order status unavailable", "order_id", id, "error", err)
		} else {
			data.Order = resp.Order
		}
	}
	if wallet, err := handle.Conn.Wallet(r.Context()); err == nil {
		data.Wallet = wallet
	}

	h.renderer.Page(w, r, "pages/payment_success", pagerender.TemplateData{
		Title: "Payment complete",
		Data:  data,
	})
}

// OrderStatus handles GET /payments/orders/{orderID}.
func (h *PaymentsHandler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orderID")
	if !h.manager.OwnsOrder(r.Context(), id) {
		writeJSONError(w, r, http.StatusNotFound, "Order not found.")
		return
	}

	resp, err := middleware.GetHandle(r).Conn.OrderStatus(r.Context(), id)
	metrics.PaymentOrders.WithLabelValues(stageStatus, metrics.Result(err)).Inc()
	if err != nil {
		writeJSONError(w, r, paymentErrorStatus(err), backend.Message(err, "Could not load the order. Please try again."))
		return
	}
	resp.Success = true
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *PaymentsHandler) logPayment(r *http.Request, level, message string, user *model.User, metadata map[string]any) {
	if h.eventService == nil {
		return
	}
	if err := h.eventService.LogPaymentEvent(r, level, message, user, metadata); err != nil {
		slog.Error("failed to record payment event", "error", err)
	}
}

// paymentErrorStatus maps a backend failure onto the portal's response
// status: client errors pass through, the rest become 502.
func paymentErrorStatus(err error) int {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		switch {
		case errors.Is(err, backend.ErrUnauthorized):
			return http.StatusUnauthorized
		case apiErr.StatusCode == http.StatusNotFound:
			return http.StatusNotFound
		case apiErr.StatusCode < http.StatusInternalServerError:
			return http.StatusBadRequest
		}
	}
	return http.StatusBadGateway
}

// toPaise converts a decimal rupee string to paise.
func toPaise(amount string) int64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(amount), 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}
