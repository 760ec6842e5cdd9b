// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/olegiv/oportal-go/internal/model"
)

// PaymentErrorMessage is shown when a payment call fails without a reason.
const PaymentErrorMessage = "Payment failed. Please try again."

// CreateOrder opens a coin-purchase order.
func (c *Conn) CreateOrder(ctx context.Context, req model.CreateOrderRequest) (*model.CreateOrderResponse, error) {
	var resp model.CreateOrderResponse
	if err := c.do(ctx, http.MethodPost, "/payments/create-order/", "payments/create-order", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Order == nil {
		return nil, unsuccessful("payments/create-order", resp.Error, resp.Message)
	}
	return &resp, nil
}

// VerifyPayment forwards the checkout widget callback for verification.
func (c *Conn) VerifyPayment(ctx context.Context, req model.VerifyPaymentRequest) (*model.VerifyPaymentResponse, error) {
	var resp model.VerifyPaymentResponse
	if err := c.do(ctx, http.MethodPost, "/payments/verify-payment/", "payments/verify-payment", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, unsuccessful("payments/verify-payment", resp.Error, resp.Message)
	}
	return &resp, nil
}

// Wallet fetches the user's coin wallet.
func (c *Conn) Wallet(ctx context.Context) (*model.Wallet, error) {
	var resp struct {
		Success bool          `json:"success"`
		Wallet  *model.Wallet `json:"wallet"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments/wallet/", "payments/wallet", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Wallet == nil {
		return &model.Wallet{TotalMoneySpent: "0.00"}, nil
	}
	return resp.Wallet, nil
}

// OrderStatus looks up an order by its portal order id.
func (c *Conn) OrderStatus(ctx context.Context, orderID string) (*model.OrderStatusResponse, error) {
	if orderID == "" {
		return nil, errors.New("order id is required")
	}
	var resp model.OrderStatusResponse
	path := "/payments/order-status/" + url.PathEscape(orderID) + "/"
	if err := c.do(ctx, http.MethodGet, path, "payments/order-status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// unsuccessful turns a 2xx body with success=false into an APIError.
func unsuccessful(endpoint, errMsg, msg string) error {
	text := errMsg
	if text == "" {
		text = msg
	}
	if text == "" {
		text = PaymentErrorMessage
	}
	return &APIError{StatusCode: http.StatusOK, Endpoint: endpoint, Message: text}
}
