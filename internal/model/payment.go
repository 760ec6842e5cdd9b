// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "time"

// Order statuses reported by the payments API.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusFailed    = "FAILED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusRefunded  = "REFUNDED"
)

// Payment methods accepted by create-order.
const (
	PaymentMethodCheckout = "CHECKOUT"
	PaymentMethodQRCode   = "QR_CODE"
	PaymentMethodUPI      = "UPI"
)

// Wallet is the user's coin account.
type Wallet struct {
	CoinBalance      int64     `json:"coin_balance"`
	TotalCoinsEarned int64     `json:"total_coins_earned"`
	TotalCoinsSpent  int64     `json:"total_coins_spent"`
	TotalMoneySpent  string    `json:"total_money_spent"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PaymentOrder is a coin-purchase order created on the payments API.
type PaymentOrder struct {
	OrderID         string     `json:"order_id"`
	RazorpayOrderID string     `json:"razorpay_order_id"`
	Amount          string     `json:"amount"`
	CoinsToCredit   int64      `json:"coins_to_credit"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	PaymentMethod   string     `json:"payment_method,omitempty"`
	QRCodeID        string     `json:"razorpay_qr_code_id,omitempty"`
	QRCodeImageURL  string     `json:"qr_code_image_url,omitempty"`
	QRCodeStatus    string     `json:"qr_code_status,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// CreateOrderRequest asks the payments API for a new order worth Amount rupees.
type CreateOrderRequest struct {
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	PaymentMethod string  `json:"payment_method,omitempty" validate:"omitempty,oneof=CHECKOUT QR_CODE UPI"`
}

// CreateOrderResponse carries the order plus the public checkout key.
type CreateOrderResponse struct {
	Success       bool          `json:"success"`
	Message       string        `json:"message,omitempty"`
	Error         string        `json:"error,omitempty"`
	Order         *PaymentOrder `json:"order,omitempty"`
	RazorpayKeyID string        `json:"razorpay_key_id,omitempty"`
	ExchangeRate  string        `json:"exchange_rate,omitempty"`
}

// VerifyPaymentRequest forwards the checkout widget's completion callback.
type VerifyPaymentRequest struct {
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
}

// VerifyPaymentResponse reports the verified order and the new balance.
type VerifyPaymentResponse struct {
	Success       bool          `json:"success"`
	Message       string        `json:"message,omitempty"`
	Error         string        `json:"error,omitempty"`
	Order         *PaymentOrder `json:"order,omitempty"`
	WalletBalance int64         `json:"wallet_balance"`
}

// OrderStatusResponse is returned by the order-status lookup.
type OrderStatusResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Order   *PaymentOrder `json:"order,omitempty"`
}

// Transaction is a wallet ledger entry shown on the dashboard.
type Transaction struct {
	TransactionID string    `json:"transaction_id"`
	Type          string    `json:"type"`
	Amount        int64     `json:"amount"`
	BalanceAfter  int64     `json:"balance_after"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

// OrderSummary is the short order form listed on the dashboard.
type OrderSummary struct {
	OrderID       string    `json:"order_id"`
	Amount        string    `json:"amount"`
	CoinsToCredit int64     `json:"coins_to_credit"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Dashboard is the summary block returned by the accounts dashboard endpoint.
type Dashboard struct {
	User               *User          `json:"user,omitempty"`
	Wallet             *Wallet        `json:"wallet,omitempty"`
	RecentTransactions []Transaction  `json:"recent_transactions"`
	RecentOrders       []OrderSummary `json:"recent_orders"`
	Stats              DashboardStats `json:"stats"`
}

// DashboardStats are aggregate counters for the dashboard.
type DashboardStats struct {
	TotalOrders         int64 `json:"total_orders"`
	SuccessfulOrders    int64 `json:"successful_orders"`
	TotalTransactions   int64 `json:"total_transactions"`
	ActiveFeaturesCount int64 `json:"active_features_count"`
}
