package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"github.com/learnforge/marketplace-api/services/catalog"
	"github.com/learnforge/marketplace-api/services/vnpay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testGatewaySecret = "integrationsecret"

func newPaymentStack(t *testing.T, db *gorm.DB, catalogSvc catalog.Service) (*PaymentService, *OrderService, *WalletService) {
	t.Helper()

	orders, wallets, platform := newCheckoutServices(db, catalogSvc)
	settlement := NewSettlementService(wallets, platform, NewCouponUsageService(db))

	gateway, err := vnpay.NewClient(vnpay.Config{
		TmnCode:    "TESTTMN1",
		HashSecret: testGatewaySecret,
		BaseURL:    "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "http://localhost:3000/payment/return",
	})
	require.NoError(t, err)

	payments := NewPaymentService(db, gateway, wallets, settlement, orders, 15)
	return payments, orders, wallets
}

// signedGatewayQuery builds a callback query signed the way the gateway
// signs its returns: HMAC-SHA512 over the sorted, URL-encoded pairs.
func signedGatewayQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+url.QueryEscape(params[k]))
	}
	signData := strings.Join(parts, "&")

	mac := hmac.New(sha512.New, []byte(testGatewaySecret))
	mac.Write([]byte(signData))
	return signData + "&vnp_SecureHash=" + hex.EncodeToString(mac.Sum(nil))
}

func gatewayCallbackParams(paymentNumber string, amount float64, responseCode, txnStatus string) map[string]string {
	return map[string]string{
		"vnp_TmnCode":           "TESTTMN1",
		"vnp_TxnRef":            paymentNumber,
		"vnp_Amount":            strconv.FormatInt(int64(math.Round(amount*100)), 10),
		"vnp_ResponseCode":      responseCode,
		"vnp_TransactionStatus": txnStatus,
		"vnp_TransactionNo":     "14400996",
		"vnp_BankCode":          "NCB",
		"vnp_CardType":          "ATM",
		"vnp_PayDate":           "20260901103000",
		"vnp_OrderInfo":         "Payment for order",
	}
}

func countInstructorLedgerRows(t *testing.T, db *gorm.DB, instructorID uuid.UUID) int64 {
	t.Helper()
	var count int64
	err := db.Model(&model.TransactionLedger{}).
		Joins("JOIN instructor_wallets ON instructor_wallets.id = transaction_ledgers.wallet_id").
		Where("instructor_wallets.instructor_id = ?", instructorID).
		Count(&count).Error
	require.NoError(t, err)
	return count
}

func TestCallbackSettlesOnceIntegration(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	instructorID := uuid.New()
	courseID := uuid.New()
	stub := &stubCatalog{courses: map[uuid.UUID]*catalog.Course{
		courseID: {
			ID:             courseID,
			Title:          "Go Concurrency Patterns",
			InstructorID:   instructorID,
			InstructorName: "Test Instructor",
			OriginalPrice:  500000,
			FinalPrice:     500000,
			IsPublished:    true,
		},
	}}

	payments, orders, wallets := newPaymentStack(t, db, stub)
	userID := uuid.New()

	order, err := orders.CreateOrder(ctx, CreateOrderRequest{
		UserID:    userID,
		CourseIDs: []uuid.UUID{courseID},
		IPAddress: "127.0.0.1",
	})
	require.NoError(t, err)

	payment, err := payments.ProcessPayment(ctx, userID, order.ID, "127.0.0.1")
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusPending, payment.Status)

	query := signedGatewayQuery(gatewayCallbackParams(payment.PaymentNumber, payment.Amount, "00", "00"))

	outcome, err := payments.HandleVNPayCallback(ctx, query)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.False(t, outcome.AlreadyProcessed)
	assert.Equal(t, model.PaymentStatusCompleted, outcome.Payment.Status)

	wallet, err := wallets.GetWallet(ctx, instructorID)
	require.NoError(t, err)
	assert.InDelta(t, 350000, wallet.AvailableBalance, 0.01)
	assert.Equal(t, int64(1), countInstructorLedgerRows(t, db, instructorID))

	// The gateway redelivers the same callback. It must be absorbed with
	// no new ledger rows and no balance change.
	replay, err := payments.HandleVNPayCallback(ctx, query)
	require.NoError(t, err)
	assert.True(t, replay.Success)
	assert.True(t, replay.AlreadyProcessed)

	walletAfter, err := wallets.GetWallet(ctx, instructorID)
	require.NoError(t, err)
	assert.InDelta(t, wallet.AvailableBalance, walletAfter.AvailableBalance, 0.001)
	assert.Equal(t, int64(1), countInstructorLedgerRows(t, db, instructorID))

	var reloaded model.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, model.OrderStatusPaid, reloaded.Status)
}

func TestCallbackOnExpiredPaymentIgnoredIntegration(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	instructorID := uuid.New()
	courseID := uuid.New()
	stub := &stubCatalog{courses: map[uuid.UUID]*catalog.Course{
		courseID: {
			ID:             courseID,
			Title:          "Late Callback Course",
			InstructorID:   instructorID,
			InstructorName: "Test Instructor",
			OriginalPrice:  200000,
			FinalPrice:     200000,
			IsPublished:    true,
		},
	}}

	payments, orders, _ := newPaymentStack(t, db, stub)
	userID := uuid.New()

	order, err := orders.CreateOrder(ctx, CreateOrderRequest{
		UserID:    userID,
		CourseIDs: []uuid.UUID{courseID},
	})
	require.NoError(t, err)

	payment, err := payments.ProcessPayment(ctx, userID, order.ID, "127.0.0.1")
	require.NoError(t, err)

	// The sweep expired the attempt before the gateway answered
	require.NoError(t, db.Model(&model.Payment{}).
		Where("id = ?", payment.ID).
		Update("status", model.PaymentStatusExpired).Error)

	query := signedGatewayQuery(gatewayCallbackParams(payment.PaymentNumber, payment.Amount, "00", "00"))
	outcome, err := payments.HandleVNPayCallback(ctx, query)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.True(t, outcome.AlreadyProcessed)

	var reloadedOrder model.Order
	require.NoError(t, db.First(&reloadedOrder, "id = ?", order.ID).Error)
	assert.Equal(t, model.OrderStatusPending, reloadedOrder.Status)

	var reloadedPayment model.Payment
	require.NoError(t, db.First(&reloadedPayment, "id = ?", payment.ID).Error)
	assert.Equal(t, model.PaymentStatusExpired, reloadedPayment.Status)

	assert.Equal(t, int64(0), countInstructorLedgerRows(t, db, instructorID))
}

func TestCallbackRejectionsLeaveStateUntouchedIntegration(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	instructorID := uuid.New()
	courseID := uuid.New()
	stub := &stubCatalog{courses: map[uuid.UUID]*catalog.Course{
		courseID: {
			ID:             courseID,
			Title:          "Tamper Target",
			InstructorID:   instructorID,
			InstructorName: "Test Instructor",
			OriginalPrice:  300000,
			FinalPrice:     300000,
			IsPublished:    true,
		},
	}}

	payments, orders, _ := newPaymentStack(t, db, stub)
	userID := uuid.New()

	order, err := orders.CreateOrder(ctx, CreateOrderRequest{
		UserID:    userID,
		CourseIDs: []uuid.UUID{courseID},
	})
	require.NoError(t, err)

	payment, err := payments.ProcessPayment(ctx, userID, order.ID, "127.0.0.1")
	require.NoError(t, err)

	// Correct signature over the wrong amount
	mismatch := signedGatewayQuery(gatewayCallbackParams(payment.PaymentNumber, payment.Amount+10000, "00", "00"))
	outcome, err := payments.HandleVNPayCallback(ctx, mismatch)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "amount mismatch", outcome.Reason)

	// Tampered query: the amount was changed after signing
	tampered := strings.Replace(
		signedGatewayQuery(gatewayCallbackParams(payment.PaymentNumber, payment.Amount, "00", "00")),
		"vnp_Amount="+strconv.FormatInt(int64(math.Round(payment.Amount*100)), 10),
		"vnp_Amount=100", 1)
	outcome, err = payments.HandleVNPayCallback(ctx, tampered)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "invalid signature", outcome.Reason)

	// Neither rejection moved the payment or the order
	var reloadedPayment model.Payment
	require.NoError(t, db.First(&reloadedPayment, "id = ?", payment.ID).Error)
	assert.Equal(t, model.PaymentStatusPending, reloadedPayment.Status)

	var reloadedOrder model.Order
	require.NoError(t, db.First(&reloadedOrder, "id = ?", order.ID).Error)
	assert.Equal(t, model.OrderStatusPending, reloadedOrder.Status)

	assert.Equal(t, int64(0), countInstructorLedgerRows(t, db, instructorID))
}

func TestCallbackFailureKeepsCartAndAllowsRetryIntegration(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	instructorID := uuid.New()
	courseID := uuid.New()
	stub := &stubCatalog{courses: map[uuid.UUID]*catalog.Course{
		courseID: {
			ID:             courseID,
			Title:          "Retry Course",
			InstructorID:   instructorID,
			InstructorName: "Test Instructor",
			OriginalPrice:  150000,
			FinalPrice:     150000,
			IsPublished:    true,
		},
	}}

	payments, orders, _ := newPaymentStack(t, db, stub)
	carts := NewCartService(db, stub, orders)
	userID := uuid.New()

	_, err := carts.AddItem(ctx, userID, courseID)
	require.NoError(t, err)

	order, err := orders.CreateOrder(ctx, CreateOrderRequest{
		UserID:    userID,
		CourseIDs: []uuid.UUID{courseID},
	})
	require.NoError(t, err)

	payment, err := payments.ProcessPayment(ctx, userID, order.ID, "127.0.0.1")
	require.NoError(t, err)

	// Customer cancelled on the gateway page
	query := signedGatewayQuery(gatewayCallbackParams(payment.PaymentNumber, payment.Amount, "24", "02"))
	outcome, err := payments.HandleVNPayCallback(ctx, query)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.False(t, outcome.AlreadyProcessed)

	var reloadedPayment model.Payment
	require.NoError(t, db.First(&reloadedPayment, "id = ?", payment.ID).Error)
	assert.Equal(t, model.PaymentStatusFailed, reloadedPayment.Status)
	assert.Equal(t, "Transaction cancelled by customer", reloadedPayment.FailureReason)

	// Order stays pending and the cart keeps the course for a retry
	var reloadedOrder model.Order
	require.NoError(t, db.First(&reloadedOrder, "id = ?", order.ID).Error)
	assert.Equal(t, model.OrderStatusPending, reloadedOrder.Status)

	cart, err := carts.GetCart(ctx, userID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, courseID, cart.Items[0].CourseID)

	// A fresh attempt is issued since the failed one is terminal
	retry, err := payments.ProcessPayment(ctx, userID, order.ID, "127.0.0.1")
	require.NoError(t, err)
	assert.NotEqual(t, payment.ID, retry.ID)
	assert.Equal(t, model.PaymentStatusPending, retry.Status)

	// Late duplicate of the failure callback is absorbed without touching
	// the new attempt
	replay, err := payments.HandleVNPayCallback(ctx, query)
	require.NoError(t, err)
	assert.False(t, replay.Success)
	assert.True(t, replay.AlreadyProcessed)

	var retryReloaded model.Payment
	require.NoError(t, db.First(&retryReloaded, "id = ?", retry.ID).Error)
	assert.Equal(t, model.PaymentStatusPending, retryReloaded.Status)
}
