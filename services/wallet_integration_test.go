package services

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// integrationDB connects to the Postgres instance configured through the
// usual DB_* environment variables. Tests built on it only run when
// RUN_INTEGRATION_TESTS=true.
func integrationDB(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run")
	}

	store, err := database.StartGORM()
	require.NoError(t, err)
	require.NoError(t, store.Init())
	t.Cleanup(func() { store.Close() })

	db, ok := store.GetDB().(*gorm.DB)
	require.True(t, ok)
	return db
}

func TestWalletLifecycleIntegration(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	wallets := NewWalletService(db)
	instructorID := uuid.New()

	// First use creates the wallet with zero balances
	wallet, err := wallets.GetOrCreateWallet(ctx, instructorID)
	require.NoError(t, err)
	assert.Zero(t, wallet.AvailableBalance)
	assert.Zero(t, wallet.HoldBalance)
	assert.True(t, wallet.IsActive)

	orderID := uuid.New()
	err = db.Transaction(func(tx *gorm.DB) error {
		return wallets.CreditEarningsTx(tx, instructorID, 350000, orderID, "Earnings from order ORD-TEST")
	})
	require.NoError(t, err)

	wallet, err = wallets.GetWallet(ctx, instructorID)
	require.NoError(t, err)
	assert.InDelta(t, 350000, wallet.AvailableBalance, 0.001)
	assert.InDelta(t, 350000, wallet.TotalEarnings, 0.001)

	// Hold funds for a coupon, consume part, release the rest
	couponID := uuid.New()
	err = db.Transaction(func(tx *gorm.DB) error {
		return wallets.HoldFundsForCouponTx(tx, instructorID, 100000, couponID)
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return wallets.DeductCouponUsageFromHoldTx(tx, instructorID, 40000, couponID, orderID)
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return wallets.ReleaseCouponHoldTx(tx, instructorID, 60000, couponID)
	})
	require.NoError(t, err)

	wallet, err = wallets.GetWallet(ctx, instructorID)
	require.NoError(t, err)
	assert.InDelta(t, 310000, wallet.AvailableBalance, 0.001)
	assert.Zero(t, wallet.HoldBalance)

	// Payout cannot exceed the available balance
	payoutID := uuid.New()
	err = db.Transaction(func(tx *gorm.DB) error {
		return wallets.DeductForPayoutTx(tx, instructorID, 500000, payoutID)
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	err = db.Transaction(func(tx *gorm.DB) error {
		return wallets.DeductForPayoutTx(tx, instructorID, 310000, payoutID)
	})
	require.NoError(t, err)

	wallet, err = wallets.GetWallet(ctx, instructorID)
	require.NoError(t, err)
	assert.Zero(t, wallet.AvailableBalance)
	assert.InDelta(t, 310000, wallet.TotalWithdrawn, 0.001)
	assert.NotNil(t, wallet.LastPayoutAt)

	// Every movement above left a ledger entry, and they reconcile
	transactions := NewTransactionService(db)
	result, err := transactions.ReconcileWallet(ctx, wallet.ID)
	require.NoError(t, err)
	assert.True(t, result.Balanced, "ledger sum %f vs balance %f", result.LedgerSum, result.AvailableGross)
}

func TestWalletHoldGuardsIntegration(t *testing.T) {
	db := integrationDB(t)

	wallets := NewWalletService(db)
	instructorID := uuid.New()
	couponID := uuid.New()

	err := db.Transaction(func(tx *gorm.DB) error {
		return wallets.CreditEarningsTx(tx, instructorID, 50000, uuid.New(), "seed earnings")
	})
	require.NoError(t, err)

	// Cannot hold more than available
	err = db.Transaction(func(tx *gorm.DB) error {
		return wallets.HoldFundsForCouponTx(tx, instructorID, 80000, couponID)
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// Cannot release or consume what was never held
	err = db.Transaction(func(tx *gorm.DB) error {
		return wallets.ReleaseCouponHoldTx(tx, instructorID, 10000, couponID)
	})
	assert.ErrorIs(t, err, ErrInsufficientHold)

	err = db.Transaction(func(tx *gorm.DB) error {
		return wallets.DeductCouponUsageFromHoldTx(tx, instructorID, 10000, couponID, uuid.New())
	})
	assert.ErrorIs(t, err, ErrInsufficientHold)

	// Amounts must be positive
	err = db.Transaction(func(tx *gorm.DB) error {
		return wallets.CreditEarningsTx(tx, instructorID, 0, uuid.New(), "zero")
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
