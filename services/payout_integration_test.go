package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/learnforge/marketplace-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPayoutSingleInFlightIntegration(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	wallets := NewWalletService(db)
	payouts := NewPayoutService(db, wallets)

	instructorID := uuid.New()
	wallet, err := wallets.GetOrCreateWallet(ctx, instructorID)
	require.NoError(t, err)
	err = db.Transaction(func(tx *gorm.DB) error {
		return wallets.CreditEarningsTx(tx, instructorID, 400000, uuid.New(), "seed earnings")
	})
	require.NoError(t, err)

	input := CreatePayoutRequestInput{
		InstructorID:      instructorID,
		Amount:            100000,
		BankName:          "Vietcombank",
		BankAccountNumber: "0123456789",
		BankAccountName:   "TEST INSTRUCTOR",
	}

	first, err := payouts.CreatePayoutRequest(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusRequested, first.Status)

	// A second request while one is awaiting review is refused
	_, err = payouts.CreatePayoutRequest(ctx, input)
	assert.ErrorIs(t, err, ErrPayoutInFlight)

	// The same invariant holds at the database level: a direct insert
	// that slips past the service check hits the partial unique index
	err = db.Create(&model.PayoutRequest{
		RequestNumber:     GeneratePayoutNumber(time.Now()),
		InstructorID:      instructorID,
		WalletID:          wallet.ID,
		Amount:            50000,
		Currency:          wallet.Currency,
		Status:            model.PayoutStatusRequested,
		BankName:          input.BankName,
		BankAccountNumber: input.BankAccountNumber,
		BankAccountName:   input.BankAccountName,
		RequestedAt:       time.Now(),
	}).Error
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))

	// Once reviewed, a new request may be filed
	_, err = payouts.Reject(ctx, first.ID, uuid.New(), "bank details need confirmation")
	require.NoError(t, err)

	second, err := payouts.CreatePayoutRequest(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusRequested, second.Status)
}
