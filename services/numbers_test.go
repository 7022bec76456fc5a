package services

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, 10.56, RoundMoney(10.555))
	assert.Equal(t, 10.55, RoundMoney(10.554))
	assert.Equal(t, 0.0, RoundMoney(0))
	assert.Equal(t, -3.33, RoundMoney(-3.333))
	assert.Equal(t, 100.0, RoundMoney(99.999))
}

func TestReferenceNumberFormat(t *testing.T) {
	at := time.Date(2026, 9, 1, 23, 59, 0, 0, time.FixedZone("ICT", 7*3600))

	// 23:59 ICT on Sept 1 is still Sept 1 in UTC terms here; the date
	// component is always rendered in UTC.
	orderNum := GenerateOrderNumber(at)
	assert.Regexp(t, regexp.MustCompile(`^ORD-20260901-[0-9A-F]{8}$`), orderNum)

	assert.Regexp(t, regexp.MustCompile(`^PAY-\d{8}-[0-9A-F]{8}$`), GeneratePaymentNumber(at))
	assert.Regexp(t, regexp.MustCompile(`^PO-\d{8}-[0-9A-F]{8}$`), GeneratePayoutNumber(at))
}

func TestReferenceNumberUniqueness(t *testing.T) {
	at := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		num := GenerateOrderNumber(at)
		assert.False(t, seen[num], "duplicate number %s", num)
		seen[num] = true
	}
}

func TestReferenceNumberUsesUTCDate(t *testing.T) {
	// 01:00 Sept 2 in GMT+7 is still Sept 1 in UTC
	at := time.Date(2026, 9, 2, 1, 0, 0, 0, time.FixedZone("ICT", 7*3600))
	assert.Contains(t, GenerateOrderNumber(at), "ORD-20260901-")
}
