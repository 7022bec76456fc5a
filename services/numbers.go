package services

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoundMoney rounds a monetary amount to 2 decimal places
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

func referenceNumber(prefix string, t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return fmt.Sprintf("%s-%s-%s", prefix, t.UTC().Format("20060102"), suffix)
}

// GenerateOrderNumber creates a unique order number, e.g. ORD-20250901-1A2B3C4D
func GenerateOrderNumber(t time.Time) string {
	return referenceNumber("ORD", t)
}

// GeneratePaymentNumber creates a unique payment number, e.g. PAY-20250901-1A2B3C4D
func GeneratePaymentNumber(t time.Time) string {
	return referenceNumber("PAY", t)
}

// GeneratePayoutNumber creates a unique payout request number, e.g. PO-20250901-1A2B3C4D
func GeneratePayoutNumber(t time.Time) string {
	return referenceNumber("PO", t)
}
