package cron

import (
	"fmt"
	"time"

	"github.com/learnforge/marketplace-api/model"
)

// ExpirePendingPayments marks payments whose gateway window has lapsed as
// expired. A single conditional UPDATE keeps it safe against concurrent
// callbacks: a payment completed between the sweep's read and write is not
// touched. Orders stay pending so the user can retry payment.
func (m *CronManager) ExpirePendingPayments() {
	const jobName = "expire_pending_payments"

	result := m.db.Model(&model.Payment{}).
		Where("status = ? AND expired_at < ?", model.PaymentStatusPending, time.Now()).
		Update("status", model.PaymentStatusExpired)
	if result.Error != nil {
		m.logJobError(jobName, result.Error)
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("expired %d stale payments", result.RowsAffected))
}
