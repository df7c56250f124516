package domain

import (
	"fmt"
	"strings"
	"time"
)

// SubsiteKind distinguishes locally hosted reseller tenants from third-party
// storefronts reached over HTTP.
type SubsiteKind string

const (
	// SubsiteLocal is a tenant hosted on this installation.
	SubsiteLocal SubsiteKind = "local"
	// SubsiteThirdParty is an external storefront synced over its API.
	SubsiteThirdParty SubsiteKind = "third_party"
)

// SubsiteSettings holds per-tenant sync tuning.
type SubsiteSettings struct {
	AutoSync bool
	// SyncInterval is the sweep cadence for this tenant.
	SyncInterval time.Duration
	// MaxRetries bounds automatic redelivery attempts per record.
	MaxRetries int
	// Timeout bounds each outbound delivery call.
	Timeout time.Duration
}

// DefaultSubsiteSettings mirrors the values applied when a subsite is created
// without explicit tuning.
func DefaultSubsiteSettings() SubsiteSettings {
	return SubsiteSettings{
		AutoSync:     true,
		SyncInterval: 5 * time.Minute,
		MaxRetries:   5,
		Timeout:      30 * time.Second,
	}
}

// Subsite is a reseller tenant entitled to commission on orders.
type Subsite struct {
	ID      string
	Name    string
	Kind    SubsiteKind
	Enabled bool
	// CommissionRateBP is the commission rate in basis points of the order
	// total (250 = 2.50%).
	CommissionRateBP int64
	// BalanceCents accumulates settled commission; only the settlement
	// engine mutates it.
	BalanceCents int64
	APIURL       string
	APIKey       string
	APISecret    string
	Settings     SubsiteSettings
	ContactEmail string
	ContactPhone string
	Description  string
	LastSyncAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsThirdParty reports whether the subsite is synced over an external API.
func (s Subsite) IsThirdParty() bool {
	return s.Kind == SubsiteThirdParty
}

// CommissionFor computes the frozen commission for an order total, rounded
// half-up to whole cents.
func (s Subsite) CommissionFor(orderTotalCents int64) int64 {
	return (orderTotalCents*s.CommissionRateBP + 5000) / 10000
}

// SyncStatus is the delivery state machine riding on a SubsiteOrder row. It is
// independent of the commission state machine on the same row.
type SyncStatus string

const (
	// SyncPending marks a row never yet delivered.
	SyncPending SyncStatus = "pending"
	// SyncSuccess marks a row acknowledged by the remote side.
	SyncSuccess SyncStatus = "success"
	// SyncFailed marks a row whose last delivery attempt failed.
	SyncFailed SyncStatus = "failed"
)

// CommissionStatus is the settlement state machine riding on a SubsiteOrder row.
type CommissionStatus string

const (
	// CommissionPending marks commission not yet credited to the subsite.
	CommissionPending CommissionStatus = "pending"
	// CommissionSettled marks commission credited to the subsite balance.
	CommissionSettled CommissionStatus = "settled"
)

// MaxSyncRetries is the hard ceiling on automatic redelivery attempts; rows at
// the ceiling stay failed until an operator resets them.
const MaxSyncRetries = 5

// SubsiteOrder joins one Order to one Subsite, unique per pair. The frozen
// commission amount and the denormalized payload are captured at fan-out time
// and never recomputed.
type SubsiteOrder struct {
	ID          string
	SubsiteID   string
	OrderSerial string
	// RemoteSerial is the order number returned by the remote storefront.
	RemoteSerial string
	// CommissionCents is frozen at creation; later rate changes do not apply.
	CommissionCents  int64
	CommissionStatus CommissionStatus
	SettledAt        *time.Time
	SyncStatus       SyncStatus
	SyncedAt         *time.Time
	SyncError        string
	RetryCount       int
	NextRetryAt      *time.Time
	// Payload is the opaque order+goods+SKU snapshot used for delivery, so
	// redelivery never depends on live catalog rows.
	Payload   map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DueForSync reports whether the row qualifies for an automatic delivery
// attempt at the given instant.
func (o SubsiteOrder) DueForSync(now time.Time) bool {
	switch o.SyncStatus {
	case SyncPending:
		return true
	case SyncFailed:
		if o.RetryCount >= MaxSyncRetries {
			return false
		}
		return o.NextRetryAt == nil || !o.NextRetryAt.After(now)
	default:
		return false
	}
}

// MarkSyncSuccess transitions the sync state machine to success and clears all
// retry bookkeeping.
func (o *SubsiteOrder) MarkSyncSuccess(remoteSerial string, now time.Time) {
	o.SyncStatus = SyncSuccess
	t := now.UTC()
	o.SyncedAt = &t
	if trimmed := strings.TrimSpace(remoteSerial); trimmed != "" {
		o.RemoteSerial = trimmed
	}
	o.SyncError = ""
	o.RetryCount = 0
	o.NextRetryAt = nil
	o.UpdatedAt = t
}

// MarkSyncFailed records a failed delivery attempt and schedules the next one
// with exponential backoff: now + 2^retryCount minutes.
func (o *SubsiteOrder) MarkSyncFailed(reason string, now time.Time) {
	o.SyncStatus = SyncFailed
	t := now.UTC()
	o.SyncedAt = &t
	o.SyncError = strings.TrimSpace(reason)
	o.RetryCount++
	next := t.Add(SyncBackoff(o.RetryCount))
	o.NextRetryAt = &next
	o.UpdatedAt = t
}

// ResetRetry clears retry bookkeeping so the row re-enters the automatic
// sweep, used by the operator resync action.
func (o *SubsiteOrder) ResetRetry(now time.Time) {
	o.SyncStatus = SyncPending
	o.SyncError = ""
	o.RetryCount = 0
	o.NextRetryAt = nil
	o.UpdatedAt = now.UTC()
}

// MarkSettled transitions the commission state machine to settled. It returns
// false when the row was already settled, making repeated settlement calls
// safe.
func (o *SubsiteOrder) MarkSettled(now time.Time) bool {
	if o.CommissionStatus == CommissionSettled {
		return false
	}
	o.CommissionStatus = CommissionSettled
	t := now.UTC()
	o.SettledAt = &t
	o.UpdatedAt = t
	return true
}

// SyncBackoff returns the delay before retry attempt n (1-based).
func SyncBackoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	return time.Duration(1<<uint(retryCount)) * time.Minute
}

// SubsiteStatistics aggregates fan-out and commission totals for one tenant.
type SubsiteStatistics struct {
	TotalOrders            int
	PendingOrders          int
	FailedOrders           int
	TotalCommissionCents   int64
	SettledCommissionCents int64
	PendingCommissionCents int64
	BalanceCents           int64
	TodayOrders            int
	TodayCommissionCents   int64
	MonthOrders            int
	MonthCommissionCents   int64
	LastSyncAt             *time.Time
}

// FormatCents renders minor units as a decimal string with two places, the
// representation used on the wire and in operator-facing output.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// CentsToFloat converts minor units to the decimal number used in JSON
// payloads of the sync wire contract.
func CentsToFloat(cents int64) float64 {
	return float64(cents) / 100
}
