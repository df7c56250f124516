package domain

import (
	"testing"
	"time"
)

func TestSubsite_CommissionFor(t *testing.T) {
	cases := []struct {
		name   string
		rateBP int64
		total  int64
		want   int64
	}{
		{name: "five percent", rateBP: 500, total: 9000, want: 450},
		{name: "two and a half percent", rateBP: 250, total: 10000, want: 250},
		{name: "rounds half up", rateBP: 250, total: 101, want: 3},
		{name: "zero rate", rateBP: 0, total: 9000, want: 0},
		{name: "zero total", rateBP: 500, total: 0, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Subsite{CommissionRateBP: tc.rateBP}
			if got := s.CommissionFor(tc.total); got != tc.want {
				t.Fatalf("CommissionFor(%d) with %dbp: want %d, got %d", tc.total, tc.rateBP, tc.want, got)
			}
		})
	}
}

func TestSyncBackoff_DoublesPerAttempt(t *testing.T) {
	want := []time.Duration{
		2 * time.Minute,
		4 * time.Minute,
		8 * time.Minute,
		16 * time.Minute,
		32 * time.Minute,
	}
	for i, expected := range want {
		if got := SyncBackoff(i + 1); got != expected {
			t.Fatalf("SyncBackoff(%d): want %v, got %v", i+1, expected, got)
		}
	}
	if got := SyncBackoff(0); got != 2*time.Minute {
		t.Fatalf("SyncBackoff(0) should clamp to first attempt, got %v", got)
	}
}

func TestSubsiteOrder_SyncFailureSchedulesRetry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	order := SubsiteOrder{SyncStatus: SyncPending}

	order.MarkSyncFailed("connection refused", now)
	if order.SyncStatus != SyncFailed {
		t.Fatalf("expected failed status, got %q", order.SyncStatus)
	}
	if order.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", order.RetryCount)
	}
	if order.NextRetryAt == nil || !order.NextRetryAt.Equal(now.Add(2*time.Minute)) {
		t.Fatalf("expected next retry at +2m, got %v", order.NextRetryAt)
	}
	if order.SyncError != "connection refused" {
		t.Fatalf("expected sync error recorded, got %q", order.SyncError)
	}

	later := now.Add(2 * time.Minute)
	order.MarkSyncFailed("HTTP 500", later)
	if order.RetryCount != 2 {
		t.Fatalf("expected retry count 2, got %d", order.RetryCount)
	}
	if order.NextRetryAt == nil || !order.NextRetryAt.Equal(later.Add(4*time.Minute)) {
		t.Fatalf("expected next retry at +4m, got %v", order.NextRetryAt)
	}
}

func TestSubsiteOrder_DueForSync(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	pending := SubsiteOrder{SyncStatus: SyncPending}
	if !pending.DueForSync(now) {
		t.Fatalf("pending order should always be due")
	}

	succeeded := SubsiteOrder{SyncStatus: SyncSuccess}
	if succeeded.DueForSync(now) {
		t.Fatalf("succeeded order must not re-enter the sweep")
	}

	future := now.Add(time.Minute)
	notYet := SubsiteOrder{SyncStatus: SyncFailed, RetryCount: 1, NextRetryAt: &future}
	if notYet.DueForSync(now) {
		t.Fatalf("order before next_retry_at must not be due")
	}
	if !notYet.DueForSync(future) {
		t.Fatalf("order at next_retry_at should be due")
	}

	exhausted := SubsiteOrder{SyncStatus: SyncFailed, RetryCount: MaxSyncRetries}
	if exhausted.DueForSync(now) {
		t.Fatalf("order at the retry ceiling must not be due")
	}
}

func TestSubsiteOrder_RetryCeiling(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	order := SubsiteOrder{SyncStatus: SyncPending}

	for i := 0; i < MaxSyncRetries; i++ {
		if !order.DueForSync(now) {
			t.Fatalf("attempt %d: order should still be due", i+1)
		}
		order.MarkSyncFailed("HTTP 502", now)
		now = *order.NextRetryAt
	}
	if order.RetryCount != MaxSyncRetries {
		t.Fatalf("expected retry count %d, got %d", MaxSyncRetries, order.RetryCount)
	}
	if order.DueForSync(now.Add(24 * time.Hour)) {
		t.Fatalf("exhausted order must stay out of the sweep")
	}

	order.ResetRetry(now)
	if order.SyncStatus != SyncPending || order.RetryCount != 0 || order.NextRetryAt != nil {
		t.Fatalf("reset should return order to pending, got %+v", order)
	}
	if !order.DueForSync(now) {
		t.Fatalf("reset order should be due again")
	}
}

func TestSubsiteOrder_MarkSyncSuccessClearsRetryState(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	order := SubsiteOrder{SyncStatus: SyncPending}
	order.MarkSyncFailed("timeout", now)

	order.MarkSyncSuccess("REMOTE-123", now.Add(3*time.Minute))
	if order.SyncStatus != SyncSuccess {
		t.Fatalf("expected success status, got %q", order.SyncStatus)
	}
	if order.RemoteSerial != "REMOTE-123" {
		t.Fatalf("expected remote serial recorded, got %q", order.RemoteSerial)
	}
	if order.RetryCount != 0 || order.NextRetryAt != nil || order.SyncError != "" {
		t.Fatalf("expected retry state cleared, got %+v", order)
	}
	if order.SyncedAt == nil || !order.SyncedAt.Equal(now.Add(3*time.Minute)) {
		t.Fatalf("expected synced_at set, got %v", order.SyncedAt)
	}
}

func TestSubsiteOrder_SettlementIsIdempotent(t *testing.T) {
	now := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	order := SubsiteOrder{CommissionStatus: CommissionPending, CommissionCents: 450}

	if !order.MarkSettled(now) {
		t.Fatalf("first settlement should transition the order")
	}
	if order.CommissionStatus != CommissionSettled {
		t.Fatalf("expected settled status, got %q", order.CommissionStatus)
	}
	if order.SettledAt == nil || !order.SettledAt.Equal(now) {
		t.Fatalf("expected settled_at set, got %v", order.SettledAt)
	}

	if order.MarkSettled(now.Add(time.Hour)) {
		t.Fatalf("second settlement must be a no-op")
	}
	if !order.SettledAt.Equal(now) {
		t.Fatalf("settled_at must not move on repeat settlement, got %v", order.SettledAt)
	}
}

func TestSubsiteOrder_StateMachinesAreIndependent(t *testing.T) {
	now := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	order := SubsiteOrder{SyncStatus: SyncFailed, RetryCount: 2, CommissionStatus: CommissionPending}

	order.MarkSettled(now)
	if order.SyncStatus != SyncFailed || order.RetryCount != 2 {
		t.Fatalf("settlement must not touch sync state, got %+v", order)
	}

	order.MarkSyncSuccess("R-1", now)
	if order.CommissionStatus != CommissionSettled {
		t.Fatalf("sync success must not touch commission state, got %q", order.CommissionStatus)
	}
}

func TestFormatCents(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{cents: 0, want: "0.00"},
		{cents: 5, want: "0.05"},
		{cents: 4500, want: "45.00"},
		{cents: 10650, want: "106.50"},
		{cents: -250, want: "-2.50"},
	}
	for _, tc := range cases {
		if got := FormatCents(tc.cents); got != tc.want {
			t.Fatalf("FormatCents(%d): want %q, got %q", tc.cents, tc.want, got)
		}
	}
}
