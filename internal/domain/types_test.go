package domain

import (
	"testing"
	"time"
)

func TestCartLine_TotalCents(t *testing.T) {
	line := CartLine{UnitPriceCents: 5000, DiscountCents: 500, Quantity: 2}
	if got := line.TotalCents(); got != 9000 {
		t.Fatalf("expected line total 9000, got %d", got)
	}

	free := CartLine{UnitPriceCents: 300, DiscountCents: 300, Quantity: 3}
	if got := free.TotalCents(); got != 0 {
		t.Fatalf("expected fully discounted line total 0, got %d", got)
	}
}

func TestCartLine_Expired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	open := CartLine{}
	if open.Expired(now) {
		t.Fatalf("line without deadline must not expire")
	}

	deadline := now.Add(-time.Second)
	stale := CartLine{ExpiresAt: &deadline}
	if !stale.Expired(now) {
		t.Fatalf("line past deadline should be expired")
	}

	future := now.Add(time.Minute)
	fresh := CartLine{ExpiresAt: &future}
	if fresh.Expired(now) {
		t.Fatalf("line before deadline must not be expired")
	}
}

func TestCoupon_Selectable(t *testing.T) {
	base := Coupon{Code: "SAVE5", DiscountCents: 500, Open: true, Remaining: 3}
	if !base.Selectable() {
		t.Fatalf("open coupon with remaining uses should be selectable")
	}

	closed := base
	closed.Open = false
	if closed.Selectable() {
		t.Fatalf("closed coupon must not be selectable")
	}

	drained := base
	drained.Remaining = 0
	if drained.Selectable() {
		t.Fatalf("drained coupon must not be selectable")
	}

	used := base
	used.FullyUsed = true
	if used.Selectable() {
		t.Fatalf("fully used coupon must not be selectable")
	}
}

func TestCoupon_AppliesTo(t *testing.T) {
	unrestricted := Coupon{Code: "ALL"}
	if !unrestricted.AppliesTo("goods_1") {
		t.Fatalf("coupon without goods restriction should apply everywhere")
	}

	scoped := Coupon{Code: "SCOPED", GoodsIDs: []string{"goods_1", "goods_2"}}
	if !scoped.AppliesTo("goods_2") {
		t.Fatalf("coupon should apply to a listed goods id")
	}
	if scoped.AppliesTo("goods_9") {
		t.Fatalf("coupon must not apply outside its goods list")
	}
}

func TestGoods_IsOpen(t *testing.T) {
	if (Goods{Status: GoodsStatusClosed}).IsOpen() {
		t.Fatalf("closed goods must not report open")
	}
	if !(Goods{Status: GoodsStatusOpen}).IsOpen() {
		t.Fatalf("open goods should report open")
	}
}
