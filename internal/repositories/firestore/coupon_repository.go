package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/kado-mall/api/internal/domain"
	pfirestore "github.com/kado-mall/api/internal/platform/firestore"
	"github.com/kado-mall/api/internal/repositories"
)

// CouponRepository persists discount coupons keyed by their code.
type CouponRepository struct {
	provider *pfirestore.Provider
	coupons  *pfirestore.BaseRepository[couponDocument]
}

func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	coupons := pfirestore.NewBaseRepository[couponDocument](provider, couponCollection, nil, nil)
	return &CouponRepository{provider: provider, coupons: coupons}, nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.coupons == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Coupon{}, errors.New("coupon find: code is required")
	}

	doc, err := r.coupons.Get(ctx, code)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.Coupon{}, repositories.NewLedgerError(repositories.LedgerErrorCouponNotFound, fmt.Sprintf("coupon %s not found", code), err)
		}
		return domain.Coupon{}, wrapLedgerError("coupon.find", err)
	}
	return doc.Data.toDomain(), nil
}

// Consume decrements the remaining use count inside a transaction. When the
// count reaches zero the coupon flips to fully used.
func (r *CouponRepository) Consume(ctx context.Context, code string, now time.Time) (domain.Coupon, error) {
	if r == nil || r.provider == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Coupon{}, errors.New("coupon consume: code is required")
	}

	now = now.UTC()
	var consumed domain.Coupon
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.coupons.DocumentRef(ctx, code)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewLedgerError(repositories.LedgerErrorCouponNotFound, fmt.Sprintf("coupon %s not found", code), err)
			}
			return err
		}
		var doc couponDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode coupon %s: %w", code, err)
		}
		updated, err := consumeCouponDoc(&doc, now)
		if err != nil {
			return err
		}
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		consumed = updated
		return nil
	})
	if err != nil {
		return domain.Coupon{}, wrapLedgerError("coupon.consume", err)
	}
	return consumed, nil
}

// consumeCouponDoc applies one use to the coupon document in place. Shared
// with the checkout transaction so both paths enforce the same rules.
func consumeCouponDoc(doc *couponDocument, now time.Time) (domain.Coupon, error) {
	if !doc.Open || doc.FullyUsed || doc.Remaining <= 0 {
		return domain.Coupon{}, repositories.NewLedgerError(repositories.LedgerErrorCouponExhausted, fmt.Sprintf("coupon %s has no remaining uses", doc.Code), nil)
	}
	doc.Remaining--
	if doc.Remaining == 0 {
		doc.FullyUsed = true
	}
	doc.UpdatedAt = now
	return doc.toDomain(), nil
}
