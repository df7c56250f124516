package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/kado-mall/api/internal/domain"
	pfirestore "github.com/kado-mall/api/internal/platform/firestore"
	"github.com/kado-mall/api/internal/repositories"
)

// CheckoutRepository commits one checkout line as a single Firestore
// transaction. Stock decrement, coupon consumption, code allocation, order
// creation, fan-out rows, and cart line removal land together or not at all.
type CheckoutRepository struct {
	provider *pfirestore.Provider
	goods    *pfirestore.BaseRepository[goodsDocument]
	skus     *pfirestore.BaseRepository[skuDocument]
	coupons  *pfirestore.BaseRepository[couponDocument]
	cart     *pfirestore.BaseRepository[cartLineDocument]
	orders   *pfirestore.BaseRepository[orderDocument]
	fanouts  *pfirestore.BaseRepository[subsiteOrderDocument]
}

func NewCheckoutRepository(provider *pfirestore.Provider) (*CheckoutRepository, error) {
	if provider == nil {
		return nil, errors.New("checkout repository requires firestore provider")
	}
	return &CheckoutRepository{
		provider: provider,
		goods:    pfirestore.NewBaseRepository[goodsDocument](provider, goodsCollection, nil, nil),
		skus:     pfirestore.NewBaseRepository[skuDocument](provider, skuCollection, nil, nil),
		coupons:  pfirestore.NewBaseRepository[couponDocument](provider, couponCollection, nil, nil),
		cart:     pfirestore.NewBaseRepository[cartLineDocument](provider, cartLineCollection, nil, nil),
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
		fanouts:  pfirestore.NewBaseRepository[subsiteOrderDocument](provider, subsiteOrderCollection, nil, nil),
	}, nil
}

// PlaceOrder runs the checkout atomic unit for one cart line. Availability is
// re-checked against live documents inside the transaction, so the snapshots
// carried on the cart line never decide whether the sale goes through.
//
// A serial collision surfaces as a conflict error through the order document
// create; callers regenerate the serial and retry.
func (r *CheckoutRepository) PlaceOrder(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
	if r == nil || r.provider == nil {
		return repositories.PlaceOrderResult{}, errors.New("checkout repository not initialised")
	}
	serial := strings.TrimSpace(req.Order.Serial)
	if serial == "" {
		return repositories.PlaceOrderResult{}, errors.New("checkout place order: order serial is required")
	}
	if req.Line.Line.Quantity <= 0 {
		return repositories.PlaceOrderResult{}, errors.New("checkout place order: quantity must be positive")
	}
	now := req.Now.UTC()

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.PlaceOrderResult{}, wrapLedgerError("checkout.placeOrder", err)
	}

	var result repositories.PlaceOrderResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		line := req.Line.Line
		qty := line.Quantity

		// Firestore transactions require every read to happen before the
		// first write, so the whole read phase comes first.
		goodsRef, err := r.goods.DocumentRef(ctx, line.GoodsID)
		if err != nil {
			return err
		}
		goodsSnap, err := tx.Get(goodsRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewLedgerError(repositories.LedgerErrorGoodsNotFound, fmt.Sprintf("goods %s not found", line.GoodsID), err)
			}
			return err
		}
		var goodsDoc goodsDocument
		if err := goodsSnap.DataTo(&goodsDoc); err != nil {
			return fmt.Errorf("decode goods %s: %w", line.GoodsID, err)
		}
		if domain.GoodsStatus(goodsDoc.Status) != domain.GoodsStatusOpen {
			return repositories.NewLedgerError(repositories.LedgerErrorGoodsClosed, fmt.Sprintf("goods %s is not open for sale", line.GoodsID), nil)
		}

		var skuRef *firestore.DocumentRef
		var skuDoc skuDocument
		hasSKU := strings.TrimSpace(line.SKUCode) != ""
		if hasSKU {
			skuRef, err = r.skus.DocumentRef(ctx, skuDocID(line.GoodsID, line.SKUCode))
			if err != nil {
				return err
			}
			skuSnap, err := tx.Get(skuRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewLedgerError(repositories.LedgerErrorSKUNotFound, fmt.Sprintf("sku %s of goods %s not found", line.SKUCode, line.GoodsID), err)
				}
				return err
			}
			if err := skuSnap.DataTo(&skuDoc); err != nil {
				return fmt.Errorf("decode sku %s: %w", line.SKUCode, err)
			}
			if domain.SKUStatus(skuDoc.Status) != domain.SKUStatusEnabled {
				return repositories.NewLedgerError(repositories.LedgerErrorSKUNotFound, fmt.Sprintf("sku %s of goods %s is disabled", line.SKUCode, line.GoodsID), nil)
			}
		}

		var couponRef *firestore.DocumentRef
		var couponDoc couponDocument
		hasCoupon := strings.TrimSpace(line.CouponCode) != ""
		if hasCoupon {
			couponRef, err = r.coupons.DocumentRef(ctx, line.CouponCode)
			if err != nil {
				return err
			}
			couponSnap, err := tx.Get(couponRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewLedgerError(repositories.LedgerErrorCouponNotFound, fmt.Sprintf("coupon %s not found", line.CouponCode), err)
				}
				return err
			}
			if err := couponSnap.DataTo(&couponDoc); err != nil {
				return fmt.Errorf("decode coupon %s: %w", line.CouponCode, err)
			}
		}

		automatic := domain.FulfillmentKind(goodsDoc.Fulfillment) == domain.FulfillmentAutomatic

		var codeRefs []*firestore.DocumentRef
		var codeDocs []codeDocument
		if automatic {
			codeRefs, codeDocs, err = r.takeUnsoldCodes(client, tx, line, qty)
			if err != nil {
				return err
			}
		} else {
			// Manual fulfillment sells against the stock counter.
			available := goodsDoc.InStock
			if hasSKU {
				available = skuDoc.Stock
			}
			if available < qty {
				return repositories.NewLedgerError(repositories.LedgerErrorInsufficientStock, fmt.Sprintf("goods %s has %d in stock, want %d", line.GoodsID, available, qty), nil)
			}
		}

		cartRef, err := r.cart.DocumentRef(ctx, line.ID)
		if err != nil {
			return err
		}

		// Write phase. Exactly one stock counter moves per line: the SKU
		// counter for SKU lines, the goods counter otherwise. Automatic
		// lines sell from the code pool, so only the sales counter moves.
		if hasSKU {
			if !automatic {
				if skuDoc.Stock < qty {
					return repositories.NewLedgerError(repositories.LedgerErrorInsufficientStock, fmt.Sprintf("sku %s of goods %s has %d in stock, want %d", line.SKUCode, line.GoodsID, skuDoc.Stock, qty), nil)
				}
				skuDoc.Stock -= qty
			}
			skuDoc.SoldCount += qty
			skuDoc.UpdatedAt = now
			if err := tx.Set(skuRef, skuDoc); err != nil {
				return err
			}
		} else {
			if !automatic {
				if goodsDoc.InStock < qty {
					return repositories.NewLedgerError(repositories.LedgerErrorInsufficientStock, fmt.Sprintf("goods %s has %d in stock, want %d", line.GoodsID, goodsDoc.InStock, qty), nil)
				}
				goodsDoc.InStock -= qty
			}
			goodsDoc.SalesVolume += qty
			goodsDoc.UpdatedAt = now
			if err := tx.Set(goodsRef, goodsDoc); err != nil {
				return err
			}
		}

		if hasCoupon {
			if _, err := consumeCouponDoc(&couponDoc, now); err != nil {
				return err
			}
			if err := tx.Set(couponRef, couponDoc); err != nil {
				return err
			}
		}

		codes := make([]domain.FulfillmentCode, 0, len(codeRefs))
		for i, ref := range codeRefs {
			doc := codeDocs[i]
			doc.Status = codeStatusSold
			doc.OrderRef = serial
			soldAt := now
			doc.SoldAt = &soldAt
			if err := tx.Set(ref, doc); err != nil {
				return err
			}
			codes = append(codes, doc.toDomain(ref.ID))
		}

		order := req.Order
		order.CreatedAt = now
		order.UpdatedAt = now
		orderRef := client.Collection(orderCollection).Doc(serial)
		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return err
		}

		for _, fanout := range req.Fanouts {
			row := domain.SubsiteOrder{
				SubsiteID:        fanout.SubsiteID,
				OrderSerial:      serial,
				CommissionCents:  fanout.CommissionCents,
				CommissionStatus: domain.CommissionPending,
				SyncStatus:       domain.SyncPending,
				Payload:          fanout.Payload,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			fanoutRef := client.Collection(subsiteOrderCollection).Doc(fanoutDocID(fanout.SubsiteID, serial))
			if err := tx.Create(fanoutRef, newSubsiteOrderDocument(row)); err != nil {
				return err
			}
		}

		if err := tx.Delete(cartRef); err != nil {
			return err
		}

		result = repositories.PlaceOrderResult{Order: order, Codes: codes}
		return nil
	})
	if err != nil {
		return repositories.PlaceOrderResult{}, wrapLedgerError("checkout.placeOrder", err)
	}
	return result, nil
}

// takeUnsoldCodes reads qty unsold delivery codes for the line inside the
// transaction. Coming up short means the pool cannot cover the purchase.
func (r *CheckoutRepository) takeUnsoldCodes(client *firestore.Client, tx *firestore.Transaction, line domain.CartLine, qty int) ([]*firestore.DocumentRef, []codeDocument, error) {
	query := client.Collection(codeCollection).
		Where("goodsId", "==", line.GoodsID).
		Where("status", "==", codeStatusUnsold)
	if strings.TrimSpace(line.SKUCode) != "" {
		query = query.Where("skuCode", "==", line.SKUCode)
	}
	query = query.OrderBy("createdAt", firestore.Asc).Limit(qty)

	iter := tx.Documents(query)
	defer iter.Stop()

	var refs []*firestore.DocumentRef
	var docs []codeDocument
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		var doc codeDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, nil, fmt.Errorf("decode fulfillment code %s: %w", snap.Ref.ID, err)
		}
		refs = append(refs, snap.Ref)
		docs = append(docs, doc)
	}
	if len(refs) < qty {
		return nil, nil, repositories.NewLedgerError(repositories.LedgerErrorInsufficientStock, fmt.Sprintf("goods %s has %d unsold codes, want %d", line.GoodsID, len(refs), qty), nil)
	}
	return refs, docs, nil
}
