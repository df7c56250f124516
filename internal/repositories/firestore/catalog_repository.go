package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/kado-mall/api/internal/domain"
	pfirestore "github.com/kado-mall/api/internal/platform/firestore"
	"github.com/kado-mall/api/internal/repositories"
)

// CatalogRepository reads goods, SKU variants, and fulfillment code pools from
// Firestore.
type CatalogRepository struct {
	provider *pfirestore.Provider
	goods    *pfirestore.BaseRepository[goodsDocument]
	skus     *pfirestore.BaseRepository[skuDocument]
}

func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	goods := pfirestore.NewBaseRepository[goodsDocument](provider, goodsCollection, nil, nil)
	skus := pfirestore.NewBaseRepository[skuDocument](provider, skuCollection, nil, nil)
	return &CatalogRepository{provider: provider, goods: goods, skus: skus}, nil
}

func (r *CatalogRepository) GetGoods(ctx context.Context, goodsID string) (domain.Goods, error) {
	if r == nil || r.goods == nil {
		return domain.Goods{}, errors.New("catalog repository not initialised")
	}
	goodsID = strings.TrimSpace(goodsID)
	if goodsID == "" {
		return domain.Goods{}, errors.New("catalog get goods: id is required")
	}

	doc, err := r.goods.Get(ctx, goodsID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.Goods{}, repositories.NewLedgerError(repositories.LedgerErrorGoodsNotFound, fmt.Sprintf("goods %s not found", goodsID), err)
		}
		return domain.Goods{}, wrapLedgerError("catalog.getGoods", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CatalogRepository) GetSKU(ctx context.Context, goodsID, skuCode string) (domain.GoodsSKU, error) {
	if r == nil || r.skus == nil {
		return domain.GoodsSKU{}, errors.New("catalog repository not initialised")
	}
	goodsID = strings.TrimSpace(goodsID)
	skuCode = strings.TrimSpace(skuCode)
	if goodsID == "" || skuCode == "" {
		return domain.GoodsSKU{}, errors.New("catalog get sku: goods id and sku code are required")
	}

	doc, err := r.skus.Get(ctx, skuDocID(goodsID, skuCode))
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.GoodsSKU{}, repositories.NewLedgerError(repositories.LedgerErrorSKUNotFound, fmt.Sprintf("sku %s/%s not found", goodsID, skuCode), err)
		}
		return domain.GoodsSKU{}, wrapLedgerError("catalog.getSku", err)
	}
	return doc.Data.toDomain(), nil
}

// UnsoldCodeCount counts the live unsold fulfillment codes for the stock
// bucket. The scan is capped so a huge code pool cannot stall the caller.
func (r *CatalogRepository) UnsoldCodeCount(ctx context.Context, ref repositories.GoodsRef) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("catalog repository not initialised")
	}
	goodsID := strings.TrimSpace(ref.GoodsID)
	if goodsID == "" {
		return 0, errors.New("catalog unsold count: goods id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, wrapLedgerError("catalog.unsoldCount", err)
	}

	query := client.Collection(codeCollection).
		Where("goodsId", "==", goodsID).
		Where("status", "==", codeStatusUnsold)
	if sku := strings.TrimSpace(ref.SKUCode); sku != "" {
		query = query.Where("skuCode", "==", sku)
	}

	iter := query.Limit(maxCodeScanPerAggregate).Select().Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		_, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, wrapLedgerError("catalog.unsoldCount", err)
		}
		count++
	}
	return count, nil
}

// IncreaseStock returns quantity to the counter the sale came from: the SKU
// counter for SKU lines, the goods counter otherwise. Sales counters are
// rolled back alongside the stock figure.
func (r *CatalogRepository) IncreaseStock(ctx context.Context, ref repositories.GoodsRef, quantity int, now time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("catalog repository not initialised")
	}
	goodsID := strings.TrimSpace(ref.GoodsID)
	if goodsID == "" {
		return errors.New("catalog increase stock: goods id is required")
	}
	if quantity <= 0 {
		return errors.New("catalog increase stock: quantity must be > 0")
	}

	now = now.UTC()
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		goodsRef, err := r.goods.DocumentRef(ctx, goodsID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(goodsRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewLedgerError(repositories.LedgerErrorGoodsNotFound, fmt.Sprintf("goods %s not found", goodsID), err)
			}
			return err
		}
		var goods goodsDocument
		if err := snap.DataTo(&goods); err != nil {
			return fmt.Errorf("decode goods %s: %w", goodsID, err)
		}

		skuCode := strings.TrimSpace(ref.SKUCode)
		if skuCode != "" {
			skuRef, err := r.skus.DocumentRef(ctx, skuDocID(goodsID, skuCode))
			if err != nil {
				return err
			}
			skuSnap, err := tx.Get(skuRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewLedgerError(repositories.LedgerErrorSKUNotFound, fmt.Sprintf("sku %s/%s not found", goodsID, skuCode), err)
				}
				return err
			}
			var sku skuDocument
			if err := skuSnap.DataTo(&sku); err != nil {
				return fmt.Errorf("decode sku %s/%s: %w", goodsID, skuCode, err)
			}
			sku.Stock += quantity
			if sku.SoldCount >= quantity {
				sku.SoldCount -= quantity
			} else {
				sku.SoldCount = 0
			}
			sku.UpdatedAt = now
			// SKU lines sell against the SKU counter alone, so the
			// return lands there alone too.
			return tx.Set(skuRef, sku)
		}

		goods.InStock += quantity
		if goods.SalesVolume >= quantity {
			goods.SalesVolume -= quantity
		} else {
			goods.SalesVolume = 0
		}
		goods.UpdatedAt = now
		return tx.Set(goodsRef, goods)
	})
	return wrapLedgerError("catalog.increaseStock", err)
}

func wrapLedgerError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ledgerErr *repositories.LedgerError
	if errors.As(err, &ledgerErr) {
		if ledgerErr.Op == "" {
			ledgerErr.Op = op
		}
		return ledgerErr
	}
	return pfirestore.WrapError(op, err)
}
