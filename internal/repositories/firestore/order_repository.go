package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/kado-mall/api/internal/domain"
	pfirestore "github.com/kado-mall/api/internal/platform/firestore"
)

// OrderRepository persists orders keyed by their public serial, so serial
// uniqueness is enforced by the document ID itself.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	orders := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: orders}, nil
}

func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	serial := strings.TrimSpace(order.Serial)
	if serial == "" {
		return errors.New("order create: serial is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("order.create", err)
	}
	ref := client.Collection(orderCollection).Doc(serial)
	if _, err := ref.Create(ctx, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError("order.create", err)
	}
	return nil
}

func (r *OrderRepository) GetBySerial(ctx context.Context, serial string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return domain.Order{}, errors.New("order get: serial is required")
	}

	doc, err := r.orders.Get(ctx, serial)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("order.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) ExistsBySerial(ctx context.Context, serial string) (bool, error) {
	if r == nil || r.orders == nil {
		return false, errors.New("order repository not initialised")
	}
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return false, errors.New("order exists: serial is required")
	}

	_, err := r.orders.Get(ctx, serial)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return false, nil
		}
		return false, pfirestore.WrapError("order.exists", err)
	}
	return true, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, serial string, status domain.OrderStatus, now time.Time) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return errors.New("order update status: serial is required")
	}

	_, err := r.orders.Update(ctx, serial, []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "updatedAt", Value: now.UTC()},
	})
	if err != nil {
		return pfirestore.WrapError(fmt.Sprintf("order.updateStatus(%s)", serial), err)
	}
	return nil
}
