package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

// Settlement runs touch one document per row plus the owning subsites, so
// the batches get more headroom than the default transaction window.
const settleTxTimeout = 30 * time.Second

// SubsiteOrderRepository persists the fan-out rows joining orders to subsites.
// The document ID is the (subsite, order) composite, so duplicate fan-out is
// structurally impossible.
type SubsiteOrderRepository struct {
	provider *pfirestore.Provider
	rows     *pfirestore.BaseRepository[subsiteOrderDocument]
	subsites *pfirestore.BaseRepository[subsiteDocument]
}

func NewSubsiteOrderRepository(provider *pfirestore.Provider) (*SubsiteOrderRepository, error) {
	if provider == nil {
		return nil, errors.New("subsite order repository requires firestore provider")
	}
	rows := pfirestore.NewBaseRepository[subsiteOrderDocument](provider, subsiteOrderCollection, nil, nil)
	subsites := pfirestore.NewBaseRepository[subsiteDocument](provider, subsiteCollection, nil, nil)
	return &SubsiteOrderRepository{provider: provider, rows: rows, subsites: subsites}, nil
}

func (r *SubsiteOrderRepository) Get(ctx context.Context, id string) (domain.SubsiteOrder, error) {
	if r == nil || r.rows == nil {
		return domain.SubsiteOrder{}, errors.New("subsite order repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.SubsiteOrder{}, errors.New("subsite order get: id is required")
	}

	doc, err := r.rows.Get(ctx, id)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.SubsiteOrder{}, repositories.NewSubsiteError(repositories.SubsiteErrorOrderNotFound, fmt.Sprintf("subsite order %s not found", id), err)
		}
		return domain.SubsiteOrder{}, wrapSubsiteError("subsiteOrder.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *SubsiteOrderRepository) ListByOrder(ctx context.Context, orderSerial string) ([]domain.SubsiteOrder, error) {
	if r == nil || r.rows == nil {
		return nil, errors.New("subsite order repository not initialised")
	}
	orderSerial = strings.TrimSpace(orderSerial)
	if orderSerial == "" {
		return nil, errors.New("subsite order list: order serial is required")
	}

	docs, err := r.rows.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderSerial", "==", orderSerial)
	})
	if err != nil {
		return nil, wrapSubsiteError("subsiteOrder.listByOrder", err)
	}
	out := make([]domain.SubsiteOrder, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

// ListDue returns the delivery candidates for one subsite: never-delivered
// rows plus failed rows whose backoff deadline has passed and whose retry
// budget is not exhausted. Oldest rows come first.
func (r *SubsiteOrderRepository) ListDue(ctx context.Context, subsiteID string, now time.Time, limit int) ([]domain.SubsiteOrder, error) {
	if r == nil || r.rows == nil {
		return nil, errors.New("subsite order repository not initialised")
	}
	subsiteID = strings.TrimSpace(subsiteID)
	if subsiteID == "" {
		return nil, errors.New("subsite order list due: subsite id is required")
	}
	if limit <= 0 {
		limit = 50
	}
	now = now.UTC()

	pending, err := r.rows.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("subsiteId", "==", subsiteID).
			Where("syncStatus", "==", string(domain.SyncPending)).
			OrderBy("createdAt", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, wrapSubsiteError("subsiteOrder.listDue", err)
	}

	failed, err := r.rows.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("subsiteId", "==", subsiteID).
			Where("syncStatus", "==", string(domain.SyncFailed)).
			Where("nextRetryAt", "<=", now).
			OrderBy("nextRetryAt", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, wrapSubsiteError("subsiteOrder.listDue", err)
	}

	out := make([]domain.SubsiteOrder, 0, len(pending)+len(failed))
	for _, doc := range pending {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	for _, doc := range failed {
		// Retry ceiling cannot ride on the query: Firestore allows range
		// filters on a single field only.
		row := doc.Data.toDomain(doc.ID)
		if row.RetryCount >= domain.MaxSyncRetries {
			continue
		}
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *SubsiteOrderRepository) MarkSyncSuccess(ctx context.Context, id, remoteSerial string, now time.Time) (domain.SubsiteOrder, error) {
	return r.mutateRow(ctx, "subsiteOrder.markSuccess", id, func(row *domain.SubsiteOrder) error {
		row.MarkSyncSuccess(remoteSerial, now)
		return nil
	})
}

func (r *SubsiteOrderRepository) MarkSyncFailed(ctx context.Context, id, reason string, now time.Time) (domain.SubsiteOrder, error) {
	return r.mutateRow(ctx, "subsiteOrder.markFailed", id, func(row *domain.SubsiteOrder) error {
		row.MarkSyncFailed(reason, now)
		return nil
	})
}

func (r *SubsiteOrderRepository) ResetRetry(ctx context.Context, id string, now time.Time) (domain.SubsiteOrder, error) {
	return r.mutateRow(ctx, "subsiteOrder.resetRetry", id, func(row *domain.SubsiteOrder) error {
		if row.SyncStatus == domain.SyncSuccess {
			return repositories.NewSubsiteError(repositories.SubsiteErrorInvalidState, fmt.Sprintf("subsite order %s already delivered", row.ID), nil)
		}
		row.ResetRetry(now)
		return nil
	})
}

// mutateRow applies a domain transition to one fan-out row inside a
// transaction so concurrent sweeps cannot clobber each other.
func (r *SubsiteOrderRepository) mutateRow(ctx context.Context, op, id string, mutate func(*domain.SubsiteOrder) error) (domain.SubsiteOrder, error) {
	if r == nil || r.provider == nil {
		return domain.SubsiteOrder{}, errors.New("subsite order repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.SubsiteOrder{}, errors.New("subsite order mutate: id is required")
	}

	var updated domain.SubsiteOrder
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.rows.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewSubsiteError(repositories.SubsiteErrorOrderNotFound, fmt.Sprintf("subsite order %s not found", id), err)
			}
			return err
		}
		var doc subsiteOrderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode subsite order %s: %w", id, err)
		}
		row := doc.toDomain(id)
		if err := mutate(&row); err != nil {
			return err
		}
		if err := tx.Set(ref, newSubsiteOrderDocument(row)); err != nil {
			return err
		}
		updated = row
		return nil
	})
	if err != nil {
		return domain.SubsiteOrder{}, wrapSubsiteError(op, err)
	}
	return updated, nil
}

// SettlePending settles every pending-commission row of the subsite and
// credits the frozen amounts to its balance, all in one transaction. Running
// it twice in a row is a no-op because settled rows no longer match.
func (r *SubsiteOrderRepository) SettlePending(ctx context.Context, subsiteID string, now time.Time) (repositories.SettlementResult, error) {
	if r == nil || r.provider == nil {
		return repositories.SettlementResult{}, errors.New("subsite order repository not initialised")
	}
	subsiteID = strings.TrimSpace(subsiteID)
	if subsiteID == "" {
		return repositories.SettlementResult{}, errors.New("subsite order settle: subsite id is required")
	}
	now = now.UTC()

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.SettlementResult{}, wrapSubsiteError("subsiteOrder.settle", err)
	}

	var result repositories.SettlementResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		subsiteRef, err := r.subsites.DocumentRef(ctx, subsiteID)
		if err != nil {
			return err
		}
		subsiteSnap, err := tx.Get(subsiteRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewSubsiteError(repositories.SubsiteErrorNotFound, fmt.Sprintf("subsite %s not found", subsiteID), err)
			}
			return err
		}
		var subsite subsiteDocument
		if err := subsiteSnap.DataTo(&subsite); err != nil {
			return fmt.Errorf("decode subsite %s: %w", subsiteID, err)
		}

		query := client.Collection(subsiteOrderCollection).
			Where("subsiteId", "==", subsiteID).
			Where("commissionStatus", "==", string(domain.CommissionPending))
		iter := tx.Documents(query)
		defer iter.Stop()

		settled := 0
		var settledCents int64
		for {
			snap, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return err
			}
			var doc subsiteOrderDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode subsite order %s: %w", snap.Ref.ID, err)
			}
			row := doc.toDomain(snap.Ref.ID)
			if !row.MarkSettled(now) {
				continue
			}
			if err := tx.Set(snap.Ref, newSubsiteOrderDocument(row)); err != nil {
				return err
			}
			settled++
			settledCents += row.CommissionCents
		}

		newBalance := subsite.BalanceCents + settledCents
		if settled > 0 {
			if err := tx.Update(subsiteRef, []firestore.Update{
				{Path: "balanceCents", Value: newBalance},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		result = repositories.SettlementResult{
			SubsiteID:       subsiteID,
			SettledOrders:   settled,
			SettledCents:    settledCents,
			NewBalanceCents: newBalance,
		}
		return nil
	}, pfirestore.WithTxTimeout(settleTxTimeout))
	if err != nil {
		return repositories.SettlementResult{}, wrapSubsiteError("subsiteOrder.settle", err)
	}
	return result, nil
}

// SettleOrders settles the named rows and credits each owning subsite, all in
// one transaction. Already-settled rows are skipped; an unknown id fails the
// whole batch so a typo never settles a partial list.
func (r *SubsiteOrderRepository) SettleOrders(ctx context.Context, subsiteOrderIDs []string, now time.Time) (repositories.SettlementResult, error) {
	if r == nil || r.provider == nil {
		return repositories.SettlementResult{}, errors.New("subsite order repository not initialised")
	}
	ids := make([]string, 0, len(subsiteOrderIDs))
	for _, id := range subsiteOrderIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return repositories.SettlementResult{}, errors.New("subsite order settle: at least one id is required")
	}
	now = now.UTC()

	var result repositories.SettlementResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		rows := make([]domain.SubsiteOrder, 0, len(ids))
		rowRefs := make([]*firestore.DocumentRef, 0, len(ids))
		for _, id := range ids {
			ref, err := r.rows.DocumentRef(ctx, id)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewSubsiteError(repositories.SubsiteErrorOrderNotFound, fmt.Sprintf("subsite order %s not found", id), err)
				}
				return err
			}
			var doc subsiteOrderDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode subsite order %s: %w", id, err)
			}
			rows = append(rows, doc.toDomain(snap.Ref.ID))
			rowRefs = append(rowRefs, snap.Ref)
		}

		// Reads must all happen before writes, so resolve the balances of
		// every touched subsite first.
		credits := make(map[string]int64)
		var subsiteIDs []string
		for i := range rows {
			if rows[i].CommissionStatus != domain.CommissionPending {
				continue
			}
			if _, seen := credits[rows[i].SubsiteID]; !seen {
				credits[rows[i].SubsiteID] = 0
				subsiteIDs = append(subsiteIDs, rows[i].SubsiteID)
			}
		}
		sort.Strings(subsiteIDs)
		subsiteRefs := make(map[string]*firestore.DocumentRef, len(subsiteIDs))
		balances := make(map[string]int64, len(subsiteIDs))
		for _, subsiteID := range subsiteIDs {
			ref, err := r.subsites.DocumentRef(ctx, subsiteID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewSubsiteError(repositories.SubsiteErrorNotFound, fmt.Sprintf("subsite %s not found", subsiteID), err)
				}
				return err
			}
			var doc subsiteDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode subsite %s: %w", subsiteID, err)
			}
			subsiteRefs[subsiteID] = ref
			balances[subsiteID] = doc.BalanceCents
		}

		settled := 0
		var settledCents int64
		for i := range rows {
			if !rows[i].MarkSettled(now) {
				continue
			}
			if err := tx.Set(rowRefs[i], newSubsiteOrderDocument(rows[i])); err != nil {
				return err
			}
			credits[rows[i].SubsiteID] += rows[i].CommissionCents
			settled++
			settledCents += rows[i].CommissionCents
		}

		for _, subsiteID := range subsiteIDs {
			credit := credits[subsiteID]
			if credit == 0 {
				continue
			}
			if err := tx.Update(subsiteRefs[subsiteID], []firestore.Update{
				{Path: "balanceCents", Value: balances[subsiteID] + credit},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		result = repositories.SettlementResult{
			SettledOrders: settled,
			SettledCents:  settledCents,
		}
		if len(subsiteIDs) == 1 {
			only := subsiteIDs[0]
			result.SubsiteID = only
			result.NewBalanceCents = balances[only] + credits[only]
		}
		return nil
	}, pfirestore.WithTxTimeout(settleTxTimeout))
	if err != nil {
		return repositories.SettlementResult{}, wrapSubsiteError("subsiteOrder.settleOrders", err)
	}
	return result, nil
}

// Statistics aggregates order and commission figures for one subsite by
// streaming its fan-out rows.
func (r *SubsiteOrderRepository) Statistics(ctx context.Context, subsiteID string, now time.Time) (domain.SubsiteStatistics, error) {
	if r == nil || r.rows == nil {
		return domain.SubsiteStatistics{}, errors.New("subsite order repository not initialised")
	}
	subsiteID = strings.TrimSpace(subsiteID)
	if subsiteID == "" {
		return domain.SubsiteStatistics{}, errors.New("subsite order statistics: subsite id is required")
	}
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	docs, err := r.rows.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("subsiteId", "==", subsiteID)
	})
	if err != nil {
		return domain.SubsiteStatistics{}, wrapSubsiteError("subsiteOrder.statistics", err)
	}

	var stats domain.SubsiteStatistics
	for _, doc := range docs {
		row := doc.Data.toDomain(doc.ID)
		stats.TotalOrders++
		stats.TotalCommissionCents += row.CommissionCents
		switch row.SyncStatus {
		case domain.SyncPending:
			stats.PendingOrders++
		case domain.SyncFailed:
			stats.FailedOrders++
		}
		switch row.CommissionStatus {
		case domain.CommissionSettled:
			stats.SettledCommissionCents += row.CommissionCents
		default:
			stats.PendingCommissionCents += row.CommissionCents
		}
		if !row.CreatedAt.Before(dayStart) {
			stats.TodayOrders++
			stats.TodayCommissionCents += row.CommissionCents
		}
		if !row.CreatedAt.Before(monthStart) {
			stats.MonthOrders++
			stats.MonthCommissionCents += row.CommissionCents
		}
	}
	return stats, nil
}
