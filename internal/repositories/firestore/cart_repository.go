package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/kado-mall/api/internal/domain"
	pfirestore "github.com/kado-mall/api/internal/platform/firestore"
)

// CartRepository persists session-scoped cart lines.
type CartRepository struct {
	provider *pfirestore.Provider
	lines    *pfirestore.BaseRepository[cartLineDocument]
}

func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	lines := pfirestore.NewBaseRepository[cartLineDocument](provider, cartLineCollection, nil, nil)
	return &CartRepository{provider: provider, lines: lines}, nil
}

func (r *CartRepository) Insert(ctx context.Context, line domain.CartLine) error {
	if r == nil || r.lines == nil {
		return errors.New("cart repository not initialised")
	}
	if strings.TrimSpace(line.ID) == "" {
		return errors.New("cart insert: line id is required")
	}
	if strings.TrimSpace(line.SessionKey) == "" {
		return errors.New("cart insert: session key is required")
	}
	if _, err := r.lines.Set(ctx, line.ID, newCartLineDocument(line)); err != nil {
		return pfirestore.WrapError("cart.insert", err)
	}
	return nil
}

func (r *CartRepository) LinesBySession(ctx context.Context, sessionKey string) ([]domain.CartLine, error) {
	if r == nil || r.lines == nil {
		return nil, errors.New("cart repository not initialised")
	}
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return nil, errors.New("cart list: session key is required")
	}

	docs, err := r.lines.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("sessionKey", "==", sessionKey).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, pfirestore.WrapError("cart.listBySession", err)
	}

	out := make([]domain.CartLine, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

// LinesByIDs loads the requested lines and drops any that do not belong to
// the session, so one session can never check out another session's cart.
func (r *CartRepository) LinesByIDs(ctx context.Context, sessionKey string, ids []string) ([]domain.CartLine, error) {
	if r == nil || r.lines == nil {
		return nil, errors.New("cart repository not initialised")
	}
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return nil, errors.New("cart load: session key is required")
	}

	out := make([]domain.CartLine, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		doc, err := r.lines.Get(ctx, id)
		if err != nil {
			if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
				continue
			}
			return nil, pfirestore.WrapError("cart.loadByIds", err)
		}
		if doc.Data.SessionKey != sessionKey {
			continue
		}
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *CartRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.lines == nil {
		return errors.New("cart repository not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("cart delete: line id is required")
	}

	ref, err := r.lines.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("cart.delete", err)
	}
	return nil
}

// DeleteExpired reaps lines whose deadline passed, in batches, and reports
// how many were removed.
func (r *CartRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("cart repository not initialised")
	}
	if limit <= 0 {
		limit = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("cart.deleteExpired", err)
	}

	query := client.Collection(cartLineCollection).
		Where("expiresAt", "<=", before.UTC()).
		Limit(limit).
		Select()
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("cart.deleteExpired", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	batch := client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, pfirestore.WrapError("cart.deleteExpired", err)
	}
	return len(docs), nil
}
