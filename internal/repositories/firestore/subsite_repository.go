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

// SubsiteRepository persists reseller tenants.
type SubsiteRepository struct {
	provider *pfirestore.Provider
	subsites *pfirestore.BaseRepository[subsiteDocument]
}

func NewSubsiteRepository(provider *pfirestore.Provider) (*SubsiteRepository, error) {
	if provider == nil {
		return nil, errors.New("subsite repository requires firestore provider")
	}
	subsites := pfirestore.NewBaseRepository[subsiteDocument](provider, subsiteCollection, nil, nil)
	return &SubsiteRepository{provider: provider, subsites: subsites}, nil
}

func (r *SubsiteRepository) Create(ctx context.Context, subsite domain.Subsite) error {
	if r == nil || r.provider == nil {
		return errors.New("subsite repository not initialised")
	}
	id := strings.TrimSpace(subsite.ID)
	if id == "" {
		return errors.New("subsite create: id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("subsite.create", err)
	}
	ref := client.Collection(subsiteCollection).Doc(id)
	if _, err := ref.Create(ctx, newSubsiteDocument(subsite)); err != nil {
		return pfirestore.WrapError("subsite.create", err)
	}
	return nil
}

func (r *SubsiteRepository) Get(ctx context.Context, subsiteID string) (domain.Subsite, error) {
	if r == nil || r.subsites == nil {
		return domain.Subsite{}, errors.New("subsite repository not initialised")
	}
	subsiteID = strings.TrimSpace(subsiteID)
	if subsiteID == "" {
		return domain.Subsite{}, errors.New("subsite get: id is required")
	}

	doc, err := r.subsites.Get(ctx, subsiteID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.Subsite{}, repositories.NewSubsiteError(repositories.SubsiteErrorNotFound, fmt.Sprintf("subsite %s not found", subsiteID), err)
		}
		return domain.Subsite{}, wrapSubsiteError("subsite.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *SubsiteRepository) Update(ctx context.Context, subsite domain.Subsite) error {
	if r == nil || r.subsites == nil {
		return errors.New("subsite repository not initialised")
	}
	id := strings.TrimSpace(subsite.ID)
	if id == "" {
		return errors.New("subsite update: id is required")
	}

	if _, err := r.subsites.Set(ctx, id, newSubsiteDocument(subsite)); err != nil {
		return wrapSubsiteError("subsite.update", err)
	}
	return nil
}

func (r *SubsiteRepository) List(ctx context.Context) ([]domain.Subsite, error) {
	if r == nil || r.subsites == nil {
		return nil, errors.New("subsite repository not initialised")
	}

	docs, err := r.subsites.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, wrapSubsiteError("subsite.list", err)
	}
	out := make([]domain.Subsite, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *SubsiteRepository) ListEnabledThirdParty(ctx context.Context) ([]domain.Subsite, error) {
	if r == nil || r.subsites == nil {
		return nil, errors.New("subsite repository not initialised")
	}

	docs, err := r.subsites.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("enabled", "==", true).Where("kind", "==", string(domain.SubsiteThirdParty))
	})
	if err != nil {
		return nil, wrapSubsiteError("subsite.listEnabled", err)
	}
	out := make([]domain.Subsite, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *SubsiteRepository) FindByAPIKey(ctx context.Context, apiKey string) (domain.Subsite, error) {
	if r == nil || r.subsites == nil {
		return domain.Subsite{}, errors.New("subsite repository not initialised")
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return domain.Subsite{}, repositories.NewSubsiteError(repositories.SubsiteErrorNotFound, "subsite api key is required", nil)
	}

	docs, err := r.subsites.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("apiKey", "==", apiKey).Limit(1)
	})
	if err != nil {
		return domain.Subsite{}, wrapSubsiteError("subsite.findByApiKey", err)
	}
	if len(docs) == 0 {
		return domain.Subsite{}, repositories.NewSubsiteError(repositories.SubsiteErrorNotFound, "no subsite matches api key", nil)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// IsNotFound lets auth middleware distinguish unknown keys from outages.
func (r *SubsiteRepository) IsNotFound(err error) bool {
	var subErr *repositories.SubsiteError
	if errors.As(err, &subErr) {
		return subErr.Code == repositories.SubsiteErrorNotFound
	}
	var repoErr *pfirestore.Error
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func (r *SubsiteRepository) UpdateLastSync(ctx context.Context, subsiteID string, at time.Time) error {
	if r == nil || r.subsites == nil {
		return errors.New("subsite repository not initialised")
	}
	subsiteID = strings.TrimSpace(subsiteID)
	if subsiteID == "" {
		return errors.New("subsite update last sync: id is required")
	}

	_, err := r.subsites.Update(ctx, subsiteID, []firestore.Update{
		{Path: "lastSyncAt", Value: at.UTC()},
		{Path: "updatedAt", Value: at.UTC()},
	})
	if err != nil {
		return wrapSubsiteError("subsite.updateLastSync", err)
	}
	return nil
}

// Delete removes the subsite and every fan-out row that belongs to it, in
// pages, so a removed tenant leaves no pending commission behind. The rows
// go first and the subsite document last, outside any transaction: an
// interrupted delete leaves the subsite document in place, and retrying the
// call resumes from the remaining rows.
func (r *SubsiteRepository) Delete(ctx context.Context, subsiteID string) error {
	if r == nil || r.provider == nil {
		return errors.New("subsite repository not initialised")
	}
	subsiteID = strings.TrimSpace(subsiteID)
	if subsiteID == "" {
		return errors.New("subsite delete: id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("subsite.delete", err)
	}

	ref := client.Collection(subsiteCollection).Doc(subsiteID)
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return repositories.NewSubsiteError(repositories.SubsiteErrorNotFound, fmt.Sprintf("subsite %s not found", subsiteID), err)
		}
		return pfirestore.WrapError("subsite.delete", err)
	}

	for {
		query := client.Collection(subsiteOrderCollection).
			Where("subsiteId", "==", subsiteID).
			Limit(200).
			Select()
		docs, err := query.Documents(ctx).GetAll()
		if err != nil {
			return pfirestore.WrapError("subsite.delete", err)
		}
		if len(docs) == 0 {
			break
		}
		batch := client.Batch()
		for _, doc := range docs {
			batch.Delete(doc.Ref)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return pfirestore.WrapError("subsite.delete", err)
		}
		if len(docs) < 200 {
			break
		}
	}

	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("subsite.delete", err)
	}
	return nil
}

func wrapSubsiteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var subErr *repositories.SubsiteError
	if errors.As(err, &subErr) {
		if subErr.Op == "" {
			subErr.Op = op
		}
		return subErr
	}
	return pfirestore.WrapError(op, err)
}
