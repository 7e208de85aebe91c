package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/propscout/propscout-api/pkg/model"
	"github.com/propscout/propscout-api/pkg/util"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AnalysisRepository caches condition assessments per (user, listing).
type AnalysisRepository struct {
	client *firestore.Client
}

func NewAnalysisRepository(client *firestore.Client) *AnalysisRepository {
	return &AnalysisRepository{client: client}
}

// Get loads the cached assessment for one (user, listing) pair. The second
// return value reports whether a cached record exists.
func (r *AnalysisRepository) Get(ctx context.Context, userID, listingID string) (model.ConditionAssessment, bool, error) {
	id := util.HashAnalysisKey(userID, listingID)
	snap, err := r.client.Collection("analyses").Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return model.ConditionAssessment{}, false, nil
	}
	if err != nil {
		return model.ConditionAssessment{}, false, fmt.Errorf("get analysis %s: %w", id, err)
	}
	var a model.ConditionAssessment
	if err := snap.DataTo(&a); err != nil {
		return model.ConditionAssessment{}, false, fmt.Errorf("decode analysis %s: %w", id, err)
	}
	return a, true, nil
}

// GetManyForUser returns the cached assessments a user already has for the
// given listings, keyed by listing id. Missing entries are simply absent.
func (r *AnalysisRepository) GetManyForUser(ctx context.Context, userID string, listingIDs []string) (map[string]model.ConditionAssessment, error) {
	if len(listingIDs) == 0 {
		return map[string]model.ConditionAssessment{}, nil
	}

	refs := make([]*firestore.DocumentRef, 0, len(listingIDs))
	for _, lid := range listingIDs {
		refs = append(refs, r.client.Collection("analyses").Doc(util.HashAnalysisKey(userID, lid)))
	}

	snaps, err := r.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("get analyses for user %s: %w", userID, err)
	}

	result := make(map[string]model.ConditionAssessment, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var a model.ConditionAssessment
		if err := snap.DataTo(&a); err != nil {
			return nil, fmt.Errorf("decode analysis %s: %w", snap.Ref.ID, err)
		}
		result[a.ListingID] = a
	}
	return result, nil
}

// Save upserts an assessment under its (user, listing) hash id.
func (r *AnalysisRepository) Save(ctx context.Context, a model.ConditionAssessment) error {
	if a.UserID == "" || a.ListingID == "" {
		return fmt.Errorf("userId and listingId are required")
	}
	if a.ID == "" {
		a.ID = util.HashAnalysisKey(a.UserID, a.ListingID)
	}
	if _, err := r.client.Collection("analyses").Doc(a.ID).Set(ctx, a); err != nil {
		return fmt.Errorf("save analysis %s: %w", a.ID, err)
	}
	return nil
}

// ListForUser returns every cached assessment of one user.
func (r *AnalysisRepository) ListForUser(ctx context.Context, userID string) ([]model.ConditionAssessment, error) {
	iter := r.client.Collection("analyses").Where("userId", "==", userID).Documents(ctx)
	var out []model.ConditionAssessment
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate analyses: %w", err)
		}
		var a model.ConditionAssessment
		if err := doc.DataTo(&a); err != nil {
			return nil, fmt.Errorf("decode analysis %s: %w", doc.Ref.ID, err)
		}
		out = append(out, a)
	}
	return out, nil
}
