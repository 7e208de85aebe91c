package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/propscout/propscout-api/pkg/model"
	"github.com/propscout/propscout-api/pkg/util"
	"google.golang.org/api/iterator"
)

// ListingRepository handles Firestore read/write for listings.
type ListingRepository struct {
	client *firestore.Client
}

func NewListingRepository(client *firestore.Client) *ListingRepository {
	return &ListingRepository{client: client}
}

// QueryPage returns up to limit listings ordered by document id, starting
// after afterID ("" for the first page). The funnel applies its predicate
// filters in memory over each page.
func (r *ListingRepository) QueryPage(ctx context.Context, afterID string, limit int) ([]model.Listing, error) {
	q := r.client.Collection("listings").OrderBy(firestore.DocumentID, firestore.Asc).Limit(limit)
	if afterID != "" {
		q = q.StartAfter(afterID)
	}

	iter := q.Documents(ctx)
	var page []model.Listing
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate listings: %w", err)
		}
		var l model.Listing
		if err := doc.DataTo(&l); err != nil {
			return nil, fmt.Errorf("decode listing %s: %w", doc.Ref.ID, err)
		}
		if l.ID == "" {
			l.ID = doc.Ref.ID
		}
		page = append(page, l)
	}
	return page, nil
}

// GetByID loads a single listing.
func (r *ListingRepository) GetByID(ctx context.Context, id string) (model.Listing, error) {
	snap, err := r.client.Collection("listings").Doc(id).Get(ctx)
	if err != nil {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", id, err)
	}
	var l model.Listing
	if err := snap.DataTo(&l); err != nil {
		return model.Listing{}, fmt.Errorf("decode listing %s: %w", id, err)
	}
	if l.ID == "" {
		l.ID = snap.Ref.ID
	}
	return l, nil
}

// FetchAll loads the whole listing collection into memory for scoring views.
func (r *ListingRepository) FetchAll(ctx context.Context) ([]model.Listing, error) {
	iter := r.client.Collection("listings").Documents(ctx)
	var all []model.Listing
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate listings: %w", err)
		}
		var l model.Listing
		if err := doc.DataTo(&l); err != nil {
			return nil, fmt.Errorf("decode listing %s: %w", doc.Ref.ID, err)
		}
		if l.ID == "" {
			l.ID = doc.Ref.ID
		}
		all = append(all, l)
	}
	return all, nil
}

// BatchUpsert writes listings in batches to reduce round trips.
func (r *ListingRepository) BatchUpsert(ctx context.Context, listings []model.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	const batchSize = 400

	for start := 0; start < len(listings); start += batchSize {
		end := start + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		batch := r.client.Batch()
		for _, l := range listings[start:end] {
			docID := listingDocID(l)
			if l.ID == "" {
				l.ID = docID
			}
			batch.Set(r.client.Collection("listings").Doc(docID), l)
		}
		if _, err := batch.Commit(ctx); err != nil {
			return fmt.Errorf("commit batch [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

func listingDocID(l model.Listing) string {
	if l.ID != "" {
		return l.ID
	}
	if l.URL != "" {
		return util.HashString(l.URL)
	}
	return util.HashString(l.SourceID)
}
