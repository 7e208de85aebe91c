package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FavoritesRepository stores each user's favorited listing ids as one document
// in the `favorites` collection.
type FavoritesRepository struct {
	client *firestore.Client
}

func NewFavoritesRepository(client *firestore.Client) *FavoritesRepository {
	return &FavoritesRepository{client: client}
}

type favoritesDoc struct {
	ListingIDs []string `firestore:"listingIds"`
}

// List returns the user's favorited listing ids; a user with no document has
// no favorites.
func (r *FavoritesRepository) List(ctx context.Context, userID string) ([]string, error) {
	snap, err := r.client.Collection("favorites").Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get favorites for %s: %w", userID, err)
	}
	var doc favoritesDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode favorites for %s: %w", userID, err)
	}
	return doc.ListingIDs, nil
}

// Add appends a listing to the user's favorites; adding twice is a no-op.
func (r *FavoritesRepository) Add(ctx context.Context, userID, listingID string) error {
	ids, err := r.List(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == listingID {
			return nil
		}
	}
	ids = append(ids, listingID)
	return r.save(ctx, userID, ids)
}

// Remove drops a listing from the user's favorites; removing an absent id is a
// no-op.
func (r *FavoritesRepository) Remove(ctx context.Context, userID, listingID string) error {
	ids, err := r.List(ctx, userID)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != listingID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(ids) {
		return nil
	}
	return r.save(ctx, userID, kept)
}

func (r *FavoritesRepository) save(ctx context.Context, userID string, ids []string) error {
	if _, err := r.client.Collection("favorites").Doc(userID).Set(ctx, favoritesDoc{ListingIDs: ids}); err != nil {
		return fmt.Errorf("save favorites for %s: %w", userID, err)
	}
	return nil
}
