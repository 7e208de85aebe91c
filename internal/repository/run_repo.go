package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/propscout/propscout-api/pkg/model"
	"google.golang.org/api/iterator"
)

// RunRepository manages search run lifecycle records.
type RunRepository struct {
	client *firestore.Client
}

func NewRunRepository(client *firestore.Client) *RunRepository {
	return &RunRepository{client: client}
}

func (r *RunRepository) CreateRun(ctx context.Context, run model.SearchRun) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.UserID == "" {
		return fmt.Errorf("run userId is required")
	}
	if _, err := r.client.Collection("search_runs").Doc(run.ID).Set(ctx, run); err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

func (r *RunRepository) UpdateRun(ctx context.Context, run model.SearchRun) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if _, err := r.client.Collection("search_runs").Doc(run.ID).Set(ctx, run); err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (model.SearchRun, error) {
	snap, err := r.client.Collection("search_runs").Doc(id).Get(ctx)
	if err != nil {
		return model.SearchRun{}, fmt.Errorf("get run %s: %w", id, err)
	}
	var run model.SearchRun
	if err := snap.DataTo(&run); err != nil {
		return model.SearchRun{}, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]model.SearchRun, error) {
	if limit <= 0 {
		limit = 20
	}
	iter := r.client.Collection("search_runs").
		OrderBy("createdAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)

	var runs []model.SearchRun
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate runs: %w", err)
		}
		var run model.SearchRun
		if err := doc.DataTo(&run); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", doc.Ref.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}
