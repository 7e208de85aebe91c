package search

import (
	"context"
	"sync"

	"github.com/propscout/propscout-api/pkg/model"
)

// AnalyzeFn processes a single candidate listing.
type AnalyzeFn func(ctx context.Context, l model.Listing) error

// dispatchBatches runs fn over the listings in fixed-size batches, each batch's
// calls executing concurrently. The dispatcher waits for every outcome of a
// batch before starting the next one, then invokes onBatch with the number of
// listings processed so far. Errors are fn's responsibility; a failed call does
// not stop the batch. Stops early when ctx is canceled.
func dispatchBatches(ctx context.Context, listings []model.Listing, batchSize int, fn AnalyzeFn, onBatch func(done int)) {
	if batchSize <= 0 {
		batchSize = 5
	}

	done := 0
	for start := 0; start < len(listings); start += batchSize {
		select {
		case <-ctx.Done():
			return
		default:
		}

		end := start + batchSize
		if end > len(listings) {
			end = len(listings)
		}

		var wg sync.WaitGroup
		for _, l := range listings[start:end] {
			wg.Add(1)
			go func(l model.Listing) {
				defer wg.Done()
				_ = fn(ctx, l)
			}(l)
		}
		wg.Wait()

		done = end
		if onBatch != nil {
			onBatch(done)
		}
	}
}
