/*
Package builder implements Strata's Online Index Builder (spec.md §4.6):
promoting an index from writeOnly to readable by re-applying its maintainer
to every existing item of the covered entity, in bounded batches, without
blocking concurrent writers.
*/
package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/indexmanager"
	"github.com/strata-db/strata/internal/itemstore"
	"github.com/strata-db/strata/internal/keyexpr"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/maintainer"
	"github.com/strata-db/strata/internal/rlog"
	"github.com/strata-db/strata/internal/rmetrics"
	"github.com/strata-db/strata/internal/tuple"
)

// DefaultBatchItems and DefaultBatchBytes are the batch bounds spec.md §4.6
// describes: "≤ B items (B default 500 or ≤ 1 MiB bytes)".
const (
	DefaultBatchItems = 500
	DefaultBatchBytes = 1 << 20
)

// ItemDecoder turns an item's stored bytes into the ItemAccessor a
// maintainer's KeyExpression evaluates against. Supplied by the caller
// (container), since decoding is itemType-specific and the out-of-scope
// metadata generator owns the real mapping.
type ItemDecoder func(itemType string, data []byte) (keyexpr.ItemAccessor, error)

// Progress is the builder's locally held resume point: the last
// successfully processed item id of the entity being built.
type Progress struct {
	LastID   tuple.Tuple
	Complete bool
}

// Builder drives one index's online build.
type Builder struct {
	manager    *indexmanager.Manager
	items      *itemstore.Store
	decode     ItemDecoder
	batchItems int
	batchBytes int
}

// New returns a Builder using manager's registered indexes and items as the
// entity's Item Store, decoding stored bytes via decode.
func New(manager *indexmanager.Manager, items *itemstore.Store, decode ItemDecoder) *Builder {
	return &Builder{
		manager:    manager,
		items:      items,
		decode:     decode,
		batchItems: DefaultBatchItems,
		batchBytes: DefaultBatchBytes,
	}
}

// WithBatchBounds overrides the default batch size bounds.
func (b *Builder) WithBatchBounds(items, bytes int) *Builder {
	b.batchItems = items
	b.batchBytes = bytes
	return b
}

// Build runs the online build to completion for indexName over itemType,
// resuming from progress.LastID if non-nil. It flips the index from
// disabled to writeOnly first if needed (spec.md §4.6 step 1), then scans
// the entity's item range in bounded batches, each in its own transaction,
// until a batch finds no item past progress.LastID, and then flips
// writeOnly -> readable in a separate state transition. The flip does not
// re-scan the tail inside its own transaction.
func (b *Builder) Build(ctx context.Context, db kv.Database, indexName, itemType string, progress *Progress) error {
	if progress == nil {
		progress = &Progress{}
	}

	state, err := b.manager.State(ctx, db, indexName)
	if err != nil {
		return err
	}
	if state == indexmanager.StateDisabled {
		if err := b.manager.Transition(ctx, db, indexName, indexmanager.StateDisabled, indexmanager.StateWriteOnly); err != nil {
			return err
		}
	} else if state != indexmanager.StateWriteOnly {
		return fmt.Errorf("builder: index %s: %w", indexName, errs.ErrStateTransitionNotAllowed)
	}

	_, m, err := b.manager.Index(indexName)
	if err != nil {
		return err
	}

	for {
		start := time.Now()
		processed, lastID, err := b.runBatch(ctx, db, itemType, m, progress.LastID)
		if err != nil {
			return err
		}
		rmetrics.IndexBuildBatchesTotal.WithLabelValues(indexName).Inc()
		rmetrics.IndexBuildItemsProcessed.WithLabelValues(indexName).Add(float64(processed))
		rlog.WithIndexName(indexName).Debug().
			Int("processed", processed).
			Dur("elapsed", time.Since(start)).
			Msg("builder batch committed")

		if processed == 0 {
			progress.Complete = true
			break
		}
		progress.LastID = lastID
	}

	return b.manager.Transition(ctx, db, indexName, indexmanager.StateWriteOnly, indexmanager.StateReadable)
}

// runBatch scans up to b.batchItems items after after, applying
// maintainer.ScanItem to each in one transaction, and returns how many were
// processed and the last id seen.
func (b *Builder) runBatch(ctx context.Context, db kv.Database, itemType string, m maintainer.Maintainer, after tuple.Tuple) (int, tuple.Tuple, error) {
	type result struct {
		processed int
		lastID    tuple.Tuple
	}
	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		var entries []itemstore.Entry
		var err error
		if after == nil {
			entries, err = b.items.Scan(ctx, tx, itemType)
			if err != nil {
				return nil, err
			}
			if len(entries) > b.batchItems {
				entries = entries[:b.batchItems]
			}
		} else {
			entries, err = b.items.ScanFrom(ctx, tx, itemType, after, b.batchItems)
			if err != nil {
				return nil, err
			}
		}

		byteTotal := 0
		lastID := after
		count := 0
		for _, e := range entries {
			byteTotal += len(e.Bytes)
			if byteTotal > b.batchBytes && count > 0 {
				break
			}
			acc, err := b.decode(itemType, e.Bytes)
			if err != nil {
				return nil, err
			}
			if err := m.ScanItem(ctx, tx, e.ID, acc); err != nil {
				return nil, err
			}
			lastID = e.ID
			count++
		}
		return result{processed: count, lastID: lastID}, nil
	})
	if err != nil {
		return 0, nil, err
	}
	r := res.(result)
	return r.processed, r.lastID, nil
}
