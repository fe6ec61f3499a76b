/*
Package session implements Strata's Change-Tracking Session (spec.md §4.7):
a pending-changes map keyed by (itemType, id), applied to the Item Store and
Index Manager together on save, with autosave chaining and single-flight
save serialization (spec.md §5).
*/
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/indexmanager"
	"github.com/strata-db/strata/internal/itemstore"
	"github.com/strata-db/strata/internal/keyexpr"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/rlog"
	"github.com/strata-db/strata/internal/rmetrics"
	"github.com/strata-db/strata/internal/tuple"
)

// ItemDecoder turns stored item bytes into the ItemAccessor a maintainer's
// KeyExpression evaluates against; decoding is itemType-specific and
// supplied by the container.
type ItemDecoder func(itemType string, data []byte) (keyexpr.ItemAccessor, error)

type changeKind int

const (
	changeInsert changeKind = iota
	changeDelete
)

type pendingKey struct {
	itemType string
	packedID string
}

type pendingEntry struct {
	id   tuple.Tuple
	kind changeKind
	data []byte
}

// Session is the change-tracking session described by spec.md §4.7. A
// Session is not safe for concurrent mutation calls from multiple
// goroutines; the Index Manager it dispatches to is shared across sessions,
// but a Session's own pending map is not.
type Session struct {
	id      string
	db      kv.Database
	items   *itemstore.Store
	manager *indexmanager.Manager
	decode  ItemDecoder

	mu      sync.Mutex
	pending map[pendingKey]*pendingEntry
	order   []pendingKey

	autosave  bool
	saveState struct {
		mu         sync.Mutex
		inProgress bool
		again      bool
	}
}

// New returns a Session over items/manager, decoding stored bytes via
// decode when it needs to re-evaluate an item's old or new index rows.
func New(db kv.Database, items *itemstore.Store, manager *indexmanager.Manager, decode ItemDecoder) *Session {
	return &Session{
		id:      uuid.New().String(),
		db:      db,
		items:   items,
		manager: manager,
		decode:  decode,
		pending: make(map[pendingKey]*pendingEntry),
	}
}

// SetAutosave enables or disables autosave: when enabled, every Insert and
// Delete schedules an async Save after returning (spec.md §4.7).
func (s *Session) SetAutosave(enabled bool) {
	s.mu.Lock()
	s.autosave = enabled
	s.mu.Unlock()
}

// Insert records Insert(data) for (itemType, id), replacing any prior
// pending Delete for the same key (spec.md §4.7).
func (s *Session) Insert(ctx context.Context, itemType string, id tuple.Tuple, data []byte) {
	key := pendingKey{itemType: itemType, packedID: string(tuple.Pack(id))}

	s.mu.Lock()
	if _, exists := s.pending[key]; !exists {
		s.order = append(s.order, key)
	}
	s.pending[key] = &pendingEntry{id: id, kind: changeInsert, data: data}
	rmetrics.SessionPendingChanges.Set(float64(len(s.pending)))
	s.mu.Unlock()

	s.maybeAutosave(ctx)
}

// Delete records Delete for (itemType, id). If a pending Insert exists for
// an item not yet persisted, the two cancel out (net no-op); otherwise the
// Delete is retained so save issues a KV clear (spec.md §4.7).
func (s *Session) Delete(ctx context.Context, itemType string, id tuple.Tuple) error {
	key := pendingKey{itemType: itemType, packedID: string(tuple.Pack(id))}

	s.mu.Lock()
	existing, hasPending := s.pending[key]
	s.mu.Unlock()

	if hasPending && existing.kind == changeInsert {
		persisted, err := s.isPersisted(ctx, itemType, id)
		if err != nil {
			return err
		}
		if !persisted {
			s.mu.Lock()
			delete(s.pending, key)
			s.removeFromOrderLocked(key)
			rmetrics.SessionPendingChanges.Set(float64(len(s.pending)))
			s.mu.Unlock()
			return nil
		}
	}

	s.mu.Lock()
	if _, exists := s.pending[key]; !exists {
		s.order = append(s.order, key)
	}
	s.pending[key] = &pendingEntry{id: id, kind: changeDelete}
	rmetrics.SessionPendingChanges.Set(float64(len(s.pending)))
	s.mu.Unlock()

	s.maybeAutosave(ctx)
	return nil
}

// Rollback discards the pending map without touching committed state.
func (s *Session) Rollback() {
	s.mu.Lock()
	s.pending = make(map[pendingKey]*pendingEntry)
	s.order = nil
	s.mu.Unlock()
	rmetrics.SessionPendingChanges.Set(0)
}

// Reset is Rollback under the name spec.md also uses for it.
func (s *Session) Reset() {
	s.Rollback()
}

// HasChanges reports whether the pending map is non-empty.
func (s *Session) HasChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) > 0
}

// Fetch reads itemType/id from the committed store directly; pending
// inserts and deletes are not visible (SPEC_FULL.md §4.7.1).
func (s *Session) Fetch(ctx context.Context, itemType string, id tuple.Tuple) ([]byte, error) {
	res, err := s.db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return s.items.Load(ctx, tx, itemType, id)
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.([]byte), nil
}

// FetchRange scans every committed item of itemType in id order; like
// Fetch, it is blind to this session's pending changes.
func (s *Session) FetchRange(ctx context.Context, itemType string) ([]itemstore.Entry, error) {
	res, err := s.db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return s.items.Scan(ctx, tx, itemType)
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.([]itemstore.Entry), nil
}

// Save enters the single-flight critical section and commits every pending
// change in insertion order in one KV transaction. A save already in
// progress (including one launched by autosave) fails this call with
// ConcurrentSaveNotAllowed rather than racing (spec.md §5).
func (s *Session) Save(ctx context.Context) error {
	s.saveState.mu.Lock()
	if s.saveState.inProgress {
		s.saveState.mu.Unlock()
		return fmt.Errorf("session: %w", errs.ErrConcurrentSaveNotAllowed)
	}
	s.saveState.inProgress = true
	s.saveState.mu.Unlock()

	defer func() {
		s.saveState.mu.Lock()
		s.saveState.inProgress = false
		again := s.saveState.again
		s.saveState.again = false
		s.saveState.mu.Unlock()
		if again {
			go s.runAutosave(ctx)
		}
	}()

	return s.commit(ctx)
}

// maybeAutosave launches an async save when autosave is enabled. If a save
// is already running, it records that another is required: a running
// autosave loops and re-commits once more before releasing single-flight
// ownership, and a running Save launches a new autosave when it finishes
// (spec.md §4.7's autosave chaining rule).
func (s *Session) maybeAutosave(ctx context.Context) {
	s.mu.Lock()
	enabled := s.autosave
	s.mu.Unlock()
	if !enabled {
		return
	}
	go s.runAutosave(ctx)
}

func (s *Session) runAutosave(ctx context.Context) {
	s.saveState.mu.Lock()
	if s.saveState.inProgress {
		s.saveState.again = true
		s.saveState.mu.Unlock()
		return
	}
	s.saveState.inProgress = true
	s.saveState.mu.Unlock()

	for {
		if err := s.commit(ctx); err != nil {
			rlog.WithSessionID(s.id).Error().Err(err).Msg("autosave failed")
		}
		s.saveState.mu.Lock()
		if s.saveState.again {
			s.saveState.again = false
			s.saveState.mu.Unlock()
			continue
		}
		s.saveState.inProgress = false
		s.saveState.mu.Unlock()
		return
	}
}

// commit applies a snapshot of the pending map in insertion order, calling
// the Item Store then the Index Manager for each change (spec.md §4.7), and
// removes only the entries that were part of the snapshot on success so
// changes queued during the transaction survive for the next save.
func (s *Session) commit(ctx context.Context) error {
	s.mu.Lock()
	if len(s.order) == 0 {
		s.mu.Unlock()
		return nil
	}
	keys := append([]pendingKey(nil), s.order...)
	snapshot := make(map[pendingKey]*pendingEntry, len(keys))
	for _, k := range keys {
		snapshot[k] = s.pending[k]
	}
	s.mu.Unlock()

	start := time.Now()
	_, err := s.db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		for _, k := range keys {
			entry := snapshot[k]
			switch entry.kind {
			case changeInsert:
				if err := s.applyInsert(ctx, tx, k.itemType, entry); err != nil {
					return nil, err
				}
			case changeDelete:
				if err := s.applyDelete(ctx, tx, k.itemType, entry); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	})
	rmetrics.SessionSaveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		rmetrics.SessionSavesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("session: save: %w", err)
	}
	rmetrics.SessionSavesTotal.WithLabelValues("success").Inc()

	s.mu.Lock()
	for _, k := range keys {
		if cur, ok := s.pending[k]; ok && cur == snapshot[k] {
			delete(s.pending, k)
		}
	}
	s.rebuildOrderLocked()
	rmetrics.SessionPendingChanges.Set(float64(len(s.pending)))
	s.mu.Unlock()

	rlog.WithSessionID(s.id).Info().Int("changes", len(keys)).Msg("session saved")
	return nil
}

func (s *Session) applyInsert(ctx context.Context, tx kv.Transaction, itemType string, entry *pendingEntry) error {
	oldBytes, err := s.items.Load(ctx, tx, itemType, entry.id)
	if err != nil {
		return err
	}
	var oldAcc keyexpr.ItemAccessor
	if oldBytes != nil {
		oldAcc, err = s.decode(itemType, oldBytes)
		if err != nil {
			return err
		}
	}
	newAcc, err := s.decode(itemType, entry.data)
	if err != nil {
		return err
	}
	s.items.Save(ctx, tx, itemType, entry.id, entry.data)
	return s.manager.UpdateIndex(ctx, tx, itemType, entry.id, oldAcc, newAcc)
}

func (s *Session) applyDelete(ctx context.Context, tx kv.Transaction, itemType string, entry *pendingEntry) error {
	oldBytes, err := s.items.Load(ctx, tx, itemType, entry.id)
	if err != nil {
		return err
	}
	if oldBytes == nil {
		return nil
	}
	oldAcc, err := s.decode(itemType, oldBytes)
	if err != nil {
		return err
	}
	s.items.Delete(ctx, tx, itemType, entry.id)
	return s.manager.UpdateIndex(ctx, tx, itemType, entry.id, oldAcc, nil)
}

func (s *Session) isPersisted(ctx context.Context, itemType string, id tuple.Tuple) (bool, error) {
	res, err := s.db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		return s.items.Load(ctx, tx, itemType, id)
	})
	if err != nil {
		return false, err
	}
	return res != nil, nil
}

func (s *Session) removeFromOrderLocked(key pendingKey) {
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *Session) rebuildOrderLocked() {
	kept := s.order[:0]
	for _, k := range s.order {
		if _, ok := s.pending[k]; ok {
			kept = append(kept, k)
		}
	}
	s.order = kept
}
