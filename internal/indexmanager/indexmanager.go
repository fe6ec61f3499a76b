/*
Package indexmanager implements Strata's Index Manager and index state
machine (spec.md §4.4): registering indexes, persisting each index's state,
guarding against silent descriptor drift (spec.md §9 Open Question 2, see
SPEC_FULL.md §4.4.1), and dispatching update_index calls to the right
maintainer in deterministic order.

Index *definitions* are never persisted, only their state byte and a
descriptor fingerprint: every process must re-register its full index set
on startup from the Schema, exactly as spec.md's "in-memory registration is
not persisted" rule requires.
*/
package indexmanager

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/index"
	"github.com/strata-db/strata/internal/keyexpr"
	"github.com/strata-db/strata/internal/kv"
	"github.com/strata-db/strata/internal/maintainer"
	"github.com/strata-db/strata/internal/rlog"
	"github.com/strata-db/strata/internal/rmetrics"
	"github.com/strata-db/strata/internal/tuple"
)

// State is one of the three values an index's persisted state byte holds.
type State byte

const (
	StateReadable  State = 0
	StateDisabled  State = 1
	StateWriteOnly State = 2
)

func (s State) String() string {
	switch s {
	case StateReadable:
		return "readable"
	case StateDisabled:
		return "disabled"
	case StateWriteOnly:
		return "writeOnly"
	default:
		return "unknown"
	}
}

// ShouldMaintain reports whether an index in this state receives
// update_index dispatch.
func (s State) ShouldMaintain() bool {
	return s == StateWriteOnly || s == StateReadable
}

const metaSubspaceTag = "_idx_meta"

var stateKeyTag = "state"
var descriptorHashKeyTag = "descriptor_hash"

// Manager owns the set of registered indexes for one container and
// dispatches writes to their maintainers.
type Manager struct {
	metaSub tuple.Subspace
	entries map[string]*entry
}

type entry struct {
	ix         *index.Index
	maintainer maintainer.Maintainer
}

// New returns an empty Manager rooted at root.
func New(root tuple.Subspace) *Manager {
	return &Manager{
		metaSub: root.Sub(metaSubspaceTag),
		entries: make(map[string]*entry),
	}
}

func (m *Manager) stateKey(name string) []byte {
	return m.metaSub.Pack(tuple.Tuple{name, stateKeyTag})
}

func (m *Manager) descriptorHashKey(name string) []byte {
	return m.metaSub.Pack(tuple.Tuple{name, descriptorHashKeyTag})
}

// Register records ix in the in-memory registry and ensures its persisted
// state exists, writing disabled if no prior state was committed. If a
// state was already committed under a *different* descriptor fingerprint,
// registration fails with DescriptorMismatch unless the persisted state is
// disabled (spec.md §9 Open Question 2 / SPEC_FULL.md §4.4.1).
func (m *Manager) Register(ctx context.Context, db kv.Database, ix *index.Index) error {
	name := ix.Descriptor.Name
	fingerprint := ix.Descriptor.Fingerprint()

	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		stateKey := m.stateKey(name)
		hashKey := m.descriptorHashKey(name)

		existingState, err := tx.Get(ctx, stateKey)
		if err != nil {
			return nil, err
		}
		existingHash, err := tx.Get(ctx, hashKey)
		if err != nil {
			return nil, err
		}

		if existingState == nil {
			tx.Set(ctx, stateKey, []byte{byte(StateDisabled)})
			tx.Set(ctx, hashKey, encodeHash(fingerprint))
			return nil, nil
		}

		if existingHash != nil && decodeHash(existingHash) != fingerprint {
			if State(existingState[0]) != StateDisabled {
				return nil, fmt.Errorf("indexmanager: index %s: %w", name, errs.ErrDescriptorMismatch)
			}
			tx.Set(ctx, hashKey, encodeHash(fingerprint))
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	m.entries[name] = &entry{ix: ix, maintainer: maintainer.New(ix)}
	rlog.WithIndexName(name).Debug().Msg("index registered")
	return nil
}

// State returns the persisted state of the named index.
func (m *Manager) State(ctx context.Context, db kv.Database, name string) (State, error) {
	if _, ok := m.entries[name]; !ok {
		return 0, fmt.Errorf("indexmanager: %w: %s", errs.ErrUnknownIndex, name)
	}
	res, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		v, err := tx.Get(ctx, m.stateKey(name))
		if err != nil {
			return nil, err
		}
		if v == nil {
			return StateDisabled, nil
		}
		return State(v[0]), nil
	})
	if err != nil {
		return 0, err
	}
	return res.(State), nil
}

var allowedTransitions = map[State]map[State]bool{
	StateDisabled:  {StateWriteOnly: true},
	StateWriteOnly: {StateReadable: true, StateDisabled: true},
	StateReadable:  {StateWriteOnly: true, StateDisabled: true},
}

// Transition atomically moves the named index from `from` to `to`,
// failing with StateTransitionNotAllowed if that edge is not in the state
// table (spec.md §4.4).
func (m *Manager) Transition(ctx context.Context, db kv.Database, name string, from, to State) error {
	if _, ok := m.entries[name]; !ok {
		return fmt.Errorf("indexmanager: %w: %s", errs.ErrUnknownIndex, name)
	}
	if !allowedTransitions[from][to] {
		return fmt.Errorf("indexmanager: index %s: %s -> %s: %w", name, from, to, errs.ErrStateTransitionNotAllowed)
	}
	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		stateKey := m.stateKey(name)
		current, err := tx.Get(ctx, stateKey)
		if err != nil {
			return nil, err
		}
		currentState := StateDisabled
		if current != nil {
			currentState = State(current[0])
		}
		if currentState != from {
			return nil, fmt.Errorf("indexmanager: index %s: expected state %s, found %s: %w", name, from, currentState, errs.ErrStateTransitionNotAllowed)
		}
		tx.Set(ctx, stateKey, []byte{byte(to)})
		return nil, nil
	})
	if err != nil {
		return err
	}
	rmetrics.IndexState.WithLabelValues(name).Set(float64(to))
	rlog.WithIndexName(name).Info().Msg("index state transitioned")
	return nil
}

// Remove range-clears the named index's entries and sets its state to
// disabled, then drops it from the in-memory registry (spec.md §4.4's
// "any -> disabled" row).
func (m *Manager) Remove(ctx context.Context, db kv.Database, name string) error {
	e, ok := m.entries[name]
	if !ok {
		return fmt.Errorf("indexmanager: %w: %s", errs.ErrUnknownIndex, name)
	}
	_, err := db.Transact(ctx, func(ctx context.Context, tx kv.Transaction) (any, error) {
		begin, end := e.ix.Subspace.Range()
		tx.ClearRange(ctx, begin, end)
		tx.Set(ctx, m.stateKey(name), []byte{byte(StateDisabled)})
		return nil, nil
	})
	if err != nil {
		return err
	}
	delete(m.entries, name)
	rmetrics.IndexState.WithLabelValues(name).Set(float64(StateDisabled))
	return nil
}

// UpdateIndex dispatches old -> new for id to every registered index that
// covers itemType and whose persisted state is maintain-eligible, in
// ascending lexicographic order of index name (spec.md §4.4).
func (m *Manager) UpdateIndex(ctx context.Context, tx kv.Transaction, itemType string, id tuple.Tuple, old, new keyexpr.ItemAccessor) error {
	names := m.coveringNamesSorted(itemType)
	for _, name := range names {
		e := m.entries[name]
		stateRaw, err := tx.Get(ctx, m.stateKey(name))
		if err != nil {
			return err
		}
		state := StateDisabled
		if stateRaw != nil {
			state = State(stateRaw[0])
		}
		if !state.ShouldMaintain() {
			continue
		}
		if err := e.maintainer.UpdateIndex(ctx, tx, id, old, new); err != nil {
			return fmt.Errorf("indexmanager: index %s: %w", name, err)
		}
		rmetrics.IndexUpdatesTotal.WithLabelValues(name, string(e.ix.Descriptor.Kind)).Inc()
	}
	return nil
}

func (m *Manager) coveringNamesSorted(itemType string) []string {
	var names []string
	for name, e := range m.entries {
		if e.ix.Covers(itemType) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Index returns the runtime Index and Maintainer registered under name.
func (m *Manager) Index(name string) (*index.Index, maintainer.Maintainer, error) {
	e, ok := m.entries[name]
	if !ok {
		return nil, nil, fmt.Errorf("indexmanager: %w: %s", errs.ErrUnknownIndex, name)
	}
	return e.ix, e.maintainer, nil
}

// IndexStates returns a snapshot of every registered index's persisted
// state read from db, keyed by name; an index whose state cannot be read is
// left out. It takes ctx and db, so Manager does not itself satisfy
// rmetrics.StatsSource.
func (m *Manager) IndexStates(ctx context.Context, db kv.Database) map[string]int {
	out := make(map[string]int, len(m.entries))
	for name := range m.entries {
		s, err := m.State(ctx, db, name)
		if err != nil {
			continue
		}
		out[name] = int(s)
	}
	return out
}

func encodeHash(h uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, h)
	return b
}

func decodeHash(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
