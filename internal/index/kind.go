package index

import (
	"fmt"

	"github.com/strata-db/strata/internal/errs"
)

// SubspaceStructure classifies how an index kind lays out its entries, per
// spec.md §3's IndexKind definition.
type SubspaceStructure int

const (
	// StructureFlat stores one empty-valued entry per derived row, as
	// scalar and version indexes do.
	StructureFlat SubspaceStructure = iota
	// StructureAggregation stores one reduced value per group, as count,
	// sum, min, and max indexes do.
	StructureAggregation
	// StructureHierarchical is reserved for future kinds (e.g. a
	// range/interval index); no built-in kind uses it yet.
	StructureHierarchical
)

func (s SubspaceStructure) String() string {
	switch s {
	case StructureFlat:
		return "flat"
	case StructureAggregation:
		return "aggregation"
	case StructureHierarchical:
		return "hierarchical"
	default:
		return "unknown"
	}
}

// KindIdentifier is the stable name carried in a persisted IndexDescriptor.
type KindIdentifier string

const (
	KindScalar  KindIdentifier = "scalar"
	KindCount   KindIdentifier = "count"
	KindSum     KindIdentifier = "sum"
	KindMin     KindIdentifier = "min"
	KindMax     KindIdentifier = "max"
	KindVersion KindIdentifier = "version"
)

// Kind is a built-in IndexKind: a stable identifier, the subspace structure
// it uses, and a validator over the field types a KeyExpression produced.
type Kind struct {
	Identifier KindIdentifier
	Structure  SubspaceStructure
}

// Kinds lists every built-in kind, keyed by identifier.
var Kinds = map[KindIdentifier]Kind{
	KindScalar:  {Identifier: KindScalar, Structure: StructureFlat},
	KindCount:   {Identifier: KindCount, Structure: StructureAggregation},
	KindSum:     {Identifier: KindSum, Structure: StructureAggregation},
	KindMin:     {Identifier: KindMin, Structure: StructureAggregation},
	KindMax:     {Identifier: KindMax, Structure: StructureAggregation},
	KindVersion: {Identifier: KindVersion, Structure: StructureFlat},
}

// LookupKind resolves a persisted kind identifier to its Kind value.
func LookupKind(id KindIdentifier) (Kind, error) {
	k, ok := Kinds[id]
	if !ok {
		return Kind{}, fmt.Errorf("index: kind %q: %w", id, errs.ErrIndexKindMismatch)
	}
	return k, nil
}

// isOrdered reports whether v is a totally-ordered tuple element type:
// everything tuple.Pack accepts except a nested tuple or a raw versionstamp,
// which have no single well-defined scalar ordering relative to the rest of
// the type domain.
func isOrdered(v any) bool {
	switch v.(type) {
	case nil, bool, int, int32, int64, uint, uint32, uint64, float32, float64, string, []byte:
		return true
	default:
		return false
	}
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

// ValidateRow checks that a KeyExpression evaluation row satisfies k's
// per-kind field-type requirements (spec.md §3's per-kind validator).
func ValidateRow(k Kind, key, value []any) error {
	switch k.Identifier {
	case KindScalar:
		for _, v := range key {
			if !isOrdered(v) {
				return fmt.Errorf("index: scalar: %w", errs.ErrTypeMismatch)
			}
		}
	case KindCount:
		// Any grouping types are accepted.
	case KindSum:
		if len(value) != 1 {
			return fmt.Errorf("index: sum: %w", errs.ErrInsufficientFields)
		}
		if !isNumeric(value[0]) {
			return fmt.Errorf("index: sum: %w", errs.ErrNonNumericValue)
		}
	case KindMin, KindMax:
		if len(value) != 1 {
			return fmt.Errorf("index: %s: %w", k.Identifier, errs.ErrInsufficientFields)
		}
		if !isOrdered(value[0]) {
			return fmt.Errorf("index: %s: %w", k.Identifier, errs.ErrNonNumericValue)
		}
	case KindVersion:
		for _, v := range key {
			if !isOrdered(v) {
				return fmt.Errorf("index: version: %w", errs.ErrTypeMismatch)
			}
		}
	}
	return nil
}
