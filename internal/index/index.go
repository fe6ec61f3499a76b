/*
Package index holds Strata's index metadata types: IndexDescriptor (the
persistable schema form), Index (the runtime form with its compiled
KeyExpression), and the built-in IndexKind variants, per spec.md §3.
*/
package index

import (
	"fmt"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/keyexpr"
	"github.com/strata-db/strata/internal/tuple"
)

// Index is the runtime form of an IndexDescriptor: its fields, the
// KeyExpression compiled from its key paths, the subspace its entries live
// under, and the set of item types it covers.
type Index struct {
	Descriptor IndexDescriptor
	Kind       Kind
	Expr       keyexpr.Expression
	Subspace   tuple.Subspace
	ItemTypes  map[string]struct{}
}

// New compiles desc into a runtime Index rooted at subspace, covering
// itemTypes.
func New(desc IndexDescriptor, subspace tuple.Subspace, itemTypes []string) (*Index, error) {
	kind, err := LookupKind(desc.Kind)
	if err != nil {
		return nil, err
	}
	expr, err := compileExpression(kind, desc.KeyPaths)
	if err != nil {
		return nil, err
	}
	types := make(map[string]struct{}, len(itemTypes))
	for _, t := range itemTypes {
		types[t] = struct{}{}
	}
	return &Index{
		Descriptor: desc,
		Kind:       kind,
		Expr:       expr,
		Subspace:   subspace,
		ItemTypes:  types,
	}, nil
}

// Covers reports whether itemType is in the index's item type set.
func (ix *Index) Covers(itemType string) bool {
	_, ok := ix.ItemTypes[itemType]
	return ok
}

// Evaluate runs the index's KeyExpression against acc and validates each
// resulting row against the kind's field-type rules.
func (ix *Index) Evaluate(acc keyexpr.ItemAccessor) ([]keyexpr.Row, error) {
	rows, err := ix.Expr.Evaluate(acc)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := ValidateRow(ix.Kind, r.Key, r.Value); err != nil {
			return nil, fmt.Errorf("index %s: %w", ix.Descriptor.Name, err)
		}
	}
	return rows, nil
}

// compileExpression builds the KeyExpression a kind expects from an
// ordered list of dot-notation key paths (spec.md §4.2/§4.5): scalar and
// count concatenate every path as group components; sum/min/max require at
// least two paths and mark the last as the aggregated value; version
// appends a version() placeholder after the grouping components.
func compileExpression(kind Kind, keyPaths []string) (keyexpr.Expression, error) {
	f := keyexpr.Factory{}
	switch kind.Identifier {
	case KindScalar, KindCount:
		return f.FromKeyPaths(keyPaths)
	case KindSum, KindMin, KindMax:
		if len(keyPaths) < 2 {
			return nil, fmt.Errorf("index: %s: %w", kind.Identifier, errs.ErrInsufficientFields)
		}
		children := make([]keyexpr.Expression, 0, len(keyPaths))
		for _, p := range keyPaths[:len(keyPaths)-1] {
			child, err := f.FromDotNotation(p)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		last, err := f.FromDotNotation(keyPaths[len(keyPaths)-1])
		if err != nil {
			return nil, err
		}
		children = append(children, keyexpr.MarkValue(last))
		return keyexpr.Concatenate(children...), nil
	case KindVersion:
		children := make([]keyexpr.Expression, 0, len(keyPaths)+1)
		for _, p := range keyPaths {
			child, err := f.FromDotNotation(p)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		children = append(children, keyexpr.Version())
		return keyexpr.Concatenate(children...), nil
	default:
		return nil, fmt.Errorf("index: %w: %s", errs.ErrIndexKindMismatch, kind.Identifier)
	}
}
