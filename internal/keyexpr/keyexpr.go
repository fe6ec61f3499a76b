/*
Package keyexpr implements Strata's KeyExpression tree (spec.md §4.2): a
small, pure expression language that derives one or more ordered tuples from
an item, used by index maintainers to compute the keys (and, for the
aggregate kinds, the value) a change should write.

Dynamic field access is replaced by the explicit ItemAccessor interface
(spec.md §9's "subscripted dynamic member access replaced by an explicit
accessor table" redesign flag) — there is no reflection here, only the
Field/Elements calls a concrete item type implements by hand.
*/
package keyexpr

import (
	"fmt"

	"github.com/strata-db/strata/internal/errs"
	"github.com/strata-db/strata/internal/tuple"
)

// Value is anything a field or list element can hold: a scalar accepted by
// tuple.Pack, or another ItemAccessor for nested structures.
type Value = any

// ItemAccessor is how a KeyExpression reads an item's fields, standing in
// for the out-of-scope macro-generated accessor table.
type ItemAccessor interface {
	// Field returns the value of the named leaf or structured field.
	Field(name string) (Value, error)
	// Elements returns the values of the named element-typed (repeated)
	// field, for evaluation by a list() expression.
	Elements(name string) ([]Value, error)
}

// Row is one output row of a KeyExpression evaluation: an ordered tuple of
// "key" components, an ordered tuple of "value" components (populated only
// below a value() node, and almost always of length 0 or 1), and whether a
// version() placeholder appeared anywhere in the row.
type Row struct {
	Key     tuple.Tuple
	Value   tuple.Tuple
	Version bool
}

// Expression is one node of a KeyExpression tree.
type Expression interface {
	// Evaluate derives the rows this node contributes for acc. A node with
	// no list() ancestor always yields exactly one row; list() fans out to
	// one row per element, and concatenate() takes the cross product of its
	// children's rows.
	Evaluate(acc ItemAccessor) ([]Row, error)
}

// Field extracts one value from the item's declared field name.
func Field(name string) Expression {
	return &fieldExpr{name: name}
}

type fieldExpr struct{ name string }

func (e *fieldExpr) Evaluate(acc ItemAccessor) ([]Row, error) {
	v, err := acc.Field(e.name)
	if err != nil {
		return nil, fmt.Errorf("keyexpr: field %q: %w", e.name, err)
	}
	return []Row{{Key: tuple.Tuple{v}}}, nil
}

// Nest evaluates child against the value of parentField, which must itself
// be an ItemAccessor (a structured value).
func Nest(parentField string, child Expression) Expression {
	return &nestExpr{parent: parentField, child: child}
}

type nestExpr struct {
	parent string
	child  Expression
}

func (e *nestExpr) Evaluate(acc ItemAccessor) ([]Row, error) {
	v, err := acc.Field(e.parent)
	if err != nil {
		return nil, fmt.Errorf("keyexpr: field %q: %w", e.parent, err)
	}
	nested, ok := v.(ItemAccessor)
	if !ok {
		return nil, fmt.Errorf("keyexpr: field %q: %w: not a structured value", e.parent, errs.ErrTypeMismatch)
	}
	return e.child.Evaluate(nested)
}

// Concatenate evaluates children in order and combines them: the output is
// the cross product of each child's rows, with Key and Value tuples
// concatenated component-wise and Version true if any child set it.
func Concatenate(children ...Expression) Expression {
	return &concatenateExpr{children: children}
}

type concatenateExpr struct{ children []Expression }

func (e *concatenateExpr) Evaluate(acc ItemAccessor) ([]Row, error) {
	rows := []Row{{}}
	for _, child := range e.children {
		childRows, err := child.Evaluate(acc)
		if err != nil {
			return nil, err
		}
		rows = crossJoin(rows, childRows)
	}
	return rows, nil
}

func crossJoin(left, right []Row) []Row {
	out := make([]Row, 0, len(left)*len(right))
	for _, l := range left {
		for _, r := range right {
			out = append(out, Row{
				Key:     append(append(tuple.Tuple{}, l.Key...), r.Key...),
				Value:   append(append(tuple.Tuple{}, l.Value...), r.Value...),
				Version: l.Version || r.Version,
			})
		}
	}
	return out
}

// List produces one row per element of the named element-typed field, with
// the element itself as the row's single key component. It takes no child
// expression: elements are used as-is, not evaluated further.
func List(field string) Expression {
	return &listExpr{field: field}
}

type listExpr struct{ field string }

func (e *listExpr) Evaluate(acc ItemAccessor) ([]Row, error) {
	elems, err := acc.Elements(e.field)
	if err != nil {
		return nil, fmt.Errorf("keyexpr: elements %q: %w", e.field, err)
	}
	rows := make([]Row, 0, len(elems))
	for _, v := range elems {
		rows = append(rows, Row{Key: tuple.Tuple{v}})
	}
	return rows, nil
}

// MarkValue evaluates child and reclassifies its Key components as Value
// components, marking the trailing part of the expression as the "value"
// consumed by the min/max/sum index kinds.
func MarkValue(child Expression) Expression {
	return &valueExpr{child: child}
}

type valueExpr struct{ child Expression }

func (e *valueExpr) Evaluate(acc ItemAccessor) ([]Row, error) {
	rows, err := e.child.Evaluate(acc)
	if err != nil {
		return nil, err
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{Value: append(append(tuple.Tuple{}, r.Value...), r.Key...), Version: r.Version}
	}
	return out, nil
}

// Version emits a version-stamp placeholder that the caller (typically a
// maintainer, via the KV transaction's NextVersionstamp) fills at commit
// time; it contributes no key or value component by itself.
func Version() Expression {
	return &versionExpr{}
}

type versionExpr struct{}

func (e *versionExpr) Evaluate(acc ItemAccessor) ([]Row, error) {
	return []Row{{Version: true}}, nil
}

// Factory builds expressions from convenient textual forms.
type Factory struct{}

// FromDotNotation compiles "a.b.c" into Nest("a", Nest("b", Field("c"))).
func (Factory) FromDotNotation(path string) (Expression, error) {
	return fromDotNotation(path)
}

func fromDotNotation(path string) (Expression, error) {
	if path == "" {
		return nil, fmt.Errorf("keyexpr: %w: empty dot path", errs.ErrInvalidConfiguration)
	}
	parts := splitDot(path)
	expr := Field(parts[len(parts)-1])
	for i := len(parts) - 2; i >= 0; i-- {
		expr = Nest(parts[i], expr)
	}
	return expr, nil
}

// FromKeyPaths compiles a list of dot-notation paths into a single
// Concatenate of their individually-compiled expressions.
func (Factory) FromKeyPaths(paths []string) (Expression, error) {
	children := make([]Expression, 0, len(paths))
	for _, p := range paths {
		child, err := fromDotNotation(p)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return Concatenate(children...), nil
}

func splitDot(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}
