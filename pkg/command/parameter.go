package command

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// ErrParameterInUse is returned when a parameter is bound while a previous
// execution still holds its native handle.
var ErrParameterInUse = errors.New("parameter is already bound to an execution")

// Direction is the data flow of a parameter.
type Direction int

const (
	In Direction = iota
	Out
	InOut
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	case InOut:
		return "inout"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Parameter is a named command argument.
type Parameter struct {
	Name      string
	Value     any
	Direction Direction

	// SourceColumn binds the parameter to a column when a DataSetCommand
	// writes rows back.
	SourceColumn string

	bound atomic.Bool
	out   any
}

// BareName returns the name without a leading @, : or $ marker.
func (p *Parameter) BareName() string {
	return strings.TrimLeft(p.Name, "@:$")
}

// Bound reports whether the parameter holds a live native handle.
func (p *Parameter) Bound() bool {
	return p.bound.Load()
}

// Bind creates the native handle for one execution and returns the driver
// argument. Out and InOut parameters bind as sql.Out.
func (p *Parameter) Bind() (any, error) {
	if !p.bound.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: %s", ErrParameterInUse, p.Name)
	}
	switch p.Direction {
	case Out:
		p.out = nil
		return sql.Out{Dest: &p.out}, nil
	case InOut:
		p.out = p.Value
		return sql.Out{Dest: &p.out, In: true}, nil
	default:
		return p.Value, nil
	}
}

// Collect copies an Out or InOut value back into Value and clears the handle.
func (p *Parameter) Collect() {
	if !p.bound.Load() {
		return
	}
	if p.Direction == Out || p.Direction == InOut {
		p.Value = p.out
	}
	p.Reset()
}

// Reset clears the handle without copying anything back.
func (p *Parameter) Reset() {
	p.out = nil
	p.bound.Store(false)
}

// Parameters is an ordered, name-addressed parameter list.
// Names match case-insensitively and ignore a leading marker character.
type Parameters struct {
	items []*Parameter
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimLeft(name, "@:$"))
}

// Add appends p, replacing any parameter with the same name in place.
func (ps *Parameters) Add(p *Parameter) *Parameter {
	key := normalizeName(p.Name)
	for i, existing := range ps.items {
		if key != "" && normalizeName(existing.Name) == key {
			ps.items[i] = p
			return p
		}
	}
	ps.items = append(ps.items, p)
	return p
}

// AddIn appends an input parameter.
func (ps *Parameters) AddIn(name string, value any) *Parameter {
	return ps.Add(&Parameter{Name: name, Value: value, Direction: In})
}

// AddOut appends an output parameter.
func (ps *Parameters) AddOut(name string) *Parameter {
	return ps.Add(&Parameter{Name: name, Direction: Out})
}

// AddInOut appends an input/output parameter.
func (ps *Parameters) AddInOut(name string, value any) *Parameter {
	return ps.Add(&Parameter{Name: name, Value: value, Direction: InOut})
}

// Get returns the parameter with the given name.
func (ps *Parameters) Get(name string) (*Parameter, bool) {
	key := normalizeName(name)
	for _, p := range ps.items {
		if normalizeName(p.Name) == key {
			return p, true
		}
	}
	return nil, false
}

// Value returns the current value of the named parameter, or nil.
func (ps *Parameters) Value(name string) any {
	if p, ok := ps.Get(name); ok {
		return p.Value
	}
	return nil
}

// Len returns the number of parameters.
func (ps *Parameters) Len() int { return len(ps.items) }

// All returns the parameters in order.
func (ps *Parameters) All() []*Parameter { return ps.items }

// Reset clears every native handle.
func (ps *Parameters) Reset() {
	for _, p := range ps.items {
		p.Reset()
	}
}
