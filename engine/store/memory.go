// Package store provides in-memory input tables and membership providers
// for simulations.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/periods"
)

// ErrAlreadyMember is returned when a member is added to a second group of
// the same kind.
var ErrAlreadyMember = errors.New("entity already belongs to a group of that kind")

// =============================================================================
// MEMORY STORE - Household data for one batch
// =============================================================================

// Memory implements engine.InputTable and engine.Memberships. It is filled
// once (from a request body or from sqlite) and then read by simulations,
// possibly from several goroutines.
type Memory struct {
	mu       sync.RWMutex
	inputs   map[inputKey][]engine.InputValue
	members  map[engine.EntityRef][]engine.Member
	groups   map[groupKey]engine.EntityRef
	entities map[string][]engine.EntityRef
	known    map[engine.EntityRef]bool
}

type inputKey struct {
	Entity   engine.EntityRef
	Variable string
}

type groupKey struct {
	Member engine.EntityRef
	Kind   string
}

func NewMemory() *Memory {
	return &Memory{
		inputs:   make(map[inputKey][]engine.InputValue),
		members:  make(map[engine.EntityRef][]engine.Member),
		groups:   make(map[groupKey]engine.EntityRef),
		entities: make(map[string][]engine.EntityRef),
		known:    make(map[engine.EntityRef]bool),
	}
}

// AddEntity declares an entity. Declaring it again is a no-op.
func (m *Memory) AddEntity(ref engine.EntityRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addEntityLocked(ref)
}

func (m *Memory) addEntityLocked(ref engine.EntityRef) {
	if m.known[ref] {
		return
	}
	m.known[ref] = true
	m.entities[ref.Kind] = append(m.entities[ref.Kind], ref)
}

// AddMember places member in group with a role. Both are declared if
// needed. A member belongs to at most one group of each kind.
func (m *Memory) AddMember(group, member engine.EntityRef, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := groupKey{Member: member, Kind: group.Kind}
	if existing, ok := m.groups[k]; ok {
		if existing == group {
			return nil
		}
		return fmt.Errorf("%s in %s and %s: %w", member, existing, group, ErrAlreadyMember)
	}
	m.addEntityLocked(group)
	m.addEntityLocked(member)
	m.groups[k] = group
	m.members[group] = append(m.members[group], engine.Member{Entity: member, Role: role})
	return nil
}

// SetInput records a value, replacing any value given for the same period.
func (m *Memory) SetInput(entity engine.EntityRef, variable string, p periods.Period, value decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.addEntityLocked(entity)
	k := inputKey{Entity: entity, Variable: variable}
	values := m.inputs[k]
	for i, v := range values {
		if v.Period == p {
			values[i].Value = value
			return
		}
	}
	// Keep values sorted by start for deterministic reads.
	i := sort.Search(len(values), func(i int) bool { return p.Start.Before(values[i].Period.Start) })
	values = append(values, engine.InputValue{})
	copy(values[i+1:], values[i:])
	values[i] = engine.InputValue{Period: p, Value: value}
	m.inputs[k] = values
}

// Inputs implements engine.InputTable.
func (m *Memory) Inputs(entity engine.EntityRef, variable string) []engine.InputValue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.InputValue(nil), m.inputs[inputKey{Entity: entity, Variable: variable}]...)
}

// Members implements engine.Memberships.
func (m *Memory) Members(group engine.EntityRef) []engine.Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.Member(nil), m.members[group]...)
}

// GroupOf implements engine.Memberships.
func (m *Memory) GroupOf(member engine.EntityRef, kind string) (engine.EntityRef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[groupKey{Member: member, Kind: kind}]
	return g, ok
}

// Entities returns the entities of a kind in declaration order.
func (m *Memory) Entities(kind string) []engine.EntityRef {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.EntityRef(nil), m.entities[kind]...)
}

// Kinds returns the entity kinds present, sorted.
func (m *Memory) Kinds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kinds := make([]string, 0, len(m.entities))
	for k := range m.entities {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Record is one stored input, as listed by Each.
type Record struct {
	Entity   engine.EntityRef
	Variable string
	engine.InputValue
}

// Each calls fn for every stored input, ordered by entity, variable and
// period start.
func (m *Memory) Each(fn func(Record) error) error {
	m.mu.RLock()
	keys := make([]inputKey, 0, len(m.inputs))
	for k := range m.inputs {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Entity != b.Entity {
			if a.Entity.Kind != b.Entity.Kind {
				return a.Entity.Kind < b.Entity.Kind
			}
			return a.Entity.ID < b.Entity.ID
		}
		return a.Variable < b.Variable
	})
	for _, k := range keys {
		for _, v := range m.Inputs(k.Entity, k.Variable) {
			if err := fn(Record{Entity: k.Entity, Variable: k.Variable, InputValue: v}); err != nil {
				return err
			}
		}
	}
	return nil
}
