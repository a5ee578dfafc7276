package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/warp/fisc-engine/legislation"
)

// =============================================================================
// SYSTEM - Entities, variables and legislation, immutable once built
// =============================================================================

var systemIDs atomic.Uint64

// System is an evaluation system: a reference tax-benefit system or a
// reform derived from one. Systems are shared read-only by any number of
// concurrent simulations.
type System struct {
	id          uint64
	name        string
	entities    []Entity
	entityIndex map[string]int
	registry    *Registry
	legislation *legislation.Node
	reference   *System
}

// NewSystem builds a reference system. Every variable must belong to a
// declared entity kind and every parameter path it declares must exist in
// params.
func NewSystem(name string, entities []Entity, params *legislation.Node, vars ...Variable) (*System, error) {
	if params == nil {
		params = legislation.NewNode("")
	}
	s := &System{
		id:          systemIDs.Add(1),
		name:        name,
		entities:    append([]Entity(nil), entities...),
		entityIndex: make(map[string]int, len(entities)),
		registry:    NewRegistry(),
		legislation: params,
	}
	for i, e := range entities {
		if _, dup := s.entityIndex[e.Key]; dup {
			return nil, fmt.Errorf("entity %s declared twice", e.Key)
		}
		s.entityIndex[e.Key] = i
	}
	for _, v := range vars {
		if err := s.checkVariable(v); err != nil {
			return nil, err
		}
		if err := s.registry.Register(v); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *System) checkVariable(v Variable) error {
	if _, ok := s.entityIndex[v.Entity]; !ok {
		return &DefinitionError{Variable: v.Name, Err: fmt.Errorf("%w: %q", ErrUnknownEntity, v.Entity)}
	}
	return s.checkParameters(v.Name, v.Parameters)
}

func (s *System) checkParameters(variable string, paths []string) error {
	for _, path := range paths {
		if _, err := s.legislation.Lookup(path); err != nil {
			return &DefinitionError{Variable: variable, Path: path, Err: err}
		}
	}
	return nil
}

func (s *System) Name() string { return s.name }

// Legislation returns the parameter tree. Callers must not modify it.
func (s *System) Legislation() *legislation.Node { return s.legislation }

// Reference returns the system this reform was built from, or nil.
func (s *System) Reference() *System { return s.reference }

func (s *System) IsReform() bool { return s.reference != nil }

// Entities returns the declared entity kinds.
func (s *System) Entities() []Entity { return append([]Entity(nil), s.entities...) }

// Entity returns the entity kind named key.
func (s *System) Entity(key string) (Entity, error) {
	i, ok := s.entityIndex[key]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %q", ErrUnknownEntity, key)
	}
	return s.entities[i], nil
}

// Variable returns the definition of a variable.
func (s *System) Variable(name string) (Variable, error) { return s.registry.Lookup(name) }

// Variables lists every variable with its entity kind and policy, in
// registration order.
func (s *System) Variables() []VariableInfo {
	vars := s.registry.Variables()
	out := make([]VariableInfo, len(vars))
	for i, v := range vars {
		out[i] = VariableInfo{
			Name:     v.Name,
			Label:    v.Label,
			Entity:   v.Entity,
			Policy:   v.Policy,
			Input:    v.IsInput(),
			Formulas: len(v.Formulas),
		}
	}
	return out
}

// Lineage returns the names of s and its references, s first.
func (s *System) Lineage() []string {
	var names []string
	for cur := s; cur != nil; cur = cur.reference {
		names = append(names, cur.name)
	}
	return names
}
