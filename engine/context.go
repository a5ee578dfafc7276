package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/fisc-engine/legislation"
	"github.com/warp/fisc-engine/periods"
)

// =============================================================================
// CONTEXT - What a formula sees
// =============================================================================

// Context is passed to formulas. It is bound to the system, entity and
// period the formula is running for, and is only valid during the call.
type Context struct {
	sim    *Simulation
	system *System
	entity EntityRef
	period periods.Period
}

// Entity returns the entity the formula is computing for.
func (c *Context) Entity() EntityRef { return c.entity }

// Period returns the requested period.
func (c *Context) Period() periods.Period { return c.period }

// SystemName returns the name of the system being evaluated.
func (c *Context) SystemName() string { return c.system.name }

// Calculate evaluates a variable of the same entity, applying that
// variable's own period policy.
func (c *Context) Calculate(name string, p periods.Period) (decimal.Decimal, error) {
	return c.sim.evaluate(c.system, c.entity, name, p, inheritPolicy)
}

// CalculateAdd evaluates a variable summing over sub-periods, whatever its
// own policy.
func (c *Context) CalculateAdd(name string, p periods.Period) (decimal.Decimal, error) {
	return c.sim.evaluate(c.system, c.entity, name, p, PolicyAdd)
}

// CalculateDivide evaluates a variable dividing a coarser value evenly,
// whatever its own policy.
func (c *Context) CalculateDivide(name string, p periods.Period) (decimal.Decimal, error) {
	return c.sim.evaluate(c.system, c.entity, name, p, PolicyDivide)
}

// CalculateBool is Calculate followed by Truthy.
func (c *Context) CalculateBool(name string, p periods.Period) (bool, error) {
	v, err := c.Calculate(name, p)
	return Truthy(v), err
}

// LegislationAt returns the parameter tree of the system bound to at.
// Formulas normally pass p.Start.
func (c *Context) LegislationAt(at periods.Instant) *legislation.View {
	return c.system.legislation.At(at)
}

// =============================================================================
// CROSS-ENTITY ACCESS
// =============================================================================

// Members returns the members of the current entity, which must be a group.
func (c *Context) Members() []Member {
	return c.sim.members.Members(c.entity)
}

// MemberValues evaluates a member variable for each member of the current
// group, optionally restricted to some roles.
func (c *Context) MemberValues(name string, p periods.Period, roles ...string) ([]MemberValue, error) {
	var values []MemberValue
	for _, m := range c.Members() {
		if !hasRole(m, roles) {
			continue
		}
		v, err := c.sim.evaluate(c.system, m.Entity, name, p, inheritPolicy)
		if err != nil {
			return nil, err
		}
		values = append(values, MemberValue{Member: m.Entity, Group: c.entity, Value: v})
	}
	return values, nil
}

// Aggregate reduces a member variable over the members of the current
// group. With roles, only members holding one of them take part.
func (c *Context) Aggregate(name string, p periods.Period, r Reduction, roles ...string) (decimal.Decimal, error) {
	values, err := c.MemberValues(name, p, roles...)
	if err != nil {
		return decimal.Zero, err
	}
	return SumByEntity(r, []EntityRef{c.entity}, values)[0], nil
}

// SumByEntity sums a member variable over the current group.
func (c *Context) SumByEntity(name string, p periods.Period) (decimal.Decimal, error) {
	return c.Aggregate(name, p, ReduceSum)
}

// Any reports whether a member variable is non-zero for some member.
func (c *Context) Any(name string, p periods.Period, roles ...string) (bool, error) {
	v, err := c.Aggregate(name, p, ReduceOr, roles...)
	return Truthy(v), err
}

// Group evaluates a variable of the group of the given kind the current
// entity belongs to.
func (c *Context) Group(kind, name string, p periods.Period) (decimal.Decimal, error) {
	g, ok := c.sim.members.GroupOf(c.entity, kind)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s in %s", ErrNoGroup, c.entity, kind)
	}
	return c.sim.evaluate(c.system, g, name, p, inheritPolicy)
}

// RoleIn returns the role the current entity holds in its group of the
// given kind.
func (c *Context) RoleIn(kind string) (string, error) {
	g, ok := c.sim.members.GroupOf(c.entity, kind)
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrNoGroup, c.entity, kind)
	}
	for _, m := range c.sim.members.Members(g) {
		if m.Entity == c.entity {
			return m.Role, nil
		}
	}
	return "", fmt.Errorf("%w: %s in %s", ErrNoGroup, c.entity, g)
}

// =============================================================================
// DELEGATION
// =============================================================================

// Reference returns a context bound to the system this reform was built
// from. Calculations made through it use the reference formulas and
// legislation and have their own cache space within the simulation.
func (c *Context) Reference() (*Context, error) {
	if c.system.reference == nil {
		return nil, fmt.Errorf("%s: %w", c.system.name, ErrNoReference)
	}
	return &Context{sim: c.sim, system: c.system.reference, entity: c.entity, period: c.period}, nil
}

func hasRole(m Member, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if m.Role == r {
			return true
		}
	}
	return false
}
