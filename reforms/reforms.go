/*
Package reforms holds counterfactual systems built on the reference catalog.

PURPOSE:
  Each reform is a function from a reference system to a new one. Reforms
  are looked up by key so the API and the CLI can build them on demand.

REFORMS:
  plfr2014                exceptional income tax reduction for 2013
  ir2007                  the 2007 income tax scale kept for later years
  no_deductible_charges   deductible charges ignored in the net income
  no_tax_reductions       tax reductions ignored

STACKING:
  Build applies several keys in order, each on top of the previous one:

      sys, err := reforms.Build(reference, "ir2007", "no_tax_reductions")

  ParseStack reads the same stack from "ir2007,no_tax_reductions".
*/
package reforms

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/warp/fisc-engine/engine"
)

// ErrUnknownReform is returned by Build for keys with no builder.
var ErrUnknownReform = errors.New("unknown reform")

// Builder derives a reform from its reference.
type Builder func(ref *engine.System) (*engine.System, error)

// Info describes a registered reform.
type Info struct {
	Key   string
	Label string
}

type entry struct {
	label string
	build Builder
}

var registry = map[string]entry{
	"plfr2014":              {"Projet de loi de finances rectificative 2014", PLFR2014},
	"ir2007":                {"Impôt sur le revenu, barème 2007", IR2007},
	"no_deductible_charges": {"Pas de charges déductibles", NoDeductibleCharges},
	"no_tax_reductions":     {"Pas de réductions d'impôt", NoTaxReductions},
}

// List returns the registered reforms sorted by key.
func List() []Info {
	infos := make([]Info, 0, len(registry))
	for key, e := range registry {
		infos = append(infos, Info{Key: key, Label: e.label})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

// Build applies the reforms named by keys on top of ref, in order.
// With no keys it returns ref.
func Build(ref *engine.System, keys ...string) (*engine.System, error) {
	sys := ref
	for _, key := range keys {
		e, ok := registry[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownReform, key)
		}
		next, err := e.build(sys)
		if err != nil {
			return nil, err
		}
		sys = next
	}
	return sys, nil
}

// ParseStack splits a comma separated reform stack. Blank keys and the
// reference name are dropped, so "" and "france" both mean the reference.
func ParseStack(stack, reference string) []string {
	var keys []string
	for _, k := range strings.Split(stack, ",") {
		if k = strings.TrimSpace(k); k != "" && k != reference {
			keys = append(keys, k)
		}
	}
	return keys
}
